// This file implements requirement versions, the verifications relation that
// links test cases to them, and datasets.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// CreateRequirementVersion inserts rv and returns its id.
func (b *Backend) CreateRequirementVersion(ctx context.Context, rv *types.RequirementVersion) (int64, error) {
	if rv == nil {
		return 0, types.ErrInvalidData
	}
	if rv.Name == "" {
		return 0, types.ErrInvalidName
	}
	if !rv.Criticality.Valid() {
		return 0, types.ErrInvalidCriticality
	}
	db, err := b.conn()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		"INSERT INTO requirement_versions (name, criticality, created_at) VALUES (?, ?, ?)",
		rv.Name, rv.Criticality.String(), formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting requirement version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rv.ID = id
	rv.CreatedAt = now
	return id, nil
}

// RequirementVersion returns a single requirement version.
func (b *Backend) RequirementVersion(ctx context.Context, id int64) (*types.RequirementVersion, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	rv, err := hydrateRequirementVersion(db.QueryRowContext(ctx,
		"SELECT requirement_version_id, name, criticality, created_at FROM requirement_versions WHERE requirement_version_id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("requirement version %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting requirement version %d: %w", id, err)
	}
	return rv, nil
}

// RequirementVersions returns every requirement version ordered by id.
func (b *Backend) RequirementVersions(ctx context.Context) ([]*types.RequirementVersion, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT requirement_version_id, name, criticality, created_at FROM requirement_versions ORDER BY requirement_version_id")
	if err != nil {
		return nil, fmt.Errorf("querying requirement versions: %w", err)
	}
	defer rows.Close()

	var out []*types.RequirementVersion
	for rows.Next() {
		rv, err := hydrateRequirementVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// SetCriticality stores a new criticality for the requirement version.
func (b *Backend) SetCriticality(ctx context.Context, requirementVersionID int64, c types.Criticality) error {
	if !c.Valid() {
		return types.ErrInvalidCriticality
	}
	db, err := b.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		"UPDATE requirement_versions SET criticality = ? WHERE requirement_version_id = ?",
		c.String(), requirementVersionID,
	)
	if err != nil {
		return fmt.Errorf("updating criticality of %d: %w", requirementVersionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("requirement version %d: %w", requirementVersionID, types.ErrNotFound)
	}
	return nil
}

// LinkRequirement records that the test case verifies the requirement
// version. Returns ErrDuplicate if the link exists.
func (b *Backend) LinkRequirement(ctx context.Context, testCaseID, requirementVersionID int64) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		if err := testCaseExists(ctx, tx, testCaseID); err != nil {
			return err
		}
		ok, err := exists(ctx, tx, "SELECT 1 FROM requirement_versions WHERE requirement_version_id = ?", requirementVersionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("requirement version %d: %w", requirementVersionID, types.ErrNotFound)
		}
		linked, err := exists(ctx, tx,
			"SELECT 1 FROM verifications WHERE test_case_id = ? AND requirement_version_id = ?",
			testCaseID, requirementVersionID)
		if err != nil {
			return err
		}
		if linked {
			return fmt.Errorf("test case %d verifies %d: %w", testCaseID, requirementVersionID, types.ErrDuplicate)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO verifications (test_case_id, requirement_version_id) VALUES (?, ?)",
			testCaseID, requirementVersionID,
		); err != nil {
			return fmt.Errorf("inserting verification: %w", err)
		}
		return nil
	})
}

// UnlinkRequirement removes the verification link. Returns ErrNotFound if
// there is none.
func (b *Backend) UnlinkRequirement(ctx context.Context, testCaseID, requirementVersionID int64) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		"DELETE FROM verifications WHERE test_case_id = ? AND requirement_version_id = ?",
		testCaseID, requirementVersionID,
	)
	if err != nil {
		return fmt.Errorf("deleting verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("test case %d does not verify %d: %w", testCaseID, requirementVersionID, types.ErrNotFound)
	}
	return nil
}

// TestCasesVerifying returns the test cases directly verifying the
// requirement version, ordered by id.
func (b *Backend) TestCasesVerifying(ctx context.Context, requirementVersionID int64) ([]int64, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	out, err := queryIDs(ctx, db,
		"SELECT test_case_id FROM verifications WHERE requirement_version_id = ? ORDER BY test_case_id",
		requirementVersionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying verifying test cases: %w", err)
	}
	return out, nil
}

// CriticalitiesOf returns the distinct criticalities of the requirement
// versions verified by any of ids, weakest first.
func (b *Backend) CriticalitiesOf(ctx context.Context, ids []int64) ([]types.Criticality, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	seen := make(map[types.Criticality]bool)
	err = inBatches(ids, func(in string, args []any) error {
		rows, err := db.QueryContext(ctx,
			`SELECT DISTINCT rv.criticality FROM verifications v
			 JOIN requirement_versions rv ON rv.requirement_version_id = v.requirement_version_id
			 WHERE v.test_case_id IN (`+in+`)`,
			args...,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			c, err := types.ParseCriticality(name)
			if err != nil {
				return err
			}
			seen[c] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("querying criticalities: %w", err)
	}

	var out []types.Criticality
	for _, c := range types.Criticalities {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateDataset inserts ds for its owning test case.
func (b *Backend) CreateDataset(ctx context.Context, ds *types.Dataset) (int64, error) {
	if ds == nil {
		return 0, types.ErrInvalidData
	}
	if ds.Name == "" {
		return 0, types.ErrInvalidName
	}
	var id int64
	err := b.withTx(ctx, func(tx *sql.Tx) error {
		if err := testCaseExists(ctx, tx, ds.TestCaseID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "INSERT INTO datasets (test_case_id, name) VALUES (?, ?)", ds.TestCaseID, ds.Name)
		if err != nil {
			return fmt.Errorf("inserting dataset: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	ds.ID = id
	return id, nil
}

// Dataset returns a single dataset.
func (b *Backend) Dataset(ctx context.Context, id int64) (*types.Dataset, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var ds types.Dataset
	err = db.QueryRowContext(ctx, "SELECT dataset_id, test_case_id, name FROM datasets WHERE dataset_id = ?", id).
		Scan(&ds.ID, &ds.TestCaseID, &ds.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting dataset %d: %w", id, err)
	}
	return &ds, nil
}

func datasetExists(ctx context.Context, q querier, id int64) error {
	ok, err := exists(ctx, q, "SELECT 1 FROM datasets WHERE dataset_id = ?", id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dataset %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func hydrateRequirementVersion(row rowScanner) (*types.RequirementVersion, error) {
	var (
		rv                  types.RequirementVersion
		criticality, create string
	)
	if err := row.Scan(&rv.ID, &rv.Name, &criticality, &create); err != nil {
		return nil, err
	}
	c, err := types.ParseCriticality(criticality)
	if err != nil {
		return nil, err
	}
	rv.Criticality = c
	if rv.CreatedAt, err = parseTime(create); err != nil {
		return nil, err
	}
	return &rv, nil
}
