// This file implements the test_cases table accessors: creation, hydration
// with ordered steps, and the importance columns the propagator writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

const testCaseColumns = "test_case_id, name, importance, importance_auto, created_at, updated_at"

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateTestCase inserts tc and returns its id. A zero Importance is stored
// as LOW; tc is updated with the id and timestamps.
func (b *Backend) CreateTestCase(ctx context.Context, tc *types.TestCase) (int64, error) {
	if tc == nil {
		return 0, types.ErrInvalidData
	}
	if tc.Name == "" {
		return 0, types.ErrInvalidName
	}
	if !tc.Importance.Valid() {
		return 0, types.ErrInvalidImportance
	}
	db, err := b.conn()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		"INSERT INTO test_cases (name, importance, importance_auto, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		tc.Name, tc.Importance.String(), tc.ImportanceAuto, formatTime(now), formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting test case: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	tc.ID = id
	tc.CreatedAt = now
	tc.UpdatedAt = now
	return id, nil
}

// TestCase returns the test case with its steps in position order.
func (b *Backend) TestCase(ctx context.Context, id int64) (*types.TestCase, error) {
	if id <= 0 {
		return nil, types.ErrInvalidID
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, "SELECT "+testCaseColumns+" FROM test_cases WHERE test_case_id = ?", id)
	tc, err := hydrateTestCase(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("test case %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting test case %d: %w", id, err)
	}

	steps, err := stepsOf(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("getting steps of test case %d: %w", id, err)
	}
	tc.Steps = steps
	return tc, nil
}

// TestCases returns every test case ordered by id, without steps.
func (b *Backend) TestCases(ctx context.Context) ([]*types.TestCase, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	return queryTestCases(ctx, db, "SELECT "+testCaseColumns+" FROM test_cases ORDER BY test_case_id")
}

// DirectCallers returns the test cases owning at least one call step to id,
// ordered by id, without steps.
func (b *Backend) DirectCallers(ctx context.Context, id int64) ([]*types.TestCase, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	return queryTestCases(ctx, db,
		`SELECT `+testCaseColumns+` FROM test_cases
		 WHERE test_case_id IN (SELECT test_case_id FROM steps WHERE kind = 'call' AND called_test_case_id = ?)
		 ORDER BY test_case_id`,
		id,
	)
}

// SetImportance stores imp without touching the auto flag.
func (b *Backend) SetImportance(ctx context.Context, id int64, imp types.Importance) error {
	if !imp.Valid() {
		return types.ErrInvalidImportance
	}
	return b.updateTestCase(ctx, id, "importance = ?", imp.String())
}

// ImportanceAuto reports whether the importance of id is deduced.
func (b *Backend) ImportanceAuto(ctx context.Context, id int64) (bool, error) {
	db, err := b.conn()
	if err != nil {
		return false, err
	}
	var auto bool
	err = db.QueryRowContext(ctx, "SELECT importance_auto FROM test_cases WHERE test_case_id = ?", id).Scan(&auto)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("test case %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("reading importance flag of test case %d: %w", id, err)
	}
	return auto, nil
}

// SetImportanceAuto stores the auto flag.
func (b *Backend) SetImportanceAuto(ctx context.Context, id int64, auto bool) error {
	return b.updateTestCase(ctx, id, "importance_auto = ?", auto)
}

// updateTestCase applies a single-column update and bumps updated_at.
func (b *Backend) updateTestCase(ctx context.Context, id int64, set string, value any) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		"UPDATE test_cases SET "+set+", updated_at = ? WHERE test_case_id = ?",
		value, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating test case %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("test case %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func queryTestCases(ctx context.Context, q querier, query string, args ...any) ([]*types.TestCase, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying test cases: %w", err)
	}
	defer rows.Close()

	var out []*types.TestCase
	for rows.Next() {
		tc, err := hydrateTestCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func hydrateTestCase(row rowScanner) (*types.TestCase, error) {
	var (
		tc                   types.TestCase
		importance           string
		createdAt, updatedAt string
	)
	if err := row.Scan(&tc.ID, &tc.Name, &importance, &tc.ImportanceAuto, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	imp, err := types.ParseImportance(importance)
	if err != nil {
		return nil, fmt.Errorf("test case %d: %w", tc.ID, err)
	}
	tc.Importance = imp
	if tc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &tc, nil
}

// testCaseExists returns ErrNotFound when id is not a test case.
func testCaseExists(ctx context.Context, q querier, id int64) error {
	ok, err := exists(ctx, q, "SELECT 1 FROM test_cases WHERE test_case_id = ?", id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("test case %d: %w", id, types.ErrNotFound)
	}
	return nil
}
