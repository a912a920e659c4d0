// This file implements snapshot export and import: one JSONL file per table,
// written atomically and loaded back in a single transaction.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// snapshotTables maps JSONL files to tables and columns. Order matters:
// referenced tables come first.
var snapshotTables = []struct {
	file    string
	table   string
	columns []string
}{
	{"test_cases.jsonl", "test_cases", []string{"test_case_id", "name", "importance", "importance_auto", "created_at", "updated_at"}},
	{"datasets.jsonl", "datasets", []string{"dataset_id", "test_case_id", "name"}},
	{"requirement_versions.jsonl", "requirement_versions", []string{"requirement_version_id", "name", "criticality", "created_at"}},
	{"steps.jsonl", "steps", []string{"step_id", "test_case_id", "position", "kind", "action", "expected_result", "keyword", "keyword_text", "called_test_case_id", "delegate_parameters", "dataset_id"}},
	{"verifications.jsonl", "verifications", []string{"test_case_id", "requirement_version_id"}},
}

// SnapshotFiles lists the file names Export writes.
func SnapshotFiles() []string {
	out := make([]string, len(snapshotTables))
	for i, m := range snapshotTables {
		out[i] = m.file
	}
	return out
}

// Export writes every table to dir as JSONL, one object per row.
func (b *Backend) Export(ctx context.Context, dir string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	for _, m := range snapshotTables {
		records, err := dumpTable(ctx, db, m.table, m.columns)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", m.table, err)
		}
		if err := writeJSONL(filepath.Join(dir, m.file), records); err != nil {
			return fmt.Errorf("writing %s: %w", m.file, err)
		}
	}
	return nil
}

func dumpTable(ctx context.Context, q querier, table string, columns []string) ([]json.RawMessage, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(columns, ", "), table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		obj := make(map[string]any, len(columns))
		for i, col := range columns {
			if raw, ok := values[i].([]byte); ok {
				obj[col] = string(raw)
				continue
			}
			obj[col] = values[i]
		}
		rec, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Import replaces the database contents with the snapshot in dir. Missing
// files load as empty tables. The load is all or nothing.
func (b *Backend) Import(ctx context.Context, dir string) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		// Foreign keys are checked at commit so rows can arrive in any order.
		if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
			return fmt.Errorf("deferring foreign keys: %w", err)
		}

		for _, m := range slices.Backward(snapshotTables) {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+m.table); err != nil {
				return fmt.Errorf("clearing %s: %w", m.table, err)
			}
		}

		for _, m := range snapshotTables {
			records, err := readJSONL(filepath.Join(dir, m.file))
			if err != nil {
				return err
			}
			if err := insertRecords(ctx, tx, m.table, m.columns, records); err != nil {
				return fmt.Errorf("loading %s into %s: %w", m.file, m.table, err)
			}
		}
		// A failed COMMIT on deferred keys leaves the transaction open, so
		// check before committing.
		if err := checkForeignKeys(ctx, tx); err != nil {
			return err
		}
		return checkSnapshot(ctx, tx)
	})
}

func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("checking foreign keys: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s row %d references a missing %s row", types.ErrInvalidData, table, rowid.Int64, parent)
	}
	return rows.Err()
}

// checkSnapshot reads every loaded row back the way the store does and
// rejects data the store never writes: unknown enum values, gaps in step
// positions and cyclic calls.
func checkSnapshot(ctx context.Context, tx *sql.Tx) error {
	if _, err := queryTestCases(ctx, tx, "SELECT "+testCaseColumns+" FROM test_cases"); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidData, err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT requirement_version_id, name, criticality, created_at FROM requirement_versions")
	if err != nil {
		return fmt.Errorf("checking requirement versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if _, err := hydrateRequirementVersion(rows); err != nil {
			return fmt.Errorf("%w: %w", types.ErrInvalidData, err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	steps, err := querySteps(ctx, tx, "SELECT "+stepColumns+" FROM steps ORDER BY test_case_id, position")
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidData, err)
	}
	next := make(map[int64]int)
	calls := make(map[int64][]int64)
	for _, s := range steps {
		if s.Position != next[s.TestCaseID] {
			return fmt.Errorf("%w: test case %d has step %d at position %d, want %d",
				types.ErrInvalidData, s.TestCaseID, s.ID, s.Position, next[s.TestCaseID])
		}
		next[s.TestCaseID]++
		if s.Kind != types.StepKindCall {
			continue
		}
		if s.Call.CalledTestCaseID <= 0 {
			return fmt.Errorf("%w: call step %d has no callee", types.ErrInvalidData, s.ID)
		}
		calls[s.TestCaseID] = append(calls[s.TestCaseID], s.Call.CalledTestCaseID)
	}
	return checkAcyclic(calls)
}

// checkAcyclic peels test cases nobody calls until none are left. Whatever
// cannot be peeled lies on a cycle.
func checkAcyclic(calls map[int64][]int64) error {
	callers := make(map[int64]int)
	for caller, callees := range calls {
		if _, ok := callers[caller]; !ok {
			callers[caller] = 0
		}
		for _, callee := range callees {
			callers[callee]++
		}
	}

	var free []int64
	for id, n := range callers {
		if n == 0 {
			free = append(free, id)
		}
	}
	for len(free) > 0 {
		id := free[len(free)-1]
		free = free[:len(free)-1]
		delete(callers, id)
		for _, callee := range calls[id] {
			callers[callee]--
			if callers[callee] == 0 {
				free = append(free, callee)
			}
		}
	}
	if len(callers) == 0 {
		return nil
	}

	stuck := make([]int64, 0, len(callers))
	for id := range callers {
		stuck = append(stuck, id)
	}
	slices.Sort(stuck)
	return fmt.Errorf("%w: test cases %v are on or below a call cycle", types.ErrInvalidData, stuck)
}

// insertRecords inserts parsed JSONL records into table. Fields not listed in
// columns are ignored; listed columns missing from a record insert NULL.
func insertRecords(ctx context.Context, tx *sql.Tx, table string, columns []string, records []json.RawMessage) error {
	if len(records) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders,
	))
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	for n, rec := range records {
		dec := json.NewDecoder(bytes.NewReader(rec))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			continue
		}

		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = sqlValue(obj[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
	}
	return nil
}

// sqlValue converts a decoded JSON value to a driver value. Integral numbers
// stay integers so they can fill INTEGER PRIMARY KEY columns.
func sqlValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
