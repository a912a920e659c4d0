// This file implements the steps table accessors. Steps of a test case keep
// contiguous positions starting at 0: inserting shifts later steps down and
// deleting closes the gap.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

const stepColumns = "step_id, test_case_id, position, kind, action, expected_result, keyword, keyword_text, called_test_case_id, delegate_parameters, dataset_id"

// Step returns a single step.
func (b *Backend) Step(ctx context.Context, id int64) (*types.Step, error) {
	if id <= 0 {
		return nil, types.ErrInvalidID
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	step, err := hydrateStep(db.QueryRowContext(ctx, "SELECT "+stepColumns+" FROM steps WHERE step_id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("step %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting step %d: %w", id, err)
	}
	return step, nil
}

// Steps returns the steps in the order of ids.
func (b *Backend) Steps(ctx context.Context, ids []int64) ([]*types.Step, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*types.Step, len(ids))
	err = inBatches(ids, func(in string, args []any) error {
		steps, err := querySteps(ctx, db, "SELECT "+stepColumns+" FROM steps WHERE step_id IN ("+in+")", args...)
		for _, step := range steps {
			byID[step.ID] = step
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}

	out := make([]*types.Step, 0, len(ids))
	for _, id := range ids {
		step, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("step %d: %w", id, types.ErrNotFound)
		}
		out = append(out, step)
	}
	return out, nil
}

// CreateCallStep inserts a call step from callerID to calleeID. The store
// does not check for cycles; callers go through the mutator for that.
func (b *Backend) CreateCallStep(ctx context.Context, callerID, calleeID int64, position int) (int64, error) {
	step := &types.Step{Kind: types.StepKindCall, Call: &types.CallStep{CalledTestCaseID: calleeID}}
	ids, err := b.insert(ctx, callerID, []*types.Step{step}, position)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CreateActionStep inserts an action step.
func (b *Backend) CreateActionStep(ctx context.Context, testCaseID int64, action types.ActionStep, position int) (int64, error) {
	step := &types.Step{Kind: types.StepKindAction, Action: &action}
	ids, err := b.insert(ctx, testCaseID, []*types.Step{step}, position)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CreateKeywordStep inserts a keyword step.
func (b *Backend) CreateKeywordStep(ctx context.Context, testCaseID int64, keyword types.KeywordStep, position int) (int64, error) {
	step := &types.Step{Kind: types.StepKindKeyword, Keyword: &keyword}
	ids, err := b.insert(ctx, testCaseID, []*types.Step{step}, position)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CopySteps inserts copies of steps into destID as one block starting at
// position. Copies keep kind and payload; ids and positions are new.
func (b *Backend) CopySteps(ctx context.Context, destID int64, steps []*types.Step, position int) ([]int64, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	return b.insert(ctx, destID, steps, position)
}

func (b *Backend) insert(ctx context.Context, testCaseID int64, steps []*types.Step, position int) ([]int64, error) {
	for _, s := range steps {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	var ids []int64
	err := b.withTx(ctx, func(tx *sql.Tx) error {
		if err := testCaseExists(ctx, tx, testCaseID); err != nil {
			return err
		}
		for _, s := range steps {
			if s.Kind != types.StepKindCall {
				continue
			}
			if err := testCaseExists(ctx, tx, s.Call.CalledTestCaseID); err != nil {
				return err
			}
			if s.Call.DatasetID != nil {
				if err := datasetExists(ctx, tx, *s.Call.DatasetID); err != nil {
					return err
				}
			}
		}

		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM steps WHERE test_case_id = ?", testCaseID).Scan(&count); err != nil {
			return fmt.Errorf("counting steps: %w", err)
		}
		if position < 0 || position > count {
			position = count
		}
		if position < count {
			if _, err := tx.ExecContext(ctx,
				"UPDATE steps SET position = position + ? WHERE test_case_id = ? AND position >= ?",
				len(steps), testCaseID, position,
			); err != nil {
				return fmt.Errorf("shifting steps: %w", err)
			}
		}

		for i, s := range steps {
			id, err := insertStep(ctx, tx, testCaseID, position+i, s)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func insertStep(ctx context.Context, tx *sql.Tx, testCaseID int64, position int, s *types.Step) (int64, error) {
	var (
		action, expected, keyword, text sql.NullString
		callee, dataset                 sql.NullInt64
		delegate                        bool
	)
	switch s.Kind {
	case types.StepKindAction:
		action = sql.NullString{String: s.Action.Action, Valid: true}
		expected = sql.NullString{String: s.Action.ExpectedResult, Valid: true}
	case types.StepKindKeyword:
		keyword = sql.NullString{String: s.Keyword.Keyword, Valid: true}
		text = sql.NullString{String: s.Keyword.Text, Valid: true}
	case types.StepKindCall:
		callee = sql.NullInt64{Int64: s.Call.CalledTestCaseID, Valid: true}
		delegate = s.Call.DelegateParameterValues
		if s.Call.DatasetID != nil {
			dataset = sql.NullInt64{Int64: *s.Call.DatasetID, Valid: true}
		}
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO steps (test_case_id, position, kind, action, expected_result, keyword, keyword_text, called_test_case_id, delegate_parameters, dataset_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		testCaseID, position, string(s.Kind), action, expected, keyword, text, callee, delegate, dataset,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting step: %w", err)
	}
	return res.LastInsertId()
}

// UpdateCallStep persists the parameter fields of a call step.
func (b *Backend) UpdateCallStep(ctx context.Context, step *types.Step) error {
	if step == nil || step.Kind != types.StepKindCall || step.Call == nil {
		return types.ErrInvalidData
	}
	var dataset sql.NullInt64
	if step.Call.DatasetID != nil {
		dataset = sql.NullInt64{Int64: *step.Call.DatasetID, Valid: true}
	}
	return b.withTx(ctx, func(tx *sql.Tx) error {
		if dataset.Valid {
			if err := datasetExists(ctx, tx, dataset.Int64); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE steps SET delegate_parameters = ?, dataset_id = ? WHERE step_id = ? AND kind = 'call'",
			step.Call.DelegateParameterValues, dataset, step.ID,
		)
		if err != nil {
			return fmt.Errorf("updating call step %d: %w", step.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("call step %d: %w", step.ID, types.ErrNotFound)
		}
		return nil
	})
}

// DeleteStep removes the step and shifts later steps up by one.
func (b *Backend) DeleteStep(ctx context.Context, stepID int64) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		var testCaseID int64
		var position int
		err := tx.QueryRowContext(ctx, "SELECT test_case_id, position FROM steps WHERE step_id = ?", stepID).
			Scan(&testCaseID, &position)
		if err == sql.ErrNoRows {
			return fmt.Errorf("step %d: %w", stepID, types.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("locating step %d: %w", stepID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM steps WHERE step_id = ?", stepID); err != nil {
			return fmt.Errorf("deleting step %d: %w", stepID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE steps SET position = position - 1 WHERE test_case_id = ? AND position > ?",
			testCaseID, position,
		); err != nil {
			return fmt.Errorf("closing step gap: %w", err)
		}
		return nil
	})
}

func stepsOf(ctx context.Context, q querier, testCaseID int64) ([]*types.Step, error) {
	return querySteps(ctx, q, "SELECT "+stepColumns+" FROM steps WHERE test_case_id = ? ORDER BY position", testCaseID)
}

func querySteps(ctx context.Context, q querier, query string, args ...any) ([]*types.Step, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Step
	for rows.Next() {
		step, err := hydrateStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

func hydrateStep(row rowScanner) (*types.Step, error) {
	var (
		s                               types.Step
		kind                            string
		action, expected, keyword, text sql.NullString
		callee, dataset                 sql.NullInt64
		delegate                        bool
	)
	if err := row.Scan(&s.ID, &s.TestCaseID, &s.Position, &kind, &action, &expected, &keyword, &text, &callee, &delegate, &dataset); err != nil {
		return nil, err
	}

	s.Kind = types.StepKind(kind)
	switch s.Kind {
	case types.StepKindAction:
		s.Action = &types.ActionStep{Action: action.String, ExpectedResult: expected.String}
	case types.StepKindKeyword:
		s.Keyword = &types.KeywordStep{Keyword: keyword.String, Text: text.String}
	case types.StepKindCall:
		s.Call = &types.CallStep{CalledTestCaseID: callee.Int64, DelegateParameterValues: delegate}
		if dataset.Valid {
			id := dataset.Int64
			s.Call.DatasetID = &id
		}
	default:
		return nil, fmt.Errorf("step %d: %w: unknown kind %q", s.ID, types.ErrInvalidData, kind)
	}
	return &s, nil
}
