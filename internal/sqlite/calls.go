// This file implements the one-hop call edge queries the closure walks are
// built on. Each query serves a whole BFS layer.
package sqlite

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/calltree/pkg/types"
)

// CalleesOf returns the distinct callees of the call steps owned by ids.
func (b *Backend) CalleesOf(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var out []int64
	err = inBatches(ids, func(in string, args []any) error {
		batch, err := queryIDs(ctx, db,
			"SELECT DISTINCT called_test_case_id FROM steps WHERE kind = 'call' AND test_case_id IN ("+in+")",
			args...,
		)
		out = append(out, batch...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying callees: %w", err)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// CallersOf returns the distinct owners of call steps calling any of ids.
func (b *Backend) CallersOf(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var out []int64
	err = inBatches(ids, func(in string, args []any) error {
		batch, err := queryIDs(ctx, db,
			"SELECT DISTINCT test_case_id FROM steps WHERE kind = 'call' AND called_test_case_id IN ("+in+")",
			args...,
		)
		out = append(out, batch...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying callers: %w", err)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// DirectCallees returns the callee of each call step of id in step order.
func (b *Backend) DirectCallees(ctx context.Context, id int64) ([]int64, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	out, err := queryIDs(ctx, db,
		"SELECT called_test_case_id FROM steps WHERE kind = 'call' AND test_case_id = ? ORDER BY position",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying callees of %d: %w", id, err)
	}
	return out, nil
}

// CallPairsFrom returns one pair per call step owned by callerIDs.
func (b *Backend) CallPairsFrom(ctx context.Context, callerIDs []int64) ([]types.CallPair, error) {
	return b.callPairs(ctx, "s.test_case_id", callerIDs)
}

// CallPairsTo returns one pair per call step calling calleeIDs.
func (b *Backend) CallPairsTo(ctx context.Context, calleeIDs []int64) ([]types.CallPair, error) {
	return b.callPairs(ctx, "s.called_test_case_id", calleeIDs)
}

func (b *Backend) callPairs(ctx context.Context, column string, ids []int64) ([]types.CallPair, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	type sitedPair struct {
		types.CallPair
		position int
	}
	var pairs []sitedPair
	err = inBatches(ids, func(in string, args []any) error {
		rows, err := db.QueryContext(ctx,
			`SELECT caller.test_case_id, caller.name, callee.test_case_id, callee.name, s.position
			 FROM steps s
			 JOIN test_cases caller ON caller.test_case_id = s.test_case_id
			 JOIN test_cases callee ON callee.test_case_id = s.called_test_case_id
			 WHERE s.kind = 'call' AND `+column+` IN (`+in+`)`,
			args...,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p sitedPair
			if err := rows.Scan(&p.Caller.ID, &p.Caller.Name, &p.Callee.ID, &p.Callee.Name, &p.position); err != nil {
				return err
			}
			pairs = append(pairs, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("querying call pairs: %w", err)
	}

	slices.SortFunc(pairs, func(a, b sitedPair) int {
		return cmp.Or(cmp.Compare(a.Caller.ID, b.Caller.ID), cmp.Compare(a.position, b.position))
	})
	out := make([]types.CallPair, len(pairs))
	for i, p := range pairs {
		out[i] = p.CallPair
	}
	return out, nil
}
