package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tos-network/tos-core/errors"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/versioned"
)

// applyBlockParallel partitions txs into conflict groups (spec §4.7: "two
// transactions that share no access-set cell may apply concurrently") and
// runs each group against its own nested overlay fork of snap, committing
// every fork back into snap once all groups finish. Groups never share an
// access-set key by construction, so two forks can never disagree about
// the same (column, key) — there is nothing left to reconcile at merge
// time beyond applying each fork's buffered writes.
func applyBlockParallel(ctx context.Context, snap versioned.Snapshot, txs []*model.Transaction, tc *txContext) (*BlockResult, error) {
	sets := accessSets(txs)
	groups := conflictGroups(sets)

	forks := make([]versioned.Snapshot, len(groups))
	results := make([]*BlockResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	for gi, members := range groups {
		gi, members := gi, members
		fork := snap.Snapshot()
		forks[gi] = fork
		g.Go(func() error {
			result := &BlockResult{}
			for _, idx := range members {
				if err := applyTransaction(gctx, fork, txs[idx], tc, result); err != nil {
					return err
				}
			}
			results[gi] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, fork := range forks {
			if fork != nil {
				fork.Rollback()
			}
		}
		return nil, err
	}

	merged := &BlockResult{}
	for i, fork := range forks {
		if err := fork.Commit(); err != nil {
			return nil, errors.New(errors.ERR_PARALLEL_CONFLICT, "conflict-group %d failed to merge into block overlay", i, err)
		}
		merged.Events = append(merged.Events, results[i].Events...)
		merged.TotalGasUsed += results[i].TotalGasUsed
	}

	return merged, nil
}
