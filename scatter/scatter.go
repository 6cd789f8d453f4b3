// Package scatter implements the Scatter-Gather Executor: concurrent
// fan-out of a read-only query.State across a router.Plan's shards, with
// ordered k-way merge or concatenation, post-merge pagination, and
// aggregate folding, per §4.11.
package scatter

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"eve.evalgo.org/multidb/multidberr"
	"eve.evalgo.org/multidb/query"
)

// ShardQuery runs s against the adapter pinned to shardName, returning
// dialect-neutral rows. Callers supply this so scatter stays independent
// of adapter/registry wiring and is easy to exercise with fakes.
type ShardQuery func(ctx context.Context, shardName string, s query.State) ([][]interface{}, error)

// Result is one shard's outcome.
type Result struct {
	Shard string
	Rows  [][]interface{}
	Err   error
}

// Options configures a single scatter-gather run.
type Options struct {
	// MaxConcurrency bounds simultaneously in-flight shard queries; zero
	// means unbounded (len(shards) permits).
	MaxConcurrency int64
	// AllowPartial returns whatever rows arrived plus an error list
	// instead of failing the whole run on the first shard failure.
	AllowPartial bool
	// Deadline, if non-zero, bounds the whole fan-out; exceeding it
	// raises DeadlineExceededError.
	Deadline time.Duration
}

// Run fans s out across shards via query, merges per §4.11, and returns
// the merged rows. If s declares an OrderTerm, each shard's rows are
// assumed individually ordered already (the caller's query assembler is
// responsible for emitting ORDER BY per shard); Run performs a k-way
// merge and raises UnorderedShardResultError if it detects a shard's
// rows were not actually ordered. Without an OrderTerm, Run concatenates
// in shard-list order.
func Run(ctx context.Context, shards []string, s query.State, query_ ShardQuery, opts Options) ([][]interface{}, []error, error) {
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = int64(len(shards))
	}
	sem := semaphore.NewWeighted(maxConc)

	results := make([]Result, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, sh := range shards {
		i, sh := i, sh
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = Result{Shard: sh, Err: err}
				return nil
			}
			defer sem.Release(1)

			rows, err := query_(gctx, sh, s)
			if err != nil {
				results[i] = Result{Shard: sh, Err: &multidberr.ShardFailure{Shard: sh, Cause: err}}
				if !opts.AllowPartial {
					return results[i].Err
				}
				return nil
			}
			results[i] = Result{Shard: sh, Rows: rows}
			return nil
		})
	}

	waitErr := g.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, nil, &multidberr.DeadlineExceededError{Deadline: opts.Deadline}
	}
	if waitErr != nil && !opts.AllowPartial {
		return nil, nil, waitErr
	}

	var errs []error
	var ok []Result
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		ok = append(ok, r)
	}

	merged, err := merge(ok, s)
	if err != nil {
		return nil, errs, err
	}

	merged = paginate(merged, s)
	return merged, errs, nil
}

func merge(results []Result, s query.State) ([][]interface{}, error) {
	if len(s.Order) == 0 {
		return concat(results), nil
	}
	return kWayMerge(results, s.Order)
}

func concat(results []Result) [][]interface{} {
	var out [][]interface{}
	for _, r := range results {
		out = append(out, r.Rows...)
	}
	return out
}

// kWayMerge merges already-ordered per-shard row sets into one globally
// ordered set. It verifies each shard's own rows are non-decreasing per
// order before merging; a violation means that shard did not actually
// apply the declared ordering, which is disallowed and raised as
// UnorderedShardResultError rather than silently producing a
// wrong-but-plausible merge.
func kWayMerge(results []Result, order []query.OrderTerm) ([][]interface{}, error) {
	for _, r := range results {
		for i := 1; i < len(r.Rows); i++ {
			if compareRows(r.Rows[i-1], r.Rows[i], order) > 0 {
				return nil, &multidberr.UnorderedShardResultError{Shard: r.Shard}
			}
		}
	}

	indices := make([]int, len(results))
	total := 0
	for _, r := range results {
		total += len(r.Rows)
	}
	out := make([][]interface{}, 0, total)

	for {
		best := -1
		for i, r := range results {
			if indices[i] >= len(r.Rows) {
				continue
			}
			if best == -1 || compareRows(r.Rows[indices[i]], results[best].Rows[indices[best]], order) < 0 {
				best = i
			}
		}
		if best == -1 {
			break
		}
		out = append(out, results[best].Rows[indices[best]])
		indices[best]++
	}
	return out, nil
}

// compareRows compares two rows by order, returning -1/0/1. Rows are
// assumed to carry the ordered columns first, in declaration order; the
// ShardQuery supplying the rows is responsible for that column layout
// (query.AssembleSelect emits columns in the order it is given).
func compareRows(a, b []interface{}, order []query.OrderTerm) int {
	for i, o := range order {
		if i >= len(a) || i >= len(b) {
			return 0
		}
		c := compareValues(a[i], b[i])
		if o.Direction == query.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case time.Time:
		bv, _ := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func paginate(rows [][]interface{}, s query.State) [][]interface{} {
	if s.Offset > 0 {
		if s.Offset >= len(rows) {
			return nil
		}
		rows = rows[s.Offset:]
	}
	if s.Limit > 0 && s.Limit < len(rows) {
		rows = rows[:s.Limit]
	}
	return rows
}
