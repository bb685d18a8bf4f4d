// Package fanout runs per-item remote calls concurrently under a fixed cap
// and keeps only the calls that succeeded ("settle all, keep successes").
package fanout

import (
	"context"
	"sync"
)

// DefaultLimit is used when callers pass a non-positive limit.
const DefaultLimit = 8

// Collect calls fn for every input with at most limit calls in flight and
// returns the successful outputs in input order. A call reports failure by
// returning ok=false; failures never abort the other calls. Once ctx is done
// no new calls are started.
func Collect[In, Out any](ctx context.Context, limit int, inputs []In, fn func(context.Context, In) (Out, bool)) []Out {
	if limit <= 0 {
		limit = DefaultLimit
	}

	type slot struct {
		val Out
		ok  bool
	}
	slots := make([]slot, len(inputs))

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

schedule:
	for i, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break schedule
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, in In) {
				defer wg.Done()
				defer func() { <-sem }()
				v, ok := fn(ctx, in)
				slots[i] = slot{val: v, ok: ok}
			}(i, in)
		}
	}
	wg.Wait()

	out := make([]Out, 0, len(inputs))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.val)
		}
	}
	return out
}
