package fanout

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectKeepsSuccessesInOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6}
	out := Collect(context.Background(), 2, in, func(_ context.Context, v int) (int, bool) {
		if v%2 == 0 {
			return 0, false
		}
		return v * 10, true
	})
	assert.Equal(t, []int{10, 30, 50}, out)
}

func TestCollectRespectsLimit(t *testing.T) {
	var inFlight, peak int32
	in := make([]int, 20)

	Collect(context.Background(), 3, in, func(_ context.Context, _ int) (struct{}, bool) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, true
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestCollectStopsSchedulingWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	out := Collect(ctx, 1, []int{1, 2, 3}, func(_ context.Context, v int) (int, bool) {
		atomic.AddInt32(&calls, 1)
		return v, true
	})
	assert.Empty(t, out)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCollectEmptyInput(t *testing.T) {
	out := Collect(context.Background(), 0, []string(nil), func(_ context.Context, s string) (string, bool) {
		return s, true
	})
	assert.Empty(t, out)
}
