package completion_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core/completion"
)

type flushRecorder struct {
	mu      sync.Mutex
	flushed []completion.VideoTick
}

func (r *flushRecorder) flush(_ context.Context, tick completion.VideoTick) {
	r.mu.Lock()
	r.flushed = append(r.flushed, tick)
	r.mu.Unlock()
}

func (r *flushRecorder) ticks() []completion.VideoTick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]completion.VideoTick(nil), r.flushed...)
}

func TestDebouncer(t *testing.T) {
	t.Run("coalesces ticks of a unit", func(t *testing.T) {
		rec := new(flushRecorder)
		d := completion.NewDebouncer(30*time.Millisecond, rec.flush)

		for _, pct := range []int{10, 50, 30} {
			assert.True(t, d.Submit(completion.VideoTick{UserID: userID, UnitID: "u1", Percent: pct}))
		}
		assert.Equal(t, 1, d.Pending())
		assert.Empty(t, rec.ticks())

		require.Eventually(t, func() bool { return len(rec.ticks()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, completion.VideoTick{UserID: userID, UnitID: "u1", Percent: 50}, rec.ticks()[0])

		time.Sleep(60 * time.Millisecond)
		assert.Len(t, rec.ticks(), 1)
		d.Stop()
	})

	t.Run("units are debounced separately", func(t *testing.T) {
		rec := new(flushRecorder)
		d := completion.NewDebouncer(10*time.Millisecond, rec.flush)

		d.Submit(completion.VideoTick{UserID: userID, UnitID: "u1", Percent: 20})
		d.Submit(completion.VideoTick{UserID: userID, UnitID: "u2", Percent: 40})
		require.Eventually(t, func() bool { return len(rec.ticks()) == 2 }, time.Second, 5*time.Millisecond)
		d.Stop()
	})

	t.Run("stop flushes pending ticks", func(t *testing.T) {
		rec := new(flushRecorder)
		d := completion.NewDebouncer(time.Hour, rec.flush)

		d.Submit(completion.VideoTick{UserID: userID, UnitID: "u1", Percent: 20})
		d.Submit(completion.VideoTick{UserID: userID, UnitID: "u1", Percent: 70})
		d.Stop()

		assert.Equal(t, []completion.VideoTick{{UserID: userID, UnitID: "u1", Percent: 70}}, rec.ticks())
		assert.False(t, d.Submit(completion.VideoTick{UserID: userID, UnitID: "u1", Percent: 80}))
		assert.Equal(t, 0, d.Pending())
	})
}
