package progress

import (
	"context"
	"sync"
)

type flight struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// Refresher runs foreground progress refreshes. A new refresh of a (user, course) cancels the one in flight.
type Refresher struct {
	agg *Aggregator

	mu       sync.Mutex
	seq      uint64
	inflight map[Pair]flight
}

func NewRefresher(agg *Aggregator) *Refresher {
	return &Refresher{agg: agg, inflight: make(map[Pair]flight)}
}

// Refresh recomputes, in safe mode, the progress of a user on a course.
// It returns ErrSuperseded when a newer refresh of the same pair cancelled it.
func (r *Refresher) Refresh(ctx context.Context, userID, courseID string) (Result, error) {
	pair := Pair{UserID: userID, CourseID: courseID}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r.mu.Lock()
	r.seq++
	id := r.seq
	if prev, ok := r.inflight[pair]; ok {
		prev.cancel(ErrSuperseded)
	}
	r.inflight[pair] = flight{id: id, cancel: cancel}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if f, ok := r.inflight[pair]; ok && f.id == id {
			delete(r.inflight, pair)
		}
		r.mu.Unlock()
	}()

	res, err := r.agg.Recompute(ctx, userID, courseID, ModeSafe)
	if err != nil {
		if context.Cause(ctx) == ErrSuperseded {
			return Result{}, ErrSuperseded
		}
		return Result{}, err
	}
	return res, nil
}
