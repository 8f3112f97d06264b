package completion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trezcool/maendeleo/core"
)

type (
	// PendingItem is a completion write waiting to be retried.
	PendingItem struct {
		Key       Key       `json:"key"`
		Method    string    `json:"method"`
		Retries   int       `json:"retries"`
		LastError string    `json:"last_error"`
		QueuedAt  time.Time `json:"queued_at"`
		// NextRetryAt is zero once automatic retries are exhausted.
		NextRetryAt time.Time `json:"next_retry_at"`

		running bool
	}

	completer interface {
		MarkComplete(ctx context.Context, key Key, method string) WriteResult
	}

	// PendingQueue holds failed completion writes. Items are retried automatically after a fixed delay
	// up to a maximum number of retries, then wait for an explicit Retry. They leave the queue only
	// on a successful write or an explicit, confirmed Clear.
	PendingQueue struct {
		writer     completer
		log        core.Logger
		delay      time.Duration
		maxRetries int
		now        func() time.Time

		mu    sync.Mutex
		items map[Key]*PendingItem
		wake  chan struct{}
	}
)

func NewPendingQueue(writer completer, log core.Logger, conf core.CompletionConfig) *PendingQueue {
	return &PendingQueue{
		writer:     writer,
		log:        log,
		delay:      conf.RetryDelay,
		maxRetries: conf.MaxAutoRetries,
		now:        time.Now,
		items:      make(map[Key]*PendingItem),
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue queues a failed write. Successful and non-retryable results are ignored.
func (q *PendingQueue) Enqueue(res WriteResult) bool {
	if res.Success || !core.IsRetryable(res.Err) {
		return false
	}

	q.mu.Lock()
	now := q.now()
	item, ok := q.items[res.Key]
	if !ok {
		item = &PendingItem{Key: res.Key, QueuedAt: now}
		q.items[res.Key] = item
	}
	item.Method = res.Method
	item.LastError = res.Err.Error()
	if item.Retries < q.maxRetries {
		item.NextRetryAt = now.Add(q.delay)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Run retries due items until ctx is done.
func (q *PendingQueue) Run(ctx context.Context) {
	timer := time.NewTimer(q.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-timer.C:
			q.retryDue(ctx)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(q.nextWait())
	}
}

func (q *PendingQueue) nextWait() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	wait := q.delay
	now := q.now()
	for _, item := range q.items {
		if item.NextRetryAt.IsZero() || item.running {
			continue
		}
		if d := item.NextRetryAt.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (q *PendingQueue) retryDue(ctx context.Context) {
	now := q.now()
	due := q.take(func(item *PendingItem) bool {
		return !item.NextRetryAt.IsZero() && !item.NextRetryAt.After(now)
	})
	for _, item := range due {
		res := q.writer.MarkComplete(ctx, item.Key, item.Method)
		q.settle(item, res, true)
	}
}

// Retry immediately retries every pending write of a user, whether or not automatic retries are exhausted.
func (q *PendingQueue) Retry(ctx context.Context, userID string) []WriteResult {
	items := q.take(func(item *PendingItem) bool { return item.Key.UserID == userID })
	results := make([]WriteResult, 0, len(items))
	for _, item := range items {
		res := q.writer.MarkComplete(ctx, item.Key, item.Method)
		q.settle(item, res, false)
		results = append(results, res)
	}
	return results
}

// take marks the matching items as running and returns copies of them.
func (q *PendingQueue) take(match func(item *PendingItem) bool) []PendingItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var items []PendingItem
	for _, item := range q.items {
		if item.running || !match(item) {
			continue
		}
		item.running = true
		items = append(items, *item)
	}
	sortItems(items)
	return items
}

func (q *PendingQueue) settle(taken PendingItem, res WriteResult, auto bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[taken.Key]
	if !ok {
		// cleared while running
		return
	}
	item.running = false
	if res.Success {
		delete(q.items, taken.Key)
		return
	}
	if !core.IsRetryable(res.Err) {
		q.log.Error("dropping pending completion: not retryable", res.Err, taken.Key.String())
		delete(q.items, taken.Key)
		return
	}

	item.LastError = res.Err.Error()
	if auto {
		item.Retries++
	}
	// an explicit retry does not use up the automatic budget
	if item.Retries < q.maxRetries {
		item.NextRetryAt = q.now().Add(q.delay)
		return
	}
	item.NextRetryAt = time.Time{}
	if auto {
		q.log.Warn("pending completion awaits an explicit retry", taken.Key.String(), item.Retries)
	}
}

// Remove drops the pending write of key, if any. Used once the key is completed by other means.
func (q *PendingQueue) Remove(key Key) {
	q.mu.Lock()
	delete(q.items, key)
	q.mu.Unlock()
}

// List returns the pending writes of a user, oldest first.
func (q *PendingQueue) List(userID string) []PendingItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]PendingItem, 0)
	for _, item := range q.items {
		if item.Key.UserID == userID {
			items = append(items, *item)
		}
	}
	sortItems(items)
	return items
}

// Clear drops every pending write of a user. It requires an explicit confirmation
// and returns the number of discarded writes.
func (q *PendingQueue) Clear(userID string, confirmed bool) (int, error) {
	if !confirmed {
		return 0, ErrClearNotConfirmed
	}

	q.mu.Lock()
	var n int
	for key := range q.items {
		if key.UserID == userID {
			delete(q.items, key)
			n++
		}
	}
	q.mu.Unlock()

	if n > 0 {
		q.log.Warn("pending completions discarded by user", userID, n)
	}
	return n, nil
}

func sortItems(items []PendingItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].QueuedAt.Equal(items[j].QueuedAt) {
			return items[i].QueuedAt.Before(items[j].QueuedAt)
		}
		return items[i].Key.String() < items[j].Key.String()
	})
}
