package completion

import (
	"context"
	"sync"
	"time"
)

// VideoTick is a playback progress report.
type VideoTick struct {
	UserID  string `json:"user_id"`
	UnitID  string `json:"unit_id"`
	Percent int    `json:"percent"`
}

type (
	tickKey struct{ userID, unitID string }

	pendingTick struct {
		tick  VideoTick
		gen   uint64
		timer *time.Timer
	}

	// Debouncer coalesces the video ticks of a (user, unit) pair: a tick is flushed only
	// once no other tick for the same pair arrived during the delay. The highest percentage wins.
	Debouncer struct {
		delay time.Duration
		flush func(ctx context.Context, tick VideoTick)

		mu      sync.Mutex
		pending map[tickKey]*pendingTick
		gen     uint64
		stopped bool
		wg      sync.WaitGroup
	}
)

func NewDebouncer(delay time.Duration, flush func(ctx context.Context, tick VideoTick)) *Debouncer {
	return &Debouncer{
		delay:   delay,
		flush:   flush,
		pending: make(map[tickKey]*pendingTick),
	}
}

// Submit schedules tick, replacing any pending tick of the same pair. It returns false once stopped.
func (d *Debouncer) Submit(tick VideoTick) bool {
	key := tickKey{tick.UserID, tick.UnitID}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}

	if p, ok := d.pending[key]; ok {
		if p.timer.Stop() {
			d.wg.Done()
		}
		if p.tick.Percent > tick.Percent {
			tick.Percent = p.tick.Percent
		}
	}
	d.gen++
	gen := d.gen
	p := &pendingTick{tick: tick, gen: gen}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
	d.pending[key] = p
	d.wg.Add(1)
	return true
}

func (d *Debouncer) fire(key tickKey, gen uint64) {
	defer d.wg.Done()

	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		// superseded
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	d.flush(context.Background(), p.tick)
}

// Pending returns the number of ticks waiting to be flushed.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop flushes every pending tick right away and rejects new ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	ticks := make([]pendingTick, 0, len(d.pending))
	for key, p := range d.pending {
		if p.timer.Stop() {
			// the timer func will never run: balance its Add
			d.wg.Done()
		}
		ticks = append(ticks, *p)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, p := range ticks {
		d.flush(context.Background(), p.tick)
	}
	d.wg.Wait()
}
