package completion

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

type (
	// WriteResult is the outcome of a completion write.
	WriteResult struct {
		Key               Key    `json:"key"`
		Method            string `json:"method"`
		Success           bool   `json:"success"`
		Attempts          int    `json:"attempts"`
		CanManualOverride bool   `json:"can_manual_override"`
		Err               error  `json:"-"`
	}

	// CourseRecomputer schedules a course progress recompute without waiting for it.
	CourseRecomputer interface {
		Schedule(userID, courseID string)
	}

	Writer struct {
		repo       Repository
		recomputer CourseRecomputer
		notifier   core.Notifier
		events     core.EventPublisher
		log        core.Logger
		threshold  int
		now        func() time.Time

		mu       sync.Mutex
		attempts map[Key]int
	}
)

func NewWriter(
	repo Repository,
	recomputer CourseRecomputer,
	notifier core.Notifier,
	events core.EventPublisher,
	log core.Logger,
	conf core.CompletionConfig,
) *Writer {
	threshold := conf.VerifyFailureThreshold
	if threshold < 1 {
		threshold = 2
	}
	return &Writer{
		repo:       repo,
		recomputer: recomputer,
		notifier:   notifier,
		events:     events,
		log:        log,
		threshold:  threshold,
		now:        time.Now,
		attempts:   make(map[Key]int),
	}
}

// MarkComplete persists the completion of a unit then re-reads it to verify the write landed.
// It never retries: failures are reported with the number of consecutive failed attempts for the key.
func (w *Writer) MarkComplete(ctx context.Context, key Key, method string) WriteResult {
	res := WriteResult{Key: key, Method: method}
	if err := w.write(ctx, key, method); err != nil {
		return w.fail(res, err)
	}

	w.mu.Lock()
	delete(w.attempts, key)
	w.mu.Unlock()
	res.Success = true

	w.notifier.Notify(core.Notification{
		Title:       "Unit completed",
		Description: "Your progress has been saved.",
		Severity:    core.SeveritySuccess,
		UserID:      key.UserID,
	})
	if err := w.events.Publish(ctx, core.Event{
		Type:       core.EventUnitCompleted,
		UserID:     key.UserID,
		UnitID:     key.UnitID,
		CourseID:   key.CourseID,
		Data:       map[string]interface{}{"method": method},
		OccurredAt: w.now().UTC(),
	}); err != nil {
		w.log.Warn("publishing unit completion", err, key.UserID)
	}
	w.recomputer.Schedule(key.UserID, key.CourseID)
	return res
}

func (w *Writer) write(ctx context.Context, key Key, method string) error {
	now := w.now().UTC()
	patch := UnitProgress{
		Key:              key,
		Completed:        true,
		CompletedAt:      &now,
		CompletionMethod: method,
		UpdatedAt:        now,
	}
	if err := w.repo.UpsertUnitProgress(ctx, patch); err != nil {
		return errors.Wrap(err, "upserting unit progress")
	}

	up, err := w.repo.GetUnitProgress(ctx, key)
	switch {
	case errors.Is(err, ErrProgressNotFound):
		return errors.Wrap(ErrVerificationFailed, "unit progress missing after write")
	case err != nil:
		return errors.Wrap(err, "verifying unit progress")
	case !up.Completed:
		return errors.Wrap(ErrVerificationFailed, "unit progress not completed after write")
	}
	return nil
}

func (w *Writer) fail(res WriteResult, err error) WriteResult {
	w.mu.Lock()
	w.attempts[res.Key]++
	res.Attempts = w.attempts[res.Key]
	w.mu.Unlock()

	res.Err = err
	res.CanManualOverride = res.Attempts >= w.threshold

	if errors.Is(err, core.ErrConflictTarget) {
		w.log.Error("unit progress upsert has no matching unique constraint: check the schema", err, res.Key.String())
		w.notifier.Notify(core.Notification{
			Title:       "Progress could not be saved",
			Description: "Your progress could not be saved because of a server configuration error.",
			Severity:    core.SeverityCritical,
			UserID:      res.Key.UserID,
		})
		return res
	}

	w.log.Warn("marking unit complete", err, res.Key.String(), res.Attempts)
	desc := "Your progress is pending and will be retried shortly."
	if res.CanManualOverride {
		desc = "Your progress could not be confirmed. You can mark this unit as complete manually."
	}
	w.notifier.Notify(core.Notification{
		Title:       "Progress not saved yet",
		Description: desc,
		Severity:    core.SeverityError,
		UserID:      res.Key.UserID,
	})
	return res
}

// Attempts returns the number of consecutive failed writes for key.
func (w *Writer) Attempts(key Key) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts[key]
}

// CanManualOverride reports whether enough writes failed for key to let the learner override them.
func (w *Writer) CanManualOverride(key Key) bool {
	return w.Attempts(key) >= w.threshold
}
