package completion

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

var (
	// errors
	ErrUnitNotFound       = errors.New("unit not found")
	ErrProgressNotFound   = errors.New("unit progress not found")
	ErrVerificationFailed = errors.New("completion write could not be verified")
	ErrInvalidState       = errors.New("invalid completion state")
	ErrOverrideLocked     = errors.New("manual override is not available for this unit yet")
	ErrClearNotConfirmed  = errors.New("clearing pending completions must be confirmed")
)

type (
	Repository interface {
		GetUnit(ctx context.Context, unitID string) (Unit, error)
		GetUnitProgress(ctx context.Context, key Key) (UnitProgress, error)
		// UpsertUnitProgress inserts or updates the progress of patch.Key.
		// Flags set on patch are raised; a flag already stored as true is never lowered,
		// and the completion method of an already completed unit is kept.
		UpsertUnitProgress(ctx context.Context, patch UnitProgress) error
		// UpsertVideoProgress never lowers the stored percentage nor the completed flag.
		// It returns the stored row.
		UpsertVideoProgress(ctx context.Context, vp VideoProgress) (VideoProgress, error)
		ListQuizCompletionGaps(ctx context.Context) ([]QuizCompletionGap, error)
	}

	// Outcome describes how a trigger event was handled.
	Outcome struct {
		Key      Key          `json:"key"`
		Strategy Strategy     `json:"strategy"`
		Trigger  TriggerEvent `json:"trigger"`
		// Status is the stored status the trigger was evaluated against.
		Status           Status       `json:"status"`
		AlreadyCompleted bool         `json:"already_completed"`
		ShouldComplete   bool         `json:"should_complete"`
		Write            *WriteResult `json:"write,omitempty"`
		Pending          bool         `json:"pending"`
	}

	VideoOutcome struct {
		Progress   VideoProgress `json:"progress"`
		Completion *Outcome      `json:"completion,omitempty"`
	}

	Service struct {
		repo   Repository
		writer *Writer
		queue  *PendingQueue
		log    core.Logger
		conf   core.CompletionConfig
		now    func() time.Time
	}
)

func NewService(repo Repository, writer *Writer, queue *PendingQueue, log core.Logger, conf core.CompletionConfig) *Service {
	return &Service{
		repo:   repo,
		writer: writer,
		queue:  queue,
		log:    log,
		conf:   conf,
		now:    time.Now,
	}
}

// ReadStatus returns the completion flags of key. A missing record means nothing was completed yet.
func (svc *Service) ReadStatus(ctx context.Context, key Key) (Status, error) {
	up, err := svc.repo.GetUnitProgress(ctx, key)
	if err != nil {
		if errors.Is(err, ErrProgressNotFound) {
			return Status{}, nil
		}
		return Status{}, errors.Wrap(err, "reading unit status")
	}
	return up.Status(), nil
}

// UnitKey resolves the progress key of a user on a unit.
func (svc *Service) UnitKey(ctx context.Context, userID, unitID string) (Unit, Key, error) {
	unit, err := svc.repo.GetUnit(ctx, unitID)
	if err != nil {
		return Unit{}, Key{}, err
	}
	return unit, Key{UserID: userID, UnitID: unit.ID, CourseID: unit.CourseID}, nil
}

// HandleTrigger runs the completion flow of a unit for a trigger event:
// classify the unit, read the stored status, record the trigger flag, evaluate, then write.
// Units already completed only get the trigger flag recorded.
// Failed writes are queued for retry instead of being returned as errors.
func (svc *Service) HandleTrigger(ctx context.Context, userID, unitID string, trigger TriggerEvent) (Outcome, error) {
	unit, key, err := svc.UnitKey(ctx, userID, unitID)
	if err != nil {
		return Outcome{}, err
	}

	status, err := svc.ReadStatus(ctx, key)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Key: key, Strategy: unit.Strategy(), Trigger: trigger, Status: status}
	// flags are kept even on completed units, the quiz-completion repair reads them
	if err = svc.recordTrigger(ctx, key, trigger, status); err != nil {
		return out, err
	}
	if status.UnitCompleted {
		out.AlreadyCompleted = true
		return out, nil
	}

	out.ShouldComplete = Evaluate(out.Strategy, status, trigger)
	if !out.ShouldComplete {
		return out, nil
	}

	res := svc.writer.MarkComplete(ctx, key, trigger.Method())
	out.Write = &res
	if !res.Success {
		out.Pending = svc.queue.Enqueue(res)
	}
	return out, nil
}

func (svc *Service) recordTrigger(ctx context.Context, key Key, trigger TriggerEvent, status Status) error {
	now := svc.now().UTC()
	patch := UnitProgress{Key: key, UpdatedAt: now}
	switch {
	case trigger == TriggerVideoComplete && !status.VideoCompleted:
		patch.VideoCompleted = true
		patch.VideoCompletedAt = &now
	case trigger == TriggerQuizComplete && !status.QuizCompleted:
		patch.QuizCompleted = true
		patch.QuizCompletedAt = &now
	default:
		return nil
	}

	if err := svc.repo.UpsertUnitProgress(ctx, patch); err != nil {
		return errors.Wrapf(err, "recording %s", trigger)
	}
	return nil
}

// RecordVideoProgress stores a playback tick. Reaching the completion threshold fires a video_complete trigger.
func (svc *Service) RecordVideoProgress(ctx context.Context, userID, unitID string, percent int) (VideoOutcome, error) {
	if percent < 0 || percent > 100 {
		err := errors.New("watched percentage must be within 0..100")
		return VideoOutcome{}, core.NewValidationError(err, core.FieldError{Field: "percent", Error: err.Error()})
	}

	unit, err := svc.repo.GetUnit(ctx, unitID)
	if err != nil {
		return VideoOutcome{}, err
	}
	if !unit.HasVideo() {
		return VideoOutcome{}, errors.Wrapf(ErrInvalidState, "unit %s has no video", unit.ID)
	}

	now := svc.now().UTC()
	vp := VideoProgress{UserID: userID, UnitID: unit.ID, WatchedPercentage: percent, UpdatedAt: now}
	if percent >= svc.conf.VideoCompleteThreshold {
		vp.Completed = true
		vp.CompletedAt = &now
	}
	stored, err := svc.repo.UpsertVideoProgress(ctx, vp)
	if err != nil {
		return VideoOutcome{}, errors.Wrap(err, "recording video progress")
	}

	out := VideoOutcome{Progress: stored}
	if vp.Completed {
		outcome, err := svc.HandleTrigger(ctx, userID, unit.ID, TriggerVideoComplete)
		if err != nil {
			return out, err
		}
		out.Completion = &outcome
	}
	return out, nil
}

// FlushVideoTick is the Debouncer flush function.
func (svc *Service) FlushVideoTick(ctx context.Context, tick VideoTick) {
	if _, err := svc.RecordVideoProgress(ctx, tick.UserID, tick.UnitID, tick.Percent); err != nil {
		svc.log.Error("flushing video progress", err, tick.UserID, tick.UnitID)
	}
}

// ManualOverride lets a learner complete a unit whose writes kept failing.
func (svc *Service) ManualOverride(ctx context.Context, userID, unitID string) (WriteResult, error) {
	_, key, err := svc.UnitKey(ctx, userID, unitID)
	if err != nil {
		return WriteResult{}, err
	}
	if !svc.writer.CanManualOverride(key) {
		return WriteResult{}, ErrOverrideLocked
	}

	res := svc.writer.MarkComplete(ctx, key, MethodManualOverride)
	if res.Success {
		svc.queue.Remove(key)
	} else {
		svc.queue.Enqueue(res)
	}
	return res, nil
}

// CanManualOverride reports whether the learner may complete key through ManualOverride.
func (svc *Service) CanManualOverride(key Key) bool {
	return svc.writer.CanManualOverride(key)
}

// AdminOverride completes a unit for a user without evaluating its requirements.
func (svc *Service) AdminOverride(ctx context.Context, userID, unitID string) (WriteResult, error) {
	_, key, err := svc.UnitKey(ctx, userID, unitID)
	if err != nil {
		return WriteResult{}, err
	}

	res := svc.writer.MarkComplete(ctx, key, MethodAdminOverride)
	if res.Success {
		svc.queue.Remove(key)
		svc.log.Info("unit completed by admin override", key.String())
	} else {
		svc.queue.Enqueue(res)
	}
	return res, nil
}

func (svc *Service) PendingCompletions(userID string) []PendingItem {
	return svc.queue.List(userID)
}

func (svc *Service) RetryPending(ctx context.Context, userID string) []WriteResult {
	return svc.queue.Retry(ctx, userID)
}

func (svc *Service) ClearPending(userID string, confirmed bool) (int, error) {
	return svc.queue.Clear(userID, confirmed)
}
