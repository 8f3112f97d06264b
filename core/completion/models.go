package completion

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Strategy is the completion rule of a unit, derived from its content shape.
type Strategy uint8

const (
	StrategyManualOnly Strategy = iota
	StrategyVideoOnly
	StrategyQuizOnly
	StrategyVideoAndQuiz
)

var strategyNames = map[Strategy]string{
	StrategyManualOnly:   "manual_only",
	StrategyVideoOnly:    "video_only",
	StrategyQuizOnly:     "quiz_only",
	StrategyVideoAndQuiz: "video_and_quiz",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

func (s Strategy) MarshalText() ([]byte, error) {
	if _, ok := strategyNames[s]; !ok {
		return nil, errors.Wrapf(ErrInvalidState, "unknown strategy %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// TriggerEvent is an external signal that may advance the completion state of a unit.
type TriggerEvent uint8

const (
	// TriggerNone re-evaluates the stored flags without applying any signal.
	TriggerNone TriggerEvent = iota
	TriggerVideoComplete
	TriggerQuizComplete
	TriggerManual
)

var triggerNames = map[TriggerEvent]string{
	TriggerNone:          "none",
	TriggerVideoComplete: "video_complete",
	TriggerQuizComplete:  "quiz_complete",
	TriggerManual:        "manual",
}

func (t TriggerEvent) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return fmt.Sprintf("trigger(%d)", uint8(t))
}

func (t TriggerEvent) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TriggerEvent) UnmarshalText(text []byte) error {
	trg, err := ParseTrigger(string(text))
	if err != nil {
		return err
	}
	*t = trg
	return nil
}

// ParseTrigger parses a trigger event name (video_complete, quiz_complete or manual).
func ParseTrigger(name string) (TriggerEvent, error) {
	for trg, n := range triggerNames {
		if trg != TriggerNone && n == name {
			return trg, nil
		}
	}
	return TriggerNone, errors.Errorf("unknown trigger event %q", name)
}

// Method returns the completion method recorded when this trigger completes a unit.
func (t TriggerEvent) Method() string {
	switch t {
	case TriggerVideoComplete:
		return MethodVideoComplete
	case TriggerQuizComplete:
		return MethodQuizComplete
	case TriggerManual:
		return MethodManual
	}
	return MethodReevaluation
}

// Completion methods
const (
	MethodVideoComplete  = "video_complete"
	MethodQuizComplete   = "quiz_complete"
	MethodManual         = "manual"
	MethodManualOverride = "manual_override"
	MethodAdminOverride  = "admin_override"
	MethodQuizBackfill   = "quiz_backfill"
	MethodReevaluation   = "reevaluation"
)

// Key identifies the progress of a user on a unit within a course.
type Key struct {
	UserID   string `json:"user_id"`
	UnitID   string `json:"unit_id"`
	CourseID string `json:"course_id"`
}

func (k Key) String() string {
	return k.UserID + "/" + k.CourseID + "/" + k.UnitID
}

type Unit struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	VideoURL string `json:"video_url,omitempty"`
	HasQuiz  bool   `json:"has_quiz"`
}

func (u Unit) HasVideo() bool { return u.VideoURL != "" }

func (u Unit) Strategy() Strategy { return Classify(u.HasVideo(), u.HasQuiz) }

// Status holds the completion flags of a user on a unit.
type Status struct {
	VideoCompleted bool `json:"video_completed"`
	QuizCompleted  bool `json:"quiz_completed"`
	UnitCompleted  bool `json:"unit_completed"`
}

// UnitProgress is the stored completion record of a user on a unit.
// When used as an upsert patch, true flags are raised and false flags are left untouched.
type UnitProgress struct {
	Key
	VideoCompleted   bool       `json:"video_completed"`
	VideoCompletedAt *time.Time `json:"video_completed_at"`
	QuizCompleted    bool       `json:"quiz_completed"`
	QuizCompletedAt  *time.Time `json:"quiz_completed_at"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at"`
	CompletionMethod string     `json:"completion_method,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (up UnitProgress) Status() Status {
	return Status{
		VideoCompleted: up.VideoCompleted,
		QuizCompleted:  up.QuizCompleted,
		UnitCompleted:  up.Completed,
	}
}

// VideoProgress is the playback progress of a user on a unit's video.
type VideoProgress struct {
	UserID            string     `json:"user_id"`
	UnitID            string     `json:"unit_id"`
	WatchedPercentage int        `json:"watched_percentage"`
	Completed         bool       `json:"completed"`
	CompletedAt       *time.Time `json:"completed_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// QuizCompletionGap is a passed quiz that is not reflected on the unit progress yet.
type QuizCompletionGap struct {
	Key
	HasVideo bool      `json:"has_video"`
	Status   Status    `json:"status"`
	PassedAt time.Time `json:"passed_at"`
}
