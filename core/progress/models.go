package progress

import (
	"math"
	"time"
)

// Status of a user on a course. It is a pure function of the progress percentage.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// StatusFor returns the status matching a progress percentage.
func StatusFor(percentage int) Status {
	switch {
	case percentage >= 100:
		return StatusCompleted
	case percentage > 0:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// Percentage returns round(100 * completed / total), 0 for an empty course.
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// Mode of a recompute.
type Mode uint8

const (
	// ModeStrict stores the recomputed value.
	ModeStrict Mode = iota
	// ModeSafe never lowers a stored percentage.
	ModeSafe
)

func (m Mode) String() string {
	if m == ModeSafe {
		return "safe"
	}
	return "strict"
}

type CourseProgress struct {
	UserID         string     `json:"user_id"`
	CourseID       string     `json:"course_id"`
	Percentage     int        `json:"progress_percentage"`
	Status         Status     `json:"status"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Pair identifies the progress of a user on a course.
type Pair struct {
	UserID   string `json:"user_id" db:"user_id"`
	CourseID string `json:"course_id" db:"course_id"`
}

func (p Pair) String() string { return p.UserID + "/" + p.CourseID }

// Result of a recompute.
type Result struct {
	UserID         string `json:"user_id"`
	CourseID       string `json:"course_id"`
	Percentage     int    `json:"progress_percentage"`
	Status         Status `json:"status"`
	CompletedUnits int    `json:"completed_units"`
	TotalUnits     int    `json:"total_units"`
	// Retained is set when a safe recompute kept a higher stored value.
	Retained bool `json:"retained"`
}

// BatchResult reports a batch recompute item by item. Items are identified by course id,
// user id or "user/course" depending on the batch.
type BatchResult struct {
	Results      []Result          `json:"results"`
	Succeeded    []string          `json:"succeeded"`
	Failed       []string          `json:"failed"`
	FailureCount int               `json:"failure_count"`
	Errors       map[string]string `json:"errors,omitempty"`
}

func (br *BatchResult) succeed(id string, res Result) {
	br.Results = append(br.Results, res)
	br.Succeeded = append(br.Succeeded, id)
}

func (br *BatchResult) fail(id string, err error) {
	if br.Errors == nil {
		br.Errors = make(map[string]string)
	}
	br.Failed = append(br.Failed, id)
	br.Errors[id] = err.Error()
	br.FailureCount++
}

func (br *BatchResult) merge(other BatchResult) {
	br.Results = append(br.Results, other.Results...)
	br.Succeeded = append(br.Succeeded, other.Succeeded...)
	br.Failed = append(br.Failed, other.Failed...)
	br.FailureCount += other.FailureCount
	for id, msg := range other.Errors {
		if br.Errors == nil {
			br.Errors = make(map[string]string)
		}
		br.Errors[id] = msg
	}
}
