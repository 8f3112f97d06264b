package sqlxrepos

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
)

type (
	unitRow struct {
		ID       string      `db:"id"`
		CourseID string      `db:"course_id"`
		Title    string      `db:"title"`
		VideoURL null.String `db:"video_url"`
		HasQuiz  bool        `db:"has_quiz"`
	}

	unitProgressRow struct {
		UserID           string      `db:"user_id"`
		UnitID           string      `db:"unit_id"`
		CourseID         string      `db:"course_id"`
		VideoCompleted   bool        `db:"video_completed"`
		VideoCompletedAt null.Time   `db:"video_completed_at"`
		QuizCompleted    bool        `db:"quiz_completed"`
		QuizCompletedAt  null.Time   `db:"quiz_completed_at"`
		Completed        bool        `db:"completed"`
		CompletedAt      null.Time   `db:"completed_at"`
		CompletionMethod null.String `db:"completion_method"`
		UpdatedAt        time.Time   `db:"updated_at"`
	}

	videoProgressRow struct {
		UserID            string    `db:"user_id"`
		UnitID            string    `db:"unit_id"`
		WatchedPercentage int       `db:"watched_percentage"`
		Completed         bool      `db:"completed"`
		CompletedAt       null.Time `db:"completed_at"`
		UpdatedAt         time.Time `db:"updated_at"`
	}

	quizGapRow struct {
		UserID         string    `db:"user_id"`
		UnitID         string    `db:"unit_id"`
		CourseID       string    `db:"course_id"`
		HasVideo       bool      `db:"has_video"`
		VideoCompleted bool      `db:"video_completed"`
		QuizCompleted  bool      `db:"quiz_completed"`
		Completed      bool      `db:"completed"`
		PassedAt       time.Time `db:"passed_at"`
	}

	courseProgressRow struct {
		UserID         string    `db:"user_id"`
		CourseID       string    `db:"course_id"`
		Percentage     int       `db:"progress_percentage"`
		Status         string    `db:"status"`
		StartedAt      null.Time `db:"started_at"`
		CompletedAt    null.Time `db:"completed_at"`
		LastAccessedAt time.Time `db:"last_accessed_at"`
		UpdatedAt      time.Time `db:"updated_at"`
	}

	countRow struct {
		ID    string `db:"id"`
		Count int    `db:"n"`
	}
)

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func (r unitRow) toModel() completion.Unit {
	return completion.Unit{
		ID:       r.ID,
		CourseID: r.CourseID,
		Title:    r.Title,
		VideoURL: r.VideoURL.String,
		HasQuiz:  r.HasQuiz,
	}
}

func (r unitProgressRow) toModel() completion.UnitProgress {
	return completion.UnitProgress{
		Key:              completion.Key{UserID: r.UserID, UnitID: r.UnitID, CourseID: r.CourseID},
		VideoCompleted:   r.VideoCompleted,
		VideoCompletedAt: utcPtr(r.VideoCompletedAt),
		QuizCompleted:    r.QuizCompleted,
		QuizCompletedAt:  utcPtr(r.QuizCompletedAt),
		Completed:        r.Completed,
		CompletedAt:      utcPtr(r.CompletedAt),
		CompletionMethod: r.CompletionMethod.String,
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r videoProgressRow) toModel() completion.VideoProgress {
	return completion.VideoProgress{
		UserID:            r.UserID,
		UnitID:            r.UnitID,
		WatchedPercentage: r.WatchedPercentage,
		Completed:         r.Completed,
		CompletedAt:       utcPtr(r.CompletedAt),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func (r courseProgressRow) toModel() progress.CourseProgress {
	return progress.CourseProgress{
		UserID:         r.UserID,
		CourseID:       r.CourseID,
		Percentage:     r.Percentage,
		Status:         progress.Status(r.Status),
		StartedAt:      utcPtr(r.StartedAt),
		CompletedAt:    utcPtr(r.CompletedAt),
		LastAccessedAt: r.LastAccessedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func countMap(rows []countRow) map[string]int {
	m := make(map[string]int, len(rows))
	for _, r := range rows {
		m[r.ID] = r.Count
	}
	return m
}
