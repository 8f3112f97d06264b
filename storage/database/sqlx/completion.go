package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
)

const (
	selectUnit = `
SELECT u.id, m.course_id, u.title, u.video_url,
       EXISTS (SELECT 1 FROM quizzes q WHERE q.unit_id = u.id) AS has_quiz
FROM units u
JOIN course_modules m ON m.id = u.module_id
WHERE u.id = ?`

	selectUnitProgress = `
SELECT user_id, unit_id, course_id,
       video_completed, video_completed_at, quiz_completed, quiz_completed_at,
       completed, completed_at, completion_method, updated_at
FROM user_unit_progress
WHERE user_id = ? AND unit_id = ? AND course_id = ?`

	// flags are only ever raised: the SET expressions read the stored row before it is updated
	upsertUnitProgress = `
INSERT INTO user_unit_progress (
    user_id, unit_id, course_id,
    video_completed, video_completed_at, quiz_completed, quiz_completed_at,
    completed, completed_at, completion_method, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, unit_id, course_id) DO UPDATE SET
    video_completed_at = CASE WHEN user_unit_progress.video_completed OR NOT excluded.video_completed
        THEN user_unit_progress.video_completed_at ELSE excluded.video_completed_at END,
    video_completed = user_unit_progress.video_completed OR excluded.video_completed,
    quiz_completed_at = CASE WHEN user_unit_progress.quiz_completed OR NOT excluded.quiz_completed
        THEN user_unit_progress.quiz_completed_at ELSE excluded.quiz_completed_at END,
    quiz_completed = user_unit_progress.quiz_completed OR excluded.quiz_completed,
    completed_at = CASE WHEN user_unit_progress.completed OR NOT excluded.completed
        THEN user_unit_progress.completed_at ELSE excluded.completed_at END,
    completion_method = CASE WHEN user_unit_progress.completed OR NOT excluded.completed
        THEN user_unit_progress.completion_method ELSE excluded.completion_method END,
    completed = user_unit_progress.completed OR excluded.completed,
    updated_at = excluded.updated_at`

	upsertVideoProgress = `
INSERT INTO user_video_progress (user_id, unit_id, watched_percentage, completed, completed_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, unit_id) DO UPDATE SET
    watched_percentage = CASE WHEN excluded.watched_percentage > user_video_progress.watched_percentage
        THEN excluded.watched_percentage ELSE user_video_progress.watched_percentage END,
    completed_at = CASE WHEN user_video_progress.completed OR NOT excluded.completed
        THEN user_video_progress.completed_at ELSE excluded.completed_at END,
    completed = user_video_progress.completed OR excluded.completed,
    updated_at = excluded.updated_at`

	selectVideoProgress = `
SELECT user_id, unit_id, watched_percentage, completed, completed_at, updated_at
FROM user_video_progress
WHERE user_id = ? AND unit_id = ?`

	// one row per passed attempt: the earliest pass is kept in Go
	selectQuizGaps = `
SELECT a.user_id, q.unit_id, m.course_id,
       (u.video_url IS NOT NULL AND u.video_url <> '') AS has_video,
       COALESCE(p.video_completed, FALSE) AS video_completed,
       COALESCE(p.quiz_completed, FALSE) AS quiz_completed,
       COALESCE(p.completed, FALSE) AS completed,
       a.created_at AS passed_at
FROM quiz_attempts a
JOIN quizzes q ON q.id = a.quiz_id
JOIN units u ON u.id = q.unit_id
JOIN course_modules m ON m.id = u.module_id
LEFT JOIN user_unit_progress p
       ON p.user_id = a.user_id AND p.unit_id = q.unit_id AND p.course_id = m.course_id
WHERE a.passed AND (p.quiz_completed IS NULL OR NOT p.quiz_completed)
ORDER BY a.user_id, m.course_id, q.unit_id, a.created_at`
)

type completionRepository struct {
	db core.DBExecutor
}

var _ completion.Repository = (*completionRepository)(nil) // interface compliance check

func NewCompletionRepository(db core.DBExecutor) completion.Repository {
	return &completionRepository{db: db}
}

func (repo *completionRepository) GetUnit(ctx context.Context, unitID string) (completion.Unit, error) {
	var row unitRow
	if err := sqlxGet(ctx, repo.db, &row, selectUnit, unitID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return completion.Unit{}, completion.ErrUnitNotFound
		}
		return completion.Unit{}, storeErr("getting unit", err)
	}
	return row.toModel(), nil
}

func (repo *completionRepository) GetUnitProgress(ctx context.Context, key completion.Key) (completion.UnitProgress, error) {
	var row unitProgressRow
	if err := sqlxGet(ctx, repo.db, &row, selectUnitProgress, key.UserID, key.UnitID, key.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return completion.UnitProgress{}, completion.ErrProgressNotFound
		}
		return completion.UnitProgress{}, storeErr("getting unit progress", err)
	}
	return row.toModel(), nil
}

func (repo *completionRepository) UpsertUnitProgress(ctx context.Context, patch completion.UnitProgress) error {
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(upsertUnitProgress),
		patch.UserID, patch.UnitID, patch.CourseID,
		patch.VideoCompleted, null.TimeFromPtr(patch.VideoCompletedAt),
		patch.QuizCompleted, null.TimeFromPtr(patch.QuizCompletedAt),
		patch.Completed, null.TimeFromPtr(patch.CompletedAt),
		null.NewString(patch.CompletionMethod, patch.CompletionMethod != ""),
		patch.UpdatedAt.UTC(),
	)
	return storeErr("upserting unit progress", err)
}

func (repo *completionRepository) UpsertVideoProgress(ctx context.Context, vp completion.VideoProgress) (completion.VideoProgress, error) {
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(upsertVideoProgress),
		vp.UserID, vp.UnitID, vp.WatchedPercentage, vp.Completed, null.TimeFromPtr(vp.CompletedAt), vp.UpdatedAt.UTC(),
	)
	if err != nil {
		return completion.VideoProgress{}, storeErr("upserting video progress", err)
	}

	var row videoProgressRow
	if err = sqlxGet(ctx, repo.db, &row, selectVideoProgress, vp.UserID, vp.UnitID); err != nil {
		return completion.VideoProgress{}, storeErr("getting video progress", err)
	}
	return row.toModel(), nil
}

func (repo *completionRepository) ListQuizCompletionGaps(ctx context.Context) ([]completion.QuizCompletionGap, error) {
	var rows []quizGapRow
	if err := sqlxSelect(ctx, repo.db, &rows, selectQuizGaps); err != nil {
		return nil, storeErr("listing quiz completion gaps", err)
	}

	gaps := make([]completion.QuizCompletionGap, 0, len(rows))
	seen := make(map[completion.Key]struct{}, len(rows))
	for _, r := range rows {
		key := completion.Key{UserID: r.UserID, UnitID: r.UnitID, CourseID: r.CourseID}
		if _, ok := seen[key]; ok {
			continue // rows are ordered by pass date
		}
		seen[key] = struct{}{}
		gaps = append(gaps, completion.QuizCompletionGap{
			Key:      key,
			HasVideo: r.HasVideo,
			Status: completion.Status{
				VideoCompleted: r.VideoCompleted,
				QuizCompleted:  r.QuizCompleted,
				UnitCompleted:  r.Completed,
			},
			PassedAt: r.PassedAt.UTC(),
		})
	}
	return gaps, nil
}
