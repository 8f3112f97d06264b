package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
)

const (
	countUnitsByCourse = `
SELECT m.course_id AS id, COUNT(u.id) AS n
FROM units u
JOIN course_modules m ON m.id = u.module_id
WHERE m.course_id IN (?)
GROUP BY m.course_id`

	// a completed unit only counts while it still belongs to the course
	countCompletedUnits = `
SELECT p.course_id AS id, COUNT(*) AS n
FROM user_unit_progress p
JOIN units u ON u.id = p.unit_id
JOIN course_modules m ON m.id = u.module_id AND m.course_id = p.course_id
WHERE p.user_id = ? AND p.completed AND p.course_id IN (?)
GROUP BY p.course_id`

	countCompletedUnitsByUser = `
SELECT p.user_id AS id, COUNT(*) AS n
FROM user_unit_progress p
JOIN units u ON u.id = p.unit_id
JOIN course_modules m ON m.id = u.module_id AND m.course_id = p.course_id
WHERE p.course_id = ? AND p.completed AND p.user_id IN (?)
GROUP BY p.user_id`

	courseProgressColumns = `user_id, course_id, progress_percentage, status, started_at, completed_at, last_accessed_at, updated_at`

	upsertCourseProgress = `
INSERT INTO user_course_progress (` + courseProgressColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, course_id) DO UPDATE SET
    progress_percentage = excluded.progress_percentage,
    status = excluded.status,
    started_at = excluded.started_at,
    completed_at = excluded.completed_at,
    last_accessed_at = excluded.last_accessed_at,
    updated_at = excluded.updated_at`

	selectTrackedPairs = `
SELECT user_id, course_id FROM user_unit_progress
UNION
SELECT user_id, course_id FROM user_course_progress
ORDER BY user_id, course_id
LIMIT ? OFFSET ?`
)

type progressRepository struct {
	db core.DBExecutor
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db core.DBExecutor) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) counts(ctx context.Context, op, query string, args ...interface{}) (map[string]int, error) {
	var rows []countRow
	if err := sqlxSelectIn(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, storeErr(op, err)
	}
	return countMap(rows), nil
}

func (repo *progressRepository) CountUnitsByCourse(ctx context.Context, courseIDs []string) (map[string]int, error) {
	if len(courseIDs) == 0 {
		return map[string]int{}, nil
	}
	return repo.counts(ctx, "counting course units", countUnitsByCourse, courseIDs)
}

func (repo *progressRepository) CountCompletedUnits(ctx context.Context, userID string, courseIDs []string) (map[string]int, error) {
	if len(courseIDs) == 0 {
		return map[string]int{}, nil
	}
	return repo.counts(ctx, "counting completed units", countCompletedUnits, userID, courseIDs)
}

func (repo *progressRepository) CountCompletedUnitsByUser(ctx context.Context, courseID string, userIDs []string) (map[string]int, error) {
	if len(userIDs) == 0 {
		return map[string]int{}, nil
	}
	return repo.counts(ctx, "counting completed units", countCompletedUnitsByUser, courseID, userIDs)
}

func (repo *progressRepository) GetCourseProgress(ctx context.Context, userID, courseID string) (progress.CourseProgress, error) {
	var row courseProgressRow
	q := `SELECT ` + courseProgressColumns + ` FROM user_course_progress WHERE user_id = ? AND course_id = ?`
	if err := sqlxGet(ctx, repo.db, &row, q, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.CourseProgress{}, progress.ErrNotFound
		}
		return progress.CourseProgress{}, storeErr("getting course progress", err)
	}
	return row.toModel(), nil
}

func (repo *progressRepository) listCourseProgress(ctx context.Context, byCourse bool, fixed string, ids []string) (map[string]progress.CourseProgress, error) {
	out := make(map[string]progress.CourseProgress, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := `SELECT ` + courseProgressColumns + ` FROM user_course_progress WHERE user_id = ? AND course_id IN (?)`
	if !byCourse {
		q = `SELECT ` + courseProgressColumns + ` FROM user_course_progress WHERE course_id = ? AND user_id IN (?)`
	}
	var rows []courseProgressRow
	if err := sqlxSelectIn(ctx, repo.db, &rows, q, fixed, ids); err != nil {
		return nil, storeErr("listing course progress", err)
	}
	for _, r := range rows {
		if byCourse {
			out[r.CourseID] = r.toModel()
		} else {
			out[r.UserID] = r.toModel()
		}
	}
	return out, nil
}

func (repo *progressRepository) ListCourseProgress(ctx context.Context, userID string, courseIDs []string) (map[string]progress.CourseProgress, error) {
	return repo.listCourseProgress(ctx, true, userID, courseIDs)
}

func (repo *progressRepository) ListCourseProgressByUser(ctx context.Context, courseID string, userIDs []string) (map[string]progress.CourseProgress, error) {
	return repo.listCourseProgress(ctx, false, courseID, userIDs)
}

func (repo *progressRepository) UpsertCourseProgress(ctx context.Context, cp progress.CourseProgress) error {
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(upsertCourseProgress),
		cp.UserID, cp.CourseID, cp.Percentage, string(cp.Status),
		null.TimeFromPtr(cp.StartedAt), null.TimeFromPtr(cp.CompletedAt),
		cp.LastAccessedAt.UTC(), cp.UpdatedAt.UTC(),
	)
	return storeErr("upserting course progress", err)
}

func (repo *progressRepository) ListTrackedPairs(ctx context.Context, offset, limit int) ([]progress.Pair, error) {
	pairs := make([]progress.Pair, 0, limit)
	if err := sqlxSelect(ctx, repo.db, &pairs, selectTrackedPairs, limit, offset); err != nil {
		return nil, storeErr("listing tracked progress", err)
	}
	return pairs, nil
}
