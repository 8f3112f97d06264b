package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/maendeleo/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func set(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (repo *progressRepository) CountUnitsByCourse(_ context.Context, courseIDs []string) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("counting course units"); err != nil {
		return nil, err
	}

	wanted := set(courseIDs)
	counts := make(map[string]int)
	for _, u := range repo.db.units {
		if _, ok := wanted[u.CourseID]; ok {
			counts[u.CourseID]++
		}
	}
	return counts, nil
}

// countsFor reports whether a unit still belongs to a course.
func (repo *progressRepository) countsFor(unitID, courseID string) bool {
	u, ok := repo.db.units[unitID]
	return ok && u.CourseID == courseID
}

func (repo *progressRepository) CountCompletedUnits(_ context.Context, userID string, courseIDs []string) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("counting completed units"); err != nil {
		return nil, err
	}

	wanted := set(courseIDs)
	counts := make(map[string]int)
	for key, up := range repo.db.unitProgress {
		if _, ok := wanted[key.CourseID]; !ok || key.UserID != userID || !up.Completed {
			continue
		}
		if repo.countsFor(key.UnitID, key.CourseID) {
			counts[key.CourseID]++
		}
	}
	return counts, nil
}

func (repo *progressRepository) CountCompletedUnitsByUser(_ context.Context, courseID string, userIDs []string) (map[string]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("counting completed units"); err != nil {
		return nil, err
	}

	wanted := set(userIDs)
	counts := make(map[string]int)
	for key, up := range repo.db.unitProgress {
		if _, ok := wanted[key.UserID]; !ok || key.CourseID != courseID || !up.Completed {
			continue
		}
		if repo.countsFor(key.UnitID, key.CourseID) {
			counts[key.UserID]++
		}
	}
	return counts, nil
}

func (repo *progressRepository) GetCourseProgress(_ context.Context, userID, courseID string) (progress.CourseProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("getting course progress"); err != nil {
		return progress.CourseProgress{}, err
	}

	cp, ok := repo.db.courseProgress[progress.Pair{UserID: userID, CourseID: courseID}]
	if !ok {
		return progress.CourseProgress{}, progress.ErrNotFound
	}
	return cp, nil
}

func (repo *progressRepository) ListCourseProgress(_ context.Context, userID string, courseIDs []string) (map[string]progress.CourseProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("listing course progress"); err != nil {
		return nil, err
	}

	out := make(map[string]progress.CourseProgress)
	for _, id := range courseIDs {
		if cp, ok := repo.db.courseProgress[progress.Pair{UserID: userID, CourseID: id}]; ok {
			out[id] = cp
		}
	}
	return out, nil
}

func (repo *progressRepository) ListCourseProgressByUser(_ context.Context, courseID string, userIDs []string) (map[string]progress.CourseProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("listing course progress"); err != nil {
		return nil, err
	}

	out := make(map[string]progress.CourseProgress)
	for _, id := range userIDs {
		if cp, ok := repo.db.courseProgress[progress.Pair{UserID: id, CourseID: courseID}]; ok {
			out[id] = cp
		}
	}
	return out, nil
}

func (repo *progressRepository) UpsertCourseProgress(_ context.Context, cp progress.CourseProgress) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if err := repo.db.check("upserting course progress"); err != nil {
		return err
	}

	repo.db.courseProgress[progress.Pair{UserID: cp.UserID, CourseID: cp.CourseID}] = cp
	return nil
}

func (repo *progressRepository) ListTrackedPairs(_ context.Context, offset, limit int) ([]progress.Pair, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("listing tracked progress"); err != nil {
		return nil, err
	}

	seen := make(map[progress.Pair]struct{})
	for key := range repo.db.unitProgress {
		seen[progress.Pair{UserID: key.UserID, CourseID: key.CourseID}] = struct{}{}
	}
	for pair := range repo.db.courseProgress {
		seen[pair] = struct{}{}
	}
	pairs := make([]progress.Pair, 0, len(seen))
	for pair := range seen {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })

	if offset >= len(pairs) {
		return []progress.Pair{}, nil
	}
	end := offset + limit
	if end > len(pairs) {
		end = len(pairs)
	}
	return pairs[offset:end], nil
}
