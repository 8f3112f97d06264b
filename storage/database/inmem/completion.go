package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/maendeleo/core/completion"
)

type completionRepository struct {
	db *DB
}

var _ completion.Repository = (*completionRepository)(nil) // interface compliance check

func NewCompletionRepository(db *DB) completion.Repository {
	return &completionRepository{db: db}
}

func (repo *completionRepository) GetUnit(_ context.Context, unitID string) (completion.Unit, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("getting unit"); err != nil {
		return completion.Unit{}, err
	}

	u, ok := repo.db.units[unitID]
	if !ok {
		return completion.Unit{}, completion.ErrUnitNotFound
	}
	return u, nil
}

func (repo *completionRepository) GetUnitProgress(_ context.Context, key completion.Key) (completion.UnitProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("getting unit progress"); err != nil {
		return completion.UnitProgress{}, err
	}

	up, ok := repo.db.unitProgress[key]
	if !ok {
		return completion.UnitProgress{}, completion.ErrProgressNotFound
	}
	return up, nil
}

func (repo *completionRepository) UpsertUnitProgress(_ context.Context, patch completion.UnitProgress) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if err := repo.db.check("upserting unit progress"); err != nil {
		return err
	}

	stored, ok := repo.db.unitProgress[patch.Key]
	if !ok {
		stored = completion.UnitProgress{Key: patch.Key}
	}
	repo.db.unitProgress[patch.Key] = mergeUnitProgress(stored, patch)
	return nil
}

// mergeUnitProgress applies the monotonic upsert rules of the user_unit_progress table.
func mergeUnitProgress(stored, patch completion.UnitProgress) completion.UnitProgress {
	if patch.VideoCompleted && !stored.VideoCompleted {
		stored.VideoCompleted = true
		stored.VideoCompletedAt = patch.VideoCompletedAt
	}
	if patch.QuizCompleted && !stored.QuizCompleted {
		stored.QuizCompleted = true
		stored.QuizCompletedAt = patch.QuizCompletedAt
	}
	if patch.Completed && !stored.Completed {
		stored.Completed = true
		stored.CompletedAt = patch.CompletedAt
		stored.CompletionMethod = patch.CompletionMethod
	}
	stored.UpdatedAt = patch.UpdatedAt
	return stored
}

func (repo *completionRepository) UpsertVideoProgress(_ context.Context, vp completion.VideoProgress) (completion.VideoProgress, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	if err := repo.db.check("upserting video progress"); err != nil {
		return completion.VideoProgress{}, err
	}

	key := videoKey{vp.UserID, vp.UnitID}
	stored, ok := repo.db.videoProgress[key]
	if !ok {
		repo.db.videoProgress[key] = vp
		return vp, nil
	}
	if vp.WatchedPercentage > stored.WatchedPercentage {
		stored.WatchedPercentage = vp.WatchedPercentage
	}
	if vp.Completed && !stored.Completed {
		stored.Completed = true
		stored.CompletedAt = vp.CompletedAt
	}
	stored.UpdatedAt = vp.UpdatedAt
	repo.db.videoProgress[key] = stored
	return stored, nil
}

func (repo *completionRepository) ListQuizCompletionGaps(_ context.Context) ([]completion.QuizCompletionGap, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if err := repo.db.check("listing quiz completion gaps"); err != nil {
		return nil, err
	}

	gaps := make([]completion.QuizCompletionGap, 0)
	for pass, passedAt := range repo.db.quizPasses {
		u, ok := repo.db.units[pass.unitID]
		if !ok || !u.HasQuiz {
			continue
		}
		key := completion.Key{UserID: pass.userID, UnitID: u.ID, CourseID: u.CourseID}
		up := repo.db.unitProgress[key]
		if up.QuizCompleted {
			continue
		}
		gaps = append(gaps, completion.QuizCompletionGap{
			Key:      key,
			HasVideo: u.HasVideo(),
			Status:   up.Status(),
			PassedAt: passedAt,
		})
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Key.String() < gaps[j].Key.String() })
	return gaps, nil
}
