package sqlxrepos_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/storage/database/sqlx"
	"github.com/trezcool/maendeleo/tests"
)

func seedUnits(course string, n int) []testutil.UnitSpec {
	specs := make([]testutil.UnitSpec, n)
	for i := range specs {
		specs[i] = testutil.UnitSpec{ID: fmt.Sprintf("%s-u%d", course, i), Content: "v"}
	}
	return specs
}

func completeUnits(t *testing.T, repo completion.Repository, user, course string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := repo.UpsertUnitProgress(context.Background(), completion.UnitProgress{
			Key:              completion.Key{UserID: user, UnitID: id, CourseID: course},
			Completed:        true,
			CompletedAt:      ts(0),
			CompletionMethod: completion.MethodManual,
			UpdatedAt:        *ts(0),
		})
		require.NoError(t, err)
	}
}

func TestProgressRepository_counts(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedCatalog(t, db, "c1", seedUnits("c1", 10)...)
	testutil.SeedCatalog(t, db, "c2", seedUnits("c2", 3)...)
	testutil.SeedCatalog(t, db, "c3")
	units := sqlxrepos.NewCompletionRepository(db)
	repo := sqlxrepos.NewProgressRepository(db)
	ctx := context.Background()

	completeUnits(t, units, userID, "c1", "c1-u0", "c1-u1", "c1-u2", "c1-u3", "c1-u4", "c1-u5")
	completeUnits(t, units, userID, "c2", "c2-u0")
	completeUnits(t, units, "user-2", "c1", "c1-u0")
	// a flag-only row does not count
	require.NoError(t, units.UpsertUnitProgress(ctx, completion.UnitProgress{
		Key: completion.Key{UserID: userID, UnitID: "c2-u1", CourseID: "c2"}, VideoCompleted: true, UpdatedAt: *ts(0),
	}))

	totals, err := repo.CountUnitsByCourse(ctx, []string{"c1", "c2", "c3", "c4"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c1": 10, "c2": 3}, totals)

	completed, err := repo.CountCompletedUnits(ctx, userID, []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c1": 6, "c2": 1}, completed)

	byUser, err := repo.CountCompletedUnitsByUser(ctx, "c1", []string{userID, "user-2", "user-3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{userID: 6, "user-2": 1}, byUser)

	empty, err := repo.CountUnitsByCourse(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProgressRepository_courseProgress(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedCatalog(t, db, "c1")
	testutil.SeedCatalog(t, db, "c2")
	repo := sqlxrepos.NewProgressRepository(db)
	ctx := context.Background()

	_, err := repo.GetCourseProgress(ctx, userID, "c1")
	assert.Equal(t, progress.ErrNotFound, err)

	cp := progress.CourseProgress{
		UserID: userID, CourseID: "c1", Percentage: 60, Status: progress.StatusInProgress,
		StartedAt: ts(1), LastAccessedAt: *ts(2), UpdatedAt: *ts(2),
	}
	require.NoError(t, repo.UpsertCourseProgress(ctx, cp))
	cp.Percentage, cp.Status, cp.CompletedAt = 100, progress.StatusCompleted, ts(3)
	require.NoError(t, repo.UpsertCourseProgress(ctx, cp))
	require.NoError(t, repo.UpsertCourseProgress(ctx, progress.CourseProgress{
		UserID: "user-2", CourseID: "c1", Status: progress.StatusNotStarted, LastAccessedAt: *ts(2), UpdatedAt: *ts(2),
	}))

	got, err := repo.GetCourseProgress(ctx, userID, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Percentage)
	assert.Equal(t, progress.StatusCompleted, got.Status)
	assert.True(t, ts(1).Equal(*got.StartedAt))
	assert.True(t, ts(3).Equal(*got.CompletedAt))

	byCourse, err := repo.ListCourseProgress(ctx, userID, []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Len(t, byCourse, 1)
	assert.Contains(t, byCourse, "c1")

	byUser, err := repo.ListCourseProgressByUser(ctx, "c1", []string{userID, "user-2"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
	assert.Nil(t, byUser["user-2"].StartedAt)
}

func TestProgressRepository_ListTrackedPairs(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedCatalog(t, db, "c1", seedUnits("c1", 2)...)
	testutil.SeedCatalog(t, db, "c2", seedUnits("c2", 2)...)
	units := sqlxrepos.NewCompletionRepository(db)
	repo := sqlxrepos.NewProgressRepository(db)
	ctx := context.Background()

	completeUnits(t, units, "a", "c1", "c1-u0", "c1-u1")
	completeUnits(t, units, "b", "c2", "c2-u0")
	require.NoError(t, repo.UpsertCourseProgress(ctx, progress.CourseProgress{
		UserID: "a", CourseID: "c1", Percentage: 100, Status: progress.StatusCompleted, LastAccessedAt: *ts(1), UpdatedAt: *ts(1),
	}))
	require.NoError(t, repo.UpsertCourseProgress(ctx, progress.CourseProgress{
		UserID: "c", CourseID: "c2", Status: progress.StatusNotStarted, LastAccessedAt: *ts(1), UpdatedAt: *ts(1),
	}))

	page, err := repo.ListTrackedPairs(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []progress.Pair{{UserID: "a", CourseID: "c1"}, {UserID: "b", CourseID: "c2"}}, page)

	page, err = repo.ListTrackedPairs(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []progress.Pair{{UserID: "c", CourseID: "c2"}}, page)
}

func TestAggregator_overSQL(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.SeedCatalog(t, db, courseID, seedUnits(courseID, 10)...)
	units := sqlxrepos.NewCompletionRepository(db)
	conf := testutil.Config()
	agg := progress.NewAggregator(
		sqlxrepos.NewProgressRepository(db),
		progress.NewMemoryCache(conf.Progress.StructureTTL),
		new(testutil.Publisher),
		new(testutil.Logger),
		conf.Progress,
	)
	ctx := context.Background()

	completeUnits(t, units, userID, courseID,
		courseID+"-u0", courseID+"-u1", courseID+"-u2", courseID+"-u3", courseID+"-u4", courseID+"-u5")
	res, err := agg.Recompute(ctx, userID, courseID, progress.ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, 60, res.Percentage)
	assert.Equal(t, progress.StatusInProgress, res.Status)

	again, err := agg.Recompute(ctx, userID, courseID, progress.ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, res, again)

	// two more units: a naive recompute would drop to 50%
	db.MustExec(db.Rebind(`INSERT INTO units (id, module_id, title) VALUES (?, ?, ?), (?, ?, ?)`),
		"extra-1", courseID+"-m1", "Extra 1", "extra-2", courseID+"-m1", "Extra 2")
	require.NoError(t, agg.Invalidate(ctx, courseID))

	br, err := agg.RecalculateAll(ctx)
	require.NoError(t, err)
	require.Len(t, br.Results, 1)
	assert.True(t, br.Results[0].Retained)

	cp, err := sqlxrepos.NewProgressRepository(db).GetCourseProgress(ctx, userID, courseID)
	require.NoError(t, err)
	assert.Equal(t, 60, cp.Percentage)
}
