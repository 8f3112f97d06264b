package progress

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/maendeleo/core"
)

var (
	// errors
	ErrNotFound   = errors.New("course progress not found")
	ErrSuperseded = errors.New("progress refresh superseded by a newer request")
)

type (
	Repository interface {
		// CountUnitsByCourse returns the number of units of each course. Unknown courses are absent.
		CountUnitsByCourse(ctx context.Context, courseIDs []string) (map[string]int, error)
		// CountCompletedUnits returns, per course, the number of units a user completed.
		CountCompletedUnits(ctx context.Context, userID string, courseIDs []string) (map[string]int, error)
		// CountCompletedUnitsByUser returns, per user, the number of units of a course they completed.
		CountCompletedUnitsByUser(ctx context.Context, courseID string, userIDs []string) (map[string]int, error)
		GetCourseProgress(ctx context.Context, userID, courseID string) (CourseProgress, error)
		ListCourseProgress(ctx context.Context, userID string, courseIDs []string) (map[string]CourseProgress, error)
		ListCourseProgressByUser(ctx context.Context, courseID string, userIDs []string) (map[string]CourseProgress, error)
		UpsertCourseProgress(ctx context.Context, cp CourseProgress) error
		// ListTrackedPairs pages through every (user, course) having unit or course progress.
		ListTrackedPairs(ctx context.Context, offset, limit int) ([]Pair, error)
	}

	// Aggregator recomputes course progress from unit completion counts.
	Aggregator struct {
		repo   Repository
		cache  StructureCache
		events core.EventPublisher
		log    core.Logger
		conf   core.ProgressConfig
		now    func() time.Time

		fill      singleflight.Group
		scheduled sync.WaitGroup
	}
)

func NewAggregator(repo Repository, cache StructureCache, events core.EventPublisher, log core.Logger, conf core.ProgressConfig) *Aggregator {
	if conf.BatchWorkers < 1 {
		conf.BatchWorkers = 1
	}
	if conf.BatchPageSize < 1 {
		conf.BatchPageSize = 500
	}
	if conf.RecomputeTimeout <= 0 {
		conf.RecomputeTimeout = 30 * time.Second
	}
	return &Aggregator{
		repo:   repo,
		cache:  cache,
		events: events,
		log:    log,
		conf:   conf,
		now:    time.Now,
	}
}

// totals resolves the number of units of each course, filling the structure cache with one query for the missing ones.
func (agg *Aggregator) totals(ctx context.Context, courseIDs []string) (map[string]int, error) {
	totals, err := agg.cache.Get(ctx, courseIDs)
	if err != nil {
		agg.log.Warn("reading course structure cache", err)
		totals = make(map[string]int, len(courseIDs))
	}

	var missing []string
	for _, id := range courseIDs {
		if _, ok := totals[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return totals, nil
	}

	sort.Strings(missing)
	ch := agg.fill.DoChan(strings.Join(missing, ","), func() (interface{}, error) {
		// shared by every caller of the flight: it must outlive the one that started it
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), agg.conf.RecomputeTimeout)
		defer cancel()
		counts, err := agg.repo.CountUnitsByCourse(fillCtx, missing)
		if err != nil {
			return nil, err
		}
		fetched := make(map[string]int, len(missing))
		for _, id := range missing {
			fetched[id] = counts[id]
		}
		if err = agg.cache.Set(fillCtx, fetched); err != nil {
			agg.log.Warn("filling course structure cache", err)
		}
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "counting course units")
	case res := <-ch:
		if res.Err != nil {
			return nil, errors.Wrap(res.Err, "counting course units")
		}
		for id, total := range res.Val.(map[string]int) {
			totals[id] = total
		}
		return totals, nil
	}
}

// Recompute recalculates the progress of a user on a course and stores it.
func (agg *Aggregator) Recompute(ctx context.Context, userID, courseID string, mode Mode) (Result, error) {
	totals, err := agg.totals(ctx, []string{courseID})
	if err != nil {
		return Result{}, err
	}
	completed, err := agg.repo.CountCompletedUnits(ctx, userID, []string{courseID})
	if err != nil {
		return Result{}, errors.Wrap(err, "counting completed units")
	}

	var prev *CourseProgress
	cp, err := agg.repo.GetCourseProgress(ctx, userID, courseID)
	switch {
	case err == nil:
		prev = &cp
	case !errors.Is(err, ErrNotFound):
		return Result{}, errors.Wrap(err, "reading course progress")
	}
	return agg.store(ctx, Pair{UserID: userID, CourseID: courseID}, totals[courseID], completed[courseID], prev, mode)
}

func (agg *Aggregator) store(ctx context.Context, pair Pair, total, completed int, prev *CourseProgress, mode Mode) (Result, error) {
	pct := Percentage(completed, total)
	res := Result{
		UserID:         pair.UserID,
		CourseID:       pair.CourseID,
		Percentage:     pct,
		Status:         StatusFor(pct),
		CompletedUnits: completed,
		TotalUnits:     total,
	}

	if mode == ModeSafe && prev != nil && prev.Percentage > pct {
		res.Percentage = prev.Percentage
		res.Status = prev.Status
		res.Retained = true
		agg.log.Info("safe recompute kept a higher stored progress", pair.String(), prev.Percentage, pct)
		return res, nil
	}

	now := agg.now().UTC()
	cp := CourseProgress{
		UserID:         pair.UserID,
		CourseID:       pair.CourseID,
		Percentage:     res.Percentage,
		Status:         res.Status,
		LastAccessedAt: now,
		UpdatedAt:      now,
	}
	if prev != nil {
		cp.StartedAt = prev.StartedAt
		if prev.Status == StatusCompleted && cp.Status == StatusCompleted {
			cp.CompletedAt = prev.CompletedAt
		}
	}
	if cp.StartedAt == nil && cp.Status != StatusNotStarted {
		cp.StartedAt = &now
	}
	if cp.CompletedAt == nil && cp.Status == StatusCompleted {
		cp.CompletedAt = &now
	}

	if err := agg.repo.UpsertCourseProgress(ctx, cp); err != nil {
		return Result{}, errors.Wrap(err, "upserting course progress")
	}

	if prev == nil || prev.Percentage != cp.Percentage {
		if err := agg.events.Publish(ctx, core.Event{
			Type:     core.EventCourseProgressUpdated,
			UserID:   pair.UserID,
			CourseID: pair.CourseID,
			Data: map[string]interface{}{
				"progress_percentage": cp.Percentage,
				"status":              cp.Status,
			},
			OccurredAt: now,
		}); err != nil {
			agg.log.Warn("publishing course progress", err, pair.String())
		}
	}
	return res, nil
}

// RecomputeCourses recomputes the progress of a user on several courses with one structure query,
// one completion count query and one progress query. A failing course does not stop the others.
func (agg *Aggregator) RecomputeCourses(ctx context.Context, userID string, courseIDs []string, mode Mode) (BatchResult, error) {
	courseIDs = unique(courseIDs)
	if len(courseIDs) == 0 {
		return BatchResult{}, nil
	}

	totals, err := agg.totals(ctx, courseIDs)
	if err != nil {
		return BatchResult{}, err
	}
	completed, err := agg.repo.CountCompletedUnits(ctx, userID, courseIDs)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "counting completed units")
	}
	prevs, err := agg.repo.ListCourseProgress(ctx, userID, courseIDs)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "listing course progress")
	}

	pairs := make([]Pair, len(courseIDs))
	for i, id := range courseIDs {
		pairs[i] = Pair{UserID: userID, CourseID: id}
	}
	return agg.storeAll(ctx, pairs, mode, func(p Pair) string { return p.CourseID }, func(p Pair) (int, int, *CourseProgress) {
		return totals[p.CourseID], completed[p.CourseID], lookup(prevs, p.CourseID)
	}), nil
}

// RecomputeUsers recomputes the progress of several users on a course, batching its queries like RecomputeCourses.
func (agg *Aggregator) RecomputeUsers(ctx context.Context, courseID string, userIDs []string, mode Mode) (BatchResult, error) {
	userIDs = unique(userIDs)
	if len(userIDs) == 0 {
		return BatchResult{}, nil
	}

	totals, err := agg.totals(ctx, []string{courseID})
	if err != nil {
		return BatchResult{}, err
	}
	completed, err := agg.repo.CountCompletedUnitsByUser(ctx, courseID, userIDs)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "counting completed units")
	}
	prevs, err := agg.repo.ListCourseProgressByUser(ctx, courseID, userIDs)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "listing course progress")
	}

	pairs := make([]Pair, len(userIDs))
	for i, id := range userIDs {
		pairs[i] = Pair{UserID: id, CourseID: courseID}
	}
	return agg.storeAll(ctx, pairs, mode, func(p Pair) string { return p.UserID }, func(p Pair) (int, int, *CourseProgress) {
		return totals[courseID], completed[p.UserID], lookup(prevs, p.UserID)
	}), nil
}

func (agg *Aggregator) storeAll(
	ctx context.Context,
	pairs []Pair,
	mode Mode,
	idOf func(Pair) string,
	inputs func(Pair) (total, completed int, prev *CourseProgress),
) BatchResult {
	results := make([]Result, len(pairs))
	errs := make([]error, len(pairs))

	var g errgroup.Group
	g.SetLimit(agg.conf.BatchWorkers)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			total, completed, prev := inputs(pair)
			results[i], errs[i] = agg.store(ctx, pair, total, completed, prev, mode)
			return nil // per item isolation
		})
	}
	_ = g.Wait()

	var br BatchResult
	for i, pair := range pairs {
		if errs[i] != nil {
			br.fail(idOf(pair), errs[i])
			agg.log.Warn("recomputing course progress", errs[i], pair.String())
			continue
		}
		br.succeed(idOf(pair), results[i])
	}
	return br
}

// RecalculateAll recomputes, in safe mode, the progress of every tracked (user, course).
// Items are identified as "user/course".
func (agg *Aggregator) RecalculateAll(ctx context.Context) (BatchResult, error) {
	var all BatchResult
	for offset := 0; ; offset += agg.conf.BatchPageSize {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		pairs, err := agg.repo.ListTrackedPairs(ctx, offset, agg.conf.BatchPageSize)
		if err != nil {
			return all, errors.Wrap(err, "listing tracked progress")
		}

		byUser := make(map[string][]string)
		var users []string
		for _, p := range pairs {
			if _, ok := byUser[p.UserID]; !ok {
				users = append(users, p.UserID)
			}
			byUser[p.UserID] = append(byUser[p.UserID], p.CourseID)
		}
		for _, userID := range users {
			br, err := agg.RecomputeCourses(ctx, userID, byUser[userID], ModeSafe)
			if err != nil {
				for _, courseID := range byUser[userID] {
					all.fail(Pair{UserID: userID, CourseID: courseID}.String(), err)
				}
				continue
			}
			all.merge(prefixed(userID, br))
		}

		if len(pairs) < agg.conf.BatchPageSize {
			break
		}
	}

	agg.log.Info("course progress recalculated", len(all.Succeeded), all.FailureCount)
	return all, nil
}

// Schedule recomputes the progress of a user on a course in the background.
func (agg *Aggregator) Schedule(userID, courseID string) {
	agg.scheduled.Add(1)
	go func() {
		defer agg.scheduled.Done()

		ctx, cancel := context.WithTimeout(context.Background(), agg.conf.RecomputeTimeout)
		defer cancel()
		if _, err := agg.Recompute(ctx, userID, courseID, ModeStrict); err != nil {
			agg.log.Error("recomputing course progress", err, userID, courseID)
		}
	}()
}

// Wait blocks until every scheduled recompute is done.
func (agg *Aggregator) Wait() {
	agg.scheduled.Wait()
}

// Invalidate drops the cached structure of the given courses (all courses if none is given).
func (agg *Aggregator) Invalidate(ctx context.Context, courseIDs ...string) error {
	if err := agg.cache.Invalidate(ctx, courseIDs...); err != nil {
		return errors.Wrap(err, "invalidating course structure")
	}
	return nil
}

func prefixed(userID string, br BatchResult) BatchResult {
	out := BatchResult{Results: br.Results, FailureCount: br.FailureCount}
	for _, id := range br.Succeeded {
		out.Succeeded = append(out.Succeeded, userID+"/"+id)
	}
	for _, id := range br.Failed {
		out.Failed = append(out.Failed, userID+"/"+id)
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[userID+"/"+id] = br.Errors[id]
	}
	return out
}

func lookup(m map[string]CourseProgress, id string) *CourseProgress {
	if cp, ok := m[id]; ok {
		return &cp
	}
	return nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
