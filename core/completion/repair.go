package completion

import (
	"context"

	"github.com/pkg/errors"
)

type (
	RepairItem struct {
		Key          Key      `json:"key"`
		Strategy     Strategy `json:"strategy"`
		WillComplete bool     `json:"will_complete"`
		Completed    bool     `json:"completed"`
		Error        string   `json:"error,omitempty"`
	}

	// RepairReport summarizes a quiz completion backfill.
	RepairReport struct {
		DryRun          bool         `json:"dry_run"`
		Scanned         int          `json:"scanned"`
		QuizFlagsRaised int          `json:"quiz_flags_raised"`
		UnitsCompleted  int          `json:"units_completed"`
		FailureCount    int          `json:"failure_count"`
		Items           []RepairItem `json:"items"`
	}
)

// AnalyzeMissingQuizCompletions lists passed quizzes not reflected on unit progress, without writing anything.
func (svc *Service) AnalyzeMissingQuizCompletions(ctx context.Context) (RepairReport, error) {
	return svc.repairQuizCompletions(ctx, true)
}

// FixMissingQuizCompletions raises the quiz flag of every passed quiz not reflected on unit progress,
// then completes the units whose requirements now hold. A video_and_quiz unit still needs its video.
func (svc *Service) FixMissingQuizCompletions(ctx context.Context) (RepairReport, error) {
	return svc.repairQuizCompletions(ctx, false)
}

func (svc *Service) repairQuizCompletions(ctx context.Context, dryRun bool) (RepairReport, error) {
	gaps, err := svc.repo.ListQuizCompletionGaps(ctx)
	if err != nil {
		return RepairReport{}, errors.Wrap(err, "listing quiz completion gaps")
	}

	report := RepairReport{DryRun: dryRun, Scanned: len(gaps), Items: make([]RepairItem, 0, len(gaps))}
	for _, gap := range gaps {
		item := RepairItem{
			Key:      gap.Key,
			Strategy: Classify(gap.HasVideo, true),
		}
		item.WillComplete = !gap.Status.UnitCompleted && Evaluate(item.Strategy, gap.Status, TriggerQuizComplete)
		if !dryRun {
			svc.repairQuizCompletion(ctx, gap, &item, &report)
		}
		report.Items = append(report.Items, item)
	}

	if !dryRun {
		svc.log.Info("quiz completions repaired", report.Scanned, report.QuizFlagsRaised, report.UnitsCompleted, report.FailureCount)
	}
	return report, nil
}

func (svc *Service) repairQuizCompletion(ctx context.Context, gap QuizCompletionGap, item *RepairItem, report *RepairReport) {
	passedAt := gap.PassedAt.UTC()
	patch := UnitProgress{
		Key:             gap.Key,
		QuizCompleted:   true,
		QuizCompletedAt: &passedAt,
		UpdatedAt:       svc.now().UTC(),
	}
	if err := svc.repo.UpsertUnitProgress(ctx, patch); err != nil {
		item.Error = err.Error()
		report.FailureCount++
		return
	}
	report.QuizFlagsRaised++

	if !item.WillComplete {
		return
	}
	res := svc.writer.MarkComplete(ctx, gap.Key, MethodQuizBackfill)
	if !res.Success {
		item.Error = res.Err.Error()
		report.FailureCount++
		svc.queue.Enqueue(res)
		return
	}
	item.Completed = true
	report.UnitsCompleted++
}
