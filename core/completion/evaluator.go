package completion

import "github.com/pkg/errors"

// Evaluate reports whether a unit should be marked complete once trigger is applied on top of status.
// It panics with ErrInvalidState on an unknown strategy.
func Evaluate(strategy Strategy, status Status, trigger TriggerEvent) bool {
	video := status.VideoCompleted || trigger == TriggerVideoComplete
	quiz := status.QuizCompleted || trigger == TriggerQuizComplete

	switch strategy {
	case StrategyVideoOnly:
		return video
	case StrategyQuizOnly:
		return quiz
	case StrategyVideoAndQuiz:
		return video && quiz
	case StrategyManualOnly:
		return trigger == TriggerManual
	}
	panic(errors.Wrapf(ErrInvalidState, "evaluating unknown strategy %d", uint8(strategy)))
}
