package completion

// Classify returns the completion strategy of a unit given the shape of its content.
func Classify(hasVideo, hasQuiz bool) Strategy {
	switch {
	case hasVideo && hasQuiz:
		return StrategyVideoAndQuiz
	case hasVideo:
		return StrategyVideoOnly
	case hasQuiz:
		return StrategyQuizOnly
	default:
		return StrategyManualOnly
	}
}
