package ai

import (
	"fmt"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// ValidateEnvelope checks a parsed feedback envelope for the fields the rest
// of the pipeline relies on. Scores must sit on the 0-100 scale.
func ValidateEnvelope(env domain.FeedbackEnvelope) error {
	if env.SuggestedAnswer == "" {
		return fmt.Errorf("missing suggested_answer")
	}
	if env.Grade.Explanation == "" {
		return fmt.Errorf("missing grade explanation")
	}
	if err := checkScore("grade.score", env.Grade.Score); err != nil {
		return err
	}
	if err := checkScore("tone_analysis.professionalism", env.ToneAnalysis.Professionalism); err != nil {
		return err
	}
	if err := checkScore("tone_analysis.confidence", env.ToneAnalysis.Confidence); err != nil {
		return err
	}
	if err := checkScore("tone_analysis.clarity", env.ToneAnalysis.Clarity); err != nil {
		return err
	}
	if len(env.ConstructiveFeedback.Strengths) == 0 &&
		len(env.ConstructiveFeedback.AreasForImprovement) == 0 {
		return fmt.Errorf("constructive_feedback is empty")
	}
	return nil
}

func checkScore(field string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%s out of range: %v", field, v)
	}
	return nil
}
