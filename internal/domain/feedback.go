package domain

// FeedbackRequest carries everything the feedback model needs to critique an
// answer.
type FeedbackRequest struct {
	Question string
	Answer   string
	Position string
	Skills   []string
}

// Validate fast-fails on the inputs the feedback model cannot work without.
func (r FeedbackRequest) Validate() error {
	if r.Question == "" || r.Answer == "" || r.Position == "" {
		return ErrInvalidArgument
	}
	if r.Skills == nil {
		return ErrInvalidArgument
	}
	return nil
}

// ConstructiveFeedback groups the critique lists of a feedback envelope.
type ConstructiveFeedback struct {
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
	ActionableTips      []string `json:"actionable_tips"`
}

// ToneAnalysis scores delivery qualities on a 0-100 scale.
type ToneAnalysis struct {
	OverallTone     string  `json:"overall_tone"`
	Professionalism float64 `json:"professionalism"`
	Confidence      float64 `json:"confidence"`
	Clarity         float64 `json:"clarity"`
}

// Grade is the model's numeric verdict with its explanation.
type Grade struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// FeedbackEnvelope is the structured critique returned by the feedback model.
type FeedbackEnvelope struct {
	SuggestedAnswer      string               `json:"suggested_answer"`
	ConstructiveFeedback ConstructiveFeedback `json:"constructive_feedback"`
	KeyPoints            []string             `json:"key_points"`
	ToneAnalysis         ToneAnalysis         `json:"tone_analysis"`
	Grade                Grade                `json:"grade"`
}

// FeedbackClient is the port to the remote LLM critique service.
type FeedbackClient interface {
	// Generate waits for the complete structured envelope.
	Generate(ctx Context, req FeedbackRequest) (FeedbackEnvelope, error)
	// GenerateStream emits a best-effort merged envelope after each fragment
	// that yields parsable JSON; the channels close when the stream ends.
	GenerateStream(ctx Context, req FeedbackRequest) (<-chan FeedbackEnvelope, <-chan error)
}

// GeneratedQuestion is one question produced by the question-generation model.
type GeneratedQuestion struct {
	Question        string   `json:"question"`
	SuggestedAnswer string   `json:"suggested_answer"`
	Skills          []string `json:"skills"`
}

// QuestionGenerator is the port to the remote question-generation model.
type QuestionGenerator interface {
	GenerateQuestions(ctx Context, jobTitle, jobDescription string, skills []string, n int) ([]GeneratedQuestion, error)
}
