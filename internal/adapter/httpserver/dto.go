package httpserver

import (
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

type questionJSON struct {
	ID              string    `json:"id"`
	Question        string    `json:"question"`
	SuggestedAnswer string    `json:"suggested_answer,omitempty"`
	Answer          *string   `json:"answer,omitempty"`
	AudioURL        *string   `json:"audio_url,omitempty"`
	Feedback        *string   `json:"feedback,omitempty"`
	Improvements    []string  `json:"improvements,omitempty"`
	KeyTakeaways    []string  `json:"key_takeaways,omitempty"`
	Grade           *float64  `json:"grade,omitempty"`
	Skills          []string  `json:"skills,omitempty"`
	Saved           bool      `json:"saved"`
	CreatedAt       time.Time `json:"created_at"`
}

type interviewJSON struct {
	ID             string         `json:"id"`
	JobTitle       string         `json:"job_title"`
	JobDescription string         `json:"job_description,omitempty"`
	Skills         []string       `json:"skills,omitempty"`
	ScheduledAt    time.Time      `json:"scheduled_at"`
	Completed      bool           `json:"completed"`
	CreatedAt      time.Time      `json:"created_at"`
	Questions      []questionJSON `json:"questions"`
}

type recordingJSON struct {
	State      string     `json:"state"`
	MIME       string     `json:"mime,omitempty"`
	ChunkCount int        `json:"chunk_count"`
	SizeBytes  int64      `json:"size_bytes"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	TimedOut   bool       `json:"timed_out"`
}

type feedbackResultJSON struct {
	State       string        `json:"state"`
	SummaryPath string        `json:"summary_path,omitempty"`
	Question    *questionJSON `json:"question,omitempty"`
}

func toQuestionJSON(q domain.Question) questionJSON {
	return questionJSON{
		ID:              q.ID,
		Question:        q.Text,
		SuggestedAnswer: q.SuggestedAnswer,
		Answer:          q.Answer,
		AudioURL:        q.AudioURL,
		Feedback:        q.Feedback,
		Improvements:    q.Improvements,
		KeyTakeaways:    q.KeyTakeaways,
		Grade:           q.Grade,
		Skills:          q.Skills,
		Saved:           q.Saved,
		CreatedAt:       q.CreatedAt,
	}
}

func toInterviewJSON(iv domain.Interview) interviewJSON {
	qs := make([]questionJSON, 0, len(iv.Questions))
	for _, q := range iv.Questions {
		qs = append(qs, toQuestionJSON(q))
	}
	return interviewJSON{
		ID:             iv.ID,
		JobTitle:       iv.JobTitle,
		JobDescription: iv.JobDescription,
		Skills:         iv.Skills,
		ScheduledAt:    iv.ScheduledAt,
		Completed:      iv.Completed,
		CreatedAt:      iv.CreatedAt,
		Questions:      qs,
	}
}

func toRecordingJSON(s domain.RecordingSession) recordingJSON {
	out := recordingJSON{
		State:      string(s.State),
		MIME:       s.MIME,
		ChunkCount: s.ChunkCount,
		SizeBytes:  s.Size,
		TimedOut:   s.TimedOut,
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		out.StartedAt = &t
	}
	if !s.Deadline.IsZero() {
		t := s.Deadline
		out.Deadline = &t
	}
	return out
}

func toFeedbackResultJSON(res usecase.FeedbackResult) feedbackResultJSON {
	out := feedbackResultJSON{State: string(res.State), SummaryPath: res.SummaryPath}
	if res.Question.ID != "" {
		q := toQuestionJSON(res.Question)
		out.Question = &q
	}
	return out
}
