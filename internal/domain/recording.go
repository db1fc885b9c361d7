package domain

import "time"

// RecordingState enumerates capture states for one question.
type RecordingState string

// Recording states.
const (
	RecordingIdle    RecordingState = "idle"
	RecordingActive  RecordingState = "recording"
	RecordingStopped RecordingState = "stopped"
)

// RecordingSession is the transient capture state for one question. It is
// created when the user opens a question and destroyed when advancing to the
// next one. Chunks are kept in arrival order; no reordering or deduplication.
type RecordingSession struct {
	InterviewID string
	QuestionID  string
	State       RecordingState
	MIME        string
	ChunkCount  int
	Size        int64
	StartedAt   time.Time
	Deadline    time.Time
	TimedOut    bool
}

// Key identifies the session in the store.
func (s RecordingSession) Key() string { return s.InterviewID + ":" + s.QuestionID }

// RecordingStore holds transient recording sessions and their chunk buffers.
type RecordingStore interface {
	Get(ctx Context, interviewID, questionID string) (RecordingSession, error)
	Put(ctx Context, s RecordingSession) error
	AppendChunk(ctx Context, interviewID, questionID string, chunk []byte) error
	// Blob concatenates the buffered chunks in arrival order.
	Blob(ctx Context, interviewID, questionID string) ([]byte, error)
	Delete(ctx Context, interviewID, questionID string) error
}
