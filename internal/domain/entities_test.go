package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

func TestQuestion_Answered(t *testing.T) {
	t.Parallel()
	ans := "I would add an index"
	url := "https://cdn.example.com/a.webm"
	q := domain.Question{}
	assert.False(t, q.Answered())
	q.Answer = &ans
	assert.False(t, q.Answered(), "answer without audio url is not a completed transcription step")
	q.AudioURL = &url
	assert.True(t, q.Answered())
}

func TestQuestion_Graded_AllOrNothing(t *testing.T) {
	t.Parallel()
	fb := "clear structure"
	grade := 82.0
	q := domain.Question{Feedback: &fb, Grade: &grade}
	assert.False(t, q.Graded(), "missing improvements and takeaways")
	q.Improvements = []string{"quantify impact"}
	q.KeyTakeaways = []string{"index selectivity"}
	assert.True(t, q.Graded())
}

func TestFeedbackRequest_Validate(t *testing.T) {
	t.Parallel()
	ok := domain.FeedbackRequest{Question: "q", Answer: "a", Position: "Backend Engineer", Skills: []string{}}
	require.NoError(t, ok.Validate())

	cases := []domain.FeedbackRequest{
		{Answer: "a", Position: "p", Skills: []string{}},
		{Question: "q", Position: "p", Skills: []string{}},
		{Question: "q", Answer: "a", Skills: []string{}},
		{Question: "q", Answer: "a", Position: "p", Skills: nil},
	}
	for _, c := range cases {
		assert.ErrorIs(t, c.Validate(), domain.ErrInvalidArgument)
	}
}
