// ABOUTME: Tests for the answer orchestrator's found/not-found decision
// ABOUTME: Covers the sentinel id, follow-up context, errors, and enrichment

package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline/helpline/internal/turn"
)

// mockService records queries and returns a canned result or error.
type mockService struct {
	lastQuery Query
	result    *QueryResult
	err       error
}

func (m *mockService) GenerateAnswer(ctx context.Context, q Query) (*QueryResult, error) {
	m.lastQuery = q
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func TestAnswer_Found(t *testing.T) {
	svc := &mockService{
		result: &QueryResult{Answers: []Answer{
			{ID: 12, Answer: "Rayleigh scattering.", Questions: []string{"why is the sky blue"}},
			{ID: 30, Answer: "second candidate"},
		}},
	}
	o := NewOrchestrator(svc, nil)

	outcome, err := o.Answer(context.Background(), "why is the sky blue", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Found)
	require.NotNil(t, outcome.Answer)
	assert.Equal(t, 12, outcome.Answer.ID)
	assert.Equal(t, "Rayleigh scattering.", outcome.Answer.Answer)
	assert.Nil(t, outcome.Enrichment)
}

func TestAnswer_SentinelMeansNotFound(t *testing.T) {
	svc := &mockService{
		result: &QueryResult{Answers: []Answer{{ID: NoMatchID, Answer: "No good match found."}}},
	}
	o := NewOrchestrator(svc, nil)

	outcome, err := o.Answer(context.Background(), "gibberish", nil)
	require.NoError(t, err)
	assert.False(t, outcome.Found)
	assert.Nil(t, outcome.Answer)
}

func TestAnswer_EmptyResultMeansNotFound(t *testing.T) {
	svc := &mockService{result: &QueryResult{}}
	o := NewOrchestrator(svc, nil)

	outcome, err := o.Answer(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.False(t, outcome.Found)
}

func TestAnswer_FollowUpContextForwarded(t *testing.T) {
	svc := &mockService{
		result: &QueryResult{Answers: []Answer{{ID: 5, Answer: "details"}}},
	}
	o := NewOrchestrator(svc, nil)

	_, err := o.Answer(context.Background(), "tell me more", &turn.FollowUpContext{
		QuestionID:   42,
		QuestionText: "How do I reset my password?",
	})
	require.NoError(t, err)

	assert.Equal(t, "42", svc.lastQuery.PrevQuestionID)
	assert.Equal(t, "How do I reset my password?", svc.lastQuery.PrevQuestionText)
	assert.False(t, svc.lastQuery.ExactOnly)
}

func TestAnswer_ServiceErrorIsNotNoMatch(t *testing.T) {
	svc := &mockService{err: errors.New("connection refused")}
	o := NewOrchestrator(svc, nil)

	_, err := o.Answer(context.Background(), "question", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate answer")
}

func TestParseEnrichment(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *Enrichment
	}{
		{
			name: "plain text answer",
			body: "Just a plain answer.",
			want: nil,
		},
		{
			name: "embedded document",
			body: `{"title":"VPN Setup","subtitle":"Step by step","redirection_url":"https://intranet/vpn"}`,
			want: &Enrichment{Title: "VPN Setup", Subtitle: "Step by step", RedirectionURL: "https://intranet/vpn"},
		},
		{
			name: "malformed json is tolerated",
			body: `{"title": "broken`,
			want: nil,
		},
		{
			name: "json without enrichment fields",
			body: `{"unrelated":"value"}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseEnrichment(tt.body))
		})
	}
}
