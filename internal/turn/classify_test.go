// ABOUTME: Tests for payload classification over the PayloadShape union
// ABOUTME: Covers command priority, follow-up extraction, and malformed values

package turn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_FreeTextExpertCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Shape
	}{
		{"exact command", "ask an expert", ShapeEscalationRequest},
		{"mixed case with whitespace", "  Ask An Expert \n", ShapeEscalationRequest},
		{"ordinary question", "what is the capital of France?", ShapeUnknown},
		{"empty text", "", ShapeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Classify(&Turn{Text: tt.text})
			assert.Equal(t, tt.want, p.Shape)
		})
	}
}

func TestClassify_RequestCommandWinsOverOtherFields(t *testing.T) {
	// The request command classifies as EscalationRequest no matter what
	// else the value carries.
	p := Classify(&Turn{
		Text: "ask an expert",
		Value: &CardValue{
			Text:     "Ask an Expert",
			Question: "why is the sky blue?",
			IsPrompt: true,
			PreviousQuestions: []PreviousQuestion{
				{ID: 7, Text: "sky color"},
			},
		},
	})

	assert.Equal(t, ShapeEscalationRequest, p.Shape)
	assert.Equal(t, "why is the sky blue?", p.Prefill)
	assert.Nil(t, p.FollowUp)
}

func TestClassify_Submission(t *testing.T) {
	p := Classify(&Turn{
		Value: &CardValue{
			Text:     "submit expert question",
			Question: "Why is the sky blue?",
		},
	})

	assert.Equal(t, ShapeEscalationSubmission, p.Shape)
	assert.Equal(t, "Why is the sky blue?", p.Question)
}

func TestClassify_AnswerFollowUp(t *testing.T) {
	p := Classify(&Turn{
		Text: "tell me more",
		Value: &CardValue{
			Text:     "something else entirely",
			IsPrompt: true,
			PreviousQuestions: []PreviousQuestion{
				{ID: 42, Text: "How do I reset my password?"},
				{ID: 43, Text: "How do I change my email?"},
			},
		},
	})

	assert.Equal(t, ShapeAnswerFollowUp, p.Shape)
	assert.True(t, p.IsPrompt)
	require.NotNil(t, p.FollowUp)
	assert.Equal(t, 42, p.FollowUp.QuestionID)
	assert.Equal(t, "How do I reset my password?", p.FollowUp.QuestionText)
}

func TestClassify_FollowUpWithoutPreviousQuestions(t *testing.T) {
	p := Classify(&Turn{
		Value: &CardValue{Text: "anything"},
	})

	assert.Equal(t, ShapeAnswerFollowUp, p.Shape)
	assert.False(t, p.IsPrompt)
	assert.Nil(t, p.FollowUp)
}

func TestParseCardValue(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw := json.RawMessage(`{"text":"submit expert question","question":"help me"}`)
		v, err := ParseCardValue(raw)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "submit expert question", v.Text)
		assert.Equal(t, "help me", v.Question)
	})

	t.Run("empty payload is nil", func(t *testing.T) {
		v, err := ParseCardValue(nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("malformed payload is a classification error", func(t *testing.T) {
		_, err := ParseCardValue(json.RawMessage(`"just a string"`))
		require.Error(t, err)

		var cerr *ClassificationError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("wrong field types are a classification error", func(t *testing.T) {
		_, err := ParseCardValue(json.RawMessage(`{"text":123}`))
		require.Error(t, err)

		var cerr *ClassificationError
		require.ErrorAs(t, err, &cerr)
	})
}
