// ABOUTME: Orchestrator drives the answer decision against the knowledge base
// ABOUTME: Carries follow-up context forward and parses embedded enrichment

package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/helpline/helpline/internal/turn"
)

// Enrichment is structured sub-content optionally embedded inside an
// answer's body as a JSON document, used for richer card rendering.
type Enrichment struct {
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	ImageURL       string `json:"image_url"`
	RedirectionURL string `json:"redirection_url"`
}

// Outcome is the result of an answer attempt.
type Outcome struct {
	Found  bool
	Answer *Answer

	// Enrichment is best-effort: nil whenever the answer body carries no
	// parseable embedded document. Never gates rendering.
	Enrichment *Enrichment
}

// Orchestrator decides between answering and signaling no match.
type Orchestrator struct {
	service Service
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given answering service.
func NewOrchestrator(service Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		service: service,
		logger:  logger.With("component", "answer"),
	}
}

// Answer queries the knowledge base for the given text. A follow-up context,
// when present, carries the previously shown question so the knowledge base
// can disambiguate using conversational history.
//
// A service failure is returned as an error and surfaces as a failed turn;
// it is never treated as "no match".
func (o *Orchestrator) Answer(ctx context.Context, text string, followUp *turn.FollowUpContext) (Outcome, error) {
	q := Query{Question: text}
	if followUp != nil {
		q.PrevQuestionID = strconv.Itoa(followUp.QuestionID)
		q.PrevQuestionText = followUp.QuestionText
	}

	result, err := o.service.GenerateAnswer(ctx, q)
	if err != nil {
		return Outcome{}, fmt.Errorf("generate answer: %w", err)
	}

	if len(result.Answers) == 0 || result.Answers[0].ID == NoMatchID {
		o.logger.Debug("no knowledge base match", "question", text)
		return Outcome{Found: false}, nil
	}

	best := result.Answers[0]
	o.logger.Debug("knowledge base match",
		"question", text,
		"answer_id", best.ID,
	)

	return Outcome{
		Found:      true,
		Answer:     &best,
		Enrichment: parseEnrichment(best.Answer),
	}, nil
}

// parseEnrichment opportunistically decodes an answer body as an embedded
// enrichment document. Returns nil for plain-text answers; parse failures
// are tolerated silently since the raw answer is still shown.
func parseEnrichment(body string) *Enrichment {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var e Enrichment
	if err := json.Unmarshal([]byte(trimmed), &e); err != nil {
		return nil
	}
	if e.Title == "" && e.Subtitle == "" && e.ImageURL == "" && e.RedirectionURL == "" {
		return nil
	}
	return &e
}
