// ABOUTME: Card payload builders for helpline outbound activities
// ABOUTME: Renders answer markdown to HTML via goldmark, best-effort

package cards

import (
	"bytes"
	"time"

	"github.com/yuin/goldmark"

	"github.com/helpline/helpline/internal/answer"
	"github.com/helpline/helpline/internal/store"
	"github.com/helpline/helpline/internal/turn"
)

// Card kinds rendered by the frontend connector.
const (
	KindWelcome            = "welcome"
	KindAskExpert          = "ask_expert"
	KindExpertNotification = "expert_notification"
	KindAcknowledgment     = "ticket_acknowledgment"
	KindUnrecognizedInput  = "unrecognized_input"
	KindAnswer             = "answer"
)

// Card is the data payload behind one outbound interactive card. Visual
// layout belongs to the rendering frontend; this struct only carries the
// parameters each card kind needs.
type Card struct {
	Kind     string `json:"kind"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text,omitempty"`
	HTML     string `json:"html,omitempty"`
	Question string `json:"question,omitempty"`

	// SubmitText is the command the card's submit action posts back.
	SubmitText string `json:"submit_text,omitempty"`

	// Ticket identity, present on notification and acknowledgment cards.
	TicketID  string `json:"ticket_id,omitempty"`
	Requester string `json:"requester,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`

	// Prompts are follow-up suggestions attached to an answer card.
	Prompts []turn.PreviousQuestion `json:"prompts,omitempty"`

	// PreviousQuestions is echoed back by the frontend when the user
	// selects a prompt, giving the next turn its follow-up context.
	PreviousQuestions []turn.PreviousQuestion `json:"previous_questions,omitempty"`

	// Enrichment fields from an answer's embedded document.
	Subtitle       string `json:"subtitle,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	RedirectionURL string `json:"redirection_url,omitempty"`
}

// DefaultWelcomeText greets a user on first contact.
const DefaultWelcomeText = "Hi! Ask me anything and I'll look it up for you. " +
	"If I can't help, type \"ask an expert\" to reach a human."

// Welcome builds the card shown when a member joins the personal chat.
func Welcome(text string) *Card {
	if text == "" {
		text = DefaultWelcomeText
	}
	return &Card{
		Kind:  KindWelcome,
		Title: "Welcome",
		Text:  text,
	}
}

// AskExpert builds the escalation-request form card, optionally prefilled
// with question text carried from a previous answer turn.
func AskExpert(prefill string) *Card {
	return &Card{
		Kind:       KindAskExpert,
		Title:      "Ask an expert",
		Text:       "Describe your question and an expert will get back to you.",
		Question:   prefill,
		SubmitText: turn.CommandSubmitExpert,
	}
}

// ExpertNotification builds the card delivered into the expert team's
// conversation for a new ticket.
func ExpertNotification(t *store.Ticket) *Card {
	return &Card{
		Kind:      KindExpertNotification,
		Title:     "New request from " + t.RequesterName,
		Text:      t.Question,
		TicketID:  t.ID,
		Requester: t.RequesterName,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Acknowledgment builds the card sent back to the requester confirming the
// submission. It is rendered from the same ticket as the notification so
// both sides see identical ticket identity.
func Acknowledgment(t *store.Ticket) *Card {
	return &Card{
		Kind:      KindAcknowledgment,
		Title:     "Your request is on its way",
		Text:      t.Question,
		TicketID:  t.ID,
		Requester: t.RequesterName,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// UnrecognizedInput builds the no-match affordance offering the expert path.
func UnrecognizedInput(question string) *Card {
	return &Card{
		Kind:       KindUnrecognizedInput,
		Title:      "I couldn't find an answer",
		Text:       "You can ask an expert instead.",
		Question:   question,
		SubmitText: turn.CommandAskExpert,
	}
}

// Response builds the answer card for a knowledge-base match. The answer
// body is rendered from markdown to HTML; enrichment, when present,
// decorates the card without gating it.
func Response(question string, a *answer.Answer, enrichment *answer.Enrichment) *Card {
	c := &Card{
		Kind:     KindAnswer,
		Text:     a.Answer,
		HTML:     renderMarkdown(a.Answer),
		Question: question,
	}
	for _, p := range a.Prompts {
		c.Prompts = append(c.Prompts, turn.PreviousQuestion{ID: p.QuestionID, Text: p.DisplayText})
	}
	if len(a.Questions) > 0 {
		c.PreviousQuestions = []turn.PreviousQuestion{{ID: a.ID, Text: a.Questions[0]}}
	}
	if enrichment != nil {
		c.Title = enrichment.Title
		c.Subtitle = enrichment.Subtitle
		c.ImageURL = enrichment.ImageURL
		c.RedirectionURL = enrichment.RedirectionURL
	}
	return c
}

// renderMarkdown converts markdown to HTML, falling back to the raw text
// when conversion fails.
func renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return text
	}
	return buf.String()
}
