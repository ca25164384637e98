// ABOUTME: ConversationRouter dispatches inbound turns to answers or escalation
// ABOUTME: Typing first, personal-only, ack regardless of delivery outcome

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helpline/helpline/internal/answer"
	"github.com/helpline/helpline/internal/cards"
	"github.com/helpline/helpline/internal/escalate"
	"github.com/helpline/helpline/internal/store"
	"github.com/helpline/helpline/internal/turn"
)

// Responder sends outbound activities into a conversation. Implemented by
// the frontend connector client.
type Responder interface {
	// SendTyping shows a typing indicator in the conversation.
	SendTyping(ctx context.Context, conversationID string) error

	// SendCard delivers a card and returns the created message's ID.
	SendCard(ctx context.Context, conversationID string, card *cards.Card) (string, error)

	// SendText delivers a plain text message.
	SendText(ctx context.Context, conversationID string, text string) error
}

// Answerer resolves a question against the knowledge base.
type Answerer interface {
	Answer(ctx context.Context, text string, followUp *turn.FollowUpContext) (answer.Outcome, error)
}

// Escalator builds tickets and delivers expert notifications.
type Escalator interface {
	BuildTicket(t *turn.Turn, question string) *store.Ticket
	Deliver(ctx context.Context, card *cards.Card) (*escalate.ConversationHandle, error)
}

// ConversationRouter is the bot core: it receives normalized turns from the
// frontend and decides what goes back out.
type ConversationRouter struct {
	tickets   store.TicketStore
	config    store.ConfigurationLookup
	ledger    store.TurnLedger
	answers   Answerer
	escalator Escalator
	responder Responder
	logger    *slog.Logger
}

// NewRouter wires a conversation router from its collaborators.
func NewRouter(
	tickets store.TicketStore,
	config store.ConfigurationLookup,
	ledger store.TurnLedger,
	answers Answerer,
	escalator Escalator,
	responder Responder,
	logger *slog.Logger,
) *ConversationRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationRouter{
		tickets:   tickets,
		config:    config,
		ledger:    ledger,
		answers:   answers,
		escalator: escalator,
		responder: responder,
		logger:    logger.With("component", "bot"),
	}
}

// HandleTurn processes one inbound turn end to end. The typing indicator is
// sent before any routing so the user sees immediate feedback; its failure
// never fails the turn. Turns outside personal conversations are dropped.
func (r *ConversationRouter) HandleTurn(ctx context.Context, t *turn.Turn) error {
	r.recordInbound(ctx, t)

	if err := r.responder.SendTyping(ctx, t.ConversationID); err != nil {
		r.logger.Debug("typing indicator failed", "error", err, "conversation_id", t.ConversationID)
	}

	if t.Kind != turn.KindPersonal {
		r.logger.Debug("dropping non-personal turn",
			"conversation_id", t.ConversationID,
			"kind", t.Kind,
		)
		return nil
	}

	// A structured value counts only when the turn replies to an earlier
	// card message; a stray value routes as free text.
	if t.Value != nil && t.ReplyToID == "" {
		r.logger.Debug("card value without reply target, handling as free text",
			"conversation_id", t.ConversationID,
			"turn_id", t.ID,
		)
		clone := *t
		clone.Value = nil
		t = &clone
	}

	payload := turn.Classify(t)
	r.logger.Info("routing turn",
		"conversation_id", t.ConversationID,
		"sender", t.SenderID,
		"shape", payload.Shape.String(),
	)

	switch payload.Shape {
	case turn.ShapeEscalationRequest:
		return r.sendCard(ctx, t.ConversationID, cards.AskExpert(payload.Prefill))

	case turn.ShapeEscalationSubmission:
		return r.escalate(ctx, t, payload.Question)

	case turn.ShapeAnswerFollowUp:
		if !payload.IsPrompt {
			r.logger.Info("ignoring card submission without prompt selection",
				"conversation_id", t.ConversationID,
				"turn_id", t.ID,
			)
			return nil
		}
		text := t.Text
		if t.Value != nil && t.Value.Question != "" {
			text = t.Value.Question
		}
		return r.answerQuestion(ctx, t, text, payload.FollowUp)

	default:
		if t.Text == "" {
			return nil
		}
		return r.answerQuestion(ctx, t, t.Text, nil)
	}
}

// escalate runs the submission flow: build the ticket, deliver the expert
// notification, persist the correlated ticket, acknowledge the requester.
// The acknowledgment goes out whether or not delivery succeeded; the ticket
// is persisted only after delivery confirms the expert conversation, so a
// stored ticket always carries both correlation fields.
func (r *ConversationRouter) escalate(ctx context.Context, t *turn.Turn, question string) error {
	ticket := r.escalator.BuildTicket(t, question)
	if ticket == nil {
		return nil
	}

	handle, err := r.escalator.Deliver(ctx, cards.ExpertNotification(ticket))
	if err != nil {
		r.logger.Error("expert delivery failed, ticket not persisted",
			"error", err,
			"ticket_id", ticket.ID,
		)
	} else {
		ticket.NotificationMessageID = handle.MessageID
		ticket.ExpertConversationID = handle.ConversationID
		if err := r.tickets.UpsertTicket(ctx, ticket); err != nil {
			// The expert side already has the notification; the
			// requester still gets their acknowledgment.
			r.logger.Error("persisting delivered ticket failed",
				"error", err,
				"ticket_id", ticket.ID,
			)
		}
	}

	return r.sendCard(ctx, t.ConversationID, cards.Acknowledgment(ticket))
}

// answerQuestion queries the knowledge base and replies with either the
// answer card or the unrecognized-input card. The query text is lowercased
// and trimmed before it reaches the knowledge base; cards keep the text as
// typed. A service failure is a failed turn: the user gets a best-effort
// apology and the error propagates.
func (r *ConversationRouter) answerQuestion(ctx context.Context, t *turn.Turn, text string, followUp *turn.FollowUpContext) error {
	outcome, err := r.answers.Answer(ctx, turn.Normalize(text), followUp)
	if err != nil {
		r.logger.Error("answering failed", "error", err, "conversation_id", t.ConversationID)
		if sendErr := r.responder.SendText(ctx, t.ConversationID, "Sorry, something went wrong. Please try again."); sendErr != nil {
			r.logger.Debug("failure notice not delivered", "error", sendErr)
		}
		return fmt.Errorf("answer turn: %w", err)
	}

	if !outcome.Found {
		return r.sendCard(ctx, t.ConversationID, cards.UnrecognizedInput(text))
	}
	return r.sendCard(ctx, t.ConversationID, cards.Response(text, outcome.Answer, outcome.Enrichment))
}

// HandleMemberAdded greets a newly added member with the welcome card. The
// welcome text comes from configuration when set.
func (r *ConversationRouter) HandleMemberAdded(ctx context.Context, conversationID string) error {
	text, err := r.config.GetConfigEntity(ctx, store.ConfigWelcomeText)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("welcome text lookup failed", "error", err)
	}
	return r.sendCard(ctx, conversationID, cards.Welcome(text))
}

func (r *ConversationRouter) sendCard(ctx context.Context, conversationID string, card *cards.Card) error {
	if _, err := r.responder.SendCard(ctx, conversationID, card); err != nil {
		return fmt.Errorf("send %s card: %w", card.Kind, err)
	}
	r.recordOutbound(ctx, conversationID, card)
	return nil
}

// recordInbound writes the audit record for a received turn. Ledger failures
// are logged and never block routing.
func (r *ConversationRouter) recordInbound(ctx context.Context, t *turn.Turn) {
	eventType := store.EventTypeMessage
	text := t.Text
	if t.Value != nil {
		eventType = store.EventTypeCard
		if text == "" {
			text = t.Value.Text
		}
	}
	event := &store.TurnEvent{
		TurnID:         t.ID,
		ConversationID: t.ConversationID,
		Direction:      store.DirectionInbound,
		Author:         t.SenderID,
		Type:           eventType,
		Text:           text,
		Timestamp:      t.Timestamp,
	}
	if err := r.ledger.SaveTurnEvent(ctx, event); err != nil {
		r.logger.Warn("inbound turn not recorded", "error", err, "turn_id", t.ID)
	}
}

func (r *ConversationRouter) recordOutbound(ctx context.Context, conversationID string, card *cards.Card) {
	text := card.Title
	if text == "" {
		text = card.Text
	}
	event := &store.TurnEvent{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Direction:      store.DirectionOutbound,
		Author:         "helpline",
		Type:           store.EventTypeCard,
		Text:           text,
		Timestamp:      time.Now().UTC(),
	}
	if err := r.ledger.SaveTurnEvent(ctx, event); err != nil {
		r.logger.Warn("outbound activity not recorded", "error", err, "kind", card.Kind)
	}
}
