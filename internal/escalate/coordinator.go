// ABOUTME: EscalationCoordinator builds tickets and delivers expert notifications
// ABOUTME: Bridges the transport's one-shot creation callback into an awaited result

package escalate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpline/helpline/internal/cards"
	"github.com/helpline/helpline/internal/store"
	"github.com/helpline/helpline/internal/turn"
)

var (
	// ErrConfiguration means the expert team is not configured; the
	// escalation is aborted but the requester is still acknowledged.
	ErrConfiguration = errors.New("expert team not configured")

	// ErrDelivery means creating the expert conversation failed or timed
	// out. The ticket is not persisted.
	ErrDelivery = errors.New("expert conversation delivery failed")
)

// ConversationHandle is the result of successfully creating an expert
// conversation: the new conversation id and the id of the notification
// message posted into it. Transient; exists only to populate the ticket's
// correlation fields.
type ConversationHandle struct {
	ConversationID string
	MessageID      string
	ServiceURL     string
}

// ConversationCreator is the transport primitive that provisions a
// brand-new conversation in the target audience, carrying the notification
// card as its first message. Completion is reported through onCreated,
// which the transport invokes exactly once, out of band.
type ConversationCreator interface {
	CreateConversation(ctx context.Context, teamID string, card *cards.Card, onCreated func(ConversationHandle, error)) error
}

// Coordinator owns ticket construction and the delivery handshake.
type Coordinator struct {
	config  store.ConfigurationLookup
	creator ConversationCreator
	logger  *slog.Logger

	// timeout guards against the creation callback never firing.
	timeout time.Duration
}

// New creates an escalation coordinator. timeout bounds how long a delivery
// waits for the transport's creation callback; zero means 30 seconds.
func New(config store.ConfigurationLookup, creator ConversationCreator, logger *slog.Logger, timeout time.Duration) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		config:  config,
		creator: creator,
		logger:  logger.With("component", "escalate"),
		timeout: timeout,
	}
}

// BuildTicket constructs an unpersisted ticket from an escalation
// submission. Empty submitted text is a silent no-op: no ticket, no error.
// The returned ticket has both correlation fields unset.
func (c *Coordinator) BuildTicket(t *turn.Turn, question string) *store.Ticket {
	question = strings.TrimSpace(question)
	if question == "" {
		c.logger.Debug("empty expert submission ignored",
			"conversation_id", t.ConversationID,
			"sender", t.SenderID,
		)
		return nil
	}

	return &store.Ticket{
		ID:             uuid.New().String(),
		RequesterID:    t.SenderID,
		RequesterName:  t.SenderName,
		ConversationID: t.ConversationID,
		Question:       question,
		CreatedAt:      t.Timestamp,
	}
}

// Deliver resolves the expert team, creates a new conversation there with
// the notification card as its first message, and waits for the creation to
// resolve into concrete identifiers. One attempt, no retries; retry policy
// belongs to the transport.
func (c *Coordinator) Deliver(ctx context.Context, card *cards.Card) (*ConversationHandle, error) {
	teamID, err := c.config.GetConfigEntity(ctx, store.ConfigExpertTeamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConfiguration
		}
		return nil, fmt.Errorf("resolving expert team: %w", err)
	}
	if teamID == "" {
		return nil, ErrConfiguration
	}

	type result struct {
		handle ConversationHandle
		err    error
	}
	done := make(chan result, 1)
	var once sync.Once

	err = c.creator.CreateConversation(ctx, teamID, card, func(h ConversationHandle, err error) {
		once.Do(func() {
			done <- result{handle: h, err: err}
		})
	})
	if err != nil {
		c.logger.Error("initiating expert conversation failed", "error", err, "team_id", teamID)
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			c.logger.Error("expert conversation creation failed", "error", r.err, "team_id", teamID)
			return nil, fmt.Errorf("%w: %v", ErrDelivery, r.err)
		}
		c.logger.Info("expert notification delivered",
			"team_id", teamID,
			"conversation_id", r.handle.ConversationID,
			"message_id", r.handle.MessageID,
		)
		return &r.handle, nil
	case <-time.After(c.timeout):
		c.logger.Error("expert conversation creation timed out", "team_id", teamID, "timeout", c.timeout)
		return nil, fmt.Errorf("%w: creation callback timed out after %s", ErrDelivery, c.timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrDelivery, ctx.Err())
	}
}
