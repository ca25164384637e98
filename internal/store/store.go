// ABOUTME: Store interface and data types for helpline persistence
// ABOUTME: Defines Ticket, ConfigEntity and TurnEvent plus the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Ticket is the durable record tracking one escalation to the expert team.
//
// NotificationMessageID and ExpertConversationID are the correlation fields
// linking the ticket to the conversation created for its delivery. They start
// unset and are set exactly once, together, after the expert conversation is
// confirmed created. A ticket is never persisted with only one of the two.
type Ticket struct {
	ID             string
	RequesterID    string
	RequesterName  string
	ConversationID string // the requester's personal conversation
	Question       string
	CreatedAt      time.Time

	NotificationMessageID string
	ExpertConversationID  string
}

// Delivered reports whether the ticket has been correlated to a delivered
// expert notification.
func (t *Ticket) Delivered() bool {
	return t.NotificationMessageID != "" && t.ExpertConversationID != ""
}

// ConfigEntityType names a configuration entity in the config store.
type ConfigEntityType string

const (
	// ConfigExpertTeamID is the audience that receives escalations.
	ConfigExpertTeamID ConfigEntityType = "expert_team_id"

	// ConfigKnowledgeBaseID selects the knowledge base queried for answers.
	ConfigKnowledgeBaseID ConfigEntityType = "knowledge_base_id"

	// ConfigWelcomeText overrides the default welcome card text.
	ConfigWelcomeText ConfigEntityType = "welcome_text"
)

// TurnEvent directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// TurnEvent types.
const (
	EventTypeMessage = "message"
	EventTypeCard    = "card"
)

// TurnEvent is one audit record of an inbound turn or outbound activity.
// ID is a store-assigned identifier; TurnID carries the platform message id,
// which platforms only keep unique within a conversation.
type TurnEvent struct {
	ID             string
	TurnID         string
	ConversationID string
	Direction      string
	Author         string
	Type           string
	Text           string
	Timestamp      time.Time
}

// TicketStore persists escalation tickets.
type TicketStore interface {
	// UpsertTicket inserts or replaces a ticket, idempotent by ticket ID.
	UpsertTicket(ctx context.Context, ticket *Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	ListTickets(ctx context.Context, limit int) ([]*Ticket, error)
}

// ConfigurationLookup resolves named configuration entities.
type ConfigurationLookup interface {
	// GetConfigEntity returns the value bound to the entity type.
	// Returns ErrNotFound when the entity has never been set.
	GetConfigEntity(ctx context.Context, entity ConfigEntityType) (string, error)
	SetConfigEntity(ctx context.Context, entity ConfigEntityType, value string) error
}

// TurnLedger records processed turns and outbound activity for audit.
type TurnLedger interface {
	SaveTurnEvent(ctx context.Context, event *TurnEvent) error
	ListTurnEvents(ctx context.Context, conversationID string, limit int) ([]*TurnEvent, error)
}

// Store is the full persistence interface backed by SQLite.
type Store interface {
	TicketStore
	ConfigurationLookup
	TurnLedger

	// Close releases any resources held by the store.
	Close() error
}
