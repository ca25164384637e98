// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides ticket/config/ledger persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// The tickets table enforces the correlation invariant: the notification
// message id and the expert conversation id are set together or not at all.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tickets (
			id                       TEXT PRIMARY KEY,
			requester_id             TEXT NOT NULL,
			requester_name           TEXT NOT NULL,
			conversation_id          TEXT NOT NULL,
			question                 TEXT NOT NULL,
			created_at               TEXT NOT NULL,
			notification_message_id  TEXT NOT NULL DEFAULT '',
			expert_conversation_id   TEXT NOT NULL DEFAULT '',

			CHECK ((notification_message_id = '') = (expert_conversation_id = ''))
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_requester ON tickets(requester_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at DESC);

		CREATE TABLE IF NOT EXISTS config_entities (
			entity     TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turn_events (
			id              TEXT PRIMARY KEY,
			turn_id         TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL,
			direction       TEXT NOT NULL,
			author          TEXT NOT NULL,
			type            TEXT NOT NULL,
			text            TEXT,
			timestamp       TEXT NOT NULL,

			CHECK (direction IN ('inbound', 'outbound')),
			CHECK (type IN ('message', 'card'))
		);

		CREATE INDEX IF NOT EXISTS idx_turn_events_conversation
			ON turn_events(conversation_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UpsertTicket inserts or replaces a ticket, idempotent by ticket ID.
func (s *SQLiteStore) UpsertTicket(ctx context.Context, ticket *Ticket) error {
	if ticket.ID == "" {
		return fmt.Errorf("ticket id is required")
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, requester_id, requester_name, conversation_id,
			question, created_at, notification_message_id, expert_conversation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			notification_message_id = excluded.notification_message_id,
			expert_conversation_id = excluded.expert_conversation_id
	`, ticket.ID, ticket.RequesterID, ticket.RequesterName, ticket.ConversationID,
		ticket.Question, ticket.CreatedAt.UTC().Format(time.RFC3339),
		ticket.NotificationMessageID, ticket.ExpertConversationID)
	if err != nil {
		return fmt.Errorf("upserting ticket: %w", err)
	}
	return nil
}

// GetTicket retrieves a ticket by ID. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	var t Ticket
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, requester_id, requester_name, conversation_id, question,
			created_at, notification_message_id, expert_conversation_id
		FROM tickets WHERE id = ?
	`, id).Scan(&t.ID, &t.RequesterID, &t.RequesterName, &t.ConversationID,
		&t.Question, &createdAt, &t.NotificationMessageID, &t.ExpertConversationID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ticket: %w", err)
	}

	t.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing ticket created_at: %w", err)
	}
	return &t, nil
}

// ListTickets returns the most recent tickets, newest first.
func (s *SQLiteStore) ListTickets(ctx context.Context, limit int) ([]*Ticket, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requester_id, requester_name, conversation_id, question,
			created_at, notification_message_id, expert_conversation_id
		FROM tickets ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		var t Ticket
		var createdAt string
		if err := rows.Scan(&t.ID, &t.RequesterID, &t.RequesterName, &t.ConversationID,
			&t.Question, &createdAt, &t.NotificationMessageID, &t.ExpertConversationID); err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		t.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing ticket created_at: %w", err)
		}
		tickets = append(tickets, &t)
	}
	return tickets, rows.Err()
}

// GetConfigEntity returns the value bound to the entity type.
func (s *SQLiteStore) GetConfigEntity(ctx context.Context, entity ConfigEntityType) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM config_entities WHERE entity = ?
	`, string(entity)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying config entity: %w", err)
	}
	return value, nil
}

// SetConfigEntity creates or updates a configuration entity binding.
func (s *SQLiteStore) SetConfigEntity(ctx context.Context, entity ConfigEntityType, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_entities (entity, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, string(entity), value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("setting config entity: %w", err)
	}
	return nil
}

// SaveTurnEvent records one processed turn or outbound activity.
func (s *SQLiteStore) SaveTurnEvent(ctx context.Context, event *TurnEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_events (id, turn_id, conversation_id, direction, author, type, text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.TurnID, event.ConversationID, event.Direction, event.Author,
		event.Type, event.Text, event.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving turn event: %w", err)
	}
	return nil
}

// ListTurnEvents returns events for a conversation in chronological order.
func (s *SQLiteStore) ListTurnEvents(ctx context.Context, conversationID string, limit int) ([]*TurnEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, turn_id, conversation_id, direction, author, type, text, timestamp
		FROM turn_events WHERE conversation_id = ?
		ORDER BY timestamp ASC LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing turn events: %w", err)
	}
	defer rows.Close()

	var events []*TurnEvent
	for rows.Next() {
		var e TurnEvent
		var text sql.NullString
		var ts string
		if err := rows.Scan(&e.ID, &e.TurnID, &e.ConversationID, &e.Direction, &e.Author,
			&e.Type, &text, &ts); err != nil {
			return nil, fmt.Errorf("scanning turn event: %w", err)
		}
		e.Text = text.String
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
