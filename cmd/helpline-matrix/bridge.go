// ABOUTME: Matrix connector core for helpline-matrix
// ABOUTME: Forwards user turns to the gateway and auto-joins personal chats

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Command prefixes translated into card submissions. Matrix has no
// interactive card UI, so escalation commands are typed.
const (
	cmdAskExpert    = "!ask"
	cmdSubmitExpert = "!submit"
)

// Bridge connects Matrix to helpline-gateway.
type Bridge struct {
	config  *Config
	matrix  *mautrix.Client
	gateway *GatewayClient
	logger  *slog.Logger

	// roomKinds caches the conversation kind per room ("personal"/"group")
	roomKinds sync.Map

	// expertRooms tracks rooms this connector created for escalations;
	// traffic in them is never forwarded as user turns
	expertRooms sync.Map

	// lastBotEvents maps room id to the bot's latest outbound event id.
	// Translated command submissions reply to that event, since the
	// gateway only honors structured values carried by replies.
	lastBotEvents sync.Map

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a new Matrix connector.
func NewBridge(cfg *Config, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		config:  cfg,
		matrix:  client,
		gateway: NewGatewayClient(cfg.Gateway.URL),
		logger:  logger,
	}, nil
}

// Run starts the connector and blocks until context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix connector",
		"homeserver", b.config.Matrix.Homeserver,
		"user_id", b.config.Matrix.UserID,
		"gateway", b.config.Gateway.URL,
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.StateMember, b.handleMemberEvent)

	b.logger.Info("connecting to matrix homeserver")

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix connector running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix connector")
		b.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent forwards incoming Matrix messages as gateway turns.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(b.config.Matrix.UserID) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	if content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if _, isExpertRoom := b.expertRooms.Load(roomID); isExpertRoom {
		return
	}

	body := strings.TrimSpace(content.Body)
	if body == "" {
		return
	}

	b.logger.Info("received message",
		"room", roomID,
		"sender", evt.Sender.String(),
		"content", truncate(body, 50),
	)

	var replyTo string
	if rel := content.RelatesTo; rel != nil {
		replyTo = rel.GetReplyTo().String()
	}

	// Forward in a goroutine to not block sync
	go b.forwardTurn(b.ctx, evt, body, replyTo)
}

// forwardTurn builds the inbound activity and posts it to the gateway.
func (b *Bridge) forwardTurn(ctx context.Context, evt *event.Event, body, replyTo string) {
	activity := &InboundActivity{
		Type:      "message",
		ID:        evt.ID.String(),
		ReplyToID: replyTo,
		Timestamp: time.UnixMilli(evt.Timestamp).UTC(),
	}
	activity.Sender.ID = evt.Sender.String()
	activity.Sender.Name = senderDisplayName(evt)
	activity.Conversation.ID = evt.RoomID.String()
	activity.Conversation.Kind = b.roomKind(ctx, evt.RoomID)

	text, value := translateCommands(body)
	activity.Text = text
	activity.Value = value

	// Typed commands carry no Matrix reply relation; they answer the
	// bot's most recent message in the room.
	if value != nil && activity.ReplyToID == "" {
		if last, ok := b.lastBotEvents.Load(evt.RoomID.String()); ok {
			activity.ReplyToID = last.(string)
		}
	}

	if err := b.gateway.PostTurn(ctx, activity); err != nil {
		b.logger.Error("forwarding turn failed", "room", evt.RoomID.String(), "error", err)
	}
}

// translateCommands maps typed escalation commands onto card submissions.
// Anything else passes through as plain text.
func translateCommands(body string) (string, json.RawMessage) {
	switch {
	case body == cmdAskExpert:
		return "ask an expert", nil
	case strings.HasPrefix(body, cmdSubmitExpert+" "):
		question := strings.TrimSpace(strings.TrimPrefix(body, cmdSubmitExpert+" "))
		value, _ := json.Marshal(map[string]string{
			"text":     "submit expert question",
			"question": question,
		})
		return "", value
	default:
		return body, nil
	}
}

// handleMemberEvent auto-joins rooms the connector is invited to and reports
// new members to the gateway so they get a welcome card.
func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil {
		return
	}

	target := id.UserID(evt.GetStateKey())
	botID := id.UserID(b.config.Matrix.UserID)

	switch member.Membership {
	case event.MembershipInvite:
		if target != botID {
			return
		}
		go b.acceptInvite(b.ctx, evt.RoomID)
	case event.MembershipJoin:
		if target == botID {
			return
		}
		if _, isExpertRoom := b.expertRooms.Load(evt.RoomID.String()); isExpertRoom {
			return
		}
		go b.reportMemberAdded(b.ctx, evt.RoomID)
	}
}

func (b *Bridge) acceptInvite(ctx context.Context, roomID id.RoomID) {
	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := b.matrix.JoinRoomByID(joinCtx, roomID); err != nil {
		b.logger.Error("joining room failed", "room", roomID.String(), "error", err)
		return
	}
	b.logger.Info("joined room", "room", roomID.String())
	b.roomKinds.Delete(roomID.String())
}

func (b *Bridge) reportMemberAdded(ctx context.Context, roomID id.RoomID) {
	activity := &InboundActivity{
		Type: "member_added",
		ID:   uuid.NewString(),
	}
	activity.Conversation.ID = roomID.String()
	activity.Conversation.Kind = b.roomKind(ctx, roomID)

	if err := b.gateway.PostTurn(ctx, activity); err != nil {
		b.logger.Error("reporting member_added failed", "room", roomID.String(), "error", err)
	}
}

// roomKind classifies a room as personal (a DM with the bot) or group by
// member count. Cached per room.
func (b *Bridge) roomKind(ctx context.Context, roomID id.RoomID) string {
	if kind, ok := b.roomKinds.Load(roomID.String()); ok {
		return kind.(string)
	}

	kind := "group"
	memberCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	members, err := b.matrix.JoinedMembers(memberCtx, roomID)
	if err != nil {
		b.logger.Warn("member lookup failed, assuming group", "room", roomID.String(), "error", err)
		return kind
	}
	if len(members.Joined) <= 2 {
		kind = "personal"
	}

	b.roomKinds.Store(roomID.String(), kind)
	return kind
}

// senderDisplayName extracts a human-readable name from the event sender.
func senderDisplayName(evt *event.Event) string {
	localpart := evt.Sender.String()
	if i := strings.Index(localpart, ":"); i > 0 {
		localpart = localpart[:i]
	}
	return strings.TrimPrefix(localpart, "@")
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
