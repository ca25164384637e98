// ABOUTME: Connector HTTP server exposing outbound activity endpoints
// ABOUTME: Renders cards into Matrix messages and creates expert rooms

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/helpline/helpline/internal/cards"
)

// activityRequest is the JSON body for POST /v1/conversations/{id}/activities.
type activityRequest struct {
	Type string      `json:"type"`
	Text string      `json:"text,omitempty"`
	Card *cards.Card `json:"card,omitempty"`
}

// activityResponse is the JSON response for posted activities.
type activityResponse struct {
	MessageID string `json:"message_id"`
}

// createConversationRequest is the JSON body for POST /v1/conversations.
type createConversationRequest struct {
	TeamID string      `json:"team_id"`
	Card   *cards.Card `json:"card"`
}

// createConversationResponse is the JSON response for conversation creation.
type createConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	ServiceURL     string `json:"service_url,omitempty"`
}

// ConnectorServer serves the HTTP API the gateway uses for outbound
// activity: messages, typing indicators, cards and conversation creation.
type ConnectorServer struct {
	bridge *Bridge
	token  string
	server *http.Server
	logger *slog.Logger
}

// NewConnectorServer creates the connector HTTP server.
func NewConnectorServer(bridge *Bridge, cfg ConnectorConfig, logger *slog.Logger) *ConnectorServer {
	s := &ConnectorServer{
		bridge: bridge,
		token:  cfg.Token,
		logger: logger.With("component", "connector"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/conversations", s.withAuth(s.handleCreateConversation))
	mux.HandleFunc("/v1/conversations/", s.withAuth(s.handleActivities))

	s.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves the connector API until the context is cancelled.
func (s *ConnectorServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("connector API listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("connector server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// withAuth enforces the bearer token when one is configured.
func (s *ConnectorServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+s.token {
				s.sendJSONError(w, http.StatusForbidden, "invalid token")
				return
			}
		}
		next(w, r)
	}
}

// handleActivities handles POST /v1/conversations/{id}/activities.
func (s *ConnectorServer) handleActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/conversations/")
	conversationID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "activities" || conversationID == "" {
		s.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	roomID := id.RoomID(conversationID)
	messageID, err := s.postActivity(r.Context(), roomID, &req)
	if err != nil {
		s.logger.Error("posting activity failed", "room", conversationID, "type", req.Type, "error", err)
		s.sendJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, activityResponse{MessageID: messageID})
}

func (s *ConnectorServer) postActivity(ctx context.Context, roomID id.RoomID, req *activityRequest) (string, error) {
	switch req.Type {
	case "typing":
		_, err := s.bridge.matrix.UserTyping(ctx, roomID, true, 10*time.Second)
		return "", err
	case "message":
		resp, err := s.bridge.matrix.SendText(ctx, roomID, req.Text)
		if err != nil {
			return "", err
		}
		s.bridge.lastBotEvents.Store(roomID.String(), resp.EventID.String())
		return resp.EventID.String(), nil
	case "card":
		if req.Card == nil {
			return "", errors.New("card activity requires a card")
		}
		messageID, err := s.sendCard(ctx, roomID, req.Card)
		if err != nil {
			return "", err
		}
		s.bridge.lastBotEvents.Store(roomID.String(), messageID)
		return messageID, nil
	default:
		return "", fmt.Errorf("unknown activity type %q", req.Type)
	}
}

// sendCard renders a card into a formatted Matrix message.
func (s *ConnectorServer) sendCard(ctx context.Context, roomID id.RoomID, card *cards.Card) (string, error) {
	body, html := renderCard(card)

	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	if html != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}

	resp, err := s.bridge.matrix.SendMessageEvent(ctx, roomID, event.EventMessage, content)
	if err != nil {
		return "", err
	}
	return resp.EventID.String(), nil
}

// renderCard flattens a card into plain and HTML message bodies. Matrix has
// no interactive cards, so submit actions become typed command hints.
func renderCard(card *cards.Card) (body, html string) {
	var plain, rich strings.Builder

	if card.Title != "" {
		plain.WriteString(card.Title + "\n")
		rich.WriteString("<b>" + card.Title + "</b><br>")
	}
	if card.Subtitle != "" {
		plain.WriteString(card.Subtitle + "\n")
		rich.WriteString("<i>" + card.Subtitle + "</i><br>")
	}
	if card.Text != "" {
		plain.WriteString(card.Text + "\n")
		if card.HTML != "" {
			rich.WriteString(card.HTML)
		} else {
			rich.WriteString(card.Text + "<br>")
		}
	}
	if card.RedirectionURL != "" {
		plain.WriteString(card.RedirectionURL + "\n")
		rich.WriteString(fmt.Sprintf(`<a href="%s">%s</a><br>`, card.RedirectionURL, card.RedirectionURL))
	}

	switch card.Kind {
	case cards.KindAskExpert:
		hint := fmt.Sprintf("Reply with %q followed by your question to reach an expert.", cmdSubmitExpert)
		plain.WriteString(hint + "\n")
		rich.WriteString("<i>" + hint + "</i>")
	case cards.KindUnrecognizedInput:
		hint := fmt.Sprintf("Type %q to ask a human expert.", cmdAskExpert)
		plain.WriteString(hint + "\n")
		rich.WriteString("<i>" + hint + "</i>")
	case cards.KindExpertNotification, cards.KindAcknowledgment:
		line := fmt.Sprintf("Ticket %s · %s · %s", card.TicketID, card.Requester, card.CreatedAt)
		plain.WriteString(line + "\n")
		rich.WriteString("<i>" + line + "</i>")
	}

	for _, p := range card.Prompts {
		plain.WriteString("  • " + p.Text + "\n")
		rich.WriteString("<li>" + p.Text + "</li>")
	}

	return strings.TrimRight(plain.String(), "\n"), rich.String()
}

// handleCreateConversation handles POST /v1/conversations. It creates a new
// Matrix room, invites the expert team's members, posts the card as the
// first message and reports the new identifiers back.
func (s *ConnectorServer) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TeamID == "" || req.Card == nil {
		s.sendJSONError(w, http.StatusBadRequest, "team_id and card are required")
		return
	}

	resp, err := s.createExpertRoom(r.Context(), id.RoomID(req.TeamID), req.Card)
	if err != nil {
		s.logger.Error("creating expert conversation failed", "team", req.TeamID, "error", err)
		s.sendJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.logger.Info("expert conversation created",
		"team", req.TeamID,
		"room", resp.ConversationID,
		"message", resp.MessageID,
	)
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *ConnectorServer) createExpertRoom(ctx context.Context, teamRoom id.RoomID, card *cards.Card) (*createConversationResponse, error) {
	members, err := s.bridge.matrix.JoinedMembers(ctx, teamRoom)
	if err != nil {
		return nil, fmt.Errorf("looking up expert team members: %w", err)
	}

	botID := id.UserID(s.bridge.config.Matrix.UserID)
	invites := make([]id.UserID, 0, len(members.Joined))
	for userID := range members.Joined {
		if userID == botID {
			continue
		}
		invites = append(invites, userID)
	}

	name := card.Title
	if name == "" {
		name = "Expert request"
	}

	created, err := s.bridge.matrix.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Name:   name,
		Invite: invites,
		Preset: "private_chat",
	})
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	s.bridge.expertRooms.Store(created.RoomID.String(), true)

	messageID, err := s.sendCard(ctx, created.RoomID, card)
	if err != nil {
		return nil, fmt.Errorf("posting notification card: %w", err)
	}

	return &createConversationResponse{
		ConversationID: created.RoomID.String(),
		MessageID:      messageID,
		ServiceURL:     s.bridge.config.Matrix.Homeserver,
	}, nil
}

func (s *ConnectorServer) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *ConnectorServer) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
