// ABOUTME: HTTP API handlers for inbound turns from frontend connectors
// ABOUTME: Provides POST /api/turns with dedupe and payload normalization

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/helpline/helpline/internal/store"
	"github.com/helpline/helpline/internal/turn"
)

// InboundActivity is the JSON request body for POST /api/turns. It is the
// wire form a frontend connector posts for each user event.
type InboundActivity struct {
	// Type is "message" for user turns, "member_added" for roster events.
	Type string `json:"type"`

	ID string `json:"id"`

	Sender struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"sender"`

	Conversation struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	} `json:"conversation"`

	Text string `json:"text,omitempty"`

	// Value is the raw structured payload of a card submission.
	Value json.RawMessage `json:"value,omitempty"`

	ReplyToID string `json:"reply_to_id,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TurnStatusResponse is the JSON response for POST /api/turns.
type TurnStatusResponse struct {
	Status string `json:"status"`
	TurnID string `json:"turn_id,omitempty"`
}

const (
	statusProcessed = "processed"
	statusDuplicate = "duplicate"
	statusIgnored   = "ignored"
)

// handleTurns handles POST /api/turns requests.
//
// Responsibilities:
//  1. Parse JSON body - decode InboundActivity from request body
//  2. Dedupe - drop redelivered turns by conversation-scoped ID
//  3. Normalize - decode the card value into the closed payload type
//  4. Route - hand the turn to the conversation router
func (g *Gateway) handleTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	activity, err := parseInboundActivity(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if activity.Type == "member_added" {
		if err := g.router.HandleMemberAdded(r.Context(), activity.Conversation.ID); err != nil {
			g.logger.Error("welcome failed", "error", err, "conversation_id", activity.Conversation.ID)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		g.sendJSON(w, http.StatusOK, TurnStatusResponse{Status: statusProcessed})
		return
	}

	if g.dedupe.Seen(activity.Conversation.ID, activity.ID) {
		g.logger.Debug("duplicate turn dropped",
			"conversation_id", activity.Conversation.ID,
			"turn_id", activity.ID,
		)
		g.sendJSON(w, http.StatusOK, TurnStatusResponse{Status: statusDuplicate, TurnID: activity.ID})
		return
	}

	value, err := turn.ParseCardValue(activity.Value)
	if err != nil {
		var classErr *turn.ClassificationError
		if errors.As(err, &classErr) {
			// Malformed payloads are logged and dropped, never retried.
			g.logger.Warn("malformed card payload dropped",
				"error", err,
				"conversation_id", activity.Conversation.ID,
				"turn_id", activity.ID,
			)
			g.sendJSON(w, http.StatusOK, TurnStatusResponse{Status: statusIgnored, TurnID: activity.ID})
			return
		}
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	t := activityToTurn(activity, value)
	if err := g.router.HandleTurn(r.Context(), t); err != nil {
		g.logger.Error("turn processing failed", "error", err, "turn_id", t.ID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, TurnStatusResponse{Status: statusProcessed, TurnID: t.ID})
}

// parseInboundActivity parses and validates an InboundActivity from the
// given reader. Returns an error if the JSON is invalid or required fields
// are missing.
func parseInboundActivity(r io.Reader) (*InboundActivity, error) {
	var activity InboundActivity
	if err := json.NewDecoder(r).Decode(&activity); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if activity.Type == "" {
		activity.Type = "message"
	}
	if activity.Type != "message" && activity.Type != "member_added" {
		return nil, errors.New("type must be \"message\" or \"member_added\"")
	}
	if activity.Conversation.ID == "" {
		return nil, errors.New("conversation.id is required")
	}
	if activity.Type == "message" && activity.ID == "" {
		return nil, errors.New("id is required")
	}

	return &activity, nil
}

// activityToTurn converts the wire activity into the normalized turn.
func activityToTurn(a *InboundActivity, value *turn.CardValue) *turn.Turn {
	kind := turn.ConversationKind(a.Conversation.Kind)
	switch kind {
	case turn.KindPersonal, turn.KindGroup, turn.KindChannel:
	default:
		kind = turn.KindPersonal
	}

	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &turn.Turn{
		ID:             a.ID,
		SenderID:       a.Sender.ID,
		SenderName:     a.Sender.Name,
		ConversationID: a.Conversation.ID,
		Kind:           kind,
		Text:           a.Text,
		Value:          value,
		ReplyToID:      a.ReplyToID,
		Timestamp:      ts,
	}
}

// TicketResponse is the JSON response shape for ticket queries.
type TicketResponse struct {
	ID                    string `json:"id"`
	RequesterID           string `json:"requester_id"`
	RequesterName         string `json:"requester_name"`
	ConversationID        string `json:"conversation_id"`
	Question              string `json:"question"`
	CreatedAt             string `json:"created_at"`
	NotificationMessageID string `json:"notification_message_id"`
	ExpertConversationID  string `json:"expert_conversation_id"`
}

// handleListTickets handles GET /api/tickets requests.
func (g *Gateway) handleListTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tickets, err := g.store.ListTickets(r.Context(), 100)
	if err != nil {
		g.logger.Error("listing tickets failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		response = append(response, TicketResponse{
			ID:                    t.ID,
			RequesterID:           t.RequesterID,
			RequesterName:         t.RequesterName,
			ConversationID:        t.ConversationID,
			Question:              t.Question,
			CreatedAt:             t.CreatedAt.UTC().Format(time.RFC3339),
			NotificationMessageID: t.NotificationMessageID,
			ExpertConversationID:  t.ExpertConversationID,
		})
	}

	g.sendJSON(w, http.StatusOK, response)
}

// ConfigEntityRequest is the JSON request body for POST /api/config.
type ConfigEntityRequest struct {
	Entity string `json:"entity"`
	Value  string `json:"value"`
}

// handleConfig handles GET and POST /api/config requests for the runtime
// configuration entities (expert team, knowledge base, welcome text).
func (g *Gateway) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleGetConfig(w, r)
	case http.MethodPost:
		g.handleSetConfig(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	entity := store.ConfigEntityType(r.URL.Query().Get("entity"))
	if entity == "" {
		g.sendJSONError(w, http.StatusBadRequest, "entity query parameter is required")
		return
	}

	value, err := g.store.GetConfigEntity(r.Context(), entity)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "entity not set")
		return
	}
	if err != nil {
		g.logger.Error("config lookup failed", "error", err, "entity", entity)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]string{"entity": string(entity), "value": value})
}

func (g *Gateway) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Entity == "" {
		g.sendJSONError(w, http.StatusBadRequest, "entity is required")
		return
	}

	if err := g.store.SetConfigEntity(r.Context(), store.ConfigEntityType(req.Entity), req.Value); err != nil {
		g.logger.Error("config update failed", "error", err, "entity", req.Entity)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("config entity updated", "entity", req.Entity)
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TurnEventResponse is the JSON response shape for the turn ledger.
type TurnEventResponse struct {
	ID             string `json:"id"`
	TurnID         string `json:"turn_id,omitempty"`
	ConversationID string `json:"conversation_id"`
	Direction      string `json:"direction"`
	Author         string `json:"author"`
	Type           string `json:"type"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
}

// handleTurnEvents handles GET /api/turns/events?conversation_id=X requests.
func (g *Gateway) handleTurnEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation_id query parameter is required")
		return
	}

	events, err := g.store.ListTurnEvents(r.Context(), conversationID, 200)
	if err != nil {
		g.logger.Error("listing turn events failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]TurnEventResponse, 0, len(events))
	for _, e := range events {
		response = append(response, TurnEventResponse{
			ID:             e.ID,
			TurnID:         e.TurnID,
			ConversationID: e.ConversationID,
			Direction:      e.Direction,
			Author:         e.Author,
			Type:           e.Type,
			Text:           e.Text,
			Timestamp:      e.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}

	g.sendJSON(w, http.StatusOK, response)
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
