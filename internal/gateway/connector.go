// ABOUTME: HTTP client for the frontend connector's outbound activity API
// ABOUTME: Implements the responder and conversation-creator contracts

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/helpline/helpline/internal/cards"
	"github.com/helpline/helpline/internal/escalate"
)

// activityRequest is the JSON body for POST /v1/conversations/{id}/activities.
type activityRequest struct {
	Type string      `json:"type"` // "message", "typing" or "card"
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

// connectorErrorResponse is the JSON error body on non-2xx responses.
type connectorErrorResponse struct {
	Error string `json:"error"`
}

// ConnectorClient talks to the frontend connector's HTTP API. It is the
// gateway's only path for outbound activity: sending messages and cards into
// conversations and creating new ones.
type ConnectorClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewConnectorClient creates a connector client for the given base URL.
// token may be empty when the connector does not require authentication.
func NewConnectorClient(baseURL, token string, timeout time.Duration) *ConnectorClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ConnectorClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// SendTyping shows a typing indicator in the conversation.
func (c *ConnectorClient) SendTyping(ctx context.Context, conversationID string) error {
	_, err := c.postActivity(ctx, conversationID, &activityRequest{Type: "typing"})
	return err
}

// SendText delivers a plain text message.
func (c *ConnectorClient) SendText(ctx context.Context, conversationID string, text string) error {
	_, err := c.postActivity(ctx, conversationID, &activityRequest{Type: "message", Text: text})
	return err
}

// SendCard delivers a card and returns the created message's ID.
func (c *ConnectorClient) SendCard(ctx context.Context, conversationID string, card *cards.Card) (string, error) {
	resp, err := c.postActivity(ctx, conversationID, &activityRequest{Type: "card", Card: card})
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

func (c *ConnectorClient) postActivity(ctx context.Context, conversationID string, activity *activityRequest) (*activityResponse, error) {
	url := fmt.Sprintf("%s/v1/conversations/%s/activities", c.baseURL, conversationID)

	var result activityResponse
	if err := c.postJSON(ctx, url, activity, &result); err != nil {
		return nil, fmt.Errorf("posting %s activity: %w", activity.Type, err)
	}
	return &result, nil
}

// CreateConversation asks the connector to open a new conversation with the
// given team and post the card as its first message. The creation request
// runs in a goroutine; onCreated fires exactly once with the outcome.
func (c *ConnectorClient) CreateConversation(ctx context.Context, teamID string, card *cards.Card, onCreated func(escalate.ConversationHandle, error)) error {
	go func() {
		var result createConversationResponse
		err := c.postJSON(ctx, c.baseURL+"/v1/conversations", &createConversationRequest{
			TeamID: teamID,
			Card:   card,
		}, &result)
		if err != nil {
			onCreated(escalate.ConversationHandle{}, fmt.Errorf("creating conversation: %w", err))
			return
		}
		onCreated(escalate.ConversationHandle{
			ConversationID: result.ConversationID,
			MessageID:      result.MessageID,
			ServiceURL:     result.ServiceURL,
		}, nil)
	}()
	return nil
}

func (c *ConnectorClient) postJSON(ctx context.Context, url string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling connector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding connector response: %w", err)
		}
	}
	return nil
}

// handleErrorResponse extracts an error message from non-2xx responses.
func (c *ConnectorClient) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp connectorErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("connector error (%d): %s", resp.StatusCode, errResp.Error)
		}
	}
	return fmt.Errorf("connector returned status %d: %s", resp.StatusCode, string(body))
}
