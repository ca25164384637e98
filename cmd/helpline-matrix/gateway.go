// ABOUTME: Gateway API client for helpline-matrix
// ABOUTME: Posts normalized inbound turns to the gateway webhook

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// InboundActivity is the request body for POST /api/turns.
type InboundActivity struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	Sender struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"sender"`

	Conversation struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	} `json:"conversation"`

	Text      string          `json:"text,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	ReplyToID string          `json:"reply_to_id,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// errorResponse is the JSON error body on non-200 responses.
type errorResponse struct {
	Error string `json:"error"`
}

// GatewayClient communicates with the helpline-gateway HTTP API.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

// NewGatewayClient creates a new gateway client.
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// PostTurn delivers one inbound activity to the gateway.
func (g *GatewayClient) PostTurn(ctx context.Context, activity *InboundActivity) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshaling activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/turns", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting turn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return g.handleErrorResponse(resp)
	}
	return nil
}

// handleErrorResponse extracts error message from non-200 responses.
func (g *GatewayClient) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("gateway error (%d): %s", resp.StatusCode, errResp.Error)
		}
	}
	return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
}
