// ABOUTME: HTTP client for the knowledge-base answering service
// ABOUTME: POSTs generateAnswer queries and decodes the ranked candidate list

package answer

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

// generateAnswerRequest is the JSON body for POST {base}/generateAnswer.
type generateAnswerRequest struct {
	Question string         `json:"question"`
	Top      int            `json:"top"`
	Context  *promptContext `json:"context,omitempty"`
	Filters  *queryFilters  `json:"filters,omitempty"`
}

// promptContext carries the previous question for follow-up disambiguation.
type promptContext struct {
	PreviousQnaID     string `json:"previous_qna_id"`
	PreviousUserQuery string `json:"previous_user_query"`
}

type queryFilters struct {
	ExactMatch bool `json:"exact_match"`
}

// errorResponse is the JSON error body on non-200 responses.
type errorResponse struct {
	Error string `json:"error"`
}

// Client queries the knowledge-base service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a knowledge-base client for the given endpoint. apiKey
// may be empty when the service is unauthenticated.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// GenerateAnswer asks the knowledge base for ranked candidates.
func (c *Client) GenerateAnswer(ctx context.Context, q Query) (*QueryResult, error) {
	reqBody := generateAnswerRequest{
		Question: q.Question,
		Top:      3,
	}
	if q.ExactOnly {
		reqBody.Filters = &queryFilters{ExactMatch: true}
	}
	if q.PrevQuestionID != "" {
		reqBody.Context = &promptContext{
			PreviousQnaID:     q.PrevQuestionID,
			PreviousUserQuery: q.PrevQuestionText,
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/generateAnswer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge base: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var result QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding answer response: %w", err)
	}
	return &result, nil
}

// handleErrorResponse extracts an error message from non-200 responses.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("knowledge base error (%d): %s", resp.StatusCode, errResp.Error)
		}
	}
	return fmt.Errorf("knowledge base returned status %d: %s", resp.StatusCode, string(body))
}
