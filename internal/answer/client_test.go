// ABOUTME: Tests for the knowledge-base HTTP client
// ABOUTME: Uses httptest servers to verify request shape and error handling

package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GenerateAnswer(t *testing.T) {
	var gotBody generateAnswerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/kb/generateAnswer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(QueryResult{Answers: []Answer{
			{ID: 12, Answer: "Rayleigh scattering.", Questions: []string{"why is the sky blue"}},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/kb/", "", time.Second)
	result, err := c.GenerateAnswer(context.Background(), Query{
		Question:         "why is the sky blue",
		PrevQuestionID:   "7",
		PrevQuestionText: "sky color",
	})
	require.NoError(t, err)
	require.Len(t, result.Answers, 1)
	assert.Equal(t, 12, result.Answers[0].ID)

	assert.Equal(t, "why is the sky blue", gotBody.Question)
	require.NotNil(t, gotBody.Context)
	assert.Equal(t, "7", gotBody.Context.PreviousQnaID)
	assert.Equal(t, "sky color", gotBody.Context.PreviousUserQuery)
	assert.Nil(t, gotBody.Filters)
}

func TestClient_GenerateAnswer_BearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(QueryResult{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "kb-secret", time.Second)
	_, err := c.GenerateAnswer(context.Background(), Query{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer kb-secret", gotAuth)
}

func TestClient_GenerateAnswer_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(QueryResult{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.GenerateAnswer(context.Background(), Query{Question: "q"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_GenerateAnswer_ExactOnly(t *testing.T) {
	var gotBody generateAnswerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(QueryResult{Answers: []Answer{{ID: NoMatchID}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.GenerateAnswer(context.Background(), Query{Question: "q", ExactOnly: true})
	require.NoError(t, err)

	require.NotNil(t, gotBody.Filters)
	assert.True(t, gotBody.Filters.ExactMatch)
}

func TestClient_GenerateAnswer_ErrorResponses(t *testing.T) {
	t.Run("json error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(errorResponse{Error: "kb unavailable"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", time.Second)
		_, err := c.GenerateAnswer(context.Background(), Query{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kb unavailable")
	})

	t.Run("plain error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", time.Second)
		_, err := c.GenerateAnswer(context.Background(), Query{Question: "q"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})
}
