package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func chatServer(t *testing.T, reply string, captured *chatRequest, path *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path != nil {
			*path = r.URL.Path + "?" + r.URL.RawQuery
		}
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": reply}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{Model: "gpt-4o"}, quietLogger())
	assert.Error(t, err)

	_, err = NewOpenAIClient(Config{APIKey: "k"}, quietLogger())
	assert.Error(t, err)
}

func TestCompleteOpenAICompatible(t *testing.T) {
	var req chatRequest
	server := chatServer(t, "a concise summary", &req, nil)
	defer server.Close()

	client, err := NewOpenAIClient(Config{
		APIKey:  "test-key",
		Model:   "gpt-4o",
		BaseURL: server.URL + "/v1",
		Timeout: 5 * time.Second,
	}, quietLogger())
	require.NoError(t, err)

	out, err := client.Complete(t.Context(), "summary", "be brief", "some documents")
	require.NoError(t, err)
	assert.Equal(t, "a concise summary", out)

	assert.Equal(t, "gpt-4o", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "some documents", req.Messages[1].Content)
}

func TestCompleteAzureUsesDeploymentAndVersion(t *testing.T) {
	var path string
	server := chatServer(t, "article", nil, &path)
	defer server.Close()

	client, err := NewOpenAIClient(Config{
		APIKey:        "azure-key",
		AzureEndpoint: server.URL,
		APIVersion:    "2023-03-15-preview",
		Model:         "blog-gpt4o",
	}, quietLogger())
	require.NoError(t, err)

	_, err = client.Complete(t.Context(), "article", "write", "summary")
	require.NoError(t, err)
	assert.Equal(t, "/openai/deployments/blog-gpt4o/chat/completions?api-version=2023-03-15-preview", path)
}

func TestCompleteEmptyResponse(t *testing.T) {
	server := chatServer(t, "   ", nil, nil)
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", Model: "gpt-4o", BaseURL: server.URL}, quietLogger())
	require.NoError(t, err)

	_, err = client.Complete(t.Context(), "summary", "s", "u")
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 1.0, client.ErrorRate(1))
	assert.Equal(t, 0.0, client.ErrorRate(2))
}

func TestCompleteServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", Model: "gpt-4o", BaseURL: server.URL}, quietLogger())
	require.NoError(t, err)

	_, err = client.Complete(t.Context(), "article", "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "article request failed")
}
