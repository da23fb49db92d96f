package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikey/phish-scanner/internal/config"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func testConfig(baseURL string) config.OpenAIConfig {
	return config.OpenAIConfig{APIKey: "key", BaseURL: baseURL + "/v1", ModelName: "gpt-4", MaxTokens: 100}
}

func TestClassify(t *testing.T) {
	server := chatServer(t, http.StatusOK, `{"prediction":"Human Phishing","probabilities":{"Human Phishing":0.7,"Legitimate":0.3}}`)
	defer server.Close()

	c := NewClassifier(testConfig(server.URL), zap.NewNop())
	require.NoError(t, c.Validate())

	result, err := c.Classify(context.Background(), "Subject\n\nBody")
	require.NoError(t, err)
	assert.Equal(t, core.LabelHumanPhishing, result.Label)
	assert.InDelta(t, 0.3, result.Probabilities[core.LabelLegitimate], 1e-9)
}

func TestClassifyMalformedAnswer(t *testing.T) {
	server := chatServer(t, http.StatusOK, "I think this one is fine.")
	defer server.Close()

	_, err := NewClassifier(testConfig(server.URL), zap.NewNop()).Classify(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestClassifyCallFailure(t *testing.T) {
	server := chatServer(t, http.StatusTooManyRequests, "")
	defer server.Close()

	_, err := NewClassifier(testConfig(server.URL), zap.NewNop()).Classify(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrClassifierCallFailed)
}

func TestValidateRequiresKey(t *testing.T) {
	err := NewClassifier(config.OpenAIConfig{ModelName: "gpt-4"}, zap.NewNop()).Validate()
	assert.ErrorIs(t, err, core.ErrClassifierPrecondition)
}
