package extract_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cortex-graph/internal/extract"
	"github.com/ajitpratap0/cortex-graph/internal/models"
)

func TestParseResponse(t *testing.T) {
	raw := "```json\n" + `{
  "entities": [
    {"name": "Vitalik Buterin", "type": "Person", "observations": ["co-founded Ethereum", "co-founded Ethereum"]},
    {"name": "Ethereum", "type": "Blockchain", "observations": ["supports smart contracts"], "labels": ["a", "b", "c", "d"]},
    {"name": "", "type": "Nothing"}
  ],
  "relations": [
    {"source": "Vitalik Buterin", "target": "Ethereum", "relationType": "created"},
    {"source": "Vitalik Buterin", "target": "Bitcoin", "relationType": "wrote about"}
  ]
}` + "\n```"

	g, err := extract.ParseResponse(raw)
	require.NoError(t, err)
	require.Len(t, g.Entities, 2)
	assert.Equal(t, []string{"co-founded Ethereum"}, g.Entities[0].Observations)
	assert.Len(t, g.Entities[1].Labels, models.MaxLabels)
	assert.Equal(t, []models.Relation{{Source: "Vitalik Buterin", Target: "Ethereum", RelationType: "created"}}, g.Relations)
}

func TestParseResponse_Invalid(t *testing.T) {
	_, err := extract.ParseResponse("not json")
	require.Error(t, err)
}

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         extract.DefaultModel,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 10},
	}
}

func TestClaudeExtractor_Extract(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
			prompt = req.Messages[0].Content[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse(
			`{"entities":[{"name":"Ada","type":"Person","observations":["wrote <code>"]}],"relations":[]}`))
	}))
	defer srv.Close()

	ex := extract.NewClaudeExtractor("test-key", "", slog.Default(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	g, err := ex.Extract(context.Background(), "Ada wrote <code> & more")
	require.NoError(t, err)
	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Ada", g.Entities[0].Name)
	assert.True(t, strings.Contains(prompt, "&lt;code&gt; &amp; more"), "user text must be escaped")
}

func TestClaudeExtractor_APIErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex := extract.NewClaudeExtractor("test-key", "", slog.Default(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	g, err := ex.Extract(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, g.Entities)
	assert.Empty(t, g.Relations)
}

func TestClaudeExtractor_EmptyText(t *testing.T) {
	ex := extract.NewClaudeExtractor("k", "", slog.Default())
	g, err := ex.Extract(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, g.Entities)
}
