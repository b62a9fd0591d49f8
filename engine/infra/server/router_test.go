package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopline-ai/loopline/engine/llm/orchestrator"
	"github.com/loopline-ai/loopline/pkg/logger"
)

type stubChatService struct {
	output  *orchestrator.Output
	err     error
	lastReq orchestrator.Request
}

func (s *stubChatService) Chat(_ context.Context, request orchestrator.Request) (*orchestrator.Output, error) {
	s.lastReq = request
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

func performRequest(t *testing.T, svc ChatService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(svc, logger.NewNop())
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("Should report ok", func(t *testing.T) {
		rec := performRequest(t, &stubChatService{}, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})
}

func TestChatEndpoint(t *testing.T) {
	t.Run("Should reject malformed JSON", func(t *testing.T) {
		rec := performRequest(t, &stubChatService{}, http.MethodPost, "/api/v1/chat", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid request body", resp.Error)
	})

	t.Run("Should return the turn result", func(t *testing.T) {
		svc := &stubChatService{output: &orchestrator.Output{
			Content:      "hello",
			ImageDataURI: "data:image/png;base64,QUJD",
			Model:        "gpt-4o",
			ToolCalls: []orchestrator.ToolCallSummary{
				{ID: "call_1", Name: "search", Arguments: json.RawMessage(`{"q":"x"}`)},
			},
			ToolResults: []orchestrator.ToolResultSummary{
				{CallID: "call_1", ToolName: "search", Content: `{"hits":1}`},
			},
		}}
		rec := performRequest(t, svc, http.MethodPost, "/api/v1/chat", `{"prompt":"hi"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "hello", resp.Content)
		assert.Equal(t, "data:image/png;base64,QUJD", resp.ImageDataURI)
		assert.Equal(t, "gpt-4o", resp.Model)
		require.Len(t, resp.ToolCalls, 1)
		assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
		require.Len(t, resp.ToolResults, 1)
		assert.Equal(t, "search", resp.ToolResults[0].ToolName)
	})

	t.Run("Should forward request fields to the service", func(t *testing.T) {
		svc := &stubChatService{output: &orchestrator.Output{Model: "m"}}
		body := `{
			"prompt": "describe",
			"image_url": "https://example.com/a.png",
			"system_prompt": "be brief",
			"history": [{"role":"user","content":"hi"}],
			"options": {"model":"gpt-4o-mini","temperature":0.7},
			"tool_options": {"viewport":"mobile"}
		}`
		rec := performRequest(t, svc, http.MethodPost, "/api/v1/chat", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "describe", svc.lastReq.Prompt)
		assert.Equal(t, "https://example.com/a.png", svc.lastReq.ImageURL)
		assert.Equal(t, "be brief", svc.lastReq.SystemPrompt)
		require.Len(t, svc.lastReq.History, 1)
		assert.Equal(t, "gpt-4o-mini", svc.lastReq.Options.Model)
		assert.InDelta(t, 0.7, svc.lastReq.Options.Temperature, 1e-9)
		assert.Equal(t, "mobile", svc.lastReq.ToolOptions["viewport"])
	})

	t.Run("Should map validation errors to 400", func(t *testing.T) {
		svc := &stubChatService{err: orchestrator.NewValidationError(errors.New("prompt or image is required"), "prompt", nil)}
		rec := performRequest(t, svc, http.MethodPost, "/api/v1/chat", `{"prompt":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should return 500 without partial results on failure", func(t *testing.T) {
		svc := &stubChatService{err: orchestrator.NewLLMError(
			errors.New("provider unavailable"),
			orchestrator.ErrCodeLLMGeneration,
			map[string]any{"messages": 2},
		)}
		rec := performRequest(t, svc, http.MethodPost, "/api/v1/chat", `{"prompt":"loop"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp["error"], "provider unavailable")
		assert.NotContains(t, resp, "content")
		assert.NotContains(t, resp, "tool_results")
	})

	t.Run("Should never leak credentials in error responses", func(t *testing.T) {
		svc := &stubChatService{err: errors.New(`provider rejected key api_key="sk-super-secret-value-12345"`)}
		rec := performRequest(t, svc, http.MethodPost, "/api/v1/chat", `{"prompt":"hi"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "sk-super-secret-value-12345")
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("Should assign a request id when none is provided", func(t *testing.T) {
		rec := performRequest(t, &stubChatService{}, http.MethodGet, "/healthz", "")
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("Should echo a caller-provided request id", func(t *testing.T) {
		router := NewRouter(&stubChatService{}, logger.NewNop())
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})
}
