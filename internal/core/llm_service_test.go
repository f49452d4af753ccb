package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStubLLM spins up an OpenAI-compatible endpoint that replies to every
// chat completion with the given JSON body.
func newStubLLM(t *testing.T, status int, body string, capture *map[string]any) *LLMService {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("stub received undecodable request: %v", err)
			}
			*capture = req
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	return NewLLMService("test-key", server.URL+"/v1", "test-model", "test-embedding")
}

func toolCall(id, name, arguments string) map[string]any {
	return map[string]any{
		"id":   id,
		"type": "function",
		"function": map[string]any{
			"name":      name,
			"arguments": arguments,
		},
	}
}

func toolCallsResponse(calls ...map[string]any) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"role":       "assistant",
				"tool_calls": calls,
			},
		}},
	})
	return string(body)
}

func toolCallResponse(arguments string) string {
	return toolCallsResponse(toolCall("call_1", "search", arguments))
}

func TestDecideElectsSearch(t *testing.T) {
	var captured map[string]any
	llm := newStubLLM(t, http.StatusOK, toolCallResponse(`{"query":"virtual network"}`), &captured)

	prompt := buildPrompt(nil, "What is a VNet?")
	decision, err := llm.Decide(context.Background(), prompt)
	require.NoError(t, err)

	require.NotNil(t, decision.Call)
	assert.Equal(t, "call_1", decision.Call.ID)
	assert.Equal(t, "virtual network", decision.Call.Query)
	assert.Zero(t, decision.ExtraCalls)

	// The request must declare exactly the one search capability.
	tools, ok := captured["tools"].([]any)
	require.True(t, ok, "request carries no tools")
	require.Len(t, tools, 1)
	messages := captured["messages"].([]any)
	assert.Len(t, messages, 2) // system + user
}

func TestDecideHonorsFirstSearchCall(t *testing.T) {
	body := toolCallsResponse(
		toolCall("call_0", "lookup", `{}`),
		toolCall("call_1", "search", `{"query":"first query"}`),
		toolCall("call_2", "search", `{"query":"second query"}`),
	)
	llm := newStubLLM(t, http.StatusOK, body, nil)

	decision, err := llm.Decide(context.Background(), buildPrompt(nil, "hi"))
	require.NoError(t, err)

	require.NotNil(t, decision.Call)
	assert.Equal(t, "call_1", decision.Call.ID)
	assert.Equal(t, "first query", decision.Call.Query)
	assert.Equal(t, 2, decision.ExtraCalls)
}

func TestDecideUnknownToolsOnlyMeansDeclined(t *testing.T) {
	body := toolCallsResponse(
		toolCall("call_0", "lookup", `{}`),
		toolCall("call_1", "translate", `{"text":"hola"}`),
	)
	llm := newStubLLM(t, http.StatusOK, body, nil)

	decision, err := llm.Decide(context.Background(), buildPrompt(nil, "hi"))
	require.NoError(t, err)
	assert.Nil(t, decision.Call)
	assert.Equal(t, 2, decision.ExtraCalls)
}

func TestDecideDeclined(t *testing.T) {
	body := `{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"no search needed"}}]}`
	llm := newStubLLM(t, http.StatusOK, body, nil)

	decision, err := llm.Decide(context.Background(), buildPrompt(nil, "hi"))
	require.NoError(t, err)
	assert.Nil(t, decision.Call)
}

func TestDecideMalformedArgumentsFailTheTurn(t *testing.T) {
	llm := newStubLLM(t, http.StatusOK, toolCallResponse(`{not json`), nil)

	_, err := llm.Decide(context.Background(), buildPrompt(nil, "hi"))
	require.Error(t, err)

	var upstreamErr *UpstreamError
	assert.True(t, errors.As(err, &upstreamErr))
}

func TestDecideEmptyQueryFailsTheTurn(t *testing.T) {
	llm := newStubLLM(t, http.StatusOK, toolCallResponse(`{"query":"  "}`), nil)

	_, err := llm.Decide(context.Background(), buildPrompt(nil, "hi"))
	require.Error(t, err)

	var upstreamErr *UpstreamError
	assert.True(t, errors.As(err, &upstreamErr))
}

func TestDecideProviderFailure(t *testing.T) {
	llm := newStubLLM(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, nil)

	_, err := llm.Decide(context.Background(), buildPrompt(nil, "hi"))
	require.Error(t, err)

	var upstreamErr *UpstreamError
	assert.True(t, errors.As(err, &upstreamErr))
}

func TestSynthesizeCarriesToolTurns(t *testing.T) {
	var captured map[string]any
	body := `{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"cited answer"}}]}`
	llm := newStubLLM(t, http.StatusOK, body, &captured)

	call := &SearchCall{ID: "call_1", Query: "virtual network"}
	prompt := append(buildPrompt(nil, "What is a VNet?"),
		Prompt{Role: RoleAssistant, Content: searchAnnouncement, SearchCall: call},
		Prompt{Role: RoleTool, ToolCallID: call.ID, Content: "[networking.md]: A VNet is...\n----\n"},
	)

	answer, err := llm.Synthesize(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "cited answer", answer)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 4)

	assistant := messages[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	toolCalls := assistant["tool_calls"].([]any)
	require.Len(t, toolCalls, 1)

	tool := messages[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
	assert.Equal(t, "[networking.md]: A VNet is...\n----\n", tool["content"])

	_, declaresTools := captured["tools"]
	assert.False(t, declaresTools, "synthesis call must not re-declare tools")
}
