package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	searchToolName = "search"

	systemPrompt = "You are an expert assistant that helps developers with their questions about the product documentation. " +
		"To answer a question or when creating searches or clarification questions, *only* use information provided by the documentation. " +
		"For every statement you make, you need to provide the source from the documentation. Each search result from the documentation has its file name as a prefix in square brackets. " +
		"If you can't find the answer, you can say 'I don't know' or 'I can't find the answer'. " +
		"Write your answer in markdown. " +
		"If you see that search results are unrelated to the product the user is talking about, point that out and say you don't have good grounding data to answer."
)

// searchTool is the single capability declared on every decision call.
var searchTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        searchToolName,
		Description: "Search the documentation to find the right data to answer the last question in this conversation.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "The search query to use for the documentation."
				}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	},
}

// LLMService implements Generator on top of an OpenAI-compatible chat
// completion API, and additionally exposes embeddings for the local search
// provider.
type LLMService struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
}

// NewLLMService builds the client once at startup; baseURL may be empty for
// the default endpoint or point at any OpenAI-compatible server.
func NewLLMService(apiKey, baseURL, chatModel, embeddingModel string) *LLMService {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &LLMService{
		client:         openai.NewClientWithConfig(clientConfig),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}
}

func (s *LLMService) Decide(ctx context.Context, prompt []Prompt) (SearchDecision, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.chatModel,
		Messages: toChatMessages(prompt),
		Tools:    []openai.Tool{searchTool},
	})
	if err != nil {
		return SearchDecision{}, Upstream("generator decision call", err)
	}
	if len(resp.Choices) == 0 {
		return SearchDecision{}, Upstreamf("generator decision call", "response contained no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason != openai.FinishReasonToolCalls || len(choice.Message.ToolCalls) == 0 {
		return SearchDecision{}, nil // model elected not to search
	}

	var decision SearchDecision
	for _, call := range choice.Message.ToolCalls {
		if call.Function.Name != searchToolName || decision.Call != nil {
			decision.ExtraCalls++
			continue
		}

		// Arguments must be valid JSON with a non-empty query; anything else
		// is a contract violation by the provider, not a degradable case.
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return SearchDecision{}, Upstreamf("generator decision call",
				"malformed search arguments %q: %v", call.Function.Arguments, err)
		}
		if strings.TrimSpace(args.Query) == "" {
			return SearchDecision{}, Upstreamf("generator decision call",
				"search call %s carries an empty query", call.ID)
		}
		decision.Call = &SearchCall{ID: call.ID, Query: args.Query}
	}

	if decision.Call == nil {
		// Tool calls were produced but none of them is the declared search
		// capability. Treat like a declined search.
		return SearchDecision{ExtraCalls: decision.ExtraCalls}, nil
	}
	return decision, nil
}

func (s *LLMService) Synthesize(ctx context.Context, prompt []Prompt) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.chatModel,
		Messages: toChatMessages(prompt),
	})
	if err != nil {
		return "", Upstream("generator synthesis call", err)
	}
	if len(resp.Choices) == 0 {
		return "", Upstreamf("generator synthesis call", "response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *LLMService) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(s.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding data received")
	}
	return resp.Data[0].Embedding, nil
}

func toChatMessages(prompt []Prompt) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, p := range prompt {
		msg := openai.ChatCompletionMessage{
			Role:       p.Role,
			Content:    p.Content,
			ToolCallID: p.ToolCallID,
		}
		if p.SearchCall != nil {
			args, _ := json.Marshal(map[string]string{"query": p.SearchCall.Query})
			msg.ToolCalls = []openai.ToolCall{{
				ID:   p.SearchCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      searchToolName,
					Arguments: string(args),
				},
			}}
		}
		messages = append(messages, msg)
	}
	return messages
}
