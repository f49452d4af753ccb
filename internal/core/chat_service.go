package core

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"azdocs.dev/docschat/internal/store"
)

const (
	// Returned verbatim when the model declines to search; without grounding
	// the assistant never free-answers.
	fallbackAnswer = "I'm not sure how to answer your question without searching for more information."

	// Synthetic assistant turn inserted before the tool result on synthesis.
	searchAnnouncement = "I'll search for information to help answer your question."

	// New conversations take the head of the first user message as a title.
	derivedTitleLen = 50
)

// ChatService coordinates one turn end to end: load history, decide whether
// to search, retrieve grounding, synthesize the answer, append the user/bot
// message pair, and persist. All collaborators are injected so tests can
// substitute doubles.
type ChatService struct {
	store     ConversationStore
	generator Generator
	retriever Retriever
	logger    *slog.Logger
}

func NewChatService(convStore ConversationStore, generator Generator, retriever Retriever, logger *slog.Logger) *ChatService {
	return &ChatService{
		store:     convStore,
		generator: generator,
		retriever: retriever,
		logger:    logger,
	}
}

// TurnResult is what the caller gets back from one processed turn.
type TurnResult struct {
	Text       string            `json:"text"`
	References []store.Reference `json:"references"`
	ChatID     string            `json:"chat_id"`
}

// ProcessTurn runs the full answer pipeline for one user message.
//
// The only persisted side effect is the single conversation upsert at the
// end; any failure before the answer exists aborts the turn with nothing
// written. A store failure after the answer exists is logged and swallowed:
// the user still gets their answer, the turn is lost from history.
func (s *ChatService) ProcessTurn(ctx context.Context, userID, chatID, userMessage string) (*TurnResult, error) {
	chatID = strings.TrimSpace(chatID)
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, Validationf("message must not be empty")
	}
	if chatID == "" {
		return nil, Validationf("chat_id must not be empty")
	}

	// Absent conversation means empty history; the first turn creates it.
	conv, err := s.store.GetConversation(ctx, userID, chatID)
	if err != nil {
		return nil, Upstream("conversation load", err)
	}

	var (
		history []store.ChatMessage
		title   string
	)
	if conv != nil {
		history = conv.Messages
		title = conv.Title
	}

	prompt := buildPrompt(history, userMessage)

	decision, err := s.generator.Decide(ctx, prompt)
	if err != nil {
		return nil, err
	}

	answer := fallbackAnswer
	refs := []store.Reference{}

	if decision.ExtraCalls > 0 {
		// Only the first recognized search call is honored; with none at all
		// the turn takes the fallback answer.
		s.logger.Warn("generator produced unrecognized or extra tool calls, ignoring them",
			"chat_id", chatID, "extra_calls", decision.ExtraCalls, "searching", decision.Call != nil)
	}

	if decision.Call != nil {
		grounding, references, err := s.retriever.Search(ctx, decision.Call.Query)
		if err != nil {
			return nil, err
		}

		synthPrompt := append(prompt,
			Prompt{Role: RoleAssistant, Content: searchAnnouncement, SearchCall: decision.Call},
			Prompt{Role: RoleTool, ToolCallID: decision.Call.ID, Content: grounding},
		)

		answer, err = s.generator.Synthesize(ctx, synthPrompt)
		if err != nil {
			return nil, err
		}
		if references != nil {
			refs = references
		}
	}

	now := time.Now().UTC()
	next := len(history)
	messages := append(history,
		store.ChatMessage{
			ID:        strconv.Itoa(next + 1),
			Sender:    store.SenderUser,
			Content:   userMessage,
			Timestamp: now,
		},
		store.ChatMessage{
			ID:         strconv.Itoa(next + 2),
			Sender:     store.SenderBot,
			Content:    answer,
			Timestamp:  now,
			References: refs,
		},
	)

	if title == "" {
		title = deriveTitle(userMessage)
	}

	if _, err := s.store.UpsertConversation(ctx, userID, chatID, title, messages); err != nil {
		// Deliberate: the generated answer is worth more to the user than
		// this turn's durability.
		s.logger.Error("failed to persist conversation, returning answer anyway",
			"user_id", userID, "chat_id", chatID, "error", err)
	}

	return &TurnResult{Text: answer, References: refs, ChatID: chatID}, nil
}

// ListChats returns the caller's conversation summaries, newest first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]store.ConversationSummary, error) {
	summaries, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, Upstream("conversation list", err)
	}
	return summaries, nil
}

// GetChat returns one conversation, or NotFoundError if it doesn't exist for
// this user.
func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (*store.Conversation, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, Validationf("chat_id must not be empty")
	}
	conv, err := s.store.GetConversation(ctx, userID, chatID)
	if err != nil {
		return nil, Upstream("conversation load", err)
	}
	if conv == nil {
		return nil, &NotFoundError{Resource: "chat"}
	}
	return conv, nil
}

// NewChat creates an empty conversation with a placeholder title; the first
// turn will set the real one.
func (s *ChatService) NewChat(ctx context.Context, userID string) (*store.Conversation, error) {
	conv, err := s.store.UpsertConversation(ctx, userID, uuid.NewString(), "", nil)
	if err != nil {
		return nil, Upstream("conversation create", err)
	}
	return conv, nil
}

// SaveChat overwrites a conversation's message list wholesale. This is the
// frontend's explicit-save path, separate from the implicit save ProcessTurn
// does.
func (s *ChatService) SaveChat(ctx context.Context, userID, chatID string, messages []store.ChatMessage) (*store.Conversation, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, Validationf("chat_id is required")
	}

	existing, err := s.store.GetConversation(ctx, userID, chatID)
	if err != nil {
		return nil, Upstream("conversation load", err)
	}

	title := ""
	if existing != nil {
		title = existing.Title
	}
	if title == "" {
		for _, msg := range messages {
			if msg.Sender == store.SenderUser && strings.TrimSpace(msg.Content) != "" {
				title = deriveTitle(msg.Content)
				break
			}
		}
	}

	conv, err := s.store.UpsertConversation(ctx, userID, chatID, title, messages)
	if err != nil {
		return nil, Upstream("conversation save", err)
	}
	return conv, nil
}

// buildPrompt maps persisted history onto generator roles: bot messages
// become assistant turns, everything else user turns, with the fixed system
// instruction first and the new message last.
func buildPrompt(history []store.ChatMessage, userMessage string) []Prompt {
	prompt := make([]Prompt, 0, len(history)+2)
	prompt = append(prompt, Prompt{Role: RoleSystem, Content: systemPrompt})
	for _, msg := range history {
		role := RoleUser
		if msg.Sender == store.SenderBot {
			role = RoleAssistant
		}
		prompt = append(prompt, Prompt{Role: role, Content: msg.Content})
	}
	return append(prompt, Prompt{Role: RoleUser, Content: userMessage})
}

func deriveTitle(userMessage string) string {
	runes := []rune(userMessage)
	if len(runes) > derivedTitleLen {
		return string(runes[:derivedTitleLen])
	}
	return userMessage
}
