package core

import (
	"context"
	"fmt"
	"strings"

	"azdocs.dev/docschat/internal/store"
)

// Prompt roles, matching the wire roles of chat-completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Prompt is one entry of the ordered context handed to the generator. The
// two synthetic turns of a grounded answer are carried here too: the
// assistant turn that invoked the search (SearchCall set) and the tool turn
// with the retrieved grounding (ToolCallID set).
type Prompt struct {
	Role       string
	Content    string
	SearchCall *SearchCall
	ToolCallID string
}

// SearchCall is one elected invocation of the declared search capability.
// ID is the provider's opaque call token, echoed back on the tool turn.
type SearchCall struct {
	ID    string
	Query string
}

// SearchDecision is the tagged outcome of the decision call. A nil Call
// means the generator declined to search. ExtraCalls counts tool calls
// beyond the first recognized search call; they are ignored, which is a
// documented limitation of the pipeline rather than a provider guarantee.
type SearchDecision struct {
	Call       *SearchCall
	ExtraCalls int
}

// Generator wraps the language-model capability. Both calls are at-most-once;
// retry policy, if any, belongs to the adapter behind this interface.
type Generator interface {
	// Decide asks the model whether the conversation needs a documentation
	// search, given a single declared "search" capability.
	Decide(ctx context.Context, prompt []Prompt) (SearchDecision, error)

	// Synthesize produces the final answer text from the full context,
	// including any synthetic search/tool turns.
	Synthesize(ctx context.Context, prompt []Prompt) (string, error)
}

// Retriever wraps the text-search capability. Grounding is the concatenated
// passage text in provider rank order; references parallel it in the same
// order.
type Retriever interface {
	Search(ctx context.Context, query string) (grounding string, refs []store.Reference, err error)
}

// ConversationStore is the durable per-user conversation log. Get returns
// (nil, nil) for an absent conversation; Upsert has create-or-replace
// semantics keyed by (userID, chatID).
type ConversationStore interface {
	GetConversation(ctx context.Context, userID, chatID string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]store.ConversationSummary, error)
	UpsertConversation(ctx context.Context, userID, chatID, title string, messages []store.ChatMessage) (*store.Conversation, error)
}

// FormatGrounding renders references into the grounding block the system
// prompt teaches the model to cite from. The framing is fixed regardless of
// which provider produced the passages.
func FormatGrounding(refs []store.Reference) string {
	var b strings.Builder
	for _, ref := range refs {
		fmt.Fprintf(&b, "[%s]: %s\n----\n", ref.Title, ref.Content)
	}
	return b.String()
}
