package store

import "time"

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Reference is a titled grounding passage attached to a bot message so the
// user can see where a statement came from. References are kept in retriever
// rank order and are not deduplicated.
type Reference struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ChatMessage is immutable once appended; ids are assigned sequentially
// within a conversation starting at "1".
type ChatMessage struct {
	ID         string      `json:"id"`
	Sender     string      `json:"sender"` // "user" or "bot"
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	References []Reference `json:"references,omitempty"` // bot messages only
}

// Conversation is one persisted record per (user, chat) pair. The message
// list is stored whole and replaced whole on every save.
type Conversation struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Title       string        `json:"title"`
	Messages    []ChatMessage `json:"messages"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastUpdated  time.Time `json:"lastUpdated"`
	MessageCount int       `json:"messageCount"`
}

// Passage is one embedded documentation chunk used by the local search
// provider. Title is the source file name, which is what citations show.
type Passage struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}
