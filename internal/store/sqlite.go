package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// maxTitleLen is enforced on every write so a runaway first message can't
// blow up the conversation list view.
const maxTitleLen = 100

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	// One row per conversation, partitioned by user_id. The message list is
	// a JSON document replaced whole on every save, matching the upsert
	// semantics of the chat pipeline.
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        user_id      TEXT NOT NULL,
        id           TEXT NOT NULL,
        title        TEXT NOT NULL DEFAULT '',
        messages     TEXT NOT NULL DEFAULT '[]',
        last_updated DATETIME NOT NULL,
        PRIMARY KEY (user_id, id)
    );

    CREATE TABLE IF NOT EXISTS passages (
        id             INTEGER PRIMARY KEY AUTOINCREMENT,
        title          TEXT NOT NULL,
        content        TEXT NOT NULL,
        embedding_json TEXT -- JSON-encoded []float32
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func clampTitle(title string) string {
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen])
	}
	return title
}

// GetConversation returns the conversation owned by userID, or nil if no such
// conversation exists for that user. A chat id belonging to a different user
// is indistinguishable from an absent one.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID, chatID string) (*Conversation, error) {
	var (
		conv         Conversation
		messagesJSON string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, messages, last_updated FROM conversations WHERE user_id = ? AND id = ?",
		userID, chatID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &messagesJSON, &conv.LastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages for conversation %s: %w", chatID, err)
	}
	return &conv, nil
}

// ListConversations returns summaries for all of a user's conversations,
// most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, messages, last_updated FROM conversations WHERE user_id = ? ORDER BY last_updated DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	summaries := []ConversationSummary{}
	for rows.Next() {
		var (
			summary      ConversationSummary
			messagesJSON string
		)
		if err := rows.Scan(&summary.ID, &summary.Title, &messagesJSON, &summary.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		var messages []ChatMessage
		if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
			slog.Warn("skipping conversation with undecodable messages", "chat_id", summary.ID, "error", err)
			continue
		}
		summary.MessageCount = len(messages)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// UpsertConversation creates or fully replaces the conversation record keyed
// by (userID, chatID). The stored message list is overwritten, not merged.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, userID, chatID, title string, messages []ChatMessage) (*Conversation, error) {
	if messages == nil {
		messages = []ChatMessage{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}

	conv := Conversation{
		ID:          chatID,
		UserID:      userID,
		Title:       clampTitle(title),
		Messages:    messages,
		LastUpdated: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO conversations (user_id, id, title, messages, last_updated)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (user_id, id) DO UPDATE SET
            title        = excluded.title,
            messages     = excluded.messages,
            last_updated = excluded.last_updated`,
		conv.UserID, conv.ID, conv.Title, string(messagesJSON), conv.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return &conv, nil
}

// Passage methods (grounding corpus for the local search provider)

func (s *SQLiteStore) createPassage(ctx context.Context, passage *Passage) error {
	embeddingJSON, err := json.Marshal(passage.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO passages (title, content, embedding_json) VALUES (?, ?, ?)",
		passage.Title, passage.Content, string(embeddingJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert passage: %w", err)
	}
	passage.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetAllPassages(ctx context.Context) ([]Passage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, content, embedding_json FROM passages")
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var (
			passage       Passage
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&passage.ID, &passage.Title, &passage.Content, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan passage row: %w", err)
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &passage.Embedding); err != nil {
				slog.Warn("passage has undecodable embedding, it will never be retrieved",
					"passage_id", passage.ID, "error", err)
				passage.Embedding = nil
			}
		}
		passages = append(passages, passage)
	}
	return passages, rows.Err()
}

func (s *SQLiteStore) ClearPassages(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM passages"); err != nil {
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	return nil
}
