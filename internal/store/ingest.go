package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Paragraphs are merged until a chunk reaches this size; a single
	// oversized paragraph still becomes its own chunk.
	targetChunkLen = 1200

	// Delay between embedding calls so ingestion stays under provider rate
	// limits (1500/min leaves headroom at 40ms).
	embedInterval = 40 * time.Millisecond
)

// Embedder turns a text into its vector representation.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// IngestDocsDir replaces the passage corpus with the contents of every .md
// file under dir. Each passage keeps its source file name as the title,
// which is what citations in answers refer to.
func (s *SQLiteStore) IngestDocsDir(ctx context.Context, dir string, embedder Embedder) (int, error) {
	type rawChunk struct {
		title   string
		content string
	}

	var chunks []rawChunk
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		contentBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read doc file %s: %w", path, err)
		}
		for _, chunk := range splitIntoChunks(string(contentBytes)) {
			chunks = append(chunks, rawChunk{title: d.Name(), content: chunk})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk docs dir %s: %w", dir, err)
	}

	if len(chunks) == 0 {
		slog.Warn("no chunks produced from docs dir, nothing ingested", "dir", dir)
		return 0, nil
	}

	slog.Info("embedding doc chunks, this may take a while", "chunks", len(chunks))

	if err := s.ClearPassages(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear existing passages: %w", err)
	}

	ticker := time.NewTicker(embedInterval)
	defer ticker.Stop()

	count := 0
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case <-ticker.C:
		}

		embedding, err := embedder(ctx, chunk.content)
		if err != nil {
			slog.Warn("failed to embed chunk, skipping", "index", i+1, "file", chunk.title, "error", err)
			continue
		}

		passage := Passage{Title: chunk.title, Content: chunk.content, Embedding: embedding}
		if err := s.createPassage(ctx, &passage); err != nil {
			slog.Warn("failed to store passage, skipping", "index", i+1, "file", chunk.title, "error", err)
			continue
		}
		count++
		if count%25 == 0 {
			slog.Info("ingestion progress", "done", count, "total", len(chunks))
		}
	}

	slog.Info("ingestion complete", "passages", count)
	return count, nil
}

// splitIntoChunks merges consecutive paragraphs up to targetChunkLen.
func splitIntoChunks(content string) []string {
	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(paragraph) > targetChunkLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(paragraph)
	}
	flush()

	return chunks
}
