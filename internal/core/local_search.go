package core

import (
	"context"
	"log/slog"
	"sort"

	"azdocs.dev/docschat/internal/store"
	"azdocs.dev/docschat/internal/utils"
)

const (
	// Passages scoring below this against the query are never surfaced, even
	// if fewer than topK remain.
	similarityFloor = 0.7
)

// QueryEmbedder produces the vector for a search query. Satisfied by
// *LLMService.
type QueryEmbedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// LocalSearchService ranks the ingested passage corpus by embedding
// similarity. The corpus is loaded once at startup and held in memory; it
// only changes through offline re-ingestion.
type LocalSearchService struct {
	embedder QueryEmbedder
	passages []store.Passage
	topK     int
	logger   *slog.Logger
}

func NewLocalSearchService(embedder QueryEmbedder, passages []store.Passage, topK int, logger *slog.Logger) *LocalSearchService {
	if len(passages) == 0 {
		logger.Warn("local search initialized with no passages, run ingestion first")
	} else {
		logger.Info("local search initialized", "passages", len(passages))
	}

	return &LocalSearchService{
		embedder: embedder,
		passages: passages,
		topK:     topK,
		logger:   logger,
	}
}

func (s *LocalSearchService) Search(ctx context.Context, query string) (string, []store.Reference, error) {
	refs := []store.Reference{}
	if len(s.passages) == 0 {
		return "", refs, nil
	}

	queryEmbedding, err := s.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return "", nil, Upstream("search query embedding", err)
	}

	type scoredPassage struct {
		passage    store.Passage
		similarity float32
	}

	scored := make([]scoredPassage, 0, len(s.passages))
	for _, passage := range s.passages {
		if len(passage.Embedding) == 0 {
			continue
		}
		similarity, err := utils.CosineSimilarity(queryEmbedding, passage.Embedding)
		if err != nil {
			s.logger.Warn("skipping passage with incompatible embedding", "passage_id", passage.ID, "error", err)
			continue
		}
		if similarity >= similarityFloor {
			scored = append(scored, scoredPassage{passage: passage, similarity: similarity})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})

	for i := 0; i < len(scored) && i < s.topK; i++ {
		refs = append(refs, store.Reference{
			Title:   scored[i].passage.Title,
			Content: scored[i].passage.Content,
		})
	}

	return FormatGrounding(refs), refs, nil
}
