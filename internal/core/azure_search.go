package core

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"

	"azdocs.dev/docschat/internal/store"
)

const searchAPIVersion = "2024-07-01"

// AzureSearchService talks to a hosted Azure-AI-Search-compatible index over
// its JSON API. It issues a hybrid semantic + vector query and selects only
// the title and chunk fields the pipeline needs.
type AzureSearchService struct {
	client         *resty.Client
	index          string
	semanticConfig string
	topK           int
}

func NewAzureSearchService(endpoint, apiKey, index, semanticConfig string, topK int) *AzureSearchService {
	client := resty.New().
		SetBaseURL(endpoint).
		SetHeader("api-key", apiKey).
		SetHeader("Content-Type", "application/json")

	return &AzureSearchService{
		client:         client,
		index:          index,
		semanticConfig: semanticConfig,
		topK:           topK,
	}
}

type searchResponse struct {
	Value []struct {
		Title string `json:"title"`
		Chunk string `json:"chunk"`
	} `json:"value"`
}

func (s *AzureSearchService) Search(ctx context.Context, query string) (string, []store.Reference, error) {
	body := map[string]any{
		"search":                query,
		"queryType":             "semantic",
		"semanticConfiguration": s.semanticConfig,
		"select":                "title,chunk",
		"top":                   s.topK,
		"vectorQueries": []map[string]any{{
			"kind":   "text",
			"text":   query,
			"k":      50,
			"fields": "text_vector",
		}},
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("api-version", searchAPIVersion).
		SetBody(body).
		Post("/indexes/" + s.index + "/docs/search")
	if err != nil {
		return "", nil, Upstream("search provider request", err)
	}
	if !res.IsSuccess() {
		return "", nil, Upstreamf("search provider request", "status %d: %s", res.StatusCode(), res.String())
	}

	var parsed searchResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return "", nil, Upstreamf("search provider request", "malformed response: %v", err)
	}

	// Provider rank order is preserved as-is.
	refs := make([]store.Reference, 0, len(parsed.Value))
	for _, result := range parsed.Value {
		refs = append(refs, store.Reference{Title: result.Title, Content: result.Chunk})
	}

	return FormatGrounding(refs), refs, nil
}
