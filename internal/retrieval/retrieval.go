// Package retrieval is the similarity-search collaborator: given an incident
// description it returns related past incidents and runbook excerpts that get
// folded into task prompts. The index itself lives in a separate service;
// workers only query it.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Document is one search hit.
type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// Searcher queries the similarity index.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Document, error)
}

// HTTPSearcher talks to the index service over HTTP.
type HTTPSearcher struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPSearcher points a searcher at the index service base URL.
func NewHTTPSearcher(endpoint string) *HTTPSearcher {
	return &HTTPSearcher{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Results []Document `json:"results"`
}

// Search posts the query and returns ranked hits. Failures here are treated
// as transient by callers; retrieval enriches prompts but is not required
// for a task to complete.
func (s *HTTPSearcher) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	body, err := json.Marshal(searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search error %d: %s", resp.StatusCode, string(b))
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return out.Results, nil
}
