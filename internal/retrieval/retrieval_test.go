package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "connection timeout" || req.TopK != 3 {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"results":[
			{"id":"INC-7","text":"pool exhausted","score":0.91},
			{"id":"runbook-12","text":"restart pgbouncer","score":0.77}]}`))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL)
	docs, err := s.Search(context.Background(), "connection timeout", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].ID != "INC-7" || docs[0].Score != 0.91 {
		t.Errorf("doc = %+v", docs[0])
	}
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTTPSearcher(srv.URL).Search(context.Background(), "q", 1); err == nil {
		t.Fatal("expected error")
	}
}
