// fake-llm stands in for the Anthropic Messages API in local stacks.
// FAIL_FIRST_N lets retry behavior be exercised end to end, and
// RESPONSE_DELAY_MS simulates slow completions for time-limit testing.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	failFirstN    = 0
	responseDelay time.Duration

	mu       sync.Mutex
	reqCount = 0
)

type messagesRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    string `json:"system,omitempty"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	if v := os.Getenv("RESPONSE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			responseDelay = time.Duration(n) * time.Millisecond
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/v1/messages", handleMessages)

	addr := ":8083"
	log.Printf("fake-llm listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleMessages(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	reqCount++
	n := reqCount
	mu.Unlock()

	if r.Header.Get("x-api-key") == "" {
		writeError(w, http.StatusUnauthorized, "authentication_error", "missing x-api-key header")
		return
	}

	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "unreadable request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "messages must not be empty")
		return
	}

	// Simulate flakiness: first N requests -> 529 (overloaded)
	if n <= failFirstN {
		log.Printf("FAILING (%d/%d) model=%s", n, failFirstN, req.Model)
		writeError(w, 529, "overloaded_error", "temporary failure")
		return
	}

	if responseDelay > 0 {
		time.Sleep(responseDelay)
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	text := fmt.Sprintf("Canned analysis for request %d. Prompt was %d characters; nothing in it looked on fire.",
		n, len(prompt))

	log.Printf("fake-llm OK model=%s prompt_len=%d", req.Model, len(prompt))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":    fmt.Sprintf("msg_fake_%d", n),
		"type":  "message",
		"role":  "assistant",
		"model": req.Model,
		"content": []map[string]string{
			{"type": "text", "text": text},
		},
		"stop_reason": "end_turn",
		"usage": map[string]int{
			"input_tokens":  len(prompt) / 4,
			"output_tokens": len(text) / 4,
		},
	})
}

func writeError(w http.ResponseWriter, code int, errType, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    errType,
			"message": msg,
		},
	})
}
