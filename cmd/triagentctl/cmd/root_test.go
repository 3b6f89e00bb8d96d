package cmd

import (
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"
)

func TestCheckJQAvailable(t *testing.T) {
	want := func() bool {
		_, err := exec.LookPath("jq")
		return err == nil
	}()
	if got := checkJQAvailable(); got != want {
		t.Errorf("checkJQAvailable() = %v, want %v", got, want)
	}
}

func TestFormatWithJQ(t *testing.T) {
	if !checkJQAvailable() {
		t.Skip("jq not available, skipping test")
	}

	tests := []struct {
		name     string
		jsonData []byte
		wantErr  bool
	}{
		{name: "valid json", jsonData: []byte(`{"key":"value","number":42}`), wantErr: false},
		{name: "invalid json", jsonData: []byte(`{"key":"value",}`), wantErr: true},
		{name: "empty json object", jsonData: []byte(`{}`), wantErr: false},
		{name: "json array", jsonData: []byte(`[1,2,3]`), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatWithJQ(tt.jsonData)
			if (err != nil) != tt.wantErr {
				t.Errorf("formatWithJQ() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == "" {
				t.Errorf("formatWithJQ() returned empty string for valid JSON")
			}
		})
	}
}

func TestMakeHTTPRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"task_id":"01TEST","status":"pending"}`))
	}))
	defer srv.Close()

	oldServer, oldToken, oldTimeout := serverURL, jwtToken, timeout
	defer func() { serverURL, jwtToken, timeout = oldServer, oldToken, oldTimeout }()
	serverURL = srv.URL
	jwtToken = "test-token"
	timeout = 5 * time.Second

	resp, err := makeHTTPRequest("POST", "/tasks/chat", []byte(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("makeHTTPRequest() error = %v", err)
	}
	out, err := readResponse(resp)
	if err != nil {
		t.Fatalf("readResponse() error = %v", err)
	}

	if gotMethod != "POST" || gotPath != "/tasks/chat" {
		t.Errorf("request = %s %s, want POST /tasks/chat", gotMethod, gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if out["task_id"] != "01TEST" {
		t.Errorf("task_id = %v, want 01TEST", out["task_id"])
	}
}

func TestReadResponseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"task not found"}`))
	}))
	defer srv.Close()

	oldServer, oldTimeout := serverURL, timeout
	defer func() { serverURL, timeout = oldServer, oldTimeout }()
	serverURL = srv.URL
	timeout = 5 * time.Second

	resp, err := makeHTTPRequest("GET", "/tasks/missing", nil)
	if err != nil {
		t.Fatalf("makeHTTPRequest() error = %v", err)
	}
	if _, err := readResponse(resp); err == nil {
		t.Fatal("readResponse() did not surface the server error")
	}
}
