package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/LazyMisha/prmptlaba/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

type cannedResponse struct {
	status int
	body   string
}

func newTestServer(t *testing.T, responses map[string]cannedResponse) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			status := resp.status
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			w.Write([]byte(resp.body))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found","retryable":false}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client(token string) *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      token,
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) last(t *testing.T) recordedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return ts.requests[len(ts.requests)-1]
}

// runCLI executes args against ts and returns what the command wrote to stdout.
func runCLI(t *testing.T, ts *testServer, args ...string) (string, error) {
	t.Helper()

	origClient, origStdout, origNoColor := newAPIClient, stdout, noColor
	t.Cleanup(func() {
		newAPIClient, stdout, noColor = origClient, origStdout, origNoColor
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	var out bytes.Buffer
	stdout = &out
	noColor = true
	if ts != nil {
		newAPIClient = func() (*apiClient, error) { return ts.client("test-token"), nil }
	}

	rootCmd.SetArgs(append(args, "--no-color"))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores flag defaults; cobra keeps parsed values between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestEnhanceCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /api/enhance": {body: `{"enhanced":"A photorealistic cat"}`},
	})

	out, err := runCLI(t, ts, "enhance", "--target", "image-generator", "a", "cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "A photorealistic cat" {
		t.Errorf("output = %q", out)
	}

	r := ts.last(t)
	if r.Method != "POST" || r.Path != "/api/enhance" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["target"] != "image-generator" || body["prompt"] != "a cat" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["save_history"]; ok {
		t.Errorf("save_history sent without --save: %v", body)
	}
}

func TestEnhanceCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /api/enhance": {status: 503, body: `{"error":"provider unavailable","retryable":true}`},
	})

	_, err := runCLI(t, ts, "enhance", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *serverError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *serverError", err)
	}
	if se.Status != 503 || !se.Retryable || se.Message != "provider unavailable" {
		t.Errorf("serverError = %+v", se)
	}
	if !strings.Contains(err.Error(), "retryable") {
		t.Errorf("error = %q, want retry hint", err)
	}
}

func TestEnhanceCommand_MissingPrompt(t *testing.T) {
	_, err := runCLI(t, nil, "enhance")
	if err == nil {
		t.Fatal("expected error for missing prompt")
	}
}

func TestHistoryList(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /api/history": {body: `[{"id":"01A","enhanced_prompt":"first\nline","target":"chatgpt","timestamp":"2025-03-01T12:00:00Z"}]`},
	})

	out, err := runCLI(t, ts, "history", "list", "--limit", "5", "--offset", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "01A") || !strings.Contains(out, "first line") {
		t.Errorf("output = %q", out)
	}
	if p := ts.last(t).Path; p != "/api/history?limit=5&offset=10" {
		t.Errorf("path = %q", p)
	}
}

func TestHistoryClear_RequiresConfirm(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"DELETE /api/history": {body: `{"status":"cleared"}`},
	})

	if _, err := runCLI(t, ts, "history", "clear"); err == nil {
		t.Fatal("expected error without --confirm")
	}
	ts.mu.Lock()
	n := len(ts.requests)
	ts.mu.Unlock()
	if n != 0 {
		t.Fatalf("request sent without confirmation")
	}

	if _, err := runCLI(t, ts, "history", "clear", "--confirm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := ts.last(t); r.Method != "DELETE" || r.Path != "/api/history" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
}

func TestCollectionsDelete_Cascade(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"DELETE /api/collections/c1": {body: `{"status":"deleted"}`},
	})

	if _, err := runCLI(t, ts, "collections", "delete", "c1", "--cascade"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := ts.last(t).Path; p != "/api/collections/c1?cascade=true" {
		t.Errorf("path = %q", p)
	}
}

func TestCollectionsDelete_Conflict(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"DELETE /api/collections/c1": {status: 409, body: `{"error":"collection c1 still holds 2 saved prompts","retryable":false}`},
	})

	_, err := runCLI(t, ts, "collections", "delete", "c1")
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("error = %v, want 409", err)
	}
}

func TestCollectionsReorder(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"PUT /api/collections/order": {body: `{"status":"reordered"}`},
	})

	if _, err := runCLI(t, ts, "collections", "reorder", "b", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal([]byte(ts.last(t).Body), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.IDs) != 2 || body.IDs[0] != "b" {
		t.Errorf("ids = %v", body.IDs)
	}
}

func TestPromptsSave(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"POST /api/prompts": {status: 201, body: `{"id":"p1","collection_id":"c9","enhanced_prompt":"x","target":"chatgpt"}`},
	})

	if _, err := runCLI(t, ts, "prompts", "save", "--target", "chatgpt", "--notes", "keep", "Plan", "a", "trip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.last(t).Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["enhanced_prompt"] != "Plan a trip" || body["target"] != "chatgpt" || body["notes"] != "keep" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["collection_id"]; ok {
		t.Errorf("collection_id sent without --collection: %v", body)
	}
}

func TestPromptsList_Filters(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /api/prompts": {body: `[]`},
	})

	if _, err := runCLI(t, ts, "prompts", "list", "--collection", "c1", "--target", "image-generator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := ts.last(t).Path; p != "/api/prompts?collection_id=c1&target=image-generator" {
		t.Errorf("path = %q", p)
	}
}

func TestPromptsMove(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"PATCH /api/prompts/p1": {body: `{"id":"p1","collection_id":"c2"}`},
	})

	if _, err := runCLI(t, ts, "prompts", "move", "p1", "c2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.last(t)
	if r.Method != "PATCH" || r.Body != `{"collection_id":"c2"}` {
		t.Errorf("request = %s %s", r.Method, r.Body)
	}
}

func TestTargetsCommand(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{
		"GET /api/targets": {body: `[{"id":"chatgpt","name":"ChatGPT","description":"General chat assistant"}]`},
	})

	out, err := runCLI(t, ts, "targets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "chatgpt") || !strings.Contains(out, "General chat assistant") {
		t.Errorf("output = %q", out)
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]cannedResponse{"GET /health": {body: `{"status":"ok"}`}})

	resp, err := ts.client("").get(context.Background(), "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if auth := ts.last(t).Auth; auth != "" {
		t.Errorf("auth = %q, want none", auth)
	}
}

func TestDecodeJSON_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
		w.Write([]byte("bad gateway\n"))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	resp, err := client.get(context.Background(), "/api/targets")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	orig := noColor
	defer func() { noColor = orig }()

	noColor = true
	if got := colorize(colorRed, "x"); got != "x" {
		t.Errorf("colorize with noColor = %q, want plain", got)
	}
	noColor = false
	if got := colorize(colorRed, "x"); got != colorRed+"x"+colorReset {
		t.Errorf("colorize = %q", got)
	}
}

func TestOneLine(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a\n  b\tc", 10, "a b c"},
		{"abcdefghij", 5, "abcd…"},
		{"ääääää", 4, "äää…"},
	}
	for _, tt := range tests {
		if got := oneLine(tt.in, tt.max); got != tt.want {
			t.Errorf("oneLine(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("not JSON: %q", out)
	}
	if line["msg"] != "shown" || line["k"] != "v" {
		t.Errorf("line = %v", line)
	}

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "bogus", Format: "text"}).Debug("dropped")
	if buf.Len() != 0 {
		t.Errorf("unknown level should fall back to info, got %q", buf.String())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4300
	cfg.Provider.APIKey = "sk-abcdefghijklmnop"

	keys := config.ShowAll(cfg)
	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4300" {
			found = true
		}
		if k.Key == "provider.api_key" && strings.Contains(k.Value, "abcdefghijkl") {
			t.Errorf("api key not masked: %q", k.Value)
		}
	}
	if !found {
		t.Error("expected to find server.port=4300 in ShowAll output")
	}
}
