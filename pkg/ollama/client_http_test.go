package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/garnizeh/taosdlc/pkg/ollama"
)

func newTestClient(t *testing.T, srv *httptest.Server, cfg ollama.Config) *ollama.Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	client, err := ollama.NewClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_ListModelsAndHealth_Success(t *testing.T) {
	// mock server that returns a simple models list
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"models":[{"name":"test-model","size":42}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ollama.Config{Timeout: 2 * time.Second})

	ctx := context.Background()
	models, err := client.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0].Name != "test-model" || models[0].Size != 42 {
		t.Fatalf("unexpected models: %#v", models)
	}

	// Health should succeed because ListModels returns at least one
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health failed: %v", err)
	}
}

func TestClient_Health_NoModels_Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ollama.Config{Timeout: 2 * time.Second})
	if err := client.Health(context.Background()); err == nil {
		t.Fatalf("expected Health to fail when no models returned")
	}
}

func TestClient_Generate_Streaming_Concatenates(t *testing.T) {
	// server streams two chunks; the client joins them
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/generate" {
			w.Header().Set("Content-Type", "application/x-ndjson")
			writeSequence(w, []map[string]any{
				{"model": "test-model", "response": `{"requirements":`, "done": false},
				{"model": "test-model", "response": `["login"]}`, "done": true, "eval_count": 7},
			}, 10*time.Millisecond)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ollama.Config{Timeout: 2 * time.Second})
	res, err := client.Generate(context.Background(), "test-model", "prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.Text != `{"requirements":["login"]}` {
		t.Fatalf("unexpected Generate.Text: %q", res.Text)
	}
	if res.Meta["model"] != "test-model" {
		t.Fatalf("unexpected meta: %#v", res.Meta)
	}
	if !strings.Contains(string(res.Raw), `"done":true`) {
		t.Fatalf("expected raw to hold the final chunk, got %s", res.Raw)
	}
}

func TestClient_GenerateWith_SendsOptions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/generate" {
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			writeSequence(w, []map[string]any{{"response": "{}", "done": true}}, 0)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ollama.Config{Timeout: 2 * time.Second})
	if _, err := client.GenerateWith(context.Background(), "m", "p", ollama.GenerateOptions{System: "be brief", JSON: true}); err != nil {
		t.Fatalf("GenerateWith failed: %v", err)
	}
	if got["format"] != "json" || got["system"] != "be brief" || got["stream"] != false || got["model"] != "m" {
		t.Fatalf("unexpected request body: %#v", got)
	}
}

func TestClient_Generate_RequiresModel(t *testing.T) {
	c, err := ollama.NewClient(ollama.Config{BaseURL: "http://localhost:11434"}, nil)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer c.Close()
	if _, err := c.Generate(context.Background(), "", "p"); err == nil {
		t.Fatalf("expected error without model")
	}
	if _, err := ollama.NewClient(ollama.Config{BaseURL: "not a url"}, nil); err == nil {
		t.Fatalf("expected error for invalid base url")
	}
}

func TestClient_Generate_Non200_Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"server error"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ollama.Config{Timeout: 2 * time.Second})
	if _, err := client.Generate(context.Background(), "test-model", "prompt"); err == nil {
		t.Fatalf("expected Generate to fail on non-200")
	}
}

func TestClient_Generate_MalformedJSON_Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{ this is : not json `))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, ollama.Config{Timeout: 2 * time.Second})
	if _, err := client.Generate(context.Background(), "test-model", "prompt"); err == nil {
		t.Fatalf("expected Generate to fail on malformed JSON")
	}
}
