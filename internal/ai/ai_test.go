package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/garnizeh/taosdlc/internal/ai"
	"github.com/garnizeh/taosdlc/internal/config"
	"github.com/garnizeh/taosdlc/pkg/ollama"
)

// mockModel returns a canned answer and records the last prompt.
type mockModel struct {
	out    string
	err    error
	prompt string
	opts   ollama.GenerateOptions
}

func (m *mockModel) GenerateWith(ctx context.Context, model, prompt string, opts ollama.GenerateOptions) (ollama.GenerateResult, error) {
	m.prompt = prompt
	m.opts = opts
	if m.err != nil {
		return ollama.GenerateResult{}, m.err
	}
	return ollama.GenerateResult{Text: m.out, Meta: map[string]any{"model": model}}, nil
}

type stubValidator struct {
	issues []string
}

func (v stubValidator) ValidatePhaseContent(ctx context.Context, phaseNumber int, data []byte) ([]string, error) {
	return v.issues, nil
}

func newEngine(t *testing.T, m ai.Model, v stubValidator) *ai.Engine {
	t.Helper()
	e, err := ai.NewEngine(m, config.AIConfig{Model: "llama3"}, v, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestParseSuggestion(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		content string
		wantErr bool
	}{
		{name: "envelope", in: `{"content":{"requirements":["login"]},"confidence":0.8,"reasoning":"r"}`, content: `{"requirements":["login"]}`},
		{name: "markdown wrapped", in: "Here it is:\n```json\n{\"content\":{\"stories\":[1]}}\n```", content: `{"stories":[1]}`},
		{name: "bare document", in: `{"requirements":["sso"]}`, content: `{"requirements":["sso"]}`},
		{name: "string content", in: `{"content":"plain text"}`, content: `{"content":"plain text"}`},
		{name: "empty", in: "  ", wantErr: true},
		{name: "no json", in: "sorry, I cannot", wantErr: true},
		{name: "empty content", in: `{"content":{}}`, wantErr: true},
		{name: "broken", in: `{"content": {`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ai.ParseSuggestion(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %#v", s)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if string(s.Content) != tt.content {
				t.Fatalf("content = %s, want %s", s.Content, tt.content)
			}
		})
	}
}

func TestAssessConfidence(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	doc := json.RawMessage(`{"a":1}`)
	tests := []struct {
		name     string
		s        ai.Suggestion
		reported *float64
		want     int
	}{
		{name: "fraction", s: ai.Suggestion{Content: doc}, reported: f(0.87), want: 87},
		{name: "percent", s: ai.Suggestion{Content: doc}, reported: f(64), want: 64},
		{name: "out of range falls back", s: ai.Suggestion{Content: doc, Reasoning: "r"}, reported: f(150), want: 100},
		{name: "heuristic without reasoning", s: ai.Suggestion{Content: doc}, want: 80},
		{name: "issues cap", s: ai.Suggestion{Content: doc, Issues: []string{"x"}}, reported: f(0.9), want: 30},
		{name: "negative falls back", s: ai.Suggestion{}, reported: f(-1), want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ai.AssessConfidence(&tt.s, tt.reported)
			if got != tt.want {
				t.Fatalf("AssessConfidence = %d, want %d", got, tt.want)
			}
			if got < 0 || got > 100 {
				t.Fatalf("confidence out of bounds: %d", got)
			}
		})
	}
}

func TestGeneratePhase(t *testing.T) {
	m := &mockModel{out: "```json\n{\"content\":{\"requirements\":[\"login\",\"sso\"]},\"confidence\":0.72,\"reasoning\":\"derived from the request\"}\n```"}
	e := newEngine(t, m, stubValidator{})

	s, err := e.GeneratePhase(context.Background(), ai.PhaseRequest{
		ProjectName: "Portal",
		PhaseNumber: 2,
		PhaseName:   "Architecture & Design",
		Request:     "propose a design",
		PriorPhases: []ai.PriorPhase{{Number: 1, Name: "Requirements Analysis", Content: `{"requirements":["login"]}`}},
	})
	if err != nil {
		t.Fatalf("GeneratePhase: %v", err)
	}
	if s.Confidence != 72 || s.Model != "llama3" || len(s.Issues) != 0 {
		t.Fatalf("unexpected suggestion: %#v", s)
	}
	if !m.opts.JSON || m.opts.System == "" {
		t.Fatalf("expected JSON mode with a system prompt, got %#v", m.opts)
	}
	for _, want := range []string{"Portal", "phase 2 (Architecture & Design)", "Requirements Analysis", "propose a design"} {
		if !strings.Contains(m.prompt, want) {
			t.Fatalf("prompt does not mention %q:\n%s", want, m.prompt)
		}
	}
}

func TestGeneratePhase_SchemaIssuesLowerConfidence(t *testing.T) {
	m := &mockModel{out: `{"content":{"notes":"x"},"confidence":0.95}`}
	e := newEngine(t, m, stubValidator{issues: []string{"missing requirements"}})

	s, err := e.GeneratePhase(context.Background(), ai.PhaseRequest{PhaseNumber: 1, PhaseName: "Requirements Analysis", Request: "draft"})
	if err != nil {
		t.Fatalf("GeneratePhase: %v", err)
	}
	if s.Confidence != 30 || len(s.Issues) != 1 {
		t.Fatalf("expected capped confidence with issues, got %#v", s)
	}
}

func TestGeneratePhase_Errors(t *testing.T) {
	boom := errors.New("ollama down")
	e := newEngine(t, &mockModel{err: boom}, stubValidator{})
	if _, err := e.GeneratePhase(context.Background(), ai.PhaseRequest{Request: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}

	e = newEngine(t, &mockModel{out: "no idea"}, stubValidator{})
	if _, err := e.GeneratePhase(context.Background(), ai.PhaseRequest{Request: "x"}); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := e.GeneratePhase(context.Background(), ai.PhaseRequest{}); err == nil {
		t.Fatalf("expected error for empty request")
	}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := ai.NewEngine(nil, config.AIConfig{Model: "m"}, nil, nil); err == nil {
		t.Fatalf("expected error without client")
	}
	if _, err := ai.NewEngine(&mockModel{}, config.AIConfig{}, nil, nil); err == nil {
		t.Fatalf("expected error without model")
	}
	if _, err := ai.NewEngine(&mockModel{}, config.AIConfig{Model: "m", Template: "{{.Broken"}, nil, nil); err == nil {
		t.Fatalf("expected template parse error")
	}

	e, err := ai.NewEngine(&mockModel{}, config.AIConfig{Model: "m", Template: "{{.PhaseName}}: {{.Request}}"}, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	p, err := e.RenderPrompt(ai.PhaseRequest{PhaseName: "QA", Request: "tests"})
	if err != nil || p != "QA: tests" {
		t.Fatalf("RenderPrompt = %q, %v", p, err)
	}
}
