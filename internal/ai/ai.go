// Package ai drafts phase content with a language model.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/garnizeh/taosdlc/internal/config"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/ollama"
)

// Model is the subset of the Ollama client the engine needs.
type Model interface {
	GenerateWith(ctx context.Context, model, prompt string, opts ollama.GenerateOptions) (ollama.GenerateResult, error)
}

var _ Model = (*ollama.Client)(nil)

// PriorPhase is the approved content of an earlier phase given to the model as context.
type PriorPhase struct {
	Number  int
	Name    string
	Content string
}

// PhaseRequest describes what the model should draft.
type PhaseRequest struct {
	ProjectName        string
	ProjectDescription string
	PhaseNumber        int
	PhaseName          string
	Request            string
	CurrentContent     string
	PriorPhases        []PriorPhase
}

// Suggestion is a drafted phase document.
type Suggestion struct {
	Content    json.RawMessage `json:"content"`
	Confidence int             `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
	Issues     []string        `json:"issues,omitempty"`
	Model      string          `json:"model"`

	// Raw captures the original model output for auditing/logging.
	Raw string `json:"-"`
}

// modelAnswer is the envelope the prompt asks the model to answer with.
type modelAnswer struct {
	Content    json.RawMessage `json:"content"`
	Confidence *float64        `json:"confidence,omitempty"`
	Reasoning  string          `json:"reasoning"`
}

// Engine wraps a model client and drafts phase documents.
type Engine struct {
	client    Model
	cfg       config.AIConfig
	tpl       *template.Template
	validator workflow.ContentValidator
	logger    *slog.Logger
}

// NewEngine creates a new AI engine. A nil validator skips schema checks of drafts.
func NewEngine(client Model, cfg config.AIConfig, validator workflow.ContentValidator, logger *slog.Logger) (*Engine, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	text := cfg.Template
	if strings.TrimSpace(text) == "" {
		text = DefaultPhaseTemplate
	}
	tpl, err := template.New("phase").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	return &Engine{client: client, cfg: cfg, tpl: tpl, validator: validator, logger: logger}, nil
}

// RenderPrompt renders the prompt for a phase request.
func (e *Engine) RenderPrompt(req PhaseRequest) (string, error) {
	var buf bytes.Buffer
	if err := e.tpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

// GeneratePhase drafts the content of a phase.
func (e *Engine) GeneratePhase(ctx context.Context, req PhaseRequest) (*Suggestion, error) {
	if strings.TrimSpace(req.Request) == "" {
		return nil, errors.New("request is required")
	}
	prompt, err := e.RenderPrompt(req)
	if err != nil {
		return nil, err
	}

	// call LLM with timeout
	ctxReq, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := e.client.GenerateWith(ctxReq, e.cfg.Model, prompt, ollama.GenerateOptions{System: systemPrompt, JSON: true})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	s, err := ParseSuggestion(out.Text)
	if err != nil {
		e.logger.Warn("ai parse error", "phase_number", req.PhaseNumber, "err", err, "raw", out.Text)
		return nil, fmt.Errorf("parse response: %w", err)
	}
	s.Model = e.cfg.Model

	if e.validator != nil {
		issues, verr := e.validator.ValidatePhaseContent(ctxReq, req.PhaseNumber, s.Content)
		if verr != nil {
			return nil, verr
		}
		s.Issues = issues
	}

	s.Confidence = AssessConfidence(s, confidenceOf(out.Text))
	e.logger.Info("phase draft generated", "phase_number", req.PhaseNumber, "confidence", s.Confidence, "issues", len(s.Issues))

	return s, nil
}

// ParseSuggestion extracts the answer envelope from arbitrary model output. Output
// without a content field is taken as the document itself.
func ParseSuggestion(s string) (*Suggestion, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty response")
	}

	j := extractJSON(s)
	if j == "" {
		return nil, errors.New("no JSON object found in response")
	}

	var ans modelAnswer
	if err := json.Unmarshal([]byte(j), &ans); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	content := ans.Content
	if len(bytes.TrimSpace(content)) == 0 || string(bytes.TrimSpace(content)) == "null" {
		content = json.RawMessage(j)
		ans.Reasoning = ""
	}
	if !workflow.HasContent(content) {
		return nil, errors.New("response has no content")
	}

	// string content is wrapped so the phase document stays a JSON object
	var str string
	if json.Unmarshal(content, &str) == nil {
		b, _ := json.Marshal(map[string]string{"content": str})
		content = b
	}

	return &Suggestion{Content: content, Reasoning: ans.Reasoning, Raw: s}, nil
}

// extractJSON returns the substring from the first '{' to the last '}' in the input.
// This handles model outputs that wrap JSON in text or markdown.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}

// confidenceOf returns the self-reported confidence of the answer, if any.
func confidenceOf(s string) *float64 {
	var ans modelAnswer
	if err := json.Unmarshal([]byte(extractJSON(s)), &ans); err != nil {
		return nil
	}
	return ans.Confidence
}

// AssessConfidence returns a score in [0,100]. A self-reported confidence in
// [0,1] or [0,100] is used when present, otherwise a heuristic over the draft.
// Schema issues cap the score at 30.
func AssessConfidence(s *Suggestion, reported *float64) int {
	var score float64
	switch {
	case reported != nil && *reported >= 0 && *reported <= 1:
		score = *reported * 100
	case reported != nil && *reported > 1 && *reported <= 100:
		score = *reported
	default:
		if workflow.HasContent(s.Content) {
			score += 50
		}
		if strings.TrimSpace(s.Reasoning) != "" {
			score += 20
		}
		if len(s.Issues) == 0 {
			score += 30
		}
	}
	if len(s.Issues) > 0 && score > 30 {
		score = 30
	}

	n := int(math.Round(score))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
