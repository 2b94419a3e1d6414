package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"
)

var ErrCircuitOpen = errors.New("ollama circuit open")

// Client wraps the Ollama API client and adds retries, timeout, and circuit breaker.
type Client struct {
	api    *api.Client
	cfg    Config
	client *http.Client

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32 // atomic flag for Close()
}

// GenerateResult is a typed representation of a model response.
type GenerateResult struct {
	Text string          `json:"text"`
	Raw  json.RawMessage `json:"raw"`
	Meta map[string]any  `json:"meta,omitempty"`
}

// GenerateOptions tunes a single generation request.
type GenerateOptions struct {
	// System overrides the model's system prompt.
	System string
	// JSON asks the model to answer with a JSON document.
	JSON bool
}

// NewClient creates a new Ollama client wrapper. Zero config fields take their defaults.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg = cfg.WithDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{
		api:    api.NewClient(u, httpClient),
		cfg:    cfg,
		client: httpClient,
	}
	logger.Debug("ollama: client created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

func NewDefaultClient(cfg Config) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}

	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}

	// attempt half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

// Close releases idle connections of the underlying HTTP transport when
// supported. Close is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
			logger.Debug("ollama: idle connections closed")
		}
	}
	return nil
}

// package-level logger for pkg/ollama; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// SetLogger sets the logger used by pkg/ollama. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

// Health checks that the Ollama instance answers and has at least one model.
func (c *Client) Health(ctx context.Context) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	models, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if len(models) == 0 {
		c.recordFailure()
		return fmt.Errorf("health check failed: no models returned")
	}

	return nil
}

// ModelInfo is a lightweight model descriptor returned by ListModels.
type ModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ListModels returns the models installed on the Ollama instance.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if c.isCircuitOpen() {
		return nil, ErrCircuitOpen
	}

	resp, err := c.api.List(ctx)
	if err != nil {
		c.recordFailure()
		return nil, err
	}

	out := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, ModelInfo{Name: m.Name, Size: m.Size})
	}

	atomic.StoreInt32(&c.failures, 0)
	return out, nil
}

// Generate sends a prompt to the model and returns the complete response. It
// supports retries and timeouts.
func (c *Client) Generate(ctx context.Context, model string, prompt string) (GenerateResult, error) {
	return c.GenerateWith(ctx, model, prompt, GenerateOptions{})
}

// GenerateWith is Generate with per-request options.
func (c *Client) GenerateWith(ctx context.Context, model, prompt string, opts GenerateOptions) (GenerateResult, error) {
	var lastErr error
	var empty GenerateResult
	if c.isCircuitOpen() {
		return empty, ErrCircuitOpen
	}
	if model == "" {
		return empty, errors.New("model is required")
	}

	stream := false
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		ctxReq, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		req := &api.GenerateRequest{Model: model, Prompt: prompt, System: opts.System, Stream: &stream}
		if opts.JSON {
			req.Format = json.RawMessage(`"json"`)
		}

		var text strings.Builder
		var last api.GenerateResponse
		start := time.Now()
		err := c.api.Generate(ctxReq, req, func(r api.GenerateResponse) error {
			// a streamed answer arrives in chunks; the last chunk carries the stats
			text.WriteString(r.Response)
			last = r
			return nil
		})
		cancel()
		latency := time.Since(start)

		if err == nil {
			rawB, _ := json.Marshal(last)
			atomic.StoreInt32(&c.failures, 0)
			meta := map[string]any{
				"model":      model,
				"latency_ms": latency.Milliseconds(),
				"eval_count": last.EvalCount,
			}
			logger.Debug("ollama: generate ok", slog.String("model", model), slog.Int("attempt", attempt+1), slog.Duration("latency", latency))
			return GenerateResult{Text: text.String(), Raw: rawB, Meta: meta}, nil
		}

		lastErr = err
		c.recordFailure()
		logger.Warn("ollama: generate failed", slog.String("model", model), slog.Int("attempt", attempt+1), slog.Any("error", err))
		if ctx.Err() != nil {
			return empty, ctx.Err()
		}
		if attempt == c.cfg.Retries {
			break
		}

		// backoff
		t := time.NewTimer(c.cfg.Backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return empty, ctx.Err()
		case <-t.C:
		}
		if c.isCircuitOpen() {
			return empty, ErrCircuitOpen
		}
	}

	return empty, fmt.Errorf("generate failed after retries: %w", lastErr)
}
