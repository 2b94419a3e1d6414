// Package content validates phase payloads against per-phase JSON schemas
// stored in the database.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/repository"
	"github.com/qri-io/jsonschema"
)

// Loader loads and caches compiled phase schemas from the repository.
type Loader struct {
	repo  repository.SchemaRepo
	mu    sync.RWMutex
	cache map[int]*jsonschema.Schema
}

var _ workflow.ContentValidator = (*Loader)(nil)

func NewLoader(ctx context.Context, r repository.SchemaRepo) (*Loader, error) {
	if r == nil {
		return nil, fmt.Errorf("schema repo is required")
	}
	l := &Loader{
		repo:  r,
		cache: make(map[int]*jsonschema.Schema),
	}
	// initial load
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// GetSchema returns the compiled schema of a phase number.
func (l *Loader) GetSchema(phaseNumber int) (*jsonschema.Schema, bool) {
	l.mu.RLock()
	s, ok := l.cache[phaseNumber]
	l.mu.RUnlock()

	return s, ok
}

// Reload loads all schemas from the DB and compiles them.
func (l *Loader) Reload(ctx context.Context) error {
	rows, err := l.repo.ListPhaseSchemas(ctx)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	newCache := make(map[int]*jsonschema.Schema, len(rows))
	for _, r := range rows {
		rs, err := Compile(r.SchemaJSON)
		if err != nil {
			return fmt.Errorf("compile schema for phase %d: %w", r.PhaseNumber, err)
		}
		newCache[r.PhaseNumber] = rs
	}

	l.mu.Lock()
	l.cache = newCache
	l.mu.Unlock()
	return nil
}

// Put stores the schema of a phase number and refreshes the cache.
func (l *Loader) Put(ctx context.Context, phaseNumber int, description, schemaJSON string) (*models.PhaseSchema, error) {
	if phaseNumber < 1 || phaseNumber > workflow.MaxPhaseCount {
		return nil, &workflow.ValidationError{Field: "phase_number", Message: fmt.Sprintf("must be between 1 and %d", workflow.MaxPhaseCount)}
	}
	if _, err := Compile(schemaJSON); err != nil {
		return nil, &workflow.ValidationError{Field: "schema", Message: err.Error()}
	}
	if _, err := l.repo.UpsertPhaseSchema(ctx, phaseNumber, description, schemaJSON); err != nil {
		return nil, err
	}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l.repo.GetPhaseSchema(ctx, phaseNumber)
}

// Delete removes the schema of a phase number. Phases without a schema only
// need non-empty content to be submitted.
func (l *Loader) Delete(ctx context.Context, phaseNumber int) error {
	if err := l.repo.DeletePhaseSchema(ctx, phaseNumber); err != nil {
		return err
	}
	return l.Reload(ctx)
}

// List returns the stored schemas ordered by phase number.
func (l *Loader) List(ctx context.Context) ([]models.PhaseSchema, error) {
	return l.repo.ListPhaseSchemas(ctx)
}

// ValidatePhaseContent validates data against the schema of phaseNumber and
// returns one message per violation.
func (l *Loader) ValidatePhaseContent(ctx context.Context, phaseNumber int, data []byte) ([]string, error) {
	s, ok := l.GetSchema(phaseNumber)
	if !ok || s == nil {
		return nil, nil
	}

	verrs, err := s.ValidateBytes(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("schema validate error: %w", err)
	}
	if len(verrs) == 0 {
		return nil, nil
	}

	issues := make([]string, 0, len(verrs))
	for _, v := range verrs {
		if v.PropertyPath != "" && v.PropertyPath != "/" {
			issues = append(issues, v.PropertyPath+": "+v.Message)
			continue
		}
		issues = append(issues, v.Message)
	}
	sort.Strings(issues)
	return issues, nil
}

// Compile parses a JSON schema document.
func Compile(schemaJSON string) (*jsonschema.Schema, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(schemaJSON), rs); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return rs, nil
}
