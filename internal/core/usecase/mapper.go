package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/realvibe/site-copilot/internal/core/domain"
	"github.com/realvibe/site-copilot/internal/core/ports"
)

// ResolutionRequest is the canonical form of one template field heading
// into retrieval. Memory is non-nil whenever the site already holds an
// entry for the fingerprint; Reuse marks entries confident enough to
// short-circuit retrieval entirely.
type ResolutionRequest struct {
	Field              domain.TemplateField
	NormalizedQuestion string
	Fingerprint        string
	Query              string
	Memory             *domain.MemoryEntry
	Reuse              bool
}

type FieldMapper struct {
	memory         ports.MemoryStore
	cache          ports.MemoryCache
	reuseThreshold float64
	logger         *slog.Logger
}

func NewFieldMapper(memory ports.MemoryStore, cache ports.MemoryCache, reuseThreshold float64, logger *slog.Logger) *FieldMapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldMapper{
		memory:         memory,
		cache:          cache,
		reuseThreshold: reuseThreshold,
		logger:         logger,
	}
}

// Resolve normalizes the field and consults answer memory. Hints widen the
// retrieval query but never the fingerprint, so reworded sponsor templates
// keep hitting the same memory entry.
func (m *FieldMapper) Resolve(ctx context.Context, siteID string, field domain.TemplateField) (*ResolutionRequest, error) {
	if strings.TrimSpace(field.ID) == "" || strings.TrimSpace(field.Label) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve field", errors.New("field id and label are required"))
	}

	normalized := NormalizeQuestion(field.Label)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve field", errors.New("question text is empty after normalization"))
	}

	req := &ResolutionRequest{
		Field:              field,
		NormalizedQuestion: normalized,
		Fingerprint:        Fingerprint(normalized),
		Query:              buildQuery(normalized, field.Hints),
	}

	entry := m.lookupMemory(ctx, siteID, req.Fingerprint)
	if entry != nil {
		req.Memory = entry
		req.Reuse = entry.Confidence >= m.reuseThreshold
	}
	return req, nil
}

// lookupMemory is read-only and tolerates store failures: a broken lookup
// degrades to the retrieval path instead of failing the field.
func (m *FieldMapper) lookupMemory(ctx context.Context, siteID, fingerprint string) *domain.MemoryEntry {
	if m.cache != nil {
		entry, err := m.cache.Get(ctx, siteID, fingerprint)
		if err != nil {
			m.logger.Warn("memory_cache_read_failed", "site_id", siteID, "error", err)
		} else if entry != nil {
			return entry
		}
	}

	entry, err := m.memory.Lookup(ctx, siteID, fingerprint)
	if err != nil {
		m.logger.Warn("memory_lookup_failed", "site_id", siteID, "error", err)
		return nil
	}
	if entry != nil && m.cache != nil {
		if err := m.cache.Set(ctx, entry); err != nil {
			m.logger.Warn("memory_cache_fill_failed", "site_id", siteID, "error", err)
		}
	}
	return entry
}

func buildQuery(normalized string, hints []string) string {
	if len(hints) == 0 {
		return normalized
	}
	parts := make([]string, 0, len(hints)+1)
	parts = append(parts, normalized)
	for _, hint := range hints {
		hint = NormalizeQuestion(hint)
		if hint != "" {
			parts = append(parts, hint)
		}
	}
	return strings.Join(parts, " ")
}
