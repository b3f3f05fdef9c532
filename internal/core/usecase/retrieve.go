package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/realvibe/site-copilot/internal/core/domain"
	"github.com/realvibe/site-copilot/internal/core/ports"
)

type RetrievalConfig struct {
	LexicalWeight float64
	VectorWeight  float64
	Candidates    int
	Epsilon       float64
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	if out.LexicalWeight <= 0 && out.VectorWeight <= 0 {
		out.LexicalWeight = 0.4
		out.VectorWeight = 0.6
	}
	if out.Candidates <= 0 {
		out.Candidates = 30
	}
	if out.Epsilon <= 0 {
		out.Epsilon = 1e-9
	}
	return out
}

// HybridRetriever fuses lexical and vector similarity over a site's chunk
// corpus. Site id is a hard filter applied by the index, not a ranking
// signal.
type HybridRetriever struct {
	embedder ports.Embedder
	index    ports.ChunkIndex
	cfg      RetrievalConfig
}

func NewHybridRetriever(embedder ports.Embedder, index ports.ChunkIndex, cfg RetrievalConfig) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		index:    index,
		cfg:      cfg.normalize(),
	}
}

func (r *HybridRetriever) Search(ctx context.Context, siteID, queryText string, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = 5
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vector, err := r.index.SearchVector(ctx, siteID, queryVector, r.cfg.Candidates)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	lexical, err := r.index.SearchLexical(ctx, siteID, queryText, r.cfg.Candidates)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	fused := fuseCandidatesWeighted(lexical, vector, r.cfg.LexicalWeight, r.cfg.VectorWeight)
	sortCandidates(fused, r.cfg.Epsilon)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

type fusedCandidate struct {
	chunk   domain.RetrievedChunk
	lexical float64
	vector  float64
}

// fuseCandidatesWeighted min-max normalizes each score set over its own
// candidate pool, then combines per chunk with fixed weights.
func fuseCandidatesWeighted(lexical, vector []domain.RetrievedChunk, wLex, wVec float64) []domain.RetrievedChunk {
	if len(lexical) == 0 && len(vector) == 0 {
		return nil
	}

	lexNorm := minMaxNormalize(lexical)
	vecNorm := minMaxNormalize(vector)

	acc := make(map[string]fusedCandidate, len(lexical)+len(vector))
	add := func(chunks []domain.RetrievedChunk, norm map[string]float64, isLexical bool) {
		for _, chunk := range chunks {
			candidate := acc[chunk.ChunkID]
			candidate.chunk = preferRicherChunk(candidate.chunk, chunk)
			if isLexical {
				candidate.lexical = norm[chunk.ChunkID]
			} else {
				candidate.vector = norm[chunk.ChunkID]
			}
			acc[chunk.ChunkID] = candidate
		}
	}
	add(lexical, lexNorm, true)
	add(vector, vecNorm, false)

	out := make([]domain.RetrievedChunk, 0, len(acc))
	for _, c := range acc {
		chunk := c.chunk
		chunk.Score = wLex*c.lexical + wVec*c.vector
		out = append(out, chunk)
	}
	return out
}

func minMaxNormalize(chunks []domain.RetrievedChunk) map[string]float64 {
	out := make(map[string]float64, len(chunks))
	if len(chunks) == 0 {
		return out
	}

	minScore := chunks[0].Score
	maxScore := chunks[0].Score
	for _, chunk := range chunks[1:] {
		if chunk.Score < minScore {
			minScore = chunk.Score
		}
		if chunk.Score > maxScore {
			maxScore = chunk.Score
		}
	}

	scoreRange := maxScore - minScore
	for _, chunk := range chunks {
		if scoreRange <= 0 {
			// A single candidate, or all scores equal: everything is a
			// full-strength match within its own pool.
			out[chunk.ChunkID] = 1
			continue
		}
		out[chunk.ChunkID] = (chunk.Score - minScore) / scoreRange
	}
	return out
}

// sortCandidates orders by fused score, then newer file upload, then lower
// chunk id. Scores are quantized to the epsilon grid before comparing:
// pairwise "within epsilon" is not transitive, so sorting on it directly
// could order a chain of near-ties differently depending on input order.
// The grid rank is a total order, which keeps the result reproducible.
func sortCandidates(chunks []domain.RetrievedChunk, epsilon float64) {
	rank := func(score float64) float64 {
		return math.Round(score / epsilon)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		ri, rj := rank(chunks[i].Score), rank(chunks[j].Score)
		if ri != rj {
			return ri > rj
		}
		if !chunks[i].UploadedAt.Equal(chunks[j].UploadedAt) {
			return chunks[i].UploadedAt.After(chunks[j].UploadedAt)
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
}

func preferRicherChunk(current, candidate domain.RetrievedChunk) domain.RetrievedChunk {
	if current.ChunkID == "" {
		return candidate
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.FileID == "" && candidate.FileID != "" {
		current.FileID = candidate.FileID
	}
	if current.FileName == "" && candidate.FileName != "" {
		current.FileName = candidate.FileName
	}
	if current.Page == 0 && candidate.Page != 0 {
		current.Page = candidate.Page
	}
	if current.UploadedAt.IsZero() {
		current.UploadedAt = candidate.UploadedAt
	}
	return current
}
