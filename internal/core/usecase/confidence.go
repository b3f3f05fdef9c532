package usecase

import "github.com/realvibe/site-copilot/internal/core/domain"

// ScoringConfig holds the tunable confidence parameters. These are
// configuration, not business invariants; defaults favor reproducibility
// until offline calibration against pilot data lands.
type ScoringConfig struct {
	ReviewThreshold  float64
	ReuseThreshold   float64
	AgreementBonus   float64
	ShortSpanPenalty float64
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ReviewThreshold:  0.6,
		ReuseThreshold:   0.75,
		AgreementBonus:   0.1,
		ShortSpanPenalty: 0.15,
	}
}

func (c ScoringConfig) normalize() ScoringConfig {
	out := c
	def := DefaultScoringConfig()
	if out.ReviewThreshold <= 0 || out.ReviewThreshold > 1 {
		out.ReviewThreshold = def.ReviewThreshold
	}
	if out.ReuseThreshold <= 0 || out.ReuseThreshold > 1 {
		out.ReuseThreshold = def.ReuseThreshold
	}
	if out.AgreementBonus < 0 {
		out.AgreementBonus = def.AgreementBonus
	}
	if out.ShortSpanPenalty < 0 {
		out.ShortSpanPenalty = def.ShortSpanPenalty
	}
	return out
}

// ScoreInput is the fixed signal set the scorer combines. Keeping it a
// plain struct keeps the function pure and independently testable.
type ScoreInput struct {
	FusedScore      float64
	MemoryAgreement bool
	SpanLength      int
	AnswerType      domain.AnswerType
}

// Score combines retrieval strength, memory agreement and span-length
// sanity into a [0,1] confidence. Monotone non-decreasing in FusedScore
// for fixed evidence quality.
func Score(in ScoreInput, cfg ScoringConfig) float64 {
	cfg = cfg.normalize()

	confidence := in.FusedScore
	if in.MemoryAgreement {
		confidence += cfg.AgreementBonus
	}
	if in.SpanLength > 0 && in.SpanLength < minSpanLength(in.AnswerType) {
		confidence -= cfg.ShortSpanPenalty
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Gate classifies confidence against the review threshold. The boundary is
// inclusive: confidence equal to the threshold is accepted.
func Gate(confidence float64, cfg ScoringConfig) domain.ReviewStatus {
	cfg = cfg.normalize()
	if confidence >= cfg.ReviewThreshold {
		return domain.ReviewAccepted
	}
	return domain.ReviewNeedsReview
}

// minSpanLength is the shortest plausible evidence span per answer type;
// anything shorter is suspiciously thin support for that kind of field.
func minSpanLength(t domain.AnswerType) int {
	switch t {
	case domain.TypeNumber:
		return 1
	case domain.TypeBoolean:
		return 2
	case domain.TypeDate:
		return 6
	case domain.TypeSelect:
		return 2
	default:
		return 12
	}
}
