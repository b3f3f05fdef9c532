package usecase

import (
	"strings"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

type EvidenceConfig struct {
	// MinFusedScore is the relevance floor: candidates below it cannot
	// produce evidence at all.
	MinFusedScore float64
	Epsilon       float64
}

func (c EvidenceConfig) normalize() EvidenceConfig {
	out := c
	if out.MinFusedScore <= 0 {
		out.MinFusedScore = 0.15
	}
	if out.Epsilon <= 0 {
		out.Epsilon = 1e-9
	}
	return out
}

// Evidencer locates the minimal span inside a candidate chunk that answers
// a field and picks exactly one winner when candidates disagree. It never
// merges conflicting evidence.
type Evidencer struct {
	cfg EvidenceConfig
}

func NewEvidencer(cfg EvidenceConfig) *Evidencer {
	return &Evidencer{cfg: cfg.normalize()}
}

// Extract returns nil when no candidate clears the relevance floor; that is
// an expected outcome routed to needs_review downstream, not an error.
func (e *Evidencer) Extract(field domain.TemplateField, candidates []domain.RetrievedChunk) *domain.Evidence {
	if len(candidates) == 0 {
		return nil
	}

	// Conflict tie-break: higher fused score wins; scores within epsilon
	// fall back to most recent upload, then lower chunk id.
	ordered := make([]domain.RetrievedChunk, len(candidates))
	copy(ordered, candidates)
	sortCandidates(ordered, e.cfg.Epsilon)

	questionTokens := toTokenSet(field.Label)
	for _, hint := range field.Hints {
		for _, token := range tokenizeLower(hint) {
			questionTokens[token] = struct{}{}
		}
	}

	for _, chunk := range ordered {
		if chunk.Score < e.cfg.MinFusedScore {
			break
		}
		span, ok := bestSpan(questionTokens, chunk.Text)
		if !ok {
			continue
		}
		value := shapeValue(chunk.Text[span.start:span.end], field.AnswerType)
		if value == "" {
			continue
		}
		return &domain.Evidence{
			Value:      value,
			FileID:     chunk.FileID,
			Page:       chunk.Page,
			SpanStart:  span.start,
			SpanEnd:    span.end,
			FusedScore: chunk.Score,
		}
	}
	return nil
}

type span struct {
	start   int
	end     int
	overlap float64
}

// bestSpan scans sentence windows and keeps the one with the highest local
// token overlap with the question. Offsets are byte offsets into the chunk
// text so a recorded span reproduces exactly on re-fetch.
func bestSpan(questionTokens map[string]struct{}, text string) (span, bool) {
	best := span{}
	found := false
	for _, s := range sentenceSpans(text) {
		overlap := tokenOverlap(questionTokens, toTokenSet(text[s.start:s.end]))
		if overlap <= 0 {
			continue
		}
		if !found || overlap > best.overlap || (overlap == best.overlap && s.end-s.start < best.end-best.start) {
			best = s
			best.overlap = overlap
			found = true
		}
	}
	return best, found
}

func sentenceSpans(text string) []span {
	var out []span
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		s, e := trimSpan(text, start, end)
		if e > s {
			out = append(out, span{start: s, end: e})
		}
		start = -1
	}
	for i, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			flush(i)
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(text))
	return out
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	return start, end
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r'
}

// shapeValue applies light answer-type shaping to the winning span. Text
// and select answers keep the span verbatim; numeric and date fields keep
// only the matching token so spurious prose is not presented as a value.
func shapeValue(spanText string, answerType domain.AnswerType) string {
	spanText = strings.TrimSpace(spanText)
	switch answerType {
	case domain.TypeNumber:
		return firstNumericToken(spanText)
	case domain.TypeDate:
		return firstDateLikeToken(spanText)
	case domain.TypeBoolean:
		return booleanValue(spanText)
	default:
		return spanText
	}
}

func firstNumericToken(s string) string {
	for _, token := range strings.Fields(s) {
		token = strings.Trim(token, ",;:()")
		if token == "" {
			continue
		}
		hasDigit := false
		valid := true
		for _, r := range token {
			switch {
			case r >= '0' && r <= '9':
				hasDigit = true
			case r == '.' || r == ',' || r == '%' || r == '-' || r == '+':
			default:
				valid = false
			}
			if !valid {
				break
			}
		}
		if hasDigit && valid {
			return token
		}
	}
	return ""
}

func firstDateLikeToken(s string) string {
	fields := strings.Fields(s)
	for i, token := range fields {
		trimmed := strings.Trim(token, ",;:()")
		if looksLikeDate(trimmed) {
			return trimmed
		}
		// Month-name dates span up to three tokens ("12 March 2024").
		if i+2 < len(fields) && isMonthName(fields[i+1]) {
			return strings.Trim(strings.Join(fields[i:i+3], " "), ",;:()")
		}
	}
	return ""
}

func looksLikeDate(token string) bool {
	digits, separators := 0, 0
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '/' || r == '-' || r == '.':
			separators++
		default:
			return false
		}
	}
	return digits >= 4 && separators >= 1
}

func isMonthName(token string) bool {
	switch strings.ToLower(strings.Trim(token, ",;:")) {
	case "january", "february", "march", "april", "may", "june", "july",
		"august", "september", "october", "november", "december",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "oct", "nov", "dec":
		return true
	}
	return false
}

func booleanValue(s string) string {
	lowered := " " + strings.ToLower(s) + " "
	for _, negative := range []string{" no ", " not ", " none ", " never ", " without "} {
		if strings.Contains(lowered, negative) {
			return "no"
		}
	}
	return "yes"
}
