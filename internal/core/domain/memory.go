package domain

import "time"

// MemoryEntry is the canonical answer for (site, question fingerprint).
// At most one row exists per key; upsert replaces value and evidence
// wholesale. Version increments on every committed write and backs the
// compare-and-swap conflict check.
type MemoryEntry struct {
	SiteID       string       `json:"site_id"`
	QuestionHash string       `json:"question_hash"`
	QuestionText string       `json:"question_text"`
	AnswerValue  string       `json:"answer_value"`
	Evidence     EvidenceLink `json:"evidence"`
	Confidence   float64      `json:"confidence"`
	Version      int64        `json:"version"`
	LastUpdated  time.Time    `json:"last_updated"`
}
