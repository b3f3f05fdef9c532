package domain

import "time"

// RetrievedChunk is one candidate text fragment returned by the document
// index. UploadedAt carries the owning file's upload date for tie-breaks.
type RetrievedChunk struct {
	ChunkID    string    `json:"chunk_id"`
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	Page       int       `json:"page"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Evidence is the winning citation for a field: exactly one chunk's value
// and span, never a merge of several candidates.
type Evidence struct {
	Value      string
	FileID     string
	Page       int
	SpanStart  int
	SpanEnd    int
	FusedScore float64
}

func (e Evidence) Link() EvidenceLink {
	return EvidenceLink{
		FileID:    e.FileID,
		Page:      e.Page,
		SpanStart: e.SpanStart,
		SpanEnd:   e.SpanEnd,
	}
}
