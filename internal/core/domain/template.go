package domain

import "time"

type AnswerType string

const (
	TypeText    AnswerType = "text"
	TypeNumber  AnswerType = "number"
	TypeDate    AnswerType = "date"
	TypeBoolean AnswerType = "boolean"
	TypeSelect  AnswerType = "select"
)

// TemplateField is one question of a sponsor questionnaire. Hints refine
// retrieval only; they never participate in the question fingerprint.
type TemplateField struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	AnswerType AnswerType `json:"answer_type"`
	Hints      []string   `json:"hints,omitempty"`
}

// Template is a sponsor questionnaire schema. Immutable once referenced by
// a run; new sponsor versions get a new template id.
type Template struct {
	ID        string          `json:"id"`
	Sponsor   string          `json:"sponsor"`
	Name      string          `json:"name"`
	Version   int             `json:"version"`
	Fields    []TemplateField `json:"fields"`
	CreatedAt time.Time       `json:"created_at"`
}
