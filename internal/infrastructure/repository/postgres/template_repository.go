package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) CreateTemplate(ctx context.Context, tpl *domain.Template) error {
	fields, err := json.Marshal(tpl.Fields)
	if err != nil {
		return fmt.Errorf("marshal template fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO questionnaire_templates (id, sponsor, name, version, fields, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, tpl.ID, tpl.Sponsor, tpl.Name, tpl.Version, fields, tpl.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, sponsor, name, version, fields, created_at
FROM questionnaire_templates
WHERE id = $1
`, id)

	var tpl domain.Template
	var fieldsRaw []byte
	err := row.Scan(&tpl.ID, &tpl.Sponsor, &tpl.Name, &tpl.Version, &fieldsRaw, &tpl.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTemplateNotFound, "get template", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	if err := json.Unmarshal(fieldsRaw, &tpl.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal template fields: %w", err)
	}
	return &tpl, nil
}
