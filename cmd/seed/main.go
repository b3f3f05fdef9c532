package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/realvibe/site-copilot/internal/config"
	"github.com/realvibe/site-copilot/internal/core/domain"
	"github.com/realvibe/site-copilot/internal/infrastructure/repository/postgres"
	"github.com/realvibe/site-copilot/internal/observability/logging"
)

// seed loads questionnaire templates from a JSON file into Postgres so a
// deployment can start runs against them.
func main() {
	var path string
	flag.StringVar(&path, "file", "templates.json", "path to the template definitions file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("seed", cfg.LogLevel)

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read templates file", "path", path, "error", err)
		os.Exit(1)
	}
	var templates []domain.Template
	if err := json.Unmarshal(raw, &templates); err != nil {
		logger.Error("parse templates file", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		logger.Error("open postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	repo := postgres.NewTemplateRepository(db)
	for i := range templates {
		tpl := &templates[i]
		if tpl.ID == "" {
			tpl.ID = uuid.NewString()
		}
		if tpl.CreatedAt.IsZero() {
			tpl.CreatedAt = time.Now().UTC()
		}
		if err := repo.CreateTemplate(ctx, tpl); err != nil {
			logger.Error("create template", "template_id", tpl.ID, "error", err)
			os.Exit(1)
		}
		logger.Info("template seeded", "template_id", tpl.ID, "name", tpl.Name, "fields", len(tpl.Fields))
	}
}
