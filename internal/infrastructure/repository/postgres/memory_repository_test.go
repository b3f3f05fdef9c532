package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

func memoryEntryFixture() *domain.MemoryEntry {
	return &domain.MemoryEntry{
		SiteID:       "site-1",
		QuestionHash: "abc123",
		QuestionText: "number of beds",
		AnswerValue:  "220",
		Evidence:     domain.EvidenceLink{FileID: "file-1", Page: 4, SpanStart: 10, SpanEnd: 44},
		Confidence:   0.82,
		LastUpdated:  time.Now().UTC(),
	}
}

func TestMemoryRepositoryLookupMissReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewMemoryRepository(db)
	mock.ExpectQuery("FROM answer_memory").
		WithArgs("site-1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"site_id"}))

	entry, err := repo.Lookup(context.Background(), "site-1", "missing")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil on miss, got %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemoryRepositoryLookupScansEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewMemoryRepository(db)
	rows := sqlmock.NewRows([]string{
		"site_id", "question_hash", "question_text", "answer_value",
		"evidence_file_id", "evidence_page", "evidence_span_start", "evidence_span_end",
		"confidence", "version", "last_updated",
	}).AddRow("site-1", "abc123", "number of beds", "220", "file-1", 4, 10, 44, 0.82, 3, time.Now())

	mock.ExpectQuery("FROM answer_memory").
		WithArgs("site-1", "abc123").
		WillReturnRows(rows)

	entry, err := repo.Lookup(context.Background(), "site-1", "abc123")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry.AnswerValue != "220" || entry.Version != 3 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Evidence.FileID != "file-1" || entry.Evidence.SpanEnd != 44 {
		t.Fatalf("unexpected evidence %+v", entry.Evidence)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemoryRepositoryInsertConflictWhenRowExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewMemoryRepository(db)
	mock.ExpectExec("INSERT INTO answer_memory").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Upsert(context.Background(), memoryEntryFixture(), 0)
	if !domain.IsKind(err, domain.ErrMemoryConflict) {
		t.Fatalf("expected memory conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemoryRepositoryInsertSetsVersionOne(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewMemoryRepository(db)
	mock.ExpectExec("INSERT INTO answer_memory").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := memoryEntryFixture()
	if err := repo.Upsert(context.Background(), entry, 0); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if entry.Version != 1 {
		t.Fatalf("expected version 1, got %d", entry.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemoryRepositoryUpdateBumpsVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewMemoryRepository(db)
	mock.ExpectExec("UPDATE answer_memory").
		WithArgs("site-1", "abc123", int64(3),
			"number of beds", "220", "file-1", 4, 10, 44, 0.82, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := memoryEntryFixture()
	if err := repo.Upsert(context.Background(), entry, 3); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if entry.Version != 4 {
		t.Fatalf("expected version 4, got %d", entry.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemoryRepositoryUpdateConflictWhenVersionMoved(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewMemoryRepository(db)
	mock.ExpectExec("UPDATE answer_memory").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Upsert(context.Background(), memoryEntryFixture(), 3)
	if !domain.IsKind(err, domain.ErrMemoryConflict) {
		t.Fatalf("expected memory conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
