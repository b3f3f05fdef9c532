package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

type starterFake struct {
	err error
}

func (f starterFake) Start(_ context.Context, siteID, templateID string) (*domain.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Run{ID: "run-1", SiteID: siteID, TemplateID: templateID, Status: domain.RunInProgress}, nil
}

type reviewFake struct {
	err error
}

func (f reviewFake) Review(context.Context, string) (*domain.Run, []domain.Answer, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	run := &domain.Run{ID: "run-1", Status: domain.RunCompleted}
	answers := []domain.Answer{{RunID: "run-1", FieldID: "beds", Value: "220", ReviewStatus: domain.ReviewAccepted}}
	return run, answers, nil
}

func (f reviewFake) EditAnswer(_ context.Context, runID, fieldID string, edit domain.AnswerEdit) (*domain.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	answer := &domain.Answer{RunID: runID, FieldID: fieldID, ReviewStatus: edit.ReviewStatus}
	if edit.Value != nil {
		answer.Value = *edit.Value
	}
	return answer, nil
}

func (f reviewFake) Submit(_ context.Context, runID string, reviewMinutes float64) (*domain.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Run{ID: runID, Status: domain.RunCompleted, ReviewTimeMinutes: reviewMinutes}, nil
}

type sitesFake struct {
	err error
}

func (f sitesFake) SiteMetrics(_ context.Context, siteID string) (*domain.SiteMetrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SiteMetrics{SiteID: siteID, CompletedRuns: 3}, nil
}

type runReaderFake struct {
	err error
}

func (f runReaderFake) CreateRun(context.Context, *domain.Run) error { return nil }

func (f runReaderFake) GetRun(_ context.Context, id string) (*domain.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Run{ID: id, Status: domain.RunCompleted, AutofillPercentage: 62.5}, nil
}

func (f runReaderFake) FinishRun(context.Context, string, domain.RunStatus, float64) error {
	return nil
}
func (f runReaderFake) SubmitReview(context.Context, string, float64) error { return nil }
func (f runReaderFake) SaveAnswer(context.Context, *domain.Answer) error    { return nil }
func (f runReaderFake) GetAnswer(context.Context, string, string) (*domain.Answer, error) {
	return nil, nil
}
func (f runReaderFake) UpdateAnswerReview(context.Context, string, string, domain.AnswerEdit) error {
	return nil
}
func (f runReaderFake) ListAnswers(context.Context, string) ([]domain.Answer, error) {
	return nil, nil
}
func (f runReaderFake) SiteMetrics(context.Context, string) (*domain.SiteMetrics, error) {
	return nil, nil
}

func newTestHandler(starter starterFake, review reviewFake, sites sitesFake, runs runReaderFake) http.Handler {
	return NewRouter(starter, review, sites, runs, nil).Handler()
}

func TestStartRunReturnsAccepted(t *testing.T) {
	handler := newTestHandler(starterFake{}, reviewFake{}, sitesFake{}, runReaderFake{})

	payload, _ := json.Marshal(map[string]string{"site_id": "site-1", "template_id": "tpl-1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var run domain.Run
	if err := json.Unmarshal(res.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.ID != "run-1" || run.Status != domain.RunInProgress {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestStartRunRejectsInvalidJSON(t *testing.T) {
	handler := newTestHandler(starterFake{}, reviewFake{}, sitesFake{}, runReaderFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetRunMapsNotFoundTo404(t *testing.T) {
	notFound := domain.WrapError(domain.ErrRunNotFound, "get run", errors.New("id=missing"))
	handler := newTestHandler(starterFake{}, reviewFake{}, sitesFake{}, runReaderFake{err: notFound})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetReviewReturnsRunWithAnswers(t *testing.T) {
	handler := newTestHandler(starterFake{}, reviewFake{}, sitesFake{}, runReaderFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1/review", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body reviewResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Run == nil || len(body.Answers) != 1 || body.Answers[0].FieldID != "beds" {
		t.Fatalf("unexpected review payload %+v", body)
	}
}

func TestEditAnswerMapsInvalidInputTo400(t *testing.T) {
	invalid := domain.WrapError(domain.ErrInvalidInput, "edit answer", errors.New("edited status requires a value"))
	handler := newTestHandler(starterFake{}, reviewFake{err: invalid}, sitesFake{}, runReaderFake{})

	payload, _ := json.Marshal(map[string]string{"review_status": "edited"})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs/run-1/answers/beds", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSubmitRunRecordsReviewMinutes(t *testing.T) {
	handler := newTestHandler(starterFake{}, reviewFake{}, sitesFake{}, runReaderFake{})

	payload, _ := json.Marshal(map[string]float64{"review_time_minutes": 14})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs/run-1/submit", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var run domain.Run
	if err := json.Unmarshal(res.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.ReviewTimeMinutes != 14 {
		t.Fatalf("expected 14 review minutes, got %v", run.ReviewTimeMinutes)
	}
}

func TestSiteMetricsEndpoint(t *testing.T) {
	handler := newTestHandler(starterFake{}, reviewFake{}, sitesFake{}, runReaderFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/sites/site-1/metrics", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var sm domain.SiteMetrics
	if err := json.Unmarshal(res.Body.Bytes(), &sm); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if sm.SiteID != "site-1" || sm.CompletedRuns != 3 {
		t.Fatalf("unexpected metrics %+v", sm)
	}
}

func TestTemporaryErrorMapsTo503(t *testing.T) {
	unavailable := domain.WrapError(domain.ErrTemporary, "start run", errors.New("queue down"))
	handler := newTestHandler(starterFake{err: unavailable}, reviewFake{}, sitesFake{}, runReaderFake{})

	payload, _ := json.Marshal(map[string]string{"site_id": "site-1", "template_id": "tpl-1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	handler := newTestHandler(starterFake{}, reviewFake{}, sitesFake{}, runReaderFake{err: errors.New("pq: connection refused at 10.0.0.3")})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "10.0.0.3") {
		t.Fatalf("internal detail leaked: %s", res.Body.String())
	}
}
