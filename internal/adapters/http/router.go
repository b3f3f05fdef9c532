package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/realvibe/site-copilot/internal/core/domain"
	"github.com/realvibe/site-copilot/internal/core/ports"
	"github.com/realvibe/site-copilot/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	starter ports.RunStarter
	review  ports.ReviewService
	sites   ports.SiteMetricsReader
	runs    ports.RunRepository
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(
	starter ports.RunStarter,
	review ports.ReviewService,
	sites ports.SiteMetricsReader,
	runs ports.RunRepository,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		starter: starter,
		review:  review,
		sites:   sites,
		runs:    runs,
		metrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/runs", rt.startRun)
	mux.HandleFunc("GET /v1/runs/{run_id}", rt.getRun)
	mux.HandleFunc("GET /v1/runs/{run_id}/review", rt.getReview)
	mux.HandleFunc("POST /v1/runs/{run_id}/answers/{field_id}", rt.editAnswer)
	mux.HandleFunc("POST /v1/runs/{run_id}/submit", rt.submitRun)
	mux.HandleFunc("GET /v1/sites/{site_id}/metrics", rt.siteMetrics)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) startRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteID     string `json:"site_id"`
		TemplateID string `json:"template_id"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode request", err))
		return
	}

	run, err := rt.starter.Start(r.Context(), req.SiteID, req.TemplateID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRunStarted(serviceName)
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := rt.runs.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) getReview(w http.ResponseWriter, r *http.Request) {
	run, answers, err := rt.review.Review(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewResponse{Run: run, Answers: answers})
}

func (rt *Router) editAnswer(w http.ResponseWriter, r *http.Request) {
	var edit domain.AnswerEdit
	if err := decodeJSON(r.Body, &edit); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode request", err))
		return
	}

	answer, err := rt.review.EditAnswer(r.Context(), r.PathValue("run_id"), r.PathValue("field_id"), edit)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordReviewEdit(serviceName, string(answer.ReviewStatus))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) submitRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReviewMinutes float64 `json:"review_time_minutes"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode request", err))
		return
	}

	run, err := rt.review.Submit(r.Context(), r.PathValue("run_id"), req.ReviewMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSubmission(serviceName, req.ReviewMinutes)
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) siteMetrics(w http.ResponseWriter, r *http.Request) {
	sm, err := rt.sites.SiteMetrics(r.Context(), r.PathValue("site_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sm)
}

type reviewResponse struct {
	Run     *domain.Run     `json:"run"`
	Answers []domain.Answer `json:"answers"`
}

func decodeJSON(body io.Reader, dst any) error {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
