package httpadapter

import (
	"net/http"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrRunNotFound),
		domain.IsKind(err, domain.ErrTemplateNotFound),
		domain.IsKind(err, domain.ErrAnswerNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrMemoryConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
