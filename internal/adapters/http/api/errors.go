package api

import (
	"errors"
	"net/http"

	repository "github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/repository"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// classify returns the status code and machine-readable code for err.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, model.ErrMissingReason):
		return http.StatusUnprocessableEntity, "missing_reason"
	case errors.Is(err, model.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, model.ErrScoreCardLocked):
		return http.StatusConflict, "scorecard_locked"
	case errors.Is(err, model.ErrIncompleteRequiredMarks):
		return http.StatusConflict, "incomplete_required_marks"
	case errors.Is(err, model.ErrAlreadyPublishedNoChange):
		return http.StatusConflict, "already_published"
	case errors.Is(err, model.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, model.ErrTemplateImmutable):
		return http.StatusConflict, "template_immutable"
	case errors.Is(err, model.ErrTemplateInUse):
		return http.StatusConflict, "template_in_use"
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, model.ErrNoEligibleScoreCards):
		return http.StatusNotFound, "no_eligible_scorecards"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
