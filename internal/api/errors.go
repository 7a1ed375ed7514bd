package api

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/NoaSEED/juno-starknet-node-setup/internal/errors"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/jobs"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/middleware"
	"github.com/NoaSEED/juno-starknet-node-setup/internal/node"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, node.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrTaskNotFound):
		return http.StatusNotFound
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeAuth, apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeRateLimit:
		return http.StatusTooManyRequests
	case apperrors.CodeUpstream:
		return http.StatusBadGateway
	case apperrors.CodeState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err through the error handler and writes its JSON form.
// Sentinel errors the client can act on keep their own message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{}

	switch {
	case errors.Is(err, node.ErrInvalidAction):
		body.Error = "Acción no válida"
	case errors.Is(err, jobs.ErrDuplicateRequest):
		body.Error = "Ya hay una solicitud igual en curso"
	case errors.Is(err, jobs.ErrTaskNotFound):
		body.Error = "Solicitud no encontrada"
	default:
		body.Error, body.Retryable = s.deps.ErrHandler.Handle(r.Context(), err)
	}

	if appErr, ok := apperrors.As(err); ok {
		body.Code = appErr.Code
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
		}
	}

	middleware.WriteJSON(w, status, body)
}
