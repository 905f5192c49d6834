package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/hookgate/pkg/domain"
)

// statusFor maps an error to its HTTP status by domain kind.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState:
		return http.StatusConflict
	case domain.KindCapacity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an ErrorResponse. Messages of infrastructure
// errors are not exposed to callers.
func writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)

	var de *domain.DomainError
	code := "INTERNAL"
	if errors.As(err, &de) {
		code = de.Code
		if message == "" {
			message = err.Error()
		}
	} else {
		message = "internal error"
	}

	writeErrorResponse(w, r, status, code, message)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := domain.ErrorResponse{Code: code, Message: message}
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		resp.TraceID = sc.TraceID().String()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
