package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/pkordes/homecare/internal/domain"
)

// ErrorDetail is the body of every error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorDetail as {"error": {...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// errorKinds maps each domain sentinel to its status and code. Order matters:
// ErrAlreadyTaken wraps ErrConflict, so it must be checked first.
var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrAlreadyTaken, http.StatusConflict, "already_taken"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrPaymentPrecondition, http.StatusPreconditionFailed, "payment_precondition"},
	{domain.ErrPaymentFailed, http.StatusPaymentRequired, "payment_failed"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
}

// writeError maps err to a status and a sanitized body. Unknown errors are
// logged and reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			writeJSON(w, k.status, ErrorResponse{Error: ErrorDetail{Code: k.code, Message: unwrapMessage(err)}})
			return
		}
	}
	s.log.ErrorContext(r.Context(), "unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{Code: "internal", Message: "internal server error"}})
}

// requestError reports a request rejected before reaching the service layer
// (e.g. missing or malformed body, bad path parameter).
func requestError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: message}})
}

// unwrapMessage drops the "pkg.Type.Method: " call-site prefixes from a
// wrapped error, leaving the domain message.
// e.g. "service.VisitService.Match: conflict: visit is not released" -> "conflict: visit is not released"
func unwrapMessage(err error) string {
	parts := strings.Split(err.Error(), ": ")
	i := 0
	for i < len(parts)-1 && isCallSite(parts[i]) {
		i++
	}
	return strings.Join(parts[i:], ": ")
}

func isCallSite(s string) bool {
	return strings.Count(s, ".") >= 1 && !strings.ContainsAny(s, " \t")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into dst. It writes the error response itself
// and returns false when the body is missing, oversized or malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			requestError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			requestError(w, http.StatusUnprocessableEntity, "request body is required")
		default:
			requestError(w, http.StatusUnprocessableEntity, "malformed request body")
		}
		return false
	}
	return true
}
