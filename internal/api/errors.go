package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/nerrad567/valuecore/internal/apperror"
	"github.com/nerrad567/valuecore/internal/value"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("api server already started")

	// ErrNotStarted is returned by HealthCheck before Start.
	ErrNotStarted = errors.New("api server not started")

	// ErrBrokerRequired is returned by Start when realtime.require_broker is
	// set and the broker cannot be reached.
	ErrBrokerRequired = errors.New("realtime broker required but unavailable")
)

// internalError is the body written for any error outside the taxonomy.
var internalError = struct {
	Message    string `json:"message"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}{
	Message:    "internal server error",
	Status:     "error",
	StatusCode: http.StatusInternalServerError,
}

// handlerFunc is a route handler that reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts fn to http.HandlerFunc. Returned errors go through the
// error boundary.
func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

// writeError translates err into a response. Taxonomy errors are sent as
// declared; anything else is logged and reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperror.As(err); ok {
		if appErr.StatusCode >= http.StatusInternalServerError {
			s.logger.Error("request failed", requestAttrs(r, "error", err)...)
		}
		writeJSON(w, appErr.StatusCode, appErr.Serialize())
		return
	}

	s.logger.Error("unexpected error", requestAttrs(r, "error", err)...)
	writeJSON(w, http.StatusInternalServerError, internalError)
}

// translateValueError maps persistence and validation errors onto the
// taxonomy. Unknown errors pass through unchanged.
func translateValueError(err error) error {
	var verr *value.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperror.Validation(verr.Message, "values")
	case errors.Is(err, value.ErrValueNotFound):
		return apperror.NotFound("Value not found", "values")
	default:
		return err
	}
}

// notFound answers every unmatched route and method.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"message": r.URL.RequestURI() + " not found",
	})
}

// requestAttrs returns log attributes identifying r, followed by extra.
func requestAttrs(r *http.Request, extra ...any) []any {
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestIDFromContext(r.Context()),
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
		attrs = append(attrs, "trace_id", sc.TraceID().String())
	}
	return append(attrs, extra...)
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}
