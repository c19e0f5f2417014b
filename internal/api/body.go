package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/render"

	"github.com/nerrad567/valuecore/internal/apperror"
)

const ctxKeyBody contextKey = "body"

// Body is the parsed request body.
type Body struct {
	// Raw holds the bytes as received.
	Raw []byte
	// Fields holds the decoded JSON object or url-encoded form. It is empty
	// for bodiless requests and nil for other content types.
	Fields map[string]any
}

// BodyFromContext returns the body parsed by the body stage, or nil.
func BodyFromContext(ctx context.Context) *Body {
	b, _ := ctx.Value(ctxKeyBody).(*Body) //nolint:errcheck // type assertion, not error
	return b
}

// bodyMiddleware reads and decodes JSON and url-encoded bodies up to the
// configured limit. Oversized bodies are rejected with 413 and malformed
// ones with 400 before any route runs.
func (s *Server) bodyMiddleware(next http.Handler) http.Handler {
	limit := s.cfg.Server.BodyLimit

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyBody, &Body{Fields: map[string]any{}})))
			return
		}

		if r.ContentLength > limit {
			s.writeError(w, r, apperror.FileTooLarge("request entity too large", "body-parser"))
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, r, apperror.FileTooLarge("request entity too large", "body-parser"))
				return
			}
			s.writeError(w, r, apperror.BadRequest("failed to read request body", "body-parser").WithCause(err))
			return
		}

		body := &Body{Raw: raw}
		if len(bytes.TrimSpace(raw)) == 0 {
			body.Fields = map[string]any{}
		} else if fields, ok, err := decodeFields(r, raw); err != nil {
			s.writeError(w, r, err)
			return
		} else if ok {
			body.Fields = fields
		}

		r.Body = io.NopCloser(bytes.NewReader(raw))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyBody, body)))
	})
}

// decodeFields decodes raw according to the request content type. ok is
// false for content types the stage does not parse.
func decodeFields(r *http.Request, raw []byte) (map[string]any, bool, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, false, nil //nolint:nilerr // unparsed content types pass through
	}

	fields := map[string]any{}
	switch mediaType {
	case "application/json":
		if err := render.DecodeJSON(bytes.NewReader(raw), &fields); err != nil {
			return nil, false, apperror.BadRequest("Invalid JSON body", "body-parser").WithCause(err)
		}
	case "application/x-www-form-urlencoded":
		if err := render.DecodeForm(bytes.NewReader(raw), &fields); err != nil {
			return nil, false, apperror.BadRequest("Invalid form body", "body-parser").WithCause(err)
		}
	default:
		return nil, false, nil
	}
	return fields, true, nil
}
