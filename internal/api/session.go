package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
)

const ctxKeySession contextKey = "session"

// Session is the per-request view of the signed session cookie.
//
// Thread Safety: safe for concurrent use by the goroutines serving one request.
type Session struct {
	mu       sync.Mutex
	values   map[string]any
	modified bool
}

func newSession(values map[string]any) *Session {
	if values == nil {
		values = make(map[string]any)
	}
	return &Session{values: values}
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores v under key and marks the session for re-issue.
func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
	s.modified = true
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

// Clear empties the session; the cookie is expired on the response.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
	s.modified = true
}

// Len returns the number of stored keys.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// snapshot returns a copy of the values and whether they changed.
func (s *Session) snapshot() (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]any, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return cp, s.modified
}

// SessionFromContext returns the request's session, or nil outside the
// session stage.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKeySession).(*Session) //nolint:errcheck // type assertion, not error
	return s
}

// sessionClaims is the JWT payload carried in the cookie.
type sessionClaims struct {
	jwt.RegisteredClaims
	Data map[string]any `json:"sess,omitempty"`
}

// sessionCodec signs and verifies session cookies. The first key signs;
// any key verifies, so a key can be rotated out without logging everyone out.
type sessionCodec struct {
	name   string
	keys   [][]byte
	maxAge time.Duration
	secure bool
}

func newSessionCodec(cfg config.SessionConfig) *sessionCodec {
	return &sessionCodec{
		name:   cfg.Name,
		keys:   [][]byte{[]byte(cfg.SecretKeyTwo), []byte(cfg.SecretKeyOne)},
		maxAge: time.Duration(cfg.MaxAgeHours) * time.Hour,
		secure: cfg.Secure,
	}
}

var errSessionInvalid = errors.New("invalid session cookie")

func (c *sessionCodec) encode(values map[string]any, now time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
		Data: values,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.keys[0])
}

func (c *sessionCodec) decode(token string) (map[string]any, error) {
	for _, key := range c.keys {
		var claims sessionClaims
		tok, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
			return key, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		)
		if err == nil && tok.Valid {
			return claims.Data, nil
		}
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			// Expired or malformed: another key will not help.
			return nil, errSessionInvalid
		}
	}
	return nil, errSessionInvalid
}

func (c *sessionCodec) cookie(value string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge / time.Second)
		cookie.Expires = time.Now().Add(maxAge)
	} else {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	}
	return cookie
}

// sessionMiddleware decodes the session cookie into the request context.
// An invalid or expired cookie yields an empty session. The cookie is
// re-issued only when a handler modified the session.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var values map[string]any
		if c, err := r.Cookie(s.sessions.name); err == nil {
			if decoded, err := s.sessions.decode(c.Value); err == nil {
				values = decoded
			} else {
				s.logger.Debug("ignoring session cookie", requestAttrs(r, "error", err)...)
			}
		}

		sess := newSession(values)
		sw := &sessionWriter{ResponseWriter: w}
		sw.commit = func() { s.commitSession(sw.ResponseWriter, r, sess) }

		next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), ctxKeySession, sess)))
		// Handlers that write nothing still get their cookie.
		sw.flushSession()
	})
}

func (s *Server) commitSession(w http.ResponseWriter, r *http.Request, sess *Session) {
	values, modified := sess.snapshot()
	if !modified {
		return
	}
	if len(values) == 0 {
		http.SetCookie(w, s.sessions.cookie("", 0))
		return
	}
	token, err := s.sessions.encode(values, time.Now())
	if err != nil {
		s.logger.Error("failed to sign session", requestAttrs(r, "error", err)...)
		return
	}
	http.SetCookie(w, s.sessions.cookie(token, s.sessions.maxAge))
}

// sessionWriter commits the session just before the response headers go out.
type sessionWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *sessionWriter) WriteHeader(status int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.flushSession()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *sessionWriter) flushSession() {
	if w.committed {
		return
	}
	w.committed = true
	w.commit()
}
