package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"bad request", BadRequest("m", "c"), http.StatusBadRequest},
		{"not authorized", NotAuthorized("m", "c"), http.StatusUnauthorized},
		{"forbidden", Forbidden("m", "c"), http.StatusForbidden},
		{"not found", NotFound("m", "c"), http.StatusNotFound},
		{"file too large", FileTooLarge("m", "c"), http.StatusRequestEntityTooLarge},
		{"validation", Validation("m", "c"), http.StatusBadRequest},
		{"server error", ServerError("m", "c"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode != tt.want {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.want)
			}
			s := tt.err.Serialize()
			if s.StatusCode != tt.want || s.Status != "error" || s.Message != "m" || s.ComingFrom != "c" {
				t.Errorf("Serialize() = %+v", s)
			}
		})
	}
}

func TestSerialize_JSONShape(t *testing.T) {
	body, err := json.Marshal(NotFound("value not found", "getValueById").Serialize())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"message":"value not found","status":"error","statusCode":404,"comingFrom":"getValueById"}`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestWithCause_NotSerialized(t *testing.T) {
	cause := errors.New("sqlite: disk I/O error at /var/lib/secret.db")
	err := ServerError("storage unavailable", "value").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !strings.Contains(err.Error(), "disk I/O") {
		t.Errorf("Error() = %q, want cause for logs", err.Error())
	}
	body, _ := json.Marshal(err.Serialize()) //nolint:errcheck // Plain struct
	if strings.Contains(string(body), "disk I/O") {
		t.Errorf("serialized body leaks cause: %s", body)
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Forbidden("nope", "cors"))

	got, ok := As(wrapped)
	if !ok || got.StatusCode != http.StatusForbidden {
		t.Errorf("As(wrapped) = %v, %v", got, ok)
	}
	if _, ok := As(errors.New("plain")); ok {
		t.Error("As(plain) should be false")
	}
	if _, ok := As(nil); ok {
		t.Error("As(nil) should be false")
	}
}
