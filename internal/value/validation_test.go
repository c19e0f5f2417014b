package value

import (
	"errors"
	"testing"
)

func TestValidateCreate(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		want    CreateInput
		wantMsg string
	}{
		{name: "valid", fields: map[string]any{"value": 42.0, "name": "x"}, want: CreateInput{Value: 42, Name: "x"}},
		{name: "numeric string from form", fields: map[string]any{"value": " 3.5 ", "name": "x"}, want: CreateInput{Value: 3.5, Name: "x"}},
		{name: "missing value", fields: map[string]any{"name": "x"}, wantMsg: `"value" is required`},
		{name: "missing name", fields: map[string]any{"value": 1.0}, wantMsg: `"name" is required`},
		{name: "value not a number", fields: map[string]any{"value": "abc", "name": "x"}, wantMsg: `"value" must be a number`},
		{name: "value bool", fields: map[string]any{"value": true, "name": "x"}, wantMsg: `"value" must be a number`},
		{name: "name not a string", fields: map[string]any{"value": 1.0, "name": 7.0}, wantMsg: `"name" must be a string`},
		{name: "empty name", fields: map[string]any{"value": 1.0, "name": "  "}, wantMsg: `"name" is not allowed to be empty`},
		{name: "unknown key", fields: map[string]any{"value": 1.0, "name": "x", "extra": 1}, wantMsg: `"extra" is not allowed`},
		{name: "nil fields", fields: nil, wantMsg: `"value" is required`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateCreate(tt.fields)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("ValidateCreate() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("ValidateCreate() = %+v, want %+v", got, tt.want)
				}
				return
			}
			if !errors.Is(err, ErrInvalidValue) {
				t.Fatalf("ValidateCreate() error = %v, want ErrInvalidValue", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateUpdate(t *testing.T) {
	in, err := ValidateUpdate(map[string]any{"name": "renamed"})
	if err != nil {
		t.Fatalf("ValidateUpdate() error = %v", err)
	}
	if in.Value != nil || in.Name == nil || *in.Name != "renamed" {
		t.Errorf("ValidateUpdate() = %+v", in)
	}

	in, err = ValidateUpdate(map[string]any{"value": 9.0})
	if err != nil {
		t.Fatalf("ValidateUpdate() error = %v", err)
	}
	if in.Value == nil || *in.Value != 9 || in.Name != nil {
		t.Errorf("ValidateUpdate() = %+v", in)
	}

	for name, fields := range map[string]map[string]any{
		"empty":      {},
		"bad value":  {"value": "nope"},
		"unknown":    {"colour": "red"},
		"empty name": {"name": ""},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ValidateUpdate(fields); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("ValidateUpdate(%v) error = %v, want ErrInvalidValue", fields, err)
			}
		})
	}
}

func TestValueApply(t *testing.T) {
	v := Value{Value: 1, Name: "a"}
	n := 2.0
	v.Apply(UpdateInput{Value: &n})
	if v.Value != 2 || v.Name != "a" {
		t.Errorf("Apply() = %+v", v)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("NewID() returned duplicate IDs")
	}
	if !IsValidID(a) || a >= b {
		t.Errorf("NewID() = %q, %q, want increasing ULIDs", a, b)
	}
	if IsValidID("not-a-ulid") {
		t.Error("IsValidID accepted garbage")
	}
}
