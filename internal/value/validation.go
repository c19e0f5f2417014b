package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	fieldValue = "value"
	fieldName  = "name"

	maxNameLength = 255
)

// CreateInput is a validated create (or full replace) request.
type CreateInput struct {
	Value float64
	Name  string
}

// UpdateInput is a validated partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Value *float64
	Name  *string
}

// ValidateCreate checks fields for a create or full replace: value and
// name are both required and no other keys are allowed.
//
// Numeric strings are accepted for value so url-encoded forms validate the
// same as JSON bodies.
func ValidateCreate(fields map[string]any) (CreateInput, error) {
	if err := rejectUnknown(fields); err != nil {
		return CreateInput{}, err
	}

	raw, ok := fields[fieldValue]
	if !ok {
		return CreateInput{}, required(fieldValue)
	}
	num, err := toNumber(raw)
	if err != nil {
		return CreateInput{}, err
	}

	raw, ok = fields[fieldName]
	if !ok {
		return CreateInput{}, required(fieldName)
	}
	name, err := toName(raw)
	if err != nil {
		return CreateInput{}, err
	}

	return CreateInput{Value: num, Name: name}, nil
}

// ValidateUpdate checks fields for a partial update. At least one of value
// or name must be present.
func ValidateUpdate(fields map[string]any) (UpdateInput, error) {
	if err := rejectUnknown(fields); err != nil {
		return UpdateInput{}, err
	}

	var in UpdateInput
	if raw, ok := fields[fieldValue]; ok {
		num, err := toNumber(raw)
		if err != nil {
			return UpdateInput{}, err
		}
		in.Value = &num
	}
	if raw, ok := fields[fieldName]; ok {
		name, err := toName(raw)
		if err != nil {
			return UpdateInput{}, err
		}
		in.Name = &name
	}

	if in.Value == nil && in.Name == nil {
		return UpdateInput{}, invalid("at least one of [%s, %s] is required", fieldValue, fieldName)
	}
	return in, nil
}

func rejectUnknown(fields map[string]any) error {
	var unknown []string
	for k := range fields {
		if k != fieldValue && k != fieldName {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return invalid("%q is not allowed", unknown[0])
}

func required(field string) error {
	return invalid("%q is required", field)
}

func toNumber(raw any) (float64, error) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, invalid("%q must be a number", fieldValue)
		}
		n = parsed
	default:
		return 0, invalid("%q must be a number", fieldValue)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, invalid("%q must be a finite number", fieldValue)
	}
	return n, nil
}

func toName(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", invalid("%q must be a string", fieldName)
	}
	if strings.TrimSpace(s) == "" {
		return "", invalid("%q is not allowed to be empty", fieldName)
	}
	if len(s) > maxNameLength {
		return "", invalid("%q length must be less than or equal to %d characters long", fieldName, maxNameLength)
	}
	return s, nil
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
