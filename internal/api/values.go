package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/valuecore/internal/apperror"
	"github.com/nerrad567/valuecore/internal/value"
)

// bodyFields returns the decoded request body, or nil.
func bodyFields(r *http.Request) map[string]any {
	if b := BodyFromContext(r.Context()); b != nil {
		return b.Fields
	}
	return nil
}

// valueFromRequest loads the value named by the {id} URL parameter.
// Malformed IDs are reported as not found.
func (s *Server) valueFromRequest(r *http.Request) (*value.Value, error) {
	id := chi.URLParam(r, "id")
	if !value.IsValidID(id) {
		return nil, apperror.NotFound("Value not found", "values")
	}
	v, err := s.values.GetByID(r.Context(), id)
	if err != nil {
		return nil, translateValueError(err)
	}
	return v, nil
}

func (s *Server) handleListValues(w http.ResponseWriter, r *http.Request) error {
	values, err := s.values.List(r.Context())
	if err != nil {
		return fmt.Errorf("listing values: %w", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All Values",
		"values":  values,
	})
	return nil
}

func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) error {
	v, err := s.valueFromRequest(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Value By Id",
		"value":   v,
	})
	return nil
}

func (s *Server) handleCreateValue(w http.ResponseWriter, r *http.Request) error {
	in, err := value.ValidateCreate(bodyFields(r))
	if err != nil {
		return translateValueError(err)
	}

	v := &value.Value{Value: in.Value, Name: in.Name}
	if err := s.values.Create(r.Context(), v); err != nil {
		return fmt.Errorf("creating value: %w", err)
	}
	s.broadcastValue(r.Context(), eventValueCreated, v)

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Value created successfully ",
	})
	return nil
}

// handleReplaceValue implements PUT: both fields are required.
func (s *Server) handleReplaceValue(w http.ResponseWriter, r *http.Request) error {
	in, err := value.ValidateCreate(bodyFields(r))
	if err != nil {
		return translateValueError(err)
	}
	return s.applyUpdate(w, r, value.UpdateInput{Value: &in.Value, Name: &in.Name})
}

// handleUpdateValue implements PATCH: any subset of fields.
func (s *Server) handleUpdateValue(w http.ResponseWriter, r *http.Request) error {
	in, err := value.ValidateUpdate(bodyFields(r))
	if err != nil {
		return translateValueError(err)
	}
	return s.applyUpdate(w, r, in)
}

func (s *Server) applyUpdate(w http.ResponseWriter, r *http.Request, in value.UpdateInput) error {
	v, err := s.valueFromRequest(r)
	if err != nil {
		return err
	}
	v.Apply(in)
	if err := s.values.Update(r.Context(), v); err != nil {
		return translateValueError(err)
	}
	s.broadcastValue(r.Context(), eventValueUpdated, v)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Value updated successfully",
		"value":   v,
	})
	return nil
}

func (s *Server) handleDeleteValue(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if !value.IsValidID(id) {
		return apperror.NotFound("Value not found", "values")
	}
	if err := s.values.Delete(r.Context(), id); err != nil {
		return translateValueError(err)
	}
	s.broadcastValue(r.Context(), eventValueDeleted, map[string]string{"_id": id})

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Value deleted successfully",
	})
	return nil
}
