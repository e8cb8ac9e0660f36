package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/switchboard/pkg/callflow"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
	"mercator-hq/switchboard/pkg/tenant"
	"mercator-hq/switchboard/pkg/triage"
)

// Error codes returned in error bodies.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeDependencyFailure = "DEPENDENCY_FAILURE"
	CodeInternal          = "INTERNAL"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = policy.MaxPolicyFileSize

type errorBody struct {
	Code   string              `json:"code"`
	Error  string              `json:"error"`
	Fields []policy.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorBody{Code: code, Error: err.Error()})
}

// writeDomainError maps an error from the compiler, machine or stores to a
// status code.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *policy.ValidationError
	var derr *policy.DependencyError

	switch {
	case policy.IsContention(err):
		writeError(w, http.StatusConflict, policy.CodeCompileInProgress, err)
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:   CodeValidationFailed,
			Error:  err.Error(),
			Fields: verr.Errors,
		})
	case errors.Is(err, callflow.ErrInvalidTurn), errors.Is(err, compiler.ErrForeignArtifact):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err)
	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, callflow.ErrCallNotFound),
		errors.Is(err, compiler.ErrArtifactNotFound),
		errors.Is(err, triage.ErrNoActiveArtifact):
		writeError(w, http.StatusNotFound, CodeNotFound, err)
	case errors.As(err, &derr):
		s.logger.ErrorContext(r.Context(), "dependency failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, CodeDependencyFailure, err)
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, errors.New("internal error"))
	}
}

// decodeJSON decodes a bounded JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// decodePolicy reads a raw policy as YAML when the content type says so and
// as JSON otherwise.
func decodePolicy(w http.ResponseWriter, r *http.Request) (*policy.RawPolicy, error) {
	switch r.Header.Get("Content-Type") {
	case "application/yaml", "application/x-yaml", "text/yaml":
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
		return policy.Parse(data)
	default:
		var raw policy.RawPolicy
		if err := decodeJSON(w, r, &raw); err != nil {
			return nil, err
		}
		return &raw, nil
	}
}
