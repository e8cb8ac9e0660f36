package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/callflow"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
	"mercator-hq/switchboard/pkg/telemetry/logging"
	"mercator-hq/switchboard/pkg/triage"
)

// CompileResponse is the body returned by the save and compile endpoints.
type CompileResponse struct {
	TenantID  string                  `json:"tenantId"`
	Version   string                  `json:"version"`
	Status    policy.Status           `json:"status"`
	Checksum  string                  `json:"checksum"`
	CacheKey  string                  `json:"cacheKey"`
	Published bool                    `json:"published"`
	Activated bool                    `json:"activated"`
	Conflicts []policy.ConflictRecord `json:"conflicts"`
	Warnings  []string                `json:"warnings,omitempty"`
}

func newCompileResponse(tenantID string, res *compiler.Result) CompileResponse {
	out := CompileResponse{
		TenantID:  tenantID,
		Checksum:  res.Checksum,
		CacheKey:  res.CacheKey,
		Published: res.Published,
		Activated: res.Activated,
		Conflicts: res.Conflicts,
	}
	if res.Artifact != nil {
		out.Version = res.Artifact.Version
		out.Status = res.Artifact.Status
	}
	if out.Conflicts == nil {
		out.Conflicts = []policy.ConflictRecord{}
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out
}

// handleSavePolicy saves the policy before compiling it. A 409 therefore
// leaves the new policy saved but uncompiled until POST .../compile.
func (s *Server) handleSavePolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	ctx := logging.WithTenantID(r.Context(), tenantID)

	raw, err := decodePolicy(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}

	res, err := s.deps.Compiler.SaveAndCompile(ctx, tenantID, raw)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCompileResponse(tenantID, res))
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	ctx := logging.WithTenantID(r.Context(), tenantID)

	res, err := s.deps.Compiler.CompileSaved(ctx, tenantID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCompileResponse(tenantID, res))
}

type activateRequest struct {
	CacheKey string `json:"cacheKey"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	ctx := logging.WithTenantID(r.Context(), tenantID)

	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}
	if strings.TrimSpace(req.CacheKey) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, errors.New("cacheKey is required"))
		return
	}

	if err := s.deps.Compiler.Activate(ctx, tenantID, req.CacheKey); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tenantId": tenantID, "cacheKey": req.CacheKey})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	ctx := logging.WithTenantID(r.Context(), tenantID)

	var (
		artifact *policy.Artifact
		err      error
	)
	if key := r.URL.Query().Get("key"); key != "" {
		if !strings.HasPrefix(key, policy.ArtifactKeyPrefix(tenantID)) {
			s.writeDomainError(w, r, compiler.ErrForeignArtifact)
			return
		}
		artifact, err = s.deps.Artifacts.Load(ctx, key)
	} else {
		artifact, err = s.deps.Artifacts.Active(ctx, tenantID)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

type turnRequest struct {
	TenantID  string          `json:"tenantId"`
	Utterance string          `json:"utterance"`
	Decision  triage.Decision `json:"decision"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}

	ctx := logging.WithCallID(logging.WithTenantID(r.Context(), req.TenantID), callID)
	res, err := s.deps.Calls.HandleTurn(ctx, callflow.TurnRequest{
		TenantID:  req.TenantID,
		CallID:    callID,
		Utterance: req.Utterance,
		Decision:  req.Decision,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	state, err := s.deps.Calls.State(logging.WithCallID(r.Context(), callID), callID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	if err := s.deps.Calls.EndCall(logging.WithCallID(r.Context(), callID), callID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAudit serves GET /v1/audit?tenant=&call=&kind=&since=&until=&limit=.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, errors.New("audit trail is disabled"))
		return
	}

	q := r.URL.Query()
	query := &audit.Query{
		Kind:     audit.Kind(q.Get("kind")),
		TenantID: q.Get("tenant"),
		CallID:   q.Get("call"),
		Limit:    100,
	}
	for name, dst := range map[string]**time.Time{"since": &query.Since, "until": &query.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, errors.New(name+" must be an RFC 3339 timestamp"))
			return
		}
		*dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		query.Limit = n
	}

	records, err := s.deps.Audit.Query(r.Context(), query)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
