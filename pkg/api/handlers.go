package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/Mindburn-Labs/assetrisk/pkg/batch"
	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
)

// CalculateRequest is the body of POST /v1/sessions/{id}/calculate.
type CalculateRequest struct {
	FormulaType formula.Type    `json:"formulaType"`
	Variant     formula.Variant `json:"variant"`
	Inputs      formula.Input   `json:"inputs"`
	// Profile names a site profile whose defaults fill absent inputs.
	Profile string `json:"profile,omitempty"`
}

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Requests []batch.Request `json:"requests"`
	Profile  string          `json:"profile,omitempty"`
}

// BatchResponse pairs items with their summary.
type BatchResponse struct {
	Items   []batch.Item  `json:"items"`
	Summary batch.Summary `json:"summary"`
}

// ClassifyRequest is the body of POST /v1/risk/classify.
type ClassifyRequest struct {
	POF   float64 `json:"pof"`
	COF   float64 `json:"cof"`
	Basis string  `json:"basis,omitempty"`
}

// FormulaDescription is a formula config with its resolved input fields.
type FormulaDescription struct {
	formula.Config
	Inputs []formula.InputSpec `json:"inputs"`
}

// SessionInfo describes a session.
type SessionInfo struct {
	ID      string `json:"id"`
	Busy    bool   `json:"busy"`
	History int    `json:"historySize"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"catalogVersion": s.engine.Registry().Version(),
		"sessions":       s.sessions.Len(),
	})
}

func (s *Server) handleListFormulas(w http.ResponseWriter, _ *http.Request) {
	reg := s.engine.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"catalogVersion": reg.Version(),
		"formulas":       reg.AvailableFormulas(),
	})
}

func (s *Server) handleFormulasByType(w http.ResponseWriter, r *http.Request) {
	t := formula.Type(r.PathValue("type"))
	writeJSON(w, http.StatusOK, s.engine.Registry().FormulasByType(t))
}

func (s *Server) handleDescribeFormula(w http.ResponseWriter, r *http.Request) {
	v := formula.Variant(r.PathValue("variant"))
	reg := s.engine.Registry()
	cfg, ok := reg.FormulaConfig(v)
	if !ok {
		WriteNotFound(w, r, fmt.Sprintf("formula %q is not registered", v))
		return
	}
	specs, _ := reg.Inputs(v)
	writeJSON(w, http.StatusOK, FormulaDescription{Config: cfg, Inputs: specs})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	codes := make([]string, 0, len(s.profiles))
	for code := range s.profiles {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([]any, 0, len(codes))
	for _, code := range codes {
		out = append(out, s.profiles[code])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	basis := risk.BasisFinancial
	if req.Basis != "" {
		b, ok := risk.ParseBasis(req.Basis)
		if !ok {
			WriteBadRequest(w, r, fmt.Sprintf("unknown basis %q", req.Basis))
			return
		}
		basis = b
	}
	writeJSON(w, http.StatusOK, risk.Classify(req.POF, req.COF, basis))
}

// applyProfile fills absent inputs from the named site profile.
func (s *Server) applyProfile(code string, in formula.Input) (formula.Input, error) {
	if code == "" {
		return in, nil
	}
	p, ok := config.FindProfile(s.profiles, code)
	if !ok {
		return nil, fmt.Errorf("unknown site profile %q", code)
	}
	return p.Apply(in), nil
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	if len(req.Requests) > batch.MaxRequests {
		WriteBadRequest(w, r, fmt.Sprintf("at most %d requests per batch", batch.MaxRequests))
		return
	}
	for i := range req.Requests {
		in, err := s.applyProfile(req.Profile, req.Requests[i].Inputs)
		if err != nil {
			WriteBadRequest(w, r, err.Error())
			return
		}
		req.Requests[i].Inputs = in
	}

	items, err := s.batch.Run(r.Context(), req.Requests)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return // client went away
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{Items: items, Summary: batch.Summarize(items)})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	w.Header().Set("Location", "/v1/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, SessionInfo{ID: sess.ID()})
}

// lookup resolves {id} or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		WriteNotFound(w, r, fmt.Sprintf("session %q does not exist or has expired", id))
	}
	return sess, ok
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if sess.Busy() {
		WriteConflict(w, r, "session has a calculation in flight")
		return
	}
	s.sessions.Delete(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req CalculateRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}
	in, err := s.applyProfile(req.Profile, req.Inputs)
	if err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	out := sess.Calculate(r.Context(), req.FormulaType, req.Variant, in)
	if out.Error != nil {
		WriteFormulaError(w, r, out.Error)
		return
	}
	writeJSON(w, http.StatusOK, out.Result)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	out, ok := sess.LatestResult()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClearResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.ClearResult()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.History())
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}
