// Package api serves the formula engine and calculation sessions over
// HTTP. Errors are RFC 7807 problem details.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
)

const problemTypeBase = "https://assetrisk.schemas.local/errors/"

// ProblemDetail is an RFC 7807 problem. Every error response uses it.
// Formula failures add the engine's symbolic code and the offending
// field as extension members.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"` // echoes X-Request-Id

	Code  formula.Code `json:"code,omitempty"`
	Input string       `json:"input,omitempty"`
	Value any          `json:"value,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func newProblem(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("%s%d", problemTypeBase, status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// at ties the problem to the request it answers.
func (p *ProblemDetail) at(w http.ResponseWriter, r *http.Request) *ProblemDetail {
	p.Instance = r.URL.Path
	p.TraceID = w.Header().Get(requestIDHeader)
	return p
}

func (p *ProblemDetail) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes a problem with no request context.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	newProblem(status, title, detail).write(w)
}

// WriteErrorR writes a problem carrying the request path and request ID.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	newProblem(status, title, detail).at(w, r).write(w)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusNotFound, "Not Found", detail)
}

// WriteConflict writes a 409 error response.
func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteErrorR(w, r, http.StatusConflict, "Conflict", detail)
}

// WriteTooManyRequests writes a 429 with a Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests",
		fmt.Sprintf("Rate limit exceeded, retry in %ds.", retryAfterSecs))
}

// WriteFormulaError writes a 422 whose type URI ends in the formula
// error code.
func WriteFormulaError(w http.ResponseWriter, r *http.Request, fe *formula.Error) {
	p := newProblem(http.StatusUnprocessableEntity, "Unprocessable Calculation", fe.Message).at(w, r)
	p.Type = problemTypeBase + string(fe.Code)
	p.Code, p.Input, p.Value = fe.Code, fe.Input, fe.Value
	p.write(w)
}

// WriteInternal writes a 500. err is logged, never sent.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Default().With("component", "api").Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "The calculation service failed unexpectedly.")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
