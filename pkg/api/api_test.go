package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/batch"
	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) (*Server, http.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e, err := formula.DefaultEngine()
	require.NoError(t, err)
	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS = 1000
		opts.RateLimitBurst = 1000
	}
	srv := NewServer(ctx, e, opts)
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	info := decode[SessionInfo](t, w)
	require.NotEmpty(t, info.ID)
	return info.ID
}

var badCUI = CalculateRequest{
	FormulaType: formula.TypeCUI,
	Variant:     formula.VariantCUIBasic,
	Inputs: formula.Input{
		"operatingTemperature": 150,
		"insulationType":       "Calcium Silicate",
		"insulationCondition":  "Very Poor",
		"moistureIngress":      "Severe",
	},
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, Options{Version: "1.0.0"})
	w := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.0", body["catalogVersion"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestListAndDescribeFormulas(t *testing.T) {
	_, h := newTestServer(t, Options{})

	w := do(t, h, http.MethodGet, "/v1/formulas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		CatalogVersion string                       `json:"catalogVersion"`
		Formulas       map[string][]formula.Variant `json:"formulas"`
	}](t, w)
	assert.Len(t, list.Formulas, 8)
	assert.Equal(t, []formula.Variant{formula.VariantRiskMatrix, formula.VariantRiskMatrixDF}, list.Formulas["risk_matrix"])

	w = do(t, h, http.MethodGet, "/v1/formulas/dfcui_advanced", nil)
	require.Equal(t, http.StatusOK, w.Code)
	desc := decode[FormulaDescription](t, w)
	assert.Equal(t, formula.TypeCUI, desc.Type)
	assert.Equal(t, "1.2.0", desc.Version)
	assert.NotEmpty(t, desc.Inputs)
	assert.True(t, desc.Inputs[0].Required)

	w = do(t, h, http.MethodGet, "/v1/formulas/dfcui_extreme", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	w = do(t, h, http.MethodGet, "/v1/types/scc_damage/formulas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]formula.Config](t, w), 2)

	w = do(t, h, http.MethodGet, "/v1/types/hydrogen_attack/formulas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]formula.Config](t, w))
}

func TestSessionLifecycle(t *testing.T) {
	_, h := newTestServer(t, Options{})
	id := createSession(t, h)
	base := "/v1/sessions/" + id

	w := do(t, h, http.MethodGet, base+"/latest", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodPost, base+"/calculate", badCUI)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[formula.Result](t, w)
	assert.True(t, risk.LevelFor(res.Value).AtLeast(risk.LevelHigh))
	assert.NotEmpty(t, res.InputDigest)

	w = do(t, h, http.MethodGet, base+"/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	latest := decode[session.Outcome](t, w)
	require.NotNil(t, latest.Result)
	assert.Equal(t, res.Value, latest.Result.Value)

	w = do(t, h, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]session.HistoryItem](t, w), 1)

	w = do(t, h, http.MethodDelete, base+"/result", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, base+"/latest", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodDelete, base+"/history", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, base+"/history", nil)
	assert.Empty(t, decode[[]session.HistoryItem](t, w))

	w = do(t, h, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, base+"/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalculateFormulaErrorIs422(t *testing.T) {
	_, h := newTestServer(t, Options{})
	id := createSession(t, h)

	req := badCUI
	req.Inputs = formula.Input{"operatingTemperature": 150}
	w := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/calculate", req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	problem := decode[ProblemDetail](t, w)
	assert.Equal(t, formula.CodeMissingInput, problem.Code)
	assert.Equal(t, "insulationType", problem.Input)
	assert.Equal(t, "/v1/sessions/"+id+"/calculate", problem.Instance)

	// The failure still lands in history.
	w = do(t, h, http.MethodGet, "/v1/sessions/"+id+"/history", nil)
	hist := decode[[]session.HistoryItem](t, w)
	require.Len(t, hist, 1)
	assert.Equal(t, formula.CodeMissingInput, hist[0].Error.Code)
}

func TestCalculateUnknownSessionIs404(t *testing.T) {
	_, h := newTestServer(t, Options{})
	w := do(t, h, http.MethodPost, "/v1/sessions/nope/calculate", badCUI)
	require.Equal(t, http.StatusNotFound, w.Code)
	problem := decode[ProblemDetail](t, w)
	assert.Equal(t, 404, problem.Status)
}

func TestCalculateRejectsMalformedBody(t *testing.T) {
	_, h := newTestServer(t, Options{})
	id := createSession(t, h)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/calculate", bytes.NewBufferString(`{"formulaType":`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/v1/sessions/"+id+"/calculate", map[string]any{"formula": "dfcui_basic"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalculateWithSiteProfile(t *testing.T) {
	profiles := map[string]*config.SiteProfile{
		"offshore": {Name: "Offshore", Code: "offshore", Defaults: map[string]any{"cofBasis": "Area"}},
	}
	_, h := newTestServer(t, Options{Profiles: profiles})
	id := createSession(t, h)

	req := CalculateRequest{
		FormulaType: formula.TypeRiskMatrix,
		Variant:     formula.VariantRiskMatrix,
		Inputs:      formula.Input{"pof": 2e-3, "cof": 1000},
		Profile:     "offshore",
	}
	w := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/calculate", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[formula.Result](t, w)
	require.NotNil(t, res.Metadata.Matrix)
	assert.Equal(t, risk.BasisArea, res.Metadata.Matrix.Basis)
	assert.Equal(t, "E", res.Metadata.Matrix.COFCategory)

	req.Profile = "OffShore"
	w = do(t, h, http.MethodPost, "/v1/sessions/"+id+"/calculate", req)
	require.Equal(t, http.StatusOK, w.Code, "profile codes match any case")

	req.Profile = "arctic"
	w = do(t, h, http.MethodPost, "/v1/sessions/"+id+"/calculate", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]config.SiteProfile](t, w), 1)
}

func TestBatchEndpoint(t *testing.T) {
	_, h := newTestServer(t, Options{BatchParallelism: 2})
	body := BatchRequest{Requests: []batch.Request{
		{ID: "a", FormulaType: formula.TypeRiskMatrix, Variant: formula.VariantRiskMatrix,
			Inputs: formula.Input{"pof": 1e-2, "cof": 2e6}},
		{ID: "b", FormulaType: formula.TypeRiskMatrix, Variant: formula.VariantRiskMatrix,
			Inputs: formula.Input{"pof": 1e-2}},
	}}
	w := do(t, h, http.MethodPost, "/v1/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[BatchResponse](t, w)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "a", resp.Items[0].ID)
	assert.Equal(t, "4D", resp.Items[0].Result.Metadata.Matrix.String())
	assert.Equal(t, formula.CodeMissingInput, resp.Items[1].Error.Code)
	assert.Equal(t, 1, resp.Summary.Failed)
}

func TestClassifyEndpoint(t *testing.T) {
	_, h := newTestServer(t, Options{})
	w := do(t, h, http.MethodPost, "/v1/risk/classify", ClassifyRequest{POF: 3.06e-3, COF: 100_000})
	require.Equal(t, http.StatusOK, w.Code)
	cell := decode[risk.Cell](t, w)
	assert.Equal(t, "4C", cell.String())
	assert.Equal(t, risk.CategoryD, cell.RiskCategory)

	w = do(t, h, http.MethodPost, "/v1/risk/classify", ClassifyRequest{POF: 1, COF: 1, Basis: "volume"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotentCalculateAppendsOnce(t *testing.T) {
	_, h := newTestServer(t, Options{})
	id := createSession(t, h)
	path := "/v1/sessions/" + id + "/calculate"

	first := do(t, h, http.MethodPost, path, badCUI, "Idempotency-Key", "k-1")
	second := do(t, h, http.MethodPost, path, badCUI, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := do(t, h, http.MethodGet, "/v1/sessions/"+id+"/history", nil)
	assert.Len(t, decode[[]session.HistoryItem](t, w), 1)

	do(t, h, http.MethodPost, path, badCUI, "Idempotency-Key", "k-2")
	w = do(t, h, http.MethodGet, "/v1/sessions/"+id+"/history", nil)
	assert.Len(t, decode[[]session.HistoryItem](t, w), 2)
}

func TestRateLimitReturns429(t *testing.T) {
	_, h := newTestServer(t, Options{RateLimitRPS: 0.5, RateLimitBurst: 2})
	for i := 0; i < 2; i++ {
		w := do(t, h, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, w.Code, "within burst")
	}
	w := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestSessionStoreSweepsIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e, err := formula.DefaultEngine()
	require.NoError(t, err)

	st := NewSessionStore(30*time.Minute, func() *session.Session {
		return session.New(e, session.WithClock(clock))
	})
	st.now = clock

	old := st.Create()
	now = now.Add(20 * time.Minute)
	fresh := st.Create()
	now = now.Add(15 * time.Minute)

	assert.Equal(t, 1, st.Sweep())
	_, ok := st.Get(old.ID())
	assert.False(t, ok)
	_, ok = st.Get(fresh.ID())
	assert.True(t, ok)

	assert.Equal(t, 0, NewSessionStore(0, nil).Sweep())
}

func TestRecovererHidesPanics(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("pq: connection refused to host=10.0.0.1")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestIdempotencyKeyReuseWithDifferentBody(t *testing.T) {
	_, h := newTestServer(t, Options{})
	id := createSession(t, h)
	path := "/v1/sessions/" + id + "/calculate"

	first := do(t, h, http.MethodPost, path, badCUI, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, first.Code)

	other := badCUI
	other.Inputs = badCUI.Inputs.Clone()
	other.Inputs["operatingTemperature"] = 90
	w := do(t, h, http.MethodPost, path, other, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	// Same key on another path is a different request.
	w = do(t, h, http.MethodPost, "/v1/risk/classify", ClassifyRequest{POF: 1e-3, COF: 1e5}, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReplayCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	c := NewReplayCache(context.Background(), 0)
	c.ttl = 10 * time.Minute
	c.now = func() time.Time { return now }

	fp := [32]byte{1}
	_, owned := c.claim("a", fp)
	require.True(t, owned)
	c.finish("a", http.StatusOK, http.Header{}, []byte("{}"))
	rp, owned := c.claim("a", fp)
	assert.False(t, owned)
	assert.True(t, rp.done)

	now = now.Add(10 * time.Minute)
	_, owned = c.claim("a", fp)
	assert.True(t, owned, "entry is gone at exactly ttl")
	now = now.Add(10 * time.Minute)
	c.expire(now)
	assert.Equal(t, 0, c.Len())
}

func TestDuplicateKeyWhileInFlight(t *testing.T) {
	c := NewReplayCache(context.Background(), 0)
	c.ttl = time.Minute

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	post := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/calculate", bytes.NewBufferString(`{"variant":"dfcui_basic"}`))
		r.Header.Set(idempotencyKeyHeader, "k-9")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	firstDone := make(chan *httptest.ResponseRecorder)
	go func() { firstDone <- post() }()
	<-entered

	dup := post()
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Contains(t, dup.Body.String(), "still in progress")

	close(release)
	first := <-firstDone
	require.Equal(t, http.StatusCreated, first.Code)

	again := post()
	assert.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get(replayedHeader))
	assert.Equal(t, int32(1), calls.Load(), "handler ran once")
}

func TestFailedRequestReleasesKey(t *testing.T) {
	c := NewReplayCache(context.Background(), 0)
	c.ttl = time.Minute

	var calls int
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	for range 2 {
		r := httptest.NewRequest(http.MethodPost, "/v1/batch", bytes.NewBufferString(`{}`))
		r.Header.Set(idempotencyKeyHeader, "k-2")
		h.ServeHTTP(httptest.NewRecorder(), r)
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, c.Len())
}

func TestClientLimiterForgetsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	cl := NewClientLimiter(context.Background(), 10, 10)
	cl.now = func() time.Time { return now }

	cl.bucketFor("10.0.0.1")
	now = now.Add(2 * time.Minute)
	cl.bucketFor("10.0.0.2")
	require.Equal(t, 2, cl.Clients())

	cl.forgetIdle(now.Add(90 * time.Second))
	assert.Equal(t, 1, cl.Clients(), "only the first client has been idle past the TTL")
}

func TestClientIP(t *testing.T) {
	for addr, want := range map[string]string{
		"192.0.2.1:5000": "192.0.2.1",
		"[::1]:8080":     "::1",
		"[::1]":          "::1",
		"192.0.2.9":      "192.0.2.9",
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		assert.Equal(t, want, clientIP(r), addr)
	}
}
