// Package session wraps the formula engine with per-user interactive
// state: the current outcome and a bounded calculation history.
//
// Calculations are not sequenced against each other. Two overlapping
// calls both run to completion; each appends its own history entry
// atomically and the one that finishes last becomes the current outcome.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Calculator is the dispatcher a session drives. *formula.Engine
// satisfies it.
type Calculator interface {
	Calculate(t formula.Type, v formula.Variant, in formula.Input) (*formula.Result, error)
}

// Observer tracks one operation from start to finish.
// *observability.Provider satisfies it.
type Observer interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

// riskRecorder is implemented by observers that also count classified
// results.
type riskRecorder interface {
	RecordRiskLevel(ctx context.Context, level string, attrs ...attribute.KeyValue)
}

// Outcome is either a Result or an Error.
type Outcome struct {
	Result *formula.Result `json:"result,omitempty"`
	Error  *formula.Error  `json:"error,omitempty"`
}

// OK reports whether the outcome carries a result.
func (o Outcome) OK() bool { return o.Result != nil }

// Session is safe for concurrent use.
type Session struct {
	id       string
	calc     Calculator
	clock    func() time.Time
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	seq      uint64
	history  ring
	current  *Outcome
	inFlight int
	created  time.Time
	lastUsed time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source used for history timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver reports every calculation to o.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithID fixes the session identifier instead of generating one.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// New creates an idle session over calc.
func New(calc Calculator, opts ...Option) *Session {
	s := &Session{
		id:    uuid.NewString(),
		calc:  calc,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "session", "session_id", s.id)
	}
	s.created = s.clock()
	s.lastUsed = s.created
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Calculate runs one calculation, stores its outcome as current and
// prepends it to the history. It never panics: a panic inside the
// calculator becomes a CALCULATION_EXCEPTION outcome.
func (s *Session) Calculate(ctx context.Context, t formula.Type, v formula.Variant, in formula.Input) Outcome {
	s.mu.Lock()
	s.inFlight++
	s.lastUsed = s.clock()
	s.mu.Unlock()

	var done func(error)
	attrs := observability.FormulaOperation(string(t), string(v))
	if s.observer != nil {
		ctx, done = s.observer.TrackOperation(ctx, "formula.calculate",
			append(attrs, observability.AttrSessionID.String(s.id))...)
	}

	snapshot := in.Clone()
	out := s.dispatch(t, v, snapshot)

	s.mu.Lock()
	s.seq++
	item := HistoryItem{
		ID:          s.seq,
		Timestamp:   s.clock(),
		FormulaType: t,
		Variant:     v,
		Inputs:      snapshot,
		Result:      out.Result,
		Error:       out.Error,
	}
	s.history.push(item)
	s.current = &out
	s.inFlight--
	s.mu.Unlock()

	if done != nil {
		if out.Error != nil {
			done(out.Error)
		} else {
			done(nil)
		}
	}

	if out.Result != nil && out.Result.Metadata.RiskLevel != "" {
		level := string(out.Result.Metadata.RiskLevel)
		observability.AddSpanEvent(ctx, "formula.classified", observability.AttrRiskLevel.String(level))
		if rr, ok := s.observer.(riskRecorder); ok {
			rr.RecordRiskLevel(ctx, level, attrs...)
		}
	}

	if out.Error != nil {
		s.logger.DebugContext(ctx, "calculation failed", "id", item.ID, "variant", v, "code", out.Error.Code)
	} else {
		s.logger.DebugContext(ctx, "calculation complete", "id", item.ID, "variant", v, "value", out.Result.Value)
	}
	return out
}

func (s *Session) dispatch(t formula.Type, v formula.Variant, in formula.Input) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("calculator panicked", "variant", v, "panic", r)
			out = Outcome{Error: formula.ExceptionError(r)}
		}
	}()

	res, err := s.calc.Calculate(t, v, in)
	if err != nil {
		fe, ok := formula.AsError(err)
		if !ok {
			fe = formula.ExceptionError(err)
		}
		return Outcome{Error: fe}
	}
	return Outcome{Result: res}
}

// ClearResult discards the current outcome. History is untouched.
func (s *Session) ClearResult() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// ClearHistory empties the history. The current outcome is untouched.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.reset()
}

// LatestResult returns the current outcome, if any.
func (s *Session) LatestResult() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Outcome{}, false
	}
	return *s.current, true
}

// History returns up to HistoryLimit entries, newest first.
func (s *Session) History() []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.newestFirst()
}

// Busy reports whether any calculation is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// LastUsed is when the session last started a calculation.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Created is when the session was opened.
func (s *Session) Created() time.Time { return s.created }
