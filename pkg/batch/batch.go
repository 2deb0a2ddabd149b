// Package batch evaluates many independent formula requests concurrently.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
	"golang.org/x/sync/errgroup"
)

// MaxRequests bounds a single batch.
const MaxRequests = 1000

// Request is one calculation in a batch. ID is echoed back untouched.
type Request struct {
	ID          string          `json:"id,omitempty"`
	FormulaType formula.Type    `json:"formulaType"`
	Variant     formula.Variant `json:"variant"`
	Inputs      formula.Input   `json:"inputs"`
}

// Item is the outcome of the request at the same index.
type Item struct {
	ID     string          `json:"id,omitempty"`
	Result *formula.Result `json:"result,omitempty"`
	Error  *formula.Error  `json:"error,omitempty"`
}

// Summary counts outcomes in a finished batch.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Runner fans requests out over a bounded worker pool.
type Runner struct {
	calc     session.Calculator
	parallel int
	logger   *slog.Logger
}

// NewRunner creates a runner. parallel below 1 means sequential.
func NewRunner(calc session.Calculator, parallel int) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{
		calc:     calc,
		parallel: parallel,
		logger:   slog.Default().With("component", "batch"),
	}
}

// Run evaluates every request and returns items in request order.
// Formula failures are reported per item; the returned error is only set
// when ctx ends before the batch completes or the batch is too large.
func (r *Runner) Run(ctx context.Context, reqs []Request) ([]Item, error) {
	if len(reqs) > MaxRequests {
		return nil, fmt.Errorf("batch of %d exceeds limit of %d", len(reqs), MaxRequests)
	}

	items := make([]Item, len(reqs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			items[i] = r.evaluate(req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}

	r.logger.DebugContext(ctx, "batch complete", "requests", len(reqs), "parallel", r.parallel)
	return items, nil
}

func (r *Runner) evaluate(req Request) (item Item) {
	item.ID = req.ID
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("calculator panicked", "id", req.ID, "variant", req.Variant, "panic", p)
			item.Result = nil
			item.Error = formula.ExceptionError(p)
		}
	}()

	res, err := r.calc.Calculate(req.FormulaType, req.Variant, req.Inputs.Clone())
	if err != nil {
		fe, ok := formula.AsError(err)
		if !ok {
			fe = formula.ExceptionError(err)
		}
		item.Error = fe
		return item
	}
	item.Result = res
	return item
}

// Summarize counts successes and failures.
func Summarize(items []Item) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		if it.Error != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}
