package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calcFunc func(formula.Type, formula.Variant, formula.Input) (*formula.Result, error)

func (f calcFunc) Calculate(t formula.Type, v formula.Variant, in formula.Input) (*formula.Result, error) {
	return f(t, v, in)
}

func engine(t *testing.T) *formula.Engine {
	t.Helper()
	e, err := formula.DefaultEngine()
	require.NoError(t, err)
	return e
}

func TestRunPreservesOrder(t *testing.T) {
	reqs := make([]Request, 40)
	for i := range reqs {
		reqs[i] = Request{
			ID:          fmt.Sprintf("line-%02d", i),
			FormulaType: formula.TypeThinning,
			Variant:     formula.VariantThinningBasic,
			Inputs:      formula.Input{"corrosionRate": 0.01 * float64(i), "age": 10, "wallThickness": 10},
		}
	}

	items, err := NewRunner(engine(t), 8).Run(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, items, len(reqs))
	for i, item := range items {
		assert.Equal(t, reqs[i].ID, item.ID)
		require.NotNil(t, item.Result, item.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, item.Result.Value, items[i-1].Result.Value)
		}
	}
}

func TestRunReportsPerItemErrors(t *testing.T) {
	reqs := []Request{
		{ID: "ok", FormulaType: formula.TypeRiskMatrix, Variant: formula.VariantRiskMatrix,
			Inputs: formula.Input{"pof": 1e-3, "cof": 50_000}},
		{ID: "missing", FormulaType: formula.TypeRiskMatrix, Variant: formula.VariantRiskMatrix,
			Inputs: formula.Input{"pof": 1e-3}},
		{ID: "unknown", FormulaType: formula.TypeCUI, Variant: formula.VariantRiskMatrix},
	}

	items, err := NewRunner(engine(t), 2).Run(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.NotNil(t, items[0].Result)
	assert.Equal(t, formula.CodeMissingInput, items[1].Error.Code)
	assert.Equal(t, "cof", items[1].Error.Input)
	assert.Equal(t, formula.CodeUnknownFormula, items[2].Error.Code)
	assert.Equal(t, Summary{Total: 3, Succeeded: 1, Failed: 2}, Summarize(items))
}

func TestRunRespectsParallelism(t *testing.T) {
	var active, peak atomic.Int32
	calc := calcFunc(func(formula.Type, formula.Variant, formula.Input) (*formula.Result, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return &formula.Result{Value: 1}, nil
	})

	_, err := NewRunner(calc, 3).Run(context.Background(), make([]Request, 30))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunRecoversPanics(t *testing.T) {
	calc := calcFunc(func(_ formula.Type, v formula.Variant, _ formula.Input) (*formula.Result, error) {
		if v == "boom" {
			panic("nil map")
		}
		return &formula.Result{Value: 2}, nil
	})

	items, err := NewRunner(calc, 0).Run(context.Background(), []Request{{Variant: "boom"}, {Variant: "fine"}})
	require.NoError(t, err)
	assert.Equal(t, formula.CodeCalculationException, items[0].Error.Code)
	assert.Nil(t, items[0].Result)
	assert.Equal(t, 2.0, items[1].Result.Value)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(engine(t), 4).Run(ctx, make([]Request, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsOversizedBatch(t *testing.T) {
	_, err := NewRunner(engine(t), 4).Run(context.Background(), make([]Request, MaxRequests+1))
	require.Error(t, err)
}

func TestRunDoesNotMutateInputs(t *testing.T) {
	in := formula.Input{"pof": "0.001", "cof": 50_000}
	_, err := NewRunner(engine(t), 1).Run(context.Background(), []Request{{
		FormulaType: formula.TypeRiskMatrix, Variant: formula.VariantRiskMatrix, Inputs: in,
	}})
	require.NoError(t, err)
	assert.Equal(t, "0.001", in["pof"])
}
