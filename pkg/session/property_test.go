//go:build property
// +build property

package session

import (
	"context"
	"testing"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestHistoryBoundProperty verifies the ring after n pushes holds the last
// min(n, HistoryLimit) calculations, newest first.
func TestHistoryBoundProperty(t *testing.T) {
	calc := calcFunc(func(_ formula.Type, _ formula.Variant, in formula.Input) (*formula.Result, error) {
		return &formula.Result{Value: in["n"].(float64)}, nil
	})

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("history keeps the newest HistoryLimit entries", prop.ForAll(
		func(n int, clearAt int) bool {
			s := New(calc)
			for i := 1; i <= n; i++ {
				if i == clearAt {
					s.ClearHistory()
				}
				s.Calculate(context.Background(), formula.TypeCUI, formula.VariantCUIBasic, formula.Input{"n": float64(i)})
			}

			kept := n
			if clearAt >= 1 && clearAt <= n {
				kept = n - clearAt + 1
			}
			if kept > HistoryLimit {
				kept = HistoryLimit
			}
			hist := s.History()
			if len(hist) != kept {
				return false
			}
			for i, item := range hist {
				if item.ID != uint64(n-i) || item.Result.Value != float64(n-i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 200),
		gen.IntRange(0, 250),
	))

	properties.TestingRun(t)
}
