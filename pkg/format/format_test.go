package format_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/format"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestASCIIUsesBoxDrawing(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Variant", "Value")
	tb.Row("dfcui_basic", 4.0)
	out := tb.String()

	assert.Contains(t, out, "dfcui_basic")
	assert.Contains(t, out, "───")
}

func TestMarkdownTable(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Variant", "Value")
	tb.Row("dfthin_basic", 0.6)
	out := tb.String()

	assert.Contains(t, out, "| Variant")
	assert.Contains(t, out, "---")
	assert.NotContains(t, out, "───")
}

func TestFormulasListsEveryConfig(t *testing.T) {
	reg := formula.Default()
	out := format.Formulas(format.Markdown, reg.Configs())
	for _, cfg := range reg.Configs() {
		assert.Contains(t, out, string(cfg.Variant))
	}
}

func TestDescribeShowsLevels(t *testing.T) {
	reg := formula.Default()
	cfg, ok := reg.FormulaConfig(formula.VariantCUIBasic)
	require.True(t, ok)
	specs, _ := reg.Inputs(formula.VariantCUIBasic)

	out := format.Describe(format.ASCII, cfg, specs)
	assert.Contains(t, out, "Excellent | Good | Fair | Poor | Very Poor")
	assert.Contains(t, out, "operatingTemperature")
}

func TestResultShowsClassification(t *testing.T) {
	res, err := formula.Calculate(formula.TypeRiskMatrix, formula.VariantRiskMatrix,
		formula.Input{"pof": 2e-3, "cof": 350_000})
	require.NoError(t, err)

	out := format.Result(format.ASCII, res)
	assert.Contains(t, out, "3C")
	assert.Contains(t, out, "24 months")
	assert.Contains(t, out, res.InputDigest[:12])
}

func TestMatrixHighlightsCell(t *testing.T) {
	cell := risk.Classify(2e-3, 350_000, risk.BasisFinancial)
	out := format.Matrix(format.Markdown, &cell)

	assert.Contains(t, out, "[C]")
	assert.Equal(t, 1, strings.Count(out, "["))
	assert.Contains(t, format.Matrix(format.ASCII, nil), "Financial")
}

func TestLongTitlesAreNotWrapped(t *testing.T) {
	out := format.Matrix(format.ASCII, nil)
	first, _, _ := strings.Cut(out, "\n")
	assert.Equal(t, "Risk matrix (Financial consequence)", first)

	cell := risk.Classify(0.05, 1000, risk.BasisArea)
	md := format.Matrix(format.Markdown, &cell)
	assert.True(t, strings.HasPrefix(md, "**Risk matrix (Area consequence)**\n\n| "), md)
}

func TestHistoryShowsErrorsAndLevels(t *testing.T) {
	items := []session.HistoryItem{
		{ID: 2, Timestamp: time.Date(2026, 1, 1, 9, 15, 0, 0, time.UTC), Variant: formula.VariantCUIBasic,
			Error: &formula.Error{Code: formula.CodeMissingInput}},
		{ID: 1, Timestamp: time.Date(2026, 1, 1, 9, 14, 0, 0, time.UTC), Variant: formula.VariantCUIBasic,
			Result: &formula.Result{Value: 4, Metadata: formula.Metadata{RiskLevel: risk.LevelCritical}}},
	}
	out := format.History(format.ASCII, items)
	assert.Contains(t, out, "MISSING_INPUT")
	assert.Contains(t, out, "4 (Critical)")
	assert.Contains(t, out, "09:15:00")
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "0.15", format.Number(0.15))
	assert.Equal(t, "3.06e-05", format.Number(3.06e-5))
	assert.Equal(t, "350000", format.Number(350_000))
}

func TestFormulaError(t *testing.T) {
	assert.Equal(t, "MISSING_INPUT: age is required [age]",
		format.FormulaError(&formula.Error{Code: formula.CodeMissingInput, Message: "age is required", Input: "age"}))
}
