package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
)

// Number prints v with up to six significant digits and no trailing zeros.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Formulas lists every config, grouped by type in catalog order.
func Formulas(m Mode, cfgs []formula.Config) string {
	tb := NewTable(m)
	tb.Header("Type", "Variant", "Name", "Unit", "Version", "Required")
	for _, c := range cfgs {
		tb.Row(c.Type, c.Variant, c.Name, c.OutputUnit, c.Version, len(c.RequiredInputs))
	}
	tb.AlignRight(6)
	return tb.String()
}

// Describe shows one formula's inputs.
func Describe(m Mode, cfg formula.Config, specs []formula.InputSpec) string {
	tb := NewTable(m)
	tb.Title(fmt.Sprintf("%s (%s, v%s)", cfg.Name, cfg.Variant, cfg.Version))
	tb.Header("Input", "Required", "Kind", "Unit", "Accepted")
	for _, s := range specs {
		accepted := s.Constraint
		if s.Kind == formula.KindCategory {
			accepted = strings.Join(s.Levels, " | ")
		}
		if s.Kind == formula.KindBool {
			accepted = "true | false"
		}
		tb.Row(s.Name, mark(s.Required), s.Kind, s.Unit, accepted)
	}
	return tb.String()
}

// Result shows a value, its classification and any notes.
func Result(m Mode, res *formula.Result) string {
	tb := NewTable(m)
	tb.Title(fmt.Sprintf("%s = %s %s", res.Formula, Number(res.Value), res.Metadata.Unit))
	tb.Header("Field", "Value")

	keys := make([]string, 0, len(res.Inputs))
	for k := range res.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tb.Row(k, Number(res.Inputs[k]))
	}

	tb.Separator()
	md := res.Metadata
	if md.RiskLevel != "" {
		tb.Row("risk level", md.RiskLevel)
	}
	if md.ConsequenceCategory != "" {
		tb.Row("consequence category", md.ConsequenceCategory)
	}
	if md.Matrix != nil {
		tb.Row("matrix cell", md.Matrix.String())
		tb.Row("risk category", fmt.Sprintf("%s (%s)", md.Matrix.RiskCategory, md.Matrix.RiskLevel))
		tb.Row("priority", md.Matrix.Priority)
		tb.Row("inspection interval", fmt.Sprintf("%d months", md.Matrix.InspectionIntervalMonths))
	}
	for _, n := range md.Notes {
		tb.Row("note", n)
	}
	if len(res.InputDigest) >= 12 {
		tb.Row("digest", res.InputDigest[:12])
	}
	return tb.String()
}

// FormulaError renders a failed calculation on one line.
func FormulaError(fe *formula.Error) string {
	if fe.Input != "" {
		return fmt.Sprintf("%s: %s [%s]", fe.Code, fe.Message, fe.Input)
	}
	return fmt.Sprintf("%s: %s", fe.Code, fe.Message)
}

// Matrix draws the 5×5 grid, POF 5 at the top, with the risk category in
// each cell. The cell for highlight, if non-nil, is bracketed.
func Matrix(m Mode, highlight *risk.Cell) string {
	basis := risk.BasisFinancial
	if highlight != nil {
		basis = highlight.Basis
	}
	tb := NewTable(m)
	tb.Title(fmt.Sprintf("Risk matrix (%s consequence)", basis))
	tb.Header("POF \\ COF", "A", "B", "C", "D", "E")
	for p := 5; p >= 1; p-- {
		row := []any{strconv.Itoa(p)}
		for _, c := range "ABCDE" {
			cell := risk.ClassifyCategories(p, string(c))
			label := string(cell)
			if highlight != nil && highlight.POFCategory == p && highlight.COFCategory == string(c) {
				label = "[" + label + "]"
			}
			row = append(row, label)
		}
		tb.Row(row...)
	}
	return tb.String()
}

// Cell summarises one classification.
func Cell(m Mode, c risk.Cell) string {
	tb := NewTable(m)
	tb.Header("Cell", "Score", "Category", "Level", "Priority", "Interval")
	tb.Row(c.String(), c.Score, c.RiskCategory, c.RiskLevel, c.Priority, fmt.Sprintf("%d mo", c.InspectionIntervalMonths))
	return tb.String()
}

// History lists session entries newest first.
func History(m Mode, items []session.HistoryItem) string {
	tb := NewTable(m)
	tb.Header("#", "Time", "Variant", "Outcome")
	for _, it := range items {
		outcome := ""
		if it.Error != nil {
			outcome = string(it.Error.Code)
		} else if it.Result != nil {
			outcome = Number(it.Result.Value)
			if lvl := it.Result.Metadata.RiskLevel; lvl != "" {
				outcome += " (" + string(lvl) + ")"
			}
		}
		tb.Row(it.ID, it.Timestamp.Format("15:04:05"), it.Variant, outcome)
	}
	tb.AlignRight(1)
	return tb.String()
}

func mark(v bool) string {
	if v {
		return "✓"
	}
	return ""
}
