package risk

import (
	"fmt"
	"math"
	"strings"
)

// Basis selects the unit of the consequence axis.
type Basis string

const (
	BasisFinancial Basis = "Financial" // USD
	BasisArea      Basis = "Area"      // m²
)

// ParseBasis accepts "financial"/"area" in any case. ok is false for
// anything else.
func ParseBasis(s string) (Basis, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "financial", "usd", "cost":
		return BasisFinancial, true
	case "area", "m2", "m²":
		return BasisArea, true
	}
	return "", false
}

// MatrixLevel is the four-region risk level used on the matrix.
type MatrixLevel string

const (
	MatrixLow        MatrixLevel = "Low"
	MatrixMedium     MatrixLevel = "Medium"
	MatrixMediumHigh MatrixLevel = "Medium High"
	MatrixHigh       MatrixLevel = "High"
)

// Category is the risk category A (lowest) to E (highest).
type Category string

const (
	CategoryA Category = "A"
	CategoryB Category = "B"
	CategoryC Category = "C"
	CategoryD Category = "D"
	CategoryE Category = "E"
)

// Priority is the inspection planning priority attached to a category.
type Priority string

const (
	PriorityVeryLow  Priority = "Very Low"
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityVeryHigh Priority = "Very High"
)

// Cell is one classified position on the 5×5 matrix.
type Cell struct {
	POFCategory              int         `json:"pofCategory"`
	COFCategory              string      `json:"cofCategory"`
	Basis                    Basis       `json:"basis"`
	Score                    int         `json:"score"`
	RiskLevel                MatrixLevel `json:"riskLevel"`
	RiskCategory             Category    `json:"riskCategory"`
	Priority                 Priority    `json:"priority"`
	InspectionIntervalMonths int         `json:"inspectionInterval"`
}

// Band bounds are inclusive lower, exclusive upper. A value equal to a
// bound therefore belongs to the band that starts at it.
var (
	pofBounds       = []float64{3.06e-5, 3.06e-4, 3.06e-3, 3.06e-2}
	financialBounds = []float64{10_000, 100_000, 1_000_000, 10_000_000}
	areaBounds      = []float64{9.29, 92.9, 279, 929}
	cofLetters      = []string{"A", "B", "C", "D", "E"}
)

type categoryProfile struct {
	level    MatrixLevel
	priority Priority
	interval int
}

var categoryProfiles = map[Category]categoryProfile{
	CategoryA: {MatrixLow, PriorityVeryLow, 60},
	CategoryB: {MatrixMedium, PriorityLow, 36},
	CategoryC: {MatrixMedium, PriorityMedium, 24},
	CategoryD: {MatrixMediumHigh, PriorityHigh, 12},
	CategoryE: {MatrixHigh, PriorityVeryHigh, 6},
}

// bandIndex returns how many bounds v has reached (0..len(bounds)).
// Negative values and NaN land in the first band.
func bandIndex(v float64, bounds []float64) int {
	if math.IsNaN(v) {
		return 0
	}
	i := 0
	for _, b := range bounds {
		if v < b {
			break
		}
		i++
	}
	return i
}

// POFCategory returns the probability category 1..5 for a probability of
// failure in events per year.
func POFCategory(pof float64) int {
	return bandIndex(pof, pofBounds) + 1
}

// COFCategory returns the consequence category letter A..E.
func COFCategory(cof float64, basis Basis) string {
	bounds := financialBounds
	if basis == BasisArea {
		bounds = areaBounds
	}
	return cofLetters[bandIndex(cof, bounds)]
}

// categoryForScore maps pofCategory + cofIndex (2..10) to a risk category.
func categoryForScore(score int) Category {
	switch {
	case score <= 3:
		return CategoryA
	case score <= 5:
		return CategoryB
	case score == 6:
		return CategoryC
	case score <= 8:
		return CategoryD
	default:
		return CategoryE
	}
}

// Classify places (pof, cof) on the matrix. It is a pure lookup: the same
// pair always yields the same cell.
func Classify(pof, cof float64, basis Basis) Cell {
	if basis == "" {
		basis = BasisFinancial
	}
	p := POFCategory(pof)
	c := COFCategory(cof, basis)
	score := p + strings.Index("ABCDE", c) + 1
	cat := ClassifyCategories(p, c)
	prof := categoryProfiles[cat]
	return Cell{
		POFCategory:              p,
		COFCategory:              c,
		Basis:                    basis,
		Score:                    score,
		RiskLevel:                prof.level,
		RiskCategory:             cat,
		Priority:                 prof.priority,
		InspectionIntervalMonths: prof.interval,
	}
}

// ClassifyCategories returns the risk category for an already-banded
// pair, pof 1..5 and cof "A".."E". Out-of-range inputs are clamped.
func ClassifyCategories(pof int, cof string) Category {
	pof = min(max(pof, 1), 5)
	ci := strings.Index("ABCDE", strings.ToUpper(cof))
	if ci < 0 || len(cof) != 1 {
		ci = 4
	}
	return categoryForScore(pof + ci + 1)
}

// InspectionInterval returns the recommended interval in months for a
// risk category.
func InspectionInterval(c Category) (int, error) {
	prof, ok := categoryProfiles[c]
	if !ok {
		return 0, fmt.Errorf("unknown risk category %q", c)
	}
	return prof.interval, nil
}

// String renders the cell as "3C".
func (c Cell) String() string {
	return fmt.Sprintf("%d%s", c.POFCategory, c.COFCategory)
}
