package formula

import (
	"strings"

	"github.com/google/cel-go/cel"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Kind is the declared type of an input field.
type Kind string

const (
	KindNumber   Kind = "number"
	KindCategory Kind = "category"
	KindBool     Kind = "bool"
)

// Field describes one input name shared by every formula that reads it.
type Field struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	Unit        string   `json:"unit,omitempty"`
	Description string   `json:"description,omitempty"`
	Constraint  string   `json:"constraint,omitempty"`
	Levels      []string `json:"levels,omitempty"`
	// Ordered categories list levels best to worst. Unrecognised labels on
	// an ordered field resolve to the worst level.
	Ordered  bool   `json:"ordered,omitempty"`
	Fallback string `json:"fallback,omitempty"`

	check   cel.Program
	index   map[string]int
	fbIndex int
}

// InputSpec is a field as seen by one formula.
type InputSpec struct {
	Field
	Required bool `json:"required"`
}

// normalizeLabel folds a categorical label for matching: NFC, case folded,
// with spaces, hyphens and underscores removed. "very-poor", "Very Poor"
// and "VERY_POOR" all match.
func normalizeLabel(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = cases.Fold().String(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\t':
			return -1
		}
		return r
	}, s)
}

// resolve maps a raw label to a level index. matched is false when the
// label was not recognised and the fallback level was used instead.
func (f *Field) resolve(label string) (idx int, matched bool) {
	if i, ok := f.index[normalizeLabel(label)]; ok {
		return i, true
	}
	return f.fbIndex, false
}

func (f *Field) clone() Field {
	c := *f
	c.Levels = append([]string(nil), f.Levels...)
	return c
}
