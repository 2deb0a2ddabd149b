// Package formula holds the catalog of engineering risk formulas and the
// dispatcher that evaluates them.
//
// A formula is addressed by its Type and a globally unique Variant. The
// catalog (catalog.yaml, embedded) declares every input field once, the
// categorical multiplier tables, and the Config of each variant. The
// Engine validates an Input against the Config and routes it to the
// calculator for its family. Expected failures come back as *Error values;
// the Engine never panics on caller input.
package formula

import (
	"errors"
	"fmt"
	"math"
)

// Type is the closed set of formula families.
type Type string

const (
	TypeThinning          Type = "thinning_damage"
	TypeExternalCorrosion Type = "external_corrosion_damage"
	TypeCUI               Type = "cui_damage"
	TypeSCC               Type = "scc_damage"
	TypeMechanicalFatigue Type = "mechanical_fatigue_damage"
	TypeProductionCOF     Type = "production_cof"
	TypeAreaCOF           Type = "area_cof"
	TypeRiskMatrix        Type = "risk_matrix"
)

// ErrUnknownType is returned by ParseType for names outside the enumeration.
var ErrUnknownType = errors.New("unknown formula type")

// Types returns every formula type in display order.
func Types() []Type {
	return []Type{
		TypeThinning,
		TypeExternalCorrosion,
		TypeCUI,
		TypeSCC,
		TypeMechanicalFatigue,
		TypeProductionCOF,
		TypeAreaCOF,
		TypeRiskMatrix,
	}
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType converts a wire name into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Variant identifies one formula. Variants are unique across types.
type Variant string

const (
	VariantThinningBasic    Variant = "dfthin_basic"
	VariantThinningAdvanced Variant = "dfthin_advanced"

	VariantExternalBasic    Variant = "dfext_basic"
	VariantExternalAdvanced Variant = "dfext_advanced"

	VariantCUIBasic    Variant = "dfcui_basic"
	VariantCUIAdvanced Variant = "dfcui_advanced"

	VariantSCCCaustic  Variant = "dfscc_caustic"
	VariantSCCChloride Variant = "dfscc_chloride"

	VariantFatigueBasic    Variant = "dfmfat_basic"
	VariantFatigueAdvanced Variant = "dfmfat_advanced"

	VariantProductionBasic    Variant = "cof_production_basic"
	VariantProductionAdvanced Variant = "cof_production_advanced"

	VariantAreaBasic    Variant = "cof_area_basic"
	VariantAreaAdvanced Variant = "cof_area_advanced"

	VariantRiskMatrix   Variant = "risk_matrix_5x5"
	VariantRiskMatrixDF Variant = "risk_matrix_df"
)

// Category groups formulas by what their value means.
type Category string

const (
	CategoryDamageFactor Category = "damage_factor"
	CategoryConsequence  Category = "consequence"
	CategoryRisk         Category = "risk"
)

// Range is the documented span of a formula's output.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the closed range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Config is the static descriptor of one formula variant.
type Config struct {
	Variant        Variant  `json:"variant" yaml:"variant"`
	Type           Type     `json:"type" yaml:"type"`
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description" yaml:"description"`
	RequiredInputs []string `json:"requiredInputs" yaml:"requiredInputs"`
	OptionalInputs []string `json:"optionalInputs,omitempty" yaml:"optionalInputs"`
	OutputUnit     string   `json:"outputUnit" yaml:"outputUnit"`
	Category       Category `json:"category" yaml:"category"`
	Version        string   `json:"version" yaml:"version"`
	ValidRange     *Range   `json:"validRange,omitempty" yaml:"validRange"`
}

func (c Config) clone() Config {
	c.RequiredInputs = append([]string(nil), c.RequiredInputs...)
	c.OptionalInputs = append([]string(nil), c.OptionalInputs...)
	if c.ValidRange != nil {
		r := *c.ValidRange
		c.ValidRange = &r
	}
	return c
}

// Input maps field names to raw values. Numbers may arrive as any Go
// numeric type, json.Number or a numeric string. Fields a formula does not
// declare are ignored.
type Input map[string]any

// Clone returns a shallow copy safe to keep after the caller mutates in.
func (in Input) Clone() Input {
	if in == nil {
		return nil
	}
	out := make(Input, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Code is the symbolic kind of a formula error.
type Code string

const (
	CodeUnknownFormula       Code = "UNKNOWN_FORMULA"
	CodeMissingInput         Code = "MISSING_INPUT"
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeCalculationException Code = "CALCULATION_EXCEPTION"
)

// Error is a failed calculation. Input and Value name the offending field
// when there is one.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Input   string `json:"input,omitempty"`
	Value   any    `json:"value,omitempty"`
}

func (e *Error) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("%s: %s (input %s)", e.Code, e.Message, e.Input)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the symbolic code as a plain string.
func (e *Error) ErrorCode() string { return string(e.Code) }

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ExceptionError wraps a recovered panic value.
func ExceptionError(r any) *Error {
	return &Error{
		Code:    CodeCalculationException,
		Message: fmt.Sprintf("calculation failed: %v", r),
	}
}

// wireValue keeps an offending value JSON-encodable.
func wireValue(v any) any {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Sprint(f)
		}
	}
	return v
}
