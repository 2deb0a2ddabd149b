package formula

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
)

// family binds a formula type to the variants it computes. compute
// switches over those variants and panics on any other.
type family struct {
	variants []Variant
	compute  func(Variant, *params) float64
}

var families = map[Type]family{
	TypeThinning:          {[]Variant{VariantThinningBasic, VariantThinningAdvanced}, computeThinning},
	TypeExternalCorrosion: {[]Variant{VariantExternalBasic, VariantExternalAdvanced}, computeExternal},
	TypeCUI:               {[]Variant{VariantCUIBasic, VariantCUIAdvanced}, computeCUI},
	TypeSCC:               {[]Variant{VariantSCCCaustic, VariantSCCChloride}, computeSCC},
	TypeMechanicalFatigue: {[]Variant{VariantFatigueBasic, VariantFatigueAdvanced}, computeFatigue},
	TypeProductionCOF:     {[]Variant{VariantProductionBasic, VariantProductionAdvanced}, computeProduction},
	TypeAreaCOF:           {[]Variant{VariantAreaBasic, VariantAreaAdvanced}, computeArea},
	TypeRiskMatrix:        {[]Variant{VariantRiskMatrix, VariantRiskMatrixDF}, computeMatrix},
}

// requiredTables are the multiplier tables the calculators read.
var requiredTables = []string{
	"cui.insulationType", "cui.insulationCondition", "cui.moistureIngress",
	"cui.weatherExposure", "cui.coatingCondition", "cui.environmentalSeverity",
	"ext.coatingCondition", "ext.externalEnvironment",
	"inspection.effectiveness",
	"mfat.previousFailures", "mfat.visibleShaking", "mfat.cyclicLoadSource",
	"mfat.correctiveAction", "mfat.pipeComplexity", "mfat.supportCondition", "mfat.jointType",
	"cof.failureMode", "cof.mitigationSystem",
}

// Engine validates inputs and dispatches to the calculators. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	reg    *Registry
	logger *slog.Logger
}

// NewEngine checks that reg and the built-in calculators describe the same
// set of variants and returns an engine over reg.
func NewEngine(reg *Registry) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("formula engine: nil registry")
	}
	known := make(map[Variant]Type)
	for t, fam := range families {
		for _, v := range fam.variants {
			known[v] = t
		}
	}
	for _, cfg := range reg.configs {
		t, ok := known[cfg.Variant]
		if !ok {
			return nil, fmt.Errorf("%w: no calculator for %s", ErrCatalogInvalid, cfg.Variant)
		}
		if t != cfg.Type {
			return nil, fmt.Errorf("%w: %s is a %s formula, catalog says %s", ErrCatalogInvalid, cfg.Variant, t, cfg.Type)
		}
		delete(known, cfg.Variant)
	}
	if len(known) > 0 {
		missing := make([]string, 0, len(known))
		for v := range known {
			missing = append(missing, string(v))
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: catalog has no config for %v", ErrCatalogInvalid, missing)
	}
	for _, name := range requiredTables {
		if _, ok := reg.tables[name]; !ok {
			return nil, fmt.Errorf("%w: table %s is missing", ErrCatalogInvalid, name)
		}
	}
	if err := checkAreaLevels(reg); err != nil {
		return nil, err
	}
	return &Engine{
		reg:    reg,
		logger: slog.Default().With("component", "formula"),
	}, nil
}

var defaultEngine = sync.OnceValues(func() (*Engine, error) {
	reg, err := DefaultRegistry()
	if err != nil {
		return nil, err
	}
	return NewEngine(reg)
})

// DefaultEngine returns the engine over the embedded catalog.
func DefaultEngine() (*Engine, error) {
	return defaultEngine()
}

// Registry returns the catalog the engine dispatches against.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Calculate evaluates variant v of type t. Validation runs before any
// computation: unknown pair, then missing required inputs in declared
// order, then invalid values. The returned error is always a *Error.
func (e *Engine) Calculate(t Type, v Variant, in Input) (*Result, error) {
	cfg, ok := e.reg.Lookup(t, v)
	if !ok {
		return nil, &Error{
			Code:    CodeUnknownFormula,
			Message: fmt.Sprintf("no formula %q registered for type %q", v, t),
		}
	}

	p, ferr := e.reg.bind(cfg, in)
	if ferr != nil {
		e.logger.Debug("input rejected", "variant", v, "code", ferr.Code, "input", ferr.Input)
		return nil, ferr
	}

	value := families[t].compute(v, p)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		e.logger.Warn("non-finite result", "variant", v, "value", value)
		return nil, &Error{
			Code:    CodeCalculationException,
			Message: fmt.Sprintf("%s produced a non-finite value", v),
			Value:   wireValue(value),
		}
	}

	digest, err := InputDigest(p.snapshot())
	if err != nil {
		// Bound values are plain numbers, strings and bools.
		return nil, ExceptionError(err)
	}

	res := &Result{
		Value:       value,
		Formula:     v,
		Type:        t,
		Inputs:      p.usedNumbers(),
		InputDigest: digest,
		Metadata: Metadata{
			Name:        cfg.Name,
			Description: cfg.Description,
			Unit:        cfg.OutputUnit,
			Version:     cfg.Version,
			Category:    cfg.Category,
			ValidRange:  cfg.ValidRange,
		},
	}
	if vr := cfg.ValidRange; vr != nil && !vr.Contains(value) {
		p.note("value %g is outside the documented range [%g, %g]", value, vr.Min, vr.Max)
	}
	switch cfg.Category {
	case CategoryDamageFactor:
		res.Metadata.RiskLevel = risk.LevelFor(value)
	case CategoryConsequence:
		res.Metadata.ConsequenceCategory = p.consequence
	case CategoryRisk:
		res.Metadata.Matrix = p.cell
	}
	res.Metadata.Notes = p.notes
	return res, nil
}

// Calculate runs the default engine.
func Calculate(t Type, v Variant, in Input) (*Result, error) {
	e, err := DefaultEngine()
	if err != nil {
		return nil, ExceptionError(err)
	}
	return e.Calculate(t, v, in)
}
