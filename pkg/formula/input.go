package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
)

// params is an Input validated against one Config. Calculators read it
// through typed accessors; every read is recorded so Result.Inputs lists
// only the numbers a formula actually used.
type params struct {
	reg    *Registry
	nums   map[string]float64
	cats   map[string]int
	labels map[string]string
	flags  map[string]bool
	used   map[string]bool
	notes  []string

	cell        *risk.Cell
	consequence string
}

// present treats nil and blank strings as absent.
func present(in Input, name string) (any, bool) {
	v, ok := in[name]
	if !ok || v == nil {
		return nil, false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

func (r *Registry) bind(cfg Config, in Input) (*params, *Error) {
	for _, name := range cfg.RequiredInputs {
		if _, ok := present(in, name); !ok {
			return nil, &Error{
				Code:    CodeMissingInput,
				Message: fmt.Sprintf("%s requires %s", cfg.Variant, name),
				Input:   name,
			}
		}
	}

	p := &params{
		reg:    r,
		nums:   make(map[string]float64),
		cats:   make(map[string]int),
		labels: make(map[string]string),
		flags:  make(map[string]bool),
		used:   make(map[string]bool),
	}
	names := append(append([]string(nil), cfg.RequiredInputs...), cfg.OptionalInputs...)
	for _, name := range names {
		raw, ok := present(in, name)
		if !ok {
			continue
		}
		if ferr := p.set(r.fields[name], raw); ferr != nil {
			return nil, ferr
		}
	}
	return p, nil
}

func (p *params) set(f *Field, raw any) *Error {
	invalid := func(format string, args ...any) *Error {
		return &Error{
			Code:    CodeInvalidInput,
			Message: fmt.Sprintf(format, args...),
			Input:   f.Name,
			Value:   wireValue(raw),
		}
	}

	switch f.Kind {
	case KindNumber:
		v, ok := toNumber(raw)
		if !ok {
			return invalid("%s must be a number", f.Name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("%s must be finite", f.Name)
		}
		if f.check != nil {
			allowed, err := evalConstraint(f.check, v)
			if err != nil {
				return invalid("%s: constraint: %v", f.Name, err)
			}
			if !allowed {
				return invalid("%s = %v is outside %s", f.Name, v, f.Constraint)
			}
		}
		p.nums[f.Name] = v

	case KindCategory:
		s, ok := raw.(string)
		if !ok {
			return invalid("%s must be one of %s", f.Name, strings.Join(f.Levels, ", "))
		}
		idx, matched := f.resolve(s)
		if !matched {
			p.note("%s: unrecognised value %q, using %q", f.Name, s, f.Levels[idx])
		}
		p.cats[f.Name] = idx
		p.labels[f.Name] = f.Levels[idx]

	case KindBool:
		b, ok := toBool(raw)
		if !ok {
			return invalid("%s must be true or false", f.Name)
		}
		p.flags[f.Name] = b
	}
	return nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	return false, false
}

func (p *params) note(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

// num returns a validated number. Required numbers are always present.
func (p *params) num(name string) float64 {
	p.used[name] = true
	return p.nums[name]
}

// numOr returns the number or def when it was not supplied.
func (p *params) numOr(name string, def float64) float64 {
	if _, ok := p.nums[name]; !ok {
		return def
	}
	return p.num(name)
}

func (p *params) flag(name string) bool {
	return p.flags[name]
}

func (p *params) has(name string) bool {
	if _, ok := p.nums[name]; ok {
		return true
	}
	if _, ok := p.cats[name]; ok {
		return true
	}
	_, ok := p.flags[name]
	return ok
}

func (p *params) label(name string) string {
	return p.labels[name]
}

// factor looks up the multiplier for the level bound to the table's field
// and notes it. A missing table is a catalog/engine mismatch and panics.
func (p *params) factor(tableName string) float64 {
	t, ok := p.reg.tables[tableName]
	if !ok {
		panic(fmt.Sprintf("formula: table %s is not in the catalog", tableName))
	}
	idx, ok := p.cats[t.field]
	if !ok {
		panic(fmt.Sprintf("formula: %s read before %s was bound", tableName, t.field))
	}
	f := t.factors[idx]
	p.note("%s %s: ×%g", t.field, p.labels[t.field], f)
	return f
}

// factorOr is factor for optional fields; def applies when absent.
func (p *params) factorOr(tableName string, def float64) float64 {
	t, ok := p.reg.tables[tableName]
	if ok {
		if _, bound := p.cats[t.field]; !bound {
			return def
		}
	}
	return p.factor(tableName)
}

// snapshot is the canonical view of every bound value, used for digests.
func (p *params) snapshot() map[string]any {
	out := make(map[string]any, len(p.nums)+len(p.labels)+len(p.flags))
	for k, v := range p.nums {
		out[k] = v
	}
	for k, v := range p.labels {
		out[k] = v
	}
	for k, v := range p.flags {
		out[k] = v
	}
	return out
}

// usedNumbers is the audit subset reported in Result.Inputs.
func (p *params) usedNumbers() map[string]float64 {
	out := make(map[string]float64, len(p.used))
	for k := range p.used {
		out[k] = p.nums[k]
	}
	return out
}
