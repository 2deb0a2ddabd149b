package formula

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Registry is an immutable formula catalog. All methods are safe for
// concurrent use; there is no mutation API.
type Registry struct {
	version   *semver.Version
	configs   []Config
	byVariant map[Variant]int
	byType    map[Type][]int
	fields    map[string]*Field
	tables    map[string]table
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return parseCatalog(embeddedCatalog)
})

// DefaultRegistry returns the registry built from the embedded catalog.
func DefaultRegistry() (*Registry, error) {
	return defaultRegistry()
}

// Default is DefaultRegistry for callers that treat a broken embedded
// catalog as a build defect.
func Default() *Registry {
	reg, err := defaultRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}

// Version is the catalog's semantic version.
func (r *Registry) Version() string {
	return r.version.String()
}

// AvailableFormulas lists variant names per type. Every Type is present as
// a key, with an empty slice when nothing is registered for it.
func (r *Registry) AvailableFormulas() map[Type][]Variant {
	out := make(map[Type][]Variant, len(Types()))
	for _, t := range Types() {
		idx := r.byType[t]
		vs := make([]Variant, 0, len(idx))
		for _, i := range idx {
			vs = append(vs, r.configs[i].Variant)
		}
		out[t] = vs
	}
	return out
}

// FormulasByType returns the configs registered for t in catalog order.
// An unknown or empty type yields an empty slice.
func (r *Registry) FormulasByType(t Type) []Config {
	idx := r.byType[t]
	out := make([]Config, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.configs[i].clone())
	}
	return out
}

// FormulaConfig looks a variant up across all types.
func (r *Registry) FormulaConfig(v Variant) (Config, bool) {
	i, ok := r.byVariant[v]
	if !ok {
		return Config{}, false
	}
	return r.configs[i].clone(), true
}

// Lookup finds v and checks that it belongs to t.
func (r *Registry) Lookup(t Type, v Variant) (Config, bool) {
	cfg, ok := r.FormulaConfig(v)
	if !ok || cfg.Type != t {
		return Config{}, false
	}
	return cfg, true
}

// Configs returns every config in catalog order.
func (r *Registry) Configs() []Config {
	out := make([]Config, len(r.configs))
	for i, c := range r.configs {
		out[i] = c.clone()
	}
	return out
}

// Field returns the declaration of an input name.
func (r *Registry) Field(name string) (Field, bool) {
	f, ok := r.fields[name]
	if !ok {
		return Field{}, false
	}
	return f.clone(), true
}

// Inputs describes every input of v, required fields first.
func (r *Registry) Inputs(v Variant) ([]InputSpec, bool) {
	i, ok := r.byVariant[v]
	if !ok {
		return nil, false
	}
	cfg := r.configs[i]
	out := make([]InputSpec, 0, len(cfg.RequiredInputs)+len(cfg.OptionalInputs))
	for _, name := range cfg.RequiredInputs {
		out = append(out, InputSpec{Field: r.fields[name].clone(), Required: true})
	}
	for _, name := range cfg.OptionalInputs {
		out = append(out, InputSpec{Field: r.fields[name].clone()})
	}
	return out, true
}

// FieldNames returns all declared field names, sorted.
func (r *Registry) FieldNames() []string {
	names := make([]string, 0, len(r.fields))
	for n := range r.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AvailableFormulas reads the default registry.
func AvailableFormulas() map[Type][]Variant { return Default().AvailableFormulas() }

// FormulasByType reads the default registry.
func FormulasByType(t Type) []Config { return Default().FormulasByType(t) }

// FormulaConfig reads the default registry.
func FormulaConfig(v Variant) (Config, bool) { return Default().FormulaConfig(v) }
