package formula

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

//go:embed catalog.schema.json
var catalogSchema string

const catalogSchemaURL = "https://assetrisk.schemas.local/formula/catalog.schema.json"

// ErrCatalogInvalid marks every catalog load failure.
var ErrCatalogInvalid = errors.New("invalid formula catalog")

type catalogDoc struct {
	Version  string              `yaml:"version"`
	Fields   map[string]fieldDoc `yaml:"fields"`
	Tables   map[string]tableDoc `yaml:"tables"`
	Formulas []Config            `yaml:"formulas"`
}

type fieldDoc struct {
	Kind        Kind     `yaml:"kind"`
	Unit        string   `yaml:"unit"`
	Description string   `yaml:"description"`
	Constraint  string   `yaml:"constraint"`
	Levels      []string `yaml:"levels"`
	Ordered     *bool    `yaml:"ordered"`
	Fallback    string   `yaml:"fallback"`
}

type tableDoc struct {
	Field   string    `yaml:"field"`
	Factors []float64 `yaml:"factors"`
}

// table is a categorical multiplier table aligned with its field's levels.
type table struct {
	field   string
	factors []float64
}

// LoadCatalogFile reads a catalog document from disk.
func LoadCatalogFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	reg, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return reg, nil
}

// LoadCatalog reads a catalog document from r.
func LoadCatalog(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Registry, error) {
	if err := validateCatalogSchema(data); err != nil {
		return nil, err
	}

	var doc catalogDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCatalogInvalid, err)
	}

	version, err := semver.NewVersion(doc.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog version %q: %v", ErrCatalogInvalid, doc.Version, err)
	}

	reg := &Registry{
		version:   version,
		byVariant: make(map[Variant]int, len(doc.Formulas)),
		byType:    make(map[Type][]int),
		fields:    make(map[string]*Field, len(doc.Fields)),
		tables:    make(map[string]table, len(doc.Tables)),
	}

	cc, err := newConstraintCompiler()
	if err != nil {
		return nil, err
	}
	for name, fd := range doc.Fields {
		f, err := buildField(cc, name, fd)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrCatalogInvalid, name, err)
		}
		reg.fields[name] = f
	}

	for name, td := range doc.Tables {
		t, err := reg.buildTable(td)
		if err != nil {
			return nil, fmt.Errorf("%w: table %s: %v", ErrCatalogInvalid, name, err)
		}
		reg.tables[name] = t
	}

	for _, cfg := range doc.Formulas {
		if err := reg.checkConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: formula %s: %v", ErrCatalogInvalid, cfg.Variant, err)
		}
		reg.byVariant[cfg.Variant] = len(reg.configs)
		reg.byType[cfg.Type] = append(reg.byType[cfg.Type], len(reg.configs))
		reg.configs = append(reg.configs, cfg)
	}
	return reg, nil
}

func validateCatalogSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse: %v", ErrCatalogInvalid, err)
	}
	// Round-trip through JSON so the validator sees JSON-native values.
	js, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogInvalid, err)
	}
	var doc any
	if err := json.Unmarshal(js, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogInvalid, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(catalogSchemaURL, strings.NewReader(catalogSchema)); err != nil {
		return fmt.Errorf("catalog schema load failed: %w", err)
	}
	schema, err := c.Compile(catalogSchemaURL)
	if err != nil {
		return fmt.Errorf("catalog schema compile failed: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCatalogInvalid, err)
	}
	return nil
}

func buildField(cc *constraintCompiler, name string, fd fieldDoc) (*Field, error) {
	f := &Field{
		Name:        name,
		Kind:        fd.Kind,
		Unit:        fd.Unit,
		Description: fd.Description,
		Constraint:  fd.Constraint,
		Levels:      fd.Levels,
		Fallback:    fd.Fallback,
	}
	switch fd.Kind {
	case KindNumber:
		if fd.Constraint != "" {
			prg, err := cc.compile(fd.Constraint)
			if err != nil {
				return nil, fmt.Errorf("constraint %q: %w", fd.Constraint, err)
			}
			f.check = prg
		}
	case KindCategory:
		f.Ordered = fd.Ordered == nil || *fd.Ordered
		f.index = make(map[string]int, len(fd.Levels))
		for i, level := range fd.Levels {
			key := normalizeLabel(level)
			if _, dup := f.index[key]; dup {
				return nil, fmt.Errorf("levels %q collide after normalisation", level)
			}
			f.index[key] = i
		}
		f.fbIndex = len(fd.Levels) - 1
		if fd.Fallback != "" {
			i, ok := f.index[normalizeLabel(fd.Fallback)]
			if !ok {
				return nil, fmt.Errorf("fallback %q is not a level", fd.Fallback)
			}
			f.fbIndex = i
		} else if !f.Ordered {
			return nil, fmt.Errorf("unordered category needs a fallback")
		}
	case KindBool:
	default:
		return nil, fmt.Errorf("unknown kind %q", fd.Kind)
	}
	return f, nil
}

func (r *Registry) buildTable(td tableDoc) (table, error) {
	f, ok := r.fields[td.Field]
	if !ok {
		return table{}, fmt.Errorf("field %q is not declared", td.Field)
	}
	if f.Kind != KindCategory {
		return table{}, fmt.Errorf("field %q is not a category", td.Field)
	}
	if len(td.Factors) != len(f.Levels) {
		return table{}, fmt.Errorf("%d factors for %d levels of %s", len(td.Factors), len(f.Levels), td.Field)
	}
	for i, v := range td.Factors {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return table{}, fmt.Errorf("factor %d is %v", i, v)
		}
		// Worse levels must never lower the multiplier.
		if f.Ordered && i > 0 && v < td.Factors[i-1] {
			return table{}, fmt.Errorf("factor for %q (%v) is below %q (%v)", f.Levels[i], v, f.Levels[i-1], td.Factors[i-1])
		}
	}
	return table{field: td.Field, factors: td.Factors}, nil
}

func (r *Registry) checkConfig(cfg Config) error {
	if !cfg.Type.Valid() {
		return fmt.Errorf("type %q: %w", cfg.Type, ErrUnknownType)
	}
	if _, dup := r.byVariant[cfg.Variant]; dup {
		return fmt.Errorf("variant registered twice")
	}
	if _, err := semver.NewVersion(cfg.Version); err != nil {
		return fmt.Errorf("version %q: %v", cfg.Version, err)
	}
	seen := make(map[string]bool)
	for _, name := range append(append([]string(nil), cfg.RequiredInputs...), cfg.OptionalInputs...) {
		if seen[name] {
			return fmt.Errorf("input %s listed twice", name)
		}
		seen[name] = true
		if _, ok := r.fields[name]; !ok {
			return fmt.Errorf("input %s is not a declared field", name)
		}
	}
	if vr := cfg.ValidRange; vr != nil && vr.Min > vr.Max {
		return fmt.Errorf("valid range min %v exceeds max %v", vr.Min, vr.Max)
	}
	return nil
}
