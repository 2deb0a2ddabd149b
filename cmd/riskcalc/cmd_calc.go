package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/Mindburn-Labs/assetrisk/pkg/format"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type calcFlags struct {
	typeName   string
	variant    string
	inputs     []string
	inputsFile string
	profile    string
	asJSON     bool
}

func newCalcCmd(opts *globalOptions) *cobra.Command {
	var cf calcFlags
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Run one formula",
		Long: `Run one formula and print its value, classification and notes.

Inputs come from --inputs-file (YAML or JSON object) and repeated
--input name=value flags, which win over the file. Values are read as
YAML scalars: 150 is a number, true is a boolean, Very Poor is a label.`,
		Example: `  riskcalc calc --variant dfcui_basic --input operatingTemperature=150 \
    --input insulationType=Perlite --input insulationCondition=Poor --input moistureIngress=High`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCalc(cmd, opts, cf)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cf.typeName, "type", "", "formula type (default: the variant's own type)")
	f.StringVar(&cf.variant, "variant", "", "formula variant, e.g. dfcui_basic (required)")
	f.StringArrayVarP(&cf.inputs, "input", "i", nil, "input as name=value (repeatable)")
	f.StringVar(&cf.inputsFile, "inputs-file", "", "YAML or JSON file of inputs")
	f.StringVar(&cf.profile, "profile", "", "site profile whose defaults fill absent inputs")
	f.BoolVar(&cf.asJSON, "json", false, "print the result or error as JSON")
	_ = cmd.MarkFlagRequired("variant")
	return cmd
}

func runCalc(cmd *cobra.Command, opts *globalOptions, cf calcFlags) error {
	e, err := opts.engine()
	if err != nil {
		return err
	}

	v := formula.Variant(cf.variant)
	t := formula.Type(cf.typeName)
	if t == "" {
		cfg, ok := e.Registry().FormulaConfig(v)
		if !ok {
			return fmt.Errorf("formula %q is not registered (see 'riskcalc formulas')", cf.variant)
		}
		t = cfg.Type
	}

	in, err := readInputs(cf.inputsFile, cf.inputs)
	if err != nil {
		return err
	}
	if cf.profile != "" {
		profiles, err := opts.profiles(e.Registry())
		if err != nil {
			return err
		}
		p, ok := config.FindProfile(profiles, cf.profile)
		if !ok {
			return fmt.Errorf("unknown site profile %q", cf.profile)
		}
		in = p.Apply(in)
	}

	out := cmd.OutOrStdout()
	res, err := e.Calculate(t, v, in)
	if err != nil {
		fe, ok := formula.AsError(err)
		if !ok {
			return err
		}
		if cf.asJSON {
			_ = writeJSON(out, map[string]any{"error": fe})
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), format.FormulaError(fe))
		}
		return errReported
	}

	if cf.asJSON {
		return writeJSON(out, res)
	}
	fmt.Fprintln(out, format.Result(opts.mode(), res))
	return nil
}

// readInputs merges the inputs file with name=value pairs.
func readInputs(path string, pairs []string) (formula.Input, error) {
	in := formula.Input{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read inputs: %w", err)
		}
		if err := yaml.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("parse inputs %s: %w", path, err)
		}
	}
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("input %q: want name=value", p)
		}
		in[name] = scalar(raw)
	}
	return in, nil
}

// scalar decodes raw as a YAML scalar. Anything that is not a plain
// scalar stays a string.
func scalar(raw string) any {
	raw = strings.TrimSpace(raw)
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool, string:
		return v
	}
	return raw
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMatrixCmd(opts *globalOptions) *cobra.Command {
	var (
		pof, cof float64
		basis    string
	)
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Draw the 5x5 risk matrix, optionally placing a POF/COF pair on it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, ok := risk.ParseBasis(basis)
			if !ok {
				return fmt.Errorf("unknown basis %q (want Financial or Area)", basis)
			}
			out := cmd.OutOrStdout()
			if !cmd.Flags().Changed("pof") && !cmd.Flags().Changed("cof") {
				fmt.Fprintln(out, format.Matrix(opts.mode(), nil))
				return nil
			}
			if !cmd.Flags().Changed("pof") || !cmd.Flags().Changed("cof") {
				return fmt.Errorf("--pof and --cof must be given together")
			}
			c := risk.Classify(pof, cof, b)
			fmt.Fprintln(out, format.Matrix(opts.mode(), &c))
			fmt.Fprintln(out, format.Cell(opts.mode(), c))
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&pof, "pof", 0, "probability of failure, events per year")
	f.Float64Var(&cof, "cof", 0, "consequence of failure, USD or m2")
	f.StringVar(&basis, "basis", string(risk.BasisFinancial), "consequence basis: Financial or Area")
	return cmd
}
