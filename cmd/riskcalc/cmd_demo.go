package main

import (
	"fmt"

	"github.com/Mindburn-Labs/assetrisk/pkg/format"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
	"github.com/spf13/cobra"
)

func newDemoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk one insulated line through damage factor, consequence and risk",
		Long: `Runs a worked example in a single session: a CUI damage factor, the
production consequence of losing the line, and the combined position on
the risk matrix. A deliberately incomplete request shows how failures are
recorded, and the session history is printed last.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.engine()
			if err != nil {
				return err
			}
			return runDemo(cmd, opts.mode(), session.New(e))
		},
	}
}

func runDemo(cmd *cobra.Command, m format.Mode, s *session.Session) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	step := func(title string, t formula.Type, v formula.Variant, in formula.Input) (*formula.Result, error) {
		fmt.Fprintf(out, "\n== %s ==\n", title)
		o := s.Calculate(ctx, t, v, in)
		if o.Error != nil {
			fmt.Fprintln(out, format.FormulaError(o.Error))
			return nil, o.Error
		}
		fmt.Fprintln(out, format.Result(m, o.Result))
		return o.Result, nil
	}

	df, err := step("1. Corrosion under insulation", formula.TypeCUI, formula.VariantCUIBasic, formula.Input{
		"operatingTemperature": 95,
		"insulationType":       "Mineral Wool",
		"insulationCondition":  "Poor",
		"moistureIngress":      "High",
	})
	if err != nil {
		return err
	}

	cof, err := step("2. Production consequence", formula.TypeProductionCOF, formula.VariantProductionBasic, formula.Input{
		"productionRate": 1200,
		"unitValue":      65,
		"outageDays":     7,
		"spareCapacity":  0.25,
	})
	if err != nil {
		return err
	}

	if _, err := step("3. Risk", formula.TypeRiskMatrix, formula.VariantRiskMatrixDF, formula.Input{
		"damageFactor": df.Value,
		"cof":          cof.Value,
	}); err != nil {
		return err
	}

	// Missing inputs are reported and still recorded.
	_, _ = step("4. Incomplete request", formula.TypeSCC, formula.VariantSCCChloride, formula.Input{
		"operatingTemperature": 70,
	})

	fmt.Fprintf(out, "\n== Session %s ==\n", s.ID())
	fmt.Fprintln(out, format.History(m, s.History()))
	return nil
}
