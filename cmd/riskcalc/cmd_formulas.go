package main

import (
	"fmt"

	"github.com/Mindburn-Labs/assetrisk/pkg/format"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/spf13/cobra"
)

func newFormulasCmd(opts *globalOptions) *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "formulas",
		Short: "List registered formulas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.engine()
			if err != nil {
				return err
			}
			reg := e.Registry()
			cfgs := reg.Configs()
			if typeName != "" {
				t, err := formula.ParseType(typeName)
				if err != nil {
					return err
				}
				cfgs = reg.FormulasByType(t)
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.Formulas(opts.mode(), cfgs))
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "only list formulas of this type, e.g. cui_damage")
	return cmd
}

func newDescribeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <variant>",
		Short: "Show a formula's inputs, units and accepted levels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.engine()
			if err != nil {
				return err
			}
			v := formula.Variant(args[0])
			cfg, ok := e.Registry().FormulaConfig(v)
			if !ok {
				return fmt.Errorf("formula %q is not registered (see 'riskcalc formulas')", args[0])
			}
			specs, _ := e.Registry().Inputs(v)
			fmt.Fprintln(cmd.OutOrStdout(), format.Describe(opts.mode(), cfg, specs))
			return nil
		},
	}
}
