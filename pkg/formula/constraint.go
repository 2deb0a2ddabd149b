package formula

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// constraintCompiler turns field constraints into CEL programs over a
// single double variable named value. Identical expressions share one
// program.
type constraintCompiler struct {
	env   *cel.Env
	cache map[string]cel.Program
}

func newConstraintCompiler() (*constraintCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &constraintCompiler{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

func (c *constraintCompiler) compile(expr string) (cel.Program, error) {
	if prg, ok := c.cache[expr]; ok {
		return prg, nil
	}
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := c.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(1000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	// Probe once so a non-boolean expression fails at load, not per call.
	if _, err := evalConstraint(prg, 0); err != nil {
		return nil, err
	}
	c.cache[expr] = prg
	return prg, nil
}

func evalConstraint(prg cel.Program, v float64) (bool, error) {
	out, _, err := prg.Eval(map[string]any{"value": v})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("result not bool")
	}
	return ok, nil
}
