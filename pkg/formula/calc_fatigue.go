package formula

import "math"

const (
	smallBranchInches = 2.0
	smallBranchMult   = 1.0
	largeBranchMult   = 0.5
)

func computeFatigue(v Variant, p *params) float64 {
	// The base is driven by the worst indicator, not their product.
	df := math.Max(p.factor("mfat.previousFailures"),
		math.Max(p.factor("mfat.visibleShaking"), p.factor("mfat.cyclicLoadSource")))
	p.note("fatigue base %.2f", df)

	switch v {
	case VariantFatigueBasic:
		return df
	case VariantFatigueAdvanced:
		df *= p.factor("mfat.correctiveAction")
		df *= p.factor("mfat.pipeComplexity")
		df *= p.factor("mfat.supportCondition")
		df *= p.factor("mfat.jointType")

		branch := smallBranchMult
		if p.num("branchDiameter") > smallBranchInches {
			branch = largeBranchMult
		}
		p.note("branch diameter: ×%g", branch)
		return df * branch
	}
	panic(unhandled(TypeMechanicalFatigue, v))
}
