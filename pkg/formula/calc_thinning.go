package formula

import "math"

// thinningCurve maps the wall-loss fraction Art to a damage factor. Points
// between knots are interpolated linearly; the curve is flat past the
// last knot.
var thinningCurve = []struct{ art, df float64 }{
	{0, 0.05},
	{0.05, 0.3},
	{0.10, 0.6},
	{0.20, 1.2},
	{0.30, 2.0},
	{0.50, 3.0},
	{1.0, 5.0},
}

func thinningFromArt(art float64) float64 {
	if art <= thinningCurve[0].art {
		return thinningCurve[0].df
	}
	for i := 1; i < len(thinningCurve); i++ {
		hi := thinningCurve[i]
		if art < hi.art {
			lo := thinningCurve[i-1]
			return lo.df + (art-lo.art)*(hi.df-lo.df)/(hi.art-lo.art)
		}
	}
	return thinningCurve[len(thinningCurve)-1].df
}

const (
	minInspectionCredit = 0.1
	injectionPointMult  = 3.0
	deadLegMult         = 3.0
	pipeSupportMult     = 2.0
	soilInterfaceMult   = 2.0
)

// inspectionCredit is effectiveness^n with n the number of inspections
// (at least one), floored so repeated inspections cannot erase the factor.
func inspectionCredit(p *params) float64 {
	eff := p.factor("inspection.effectiveness")
	n := math.Max(1, math.Floor(p.numOr("inspectionCount", 1)))
	return math.Max(minInspectionCredit, math.Pow(eff, n))
}

func wallLoss(p *params, rate float64) float64 {
	art := rate * p.num("age") / p.num("wallThickness")
	p.note("wall loss fraction Art = %.4f", art)
	return art
}

func computeThinning(v Variant, p *params) float64 {
	df := thinningFromArt(wallLoss(p, p.num("corrosionRate")))
	switch v {
	case VariantThinningBasic:
		return df
	case VariantThinningAdvanced:
		df *= inspectionCredit(p)
		if p.flag("injectionPoint") {
			p.note("injection point: ×%g", injectionPointMult)
			df *= injectionPointMult
		}
		if p.flag("deadLeg") {
			p.note("dead leg: ×%g", deadLegMult)
			df *= deadLegMult
		}
		return df
	}
	panic(unhandled(TypeThinning, v))
}

// externalRateBands are the base atmospheric corrosion rates (mm/yr) by
// operating temperature, each band inclusive of its lower bound.
var externalRateBands = []struct{ below, rate float64 }{
	{-12, 0},
	{-8, 0.025},
	{6, 0.076},
	{32, 0.127},
	{71, 0.127},
	{107, 0.05},
	{121, 0.025},
}

func externalBaseRate(temp float64) float64 {
	for _, b := range externalRateBands {
		if temp < b.below {
			return b.rate
		}
	}
	return 0
}

func computeExternal(v Variant, p *params) float64 {
	rate := externalBaseRate(p.num("operatingTemperature"))
	rate *= p.factor("ext.coatingCondition")
	if v == VariantExternalAdvanced {
		rate *= p.factor("ext.externalEnvironment")
	}
	p.note("external corrosion rate %.4f mm/yr", rate)
	df := thinningFromArt(wallLoss(p, rate))

	switch v {
	case VariantExternalBasic:
		return df
	case VariantExternalAdvanced:
		if p.flag("pipeSupport") {
			p.note("pipe support: ×%g", pipeSupportMult)
			df *= pipeSupportMult
		}
		if p.flag("soilInterface") {
			p.note("soil-to-air interface: ×%g", soilInterfaceMult)
			df *= soilInterfaceMult
		}
		return df
	}
	panic(unhandled(TypeExternalCorrosion, v))
}
