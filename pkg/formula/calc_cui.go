package formula

import "math"

// The active CUI window. Inside it the base severity is 1.0; outside it
// decays exponentially with distance from the nearer edge.
const (
	cuiActiveLow    = 60.0
	cuiActiveHigh   = 175.0
	cuiEdgeSeverity = 0.8
	cuiDecay        = 50.0
	cuiFloor        = 0.05

	maxCycles      = 1000.0
	minMaintenance = 0.3
	ageRate        = 0.02
	maxAgeYears    = 50.0
)

func cuiBaseSeverity(temp float64) float64 {
	var s float64
	switch {
	case temp < cuiActiveLow:
		s = cuiEdgeSeverity * math.Exp(-(cuiActiveLow-temp)/cuiDecay)
	case temp < cuiActiveHigh:
		s = 1.0
	default:
		s = cuiEdgeSeverity * math.Exp(-(temp-cuiActiveHigh)/cuiDecay)
	}
	return math.Max(cuiFloor, s)
}

func cyclingFactor(cycles float64) float64 {
	return 1 + math.Min(cycles, maxCycles)/maxCycles
}

func maintenanceFactor(freq float64) float64 {
	return math.Max(minMaintenance, 1/(1+freq))
}

func ageFactor(years float64) float64 {
	return 1 + ageRate*math.Min(years, maxAgeYears)
}

func computeCUI(v Variant, p *params) float64 {
	base := cuiBaseSeverity(p.num("operatingTemperature"))
	p.note("base severity %.3f", base)

	df := base *
		p.factor("cui.insulationType") *
		p.factor("cui.insulationCondition") *
		p.factor("cui.moistureIngress")

	switch v {
	case VariantCUIBasic:
		return df
	case VariantCUIAdvanced:
		df *= p.factor("cui.weatherExposure")
		df *= p.factor("cui.coatingCondition")

		cyc := cyclingFactor(p.num("operatingCycles"))
		mnt := maintenanceFactor(p.num("maintenanceFrequency"))
		age := ageFactor(p.num("age"))
		p.note("thermal cycling ×%.3f, maintenance ×%.3f, age ×%.3f", cyc, mnt, age)
		df *= cyc * mnt * age

		df *= p.factorOr("cui.environmentalSeverity", 1.0)
		return df
	}
	panic(unhandled(TypeCUI, v))
}
