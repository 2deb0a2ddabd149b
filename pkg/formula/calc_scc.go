package formula

import "fmt"

// susceptibility is ordered: a higher value never lowers the damage factor.
type susceptibility int

const (
	suscNone susceptibility = iota
	suscLow
	suscMedium
	suscHigh
)

var susceptibilityNames = [...]string{"None", "Low", "Medium", "High"}

func (s susceptibility) String() string { return susceptibilityNames[s] }

var susceptibilityBase = [...]float64{0.05, 0.5, 1.5, 3.0}

// Caustic service limit: below 82 - 0.6·wt% the steel is considered safe.
const (
	causticLimitIntercept = 82.0
	causticLimitSlope     = 0.6
	causticMediumBand     = 20.0
)

func causticSusceptibility(p *params) susceptibility {
	if p.flag("stressRelieved") {
		p.note("stress relieved: no caustic cracking susceptibility")
		return suscNone
	}
	limit := causticLimitIntercept - causticLimitSlope*p.num("causticConcentration")
	temp := p.num("operatingTemperature")
	p.note("caustic service limit %.1f °C", limit)

	var s susceptibility
	switch {
	case temp < limit:
		s = suscLow
	case temp < limit+causticMediumBand:
		s = suscMedium
	default:
		s = suscHigh
	}
	if s == suscLow && p.flag("heatTraced") {
		p.note("heat traced: susceptibility raised to Medium")
		s = suscMedium
	}
	return s
}

const (
	chlorideMinTemp = 38.0
	chlorideMaxPH   = 10.0
	chlorideMinPPM  = 1.0
)

// chlorideTable is indexed [temperature band][chloride band].
var (
	chlorideTempBands = []float64{66, 93, 149}
	chloridePPMBands  = []float64{10, 100, 1000}
	chlorideTable     = [4][4]susceptibility{
		{suscLow, suscMedium, suscMedium, suscHigh}, // 38-66 °C
		{suscLow, suscMedium, suscHigh, suscHigh},   // 66-93 °C
		{suscMedium, suscHigh, suscHigh, suscHigh},  // 93-149 °C
		{suscMedium, suscHigh, suscHigh, suscHigh},  // >149 °C
	}
)

func chlorideSusceptibility(p *params) susceptibility {
	temp := p.num("operatingTemperature")
	ppm := p.num("chlorideConcentration")
	ph := p.num("pH")
	switch {
	case temp < chlorideMinTemp:
		p.note("below %.0f °C: no chloride cracking susceptibility", chlorideMinTemp)
		return suscNone
	case ppm < chlorideMinPPM:
		p.note("chloride below %.0f ppm: no chloride cracking susceptibility", chlorideMinPPM)
		return suscNone
	case ph > chlorideMaxPH:
		p.note("pH above %.0f: susceptibility capped at Low", chlorideMaxPH)
		return suscLow
	}
	// Temperature bands are inclusive below; ppm bands inclusive above.
	ti := 0
	for _, b := range chlorideTempBands {
		if temp >= b {
			ti++
		}
	}
	ci := 0
	for _, b := range chloridePPMBands {
		if ppm > b {
			ci++
		}
	}
	return chlorideTable[ti][ci]
}

func computeSCC(v Variant, p *params) float64 {
	var s susceptibility
	switch v {
	case VariantSCCCaustic:
		s = causticSusceptibility(p)
	case VariantSCCChloride:
		s = chlorideSusceptibility(p)
	default:
		panic(unhandled(TypeSCC, v))
	}
	p.note("susceptibility %s", s)

	df := susceptibilityBase[s]
	if p.has("age") {
		df *= ageFactor(p.num("age"))
	}
	if p.has("inspectionEffectiveness") {
		df *= p.factor("inspection.effectiveness")
	}
	return df
}

func unhandled(t Type, v Variant) string {
	return fmt.Sprintf("formula: no %s calculator for variant %s", t, v)
}
