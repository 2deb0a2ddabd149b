package formula

import (
	"fmt"
	"math"

	"github.com/Mindburn-Labs/assetrisk/pkg/risk"
	"github.com/shopspring/decimal"
)

// computeProduction works in decimal so cents survive large rates and
// long outages.
func computeProduction(v Variant, p *params) float64 {
	rate := decimal.NewFromFloat(p.num("productionRate"))
	unit := decimal.NewFromFloat(p.num("unitValue"))
	outage := decimal.NewFromFloat(p.num("outageDays"))
	spare := decimal.NewFromFloat(p.numOr("spareCapacity", 0))
	lostShare := decimal.NewFromInt(1).Sub(spare)

	var total decimal.Decimal
	switch v {
	case VariantProductionBasic:
		total = rate.Mul(unit).Mul(outage).Mul(lostShare)
	case VariantProductionAdvanced:
		mode := decimal.NewFromFloat(p.factor("cof.failureMode"))
		lost := rate.Mul(unit).Mul(outage.Mul(mode)).Mul(lostShare)
		repair := decimal.NewFromFloat(p.num("repairCost")).Mul(mode)
		p.note("lost production %s USD, repair %s USD", lost.StringFixed(2), repair.StringFixed(2))
		total = lost.Add(repair)
	default:
		panic(unhandled(TypeProductionCOF, v))
	}

	value := total.Round(2).InexactFloat64()
	p.consequence = risk.COFCategory(value, risk.BasisFinancial)
	p.note("financial consequence category %s", p.consequence)
	return value
}

// fluidConstants holds the component damage area coefficients a and b in
// area = a·rate^b, keyed by fluidType level.
var fluidConstants = map[string]struct{ a, b float64 }{
	"C1-C2":  {8.669, 0.98},
	"C3-C4":  {10.13, 1.00},
	"C5":     {5.115, 0.99},
	"C6-C8":  {5.846, 0.98},
	"C9-C12": {2.419, 0.98},
	"H2":     {13.13, 0.992},
	"H2S":    {6.554, 1.0},
}

// detectionIsolationReduction is keyed by the better grade first, so
// detection A with isolation B and detection B with isolation A match.
var detectionIsolationReduction = map[string]float64{
	"AA": 0.25,
	"AB": 0.20,
	"AC": 0.10,
	"BB": 0.15,
	"BC": 0.10,
	"CC": 0,
}

func detectionIsolationKey(det, iso string) string {
	if det > iso {
		det, iso = iso, det
	}
	return det + iso
}

// checkAreaLevels fails when the catalog names a fluid or a
// detection/isolation grade the area calculator has no constants for.
func checkAreaLevels(reg *Registry) error {
	if f, ok := reg.fields["fluidType"]; ok {
		for _, l := range f.Levels {
			if _, ok := fluidConstants[l]; !ok {
				return fmt.Errorf("%w: no area constants for fluidType %s", ErrCatalogInvalid, l)
			}
		}
	}
	det, okDet := reg.fields["detectionSystem"]
	iso, okIso := reg.fields["isolationSystem"]
	if !okDet || !okIso {
		return nil
	}
	for _, d := range det.Levels {
		for _, i := range iso.Levels {
			if _, ok := detectionIsolationReduction[detectionIsolationKey(d, i)]; !ok {
				return fmt.Errorf("%w: no reduction for detection %s with isolation %s", ErrCatalogInvalid, d, i)
			}
		}
	}
	return nil
}

func computeArea(v Variant, p *params) float64 {
	fluid := p.label("fluidType")
	k, ok := fluidConstants[fluid]
	if !ok {
		panic("formula: no area constants for fluid " + fluid)
	}
	rate := p.num("releaseRate")
	area := k.a * math.Pow(rate, k.b)
	p.note("fluid %s: a=%g b=%g", fluid, k.a, k.b)

	switch v {
	case VariantAreaBasic:
	case VariantAreaAdvanced:
		key := detectionIsolationKey(p.label("detectionSystem"), p.label("isolationSystem"))
		red := detectionIsolationReduction[key]
		p.note("detection/isolation %s: -%g%%", key, red*100)
		area *= 1 - red
		area *= p.factorOr("cof.mitigationSystem", 1.0)
	default:
		panic(unhandled(TypeAreaCOF, v))
	}

	p.consequence = risk.COFCategory(area, risk.BasisArea)
	p.note("area consequence category %s", p.consequence)
	return area
}
