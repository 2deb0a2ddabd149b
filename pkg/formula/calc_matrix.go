package formula

import "github.com/Mindburn-Labs/assetrisk/pkg/risk"

const (
	defaultGFF = 3.06e-5
	defaultFMS = 1.0
)

func computeMatrix(v Variant, p *params) float64 {
	var pof float64
	switch v {
	case VariantRiskMatrix:
		pof = p.num("pof")
	case VariantRiskMatrixDF:
		gff := p.numOr("genericFailureFrequency", defaultGFF)
		fms := p.numOr("managementSystemsFactor", defaultFMS)
		pof = gff * p.num("damageFactor") * fms
		p.note("pof = %g × %g × %g = %g", gff, p.num("damageFactor"), fms, pof)
	default:
		panic(unhandled(TypeRiskMatrix, v))
	}

	basis := risk.BasisFinancial
	if p.has("cofBasis") {
		basis = risk.Basis(p.label("cofBasis"))
	}
	cof := p.num("cof")
	cell := risk.Classify(pof, cof, basis)
	p.cell = &cell
	p.note("matrix cell %s (%s basis): category %s, inspect every %d months",
		cell, cell.Basis, cell.RiskCategory, cell.InspectionIntervalMonths)
	return pof * cof
}
