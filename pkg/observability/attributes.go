package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Calculation attributes.
var (
	AttrFormulaType    = attribute.Key("assetrisk.formula.type")
	AttrFormulaVariant = attribute.Key("assetrisk.formula.variant")
	AttrSessionID      = attribute.Key("assetrisk.session.id")
	AttrErrorCode      = attribute.Key("assetrisk.error.code")
	AttrRiskLevel      = attribute.Key("assetrisk.risk.level")
)

// FormulaOperation creates attributes for one calculation.
func FormulaOperation(formulaType, variant string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrFormulaType.String(formulaType),
		AttrFormulaVariant.String(variant),
	}
}

// errorCode returns the symbolic code of err if it has one, else its
// dynamic type.
func errorCode(err error) string {
	if coded, ok := err.(interface{ ErrorCode() string }); ok {
		return coded.ErrorCode()
	}
	return fmt.Sprintf("%T", err)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
