package service

// reconciliation.go — pure closing arithmetic. No datastore access: the
// calculator takes the totals rows and the counted declaration and returns
// the full snapshot, so it is testable in isolation and the session manager
// only persists what comes out of it.

import (
	"github.com/shopspring/decimal"

	"posledger/internal/model"
)

// Variance classifications relative to the expected grand total.
// normal: |variance| <= 1%, warning: <= 5%, critical: > 5%.
const (
	VarianceNormal   = "normal"
	VarianceWarning  = "warning"
	VarianceCritical = "critical"
)

// MethodReconciliation is the closing snapshot for one payment method.
type MethodReconciliation struct {
	PaymentMethodID string
	Code            string
	Name            string
	InitialAmount   decimal.Decimal
	TotalIncome     decimal.Decimal
	TotalExpense    decimal.Decimal
	ExpectedAmount  decimal.Decimal
	ActualAmount    decimal.Decimal
	Difference      decimal.Decimal
	// Declared is false when the method was not in the counted map and the
	// expected amount was assumed.
	Declared bool
}

// Reconciliation is the aggregate closing result.
type Reconciliation struct {
	ByMethod        []MethodReconciliation
	ExpectedTotal   decimal.Decimal
	CountedTotal    decimal.Decimal
	TotalDifference decimal.Decimal
	VariancePct     decimal.Decimal
	Classification  string
}

// Reconcile compares the physically counted amounts (keyed by payment method
// code) against the per-method totals. For each method
// expected = initial + income − expense and difference = counted − expected;
// undeclared methods count as exact. The aggregate difference is the sum over
// all methods.
func Reconcile(totals []model.CashRegisterTotals, counted map[string]decimal.Decimal) Reconciliation {
	rec := Reconciliation{ByMethod: make([]MethodReconciliation, 0, len(totals))}

	for _, t := range totals {
		expected := t.InitialAmount.Add(t.TotalIncome).Sub(t.TotalExpense)

		code, name := "", ""
		if t.PaymentMethod != nil {
			code, name = t.PaymentMethod.Code, t.PaymentMethod.Name
		}

		actual, declared := counted[code]
		if !declared {
			actual = expected
		}

		m := MethodReconciliation{
			PaymentMethodID: t.PaymentMethodID.String(),
			Code:            code,
			Name:            name,
			InitialAmount:   t.InitialAmount,
			TotalIncome:     t.TotalIncome,
			TotalExpense:    t.TotalExpense,
			ExpectedAmount:  expected,
			ActualAmount:    actual,
			Difference:      actual.Sub(expected),
			Declared:        declared,
		}
		rec.ByMethod = append(rec.ByMethod, m)

		rec.ExpectedTotal = rec.ExpectedTotal.Add(expected)
		rec.CountedTotal = rec.CountedTotal.Add(actual)
		rec.TotalDifference = rec.TotalDifference.Add(m.Difference)
	}

	if !rec.ExpectedTotal.IsZero() {
		rec.VariancePct = rec.TotalDifference.
			Div(rec.ExpectedTotal).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	rec.Classification = classifyVariance(rec.VariancePct)
	return rec
}

// classifyVariance buckets the variance percentage.
func classifyVariance(pct decimal.Decimal) string {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(decimal.NewFromInt(1)):
		return VarianceNormal
	case abs.LessThanOrEqual(decimal.NewFromInt(5)):
		return VarianceWarning
	default:
		return VarianceCritical
	}
}
