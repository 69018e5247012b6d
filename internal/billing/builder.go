package billing

import (
	"fmt"

	"pinturapos/backend/internal/domain"
)

// Line is one computed invoice line. UnitPriceCents is the caller-supplied
// price snapshot; it is never re-read from the catalog after submission.
type Line struct {
	ProductID      int64
	Quantity       int
	UnitPriceCents int64
	DiscountCents  int64
	SubtotalCents  int64
}

// Aggregate holds the monetary totals of a cart. All amounts are integer
// cents, so the two-decimal invariant total = subtotal - discount holds
// exactly with no rounding step.
type Aggregate struct {
	Lines         []Line
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
}

// ComputeTotals validates the raw line items and computes per-line and
// aggregate totals. Business-rule violations are returned as a message list,
// one entry per problem, so a caller can fix all of them at once; an empty
// list means the aggregate is valid. ComputeTotals performs no I/O.
func ComputeTotals(inputs []domain.InvoiceLineInput) (Aggregate, []string) {
	agg := Aggregate{Lines: make([]Line, 0, len(inputs))}
	problems := make([]string, 0)

	if len(inputs) == 0 {
		return Aggregate{}, []string{"at least one line item is required"}
	}

	for i, in := range inputs {
		n := i + 1
		if in.ProductID < 1 {
			problems = append(problems, fmt.Sprintf("line %d: product is required", n))
		}
		if in.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("line %d: quantity must be greater than zero", n))
		}
		if in.UnitPriceCents < 0 {
			problems = append(problems, fmt.Sprintf("line %d: unit price must not be negative", n))
		}
		if in.DiscountCents < 0 {
			problems = append(problems, fmt.Sprintf("line %d: discount must not be negative", n))
		}
		if in.Quantity < 1 || in.UnitPriceCents < 0 || in.DiscountCents < 0 {
			continue
		}

		gross := int64(in.Quantity) * in.UnitPriceCents
		if in.DiscountCents > gross {
			problems = append(problems, fmt.Sprintf("line %d: discount exceeds line amount", n))
			continue
		}

		line := Line{
			ProductID:      in.ProductID,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			DiscountCents:  in.DiscountCents,
			SubtotalCents:  gross - in.DiscountCents,
		}
		agg.Lines = append(agg.Lines, line)
		agg.SubtotalCents += gross
		agg.DiscountCents += in.DiscountCents
	}

	if len(problems) > 0 {
		return Aggregate{}, problems
	}

	agg.TotalCents = agg.SubtotalCents - agg.DiscountCents
	return agg, nil
}

// SumPayments validates a payment set and returns the amount sum.
func SumPayments(payments []domain.PaymentInput) (int64, []string) {
	problems := make([]string, 0)
	if len(payments) == 0 {
		return 0, []string{"at least one payment is required"}
	}

	total := int64(0)
	for i, p := range payments {
		n := i + 1
		if p.PaymentTypeID < 1 {
			problems = append(problems, fmt.Sprintf("payment %d: payment type is required", n))
		}
		if p.AmountCents < 1 {
			problems = append(problems, fmt.Sprintf("payment %d: amount must be greater than zero", n))
			continue
		}
		total += p.AmountCents
	}

	if len(problems) > 0 {
		return 0, problems
	}
	return total, nil
}
