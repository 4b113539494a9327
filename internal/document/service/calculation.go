package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
)

// LineAmounts are the rounded values printed for a single line.
type LineAmounts struct {
	Net   decimal.Decimal
	Tax   decimal.Decimal
	Gross decimal.Decimal
}

// IsIncluded reports whether a line counts toward the totals. NORMAL lines
// always count; OPTIONAL and ALTERNATIVE lines only when selected.
func IsIncluded(line documentdomain.DocumentLine) (bool, error) {
	switch line.LineType {
	case documentdomain.LineTypeNormal:
		return true, nil
	case documentdomain.LineTypeOptional, documentdomain.LineTypeAlternative:
		return line.IsSelected, nil
	default:
		return false, fmt.Errorf("%w: %q", documentdomain.ErrInvalidLineType, line.LineType)
	}
}

// ComputeLine rounds the net amount to cents first and derives tax from the
// rounded net.
func ComputeLine(line documentdomain.DocumentLine) (LineAmounts, error) {
	if !line.TaxRate.Valid {
		return LineAmounts{}, documentdomain.ErrMissingTaxRate
	}
	net := line.Quantity.Mul(line.UnitPriceNet).Round(2)
	tax := net.Mul(line.TaxRate.Decimal).Round(2)
	return LineAmounts{Net: net, Tax: tax, Gross: net.Add(tax)}, nil
}

// Calculate sums the rounded amounts of every included line. The result only
// depends on the lines, so repeated calls give identical totals.
func Calculate(lines []documentdomain.DocumentLine) (documentdomain.Totals, error) {
	totals := documentdomain.ZeroTotals()
	for _, line := range lines {
		included, err := IsIncluded(line)
		if err != nil {
			return documentdomain.Totals{}, fmt.Errorf("line %d: %w", line.Position, err)
		}
		if !included {
			continue
		}
		amounts, err := ComputeLine(line)
		if err != nil {
			return documentdomain.Totals{}, fmt.Errorf("line %d: %w", line.Position, err)
		}
		totals.Net = totals.Net.Add(amounts.Net)
		totals.Tax = totals.Tax.Add(amounts.Tax)
		totals.Gross = totals.Gross.Add(amounts.Gross)
	}
	return totals, nil
}
