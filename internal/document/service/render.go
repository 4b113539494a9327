package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	"github.com/smallbiznis/kmanager/internal/providers/pdf"
)

var documentTitles = map[documentdomain.DocumentType]string{
	documentdomain.DocumentTypeInvoice:    "Invoice",
	documentdomain.DocumentTypeQuote:      "Quote",
	documentdomain.DocumentTypeOrder:      "Order Confirmation",
	documentdomain.DocumentTypeCreditNote: "Credit Note",
}

// Render prints the document with its stored totals.
func (s *Service) Render(ctx context.Context, id snowflake.ID) (documentdomain.Rendered, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return documentdomain.Rendered{}, documentdomain.ErrInvalidOrganization
	}

	doc, err := s.GetByID(ctx, id)
	if err != nil {
		return documentdomain.Rendered{}, err
	}
	company, err := s.companies.GetByID(ctx, orgID)
	if err != nil {
		return documentdomain.Rendered{}, err
	}
	customer, err := s.customers.GetByID(ctx, orgID, doc.CustomerID)
	if err != nil {
		return documentdomain.Rendered{}, err
	}

	data := pdf.DocumentData{
		Title:         documentTitles[doc.DocumentType],
		Number:        formatNumber(doc),
		IssueDate:     doc.IssueDate.Format(time.DateOnly),
		OrgName:       company.Name,
		OrgAddress:    company.Address,
		OrgEmail:      company.Email,
		BillToName:    customer.Name,
		BillToAddress: customer.Address,
		BillToEmail:   customer.Email,
		Notes:         doc.Notes,
		TotalNet:      formatMoney(doc.TotalNet, doc.Currency),
		TotalTax:      formatMoney(doc.TotalTax, doc.Currency),
		TotalGross:    formatMoney(doc.TotalGross, doc.Currency),
	}
	if doc.DueDate != nil {
		data.DueDate = doc.DueDate.Format(time.DateOnly)
	}
	if doc.PaymentTermID != nil {
		term, err := s.terms.GetByID(ctx, orgID, *doc.PaymentTermID)
		switch {
		case err == nil:
			data.PaymentTerms = term.Text()
		case errors.Is(err, paymenttermdomain.ErrNotFound):
		default:
			return documentdomain.Rendered{}, err
		}
	}

	for _, line := range doc.Lines {
		item, err := renderLine(line, doc.Currency)
		if err != nil {
			return documentdomain.Rendered{}, err
		}
		data.Items = append(data.Items, item)
	}

	content, err := s.pdf.RenderDocument(ctx, data)
	if err != nil {
		return documentdomain.Rendered{}, err
	}
	return documentdomain.Rendered{
		Filename: slug.Make(data.Title+" "+data.Number+" "+customer.Name) + ".pdf",
		Content:  content,
	}, nil
}

func renderLine(line documentdomain.DocumentLine, currency string) (pdf.DocumentItem, error) {
	included, err := IsIncluded(line)
	if err != nil {
		return pdf.DocumentItem{}, err
	}
	item := pdf.DocumentItem{
		Position:    fmt.Sprintf("%d", line.Position),
		Description: line.Description,
		Quantity:    line.Quantity.String(),
		UnitPrice:   formatMoney(line.UnitPriceNet, currency),
		Muted:       !included,
	}
	if line.TaxRate.Valid {
		item.TaxRate = line.TaxRate.Decimal.Shift(2).String() + "%"
		amounts, err := ComputeLine(line)
		if err != nil {
			return pdf.DocumentItem{}, err
		}
		item.Amount = formatMoney(amounts.Net, currency)
	}
	if !included {
		item.Description = strings.TrimSpace(item.Description + " (" + strings.ToLower(string(line.LineType)) + ")")
	}
	return item, nil
}

func formatNumber(doc documentdomain.Document) string {
	return fmt.Sprintf("%s-%06d", doc.DocumentType, doc.Number)
}

func formatMoney(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}
