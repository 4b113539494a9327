package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/kmanager/internal/audit/domain"
	auditrepository "github.com/smallbiznis/kmanager/internal/audit/repository"
	auditservice "github.com/smallbiznis/kmanager/internal/audit/service"
	"github.com/smallbiznis/kmanager/internal/clock"
	customerdomain "github.com/smallbiznis/kmanager/internal/customer/domain"
	customerservice "github.com/smallbiznis/kmanager/internal/customer/service"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/internal/document/repository"
	organizationdomain "github.com/smallbiznis/kmanager/internal/organization/domain"
	organizationservice "github.com/smallbiznis/kmanager/internal/organization/service"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	paymenttermservice "github.com/smallbiznis/kmanager/internal/paymentterm/service"
	"github.com/smallbiznis/kmanager/internal/providers/pdf"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	taxrepository "github.com/smallbiznis/kmanager/internal/tax/repository"
	taxservice "github.com/smallbiznis/kmanager/internal/tax/service"
	"github.com/smallbiznis/kmanager/internal/validation"
	pkgrepository "github.com/smallbiznis/kmanager/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	ctx      context.Context
	orgID    snowflake.ID
	customer customerdomain.Customer
	vat19    taxdomain.TaxRate
	vat7     taxdomain.TaxRate
	terms    paymenttermdomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&organizationdomain.Company{},
		&customerdomain.Customer{},
		&paymenttermdomain.PaymentTerm{},
		&taxdomain.TaxRate{},
		&documentdomain.Document{},
		&documentdomain.DocumentLine{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	companies := organizationservice.NewService(organizationservice.Params{
		Log: log, GenID: node, Repo: pkgrepository.ProvideStore[organizationdomain.Company](db),
	})
	company, err := companies.Create(context.Background(), organizationdomain.CreateCompanyRequest{Name: "Acme GmbH", Currency: "EUR"})
	require.NoError(t, err)
	ctx := orgcontext.WithOrgID(context.Background(), company.ID)

	customers := customerservice.New(customerservice.Params{
		Log: log, GenID: node, Repo: pkgrepository.ProvideStore[customerdomain.Customer](db),
	})
	customer, err := customers.Create(ctx, customerdomain.CreateCustomerRequest{Name: "Kunde AG"})
	require.NoError(t, err)

	terms := paymenttermservice.New(paymenttermservice.Params{
		Log: log, GenID: node, Repo: pkgrepository.ProvideStore[paymenttermdomain.PaymentTerm](db),
	})

	taxRepo := taxrepository.NewRepository()
	taxes := taxservice.NewService(taxservice.Params{DB: db, Log: log, GenID: node, Repo: taxRepo})
	vat19, err := taxes.Create(ctx, taxdomain.CreateRequest{Code: "VAT19", Name: "USt 19%", Rate: decimal.RequireFromString("0.19")})
	require.NoError(t, err)
	vat7, err := taxes.Create(ctx, taxdomain.CreateRequest{Code: "VAT7", Name: "USt 7%", Rate: decimal.RequireFromString("0.07")})
	require.NoError(t, err)

	audits := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepository.Provide()})

	svc, _ := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)),
		Repo:      repository.Provide(),
		Rates:     taxservice.NewResolver(taxservice.ResolverParams{Repository: taxRepo}),
		Customers: customers,
		Companies: companies,
		Terms:     terms,
		PDF:       pdf.New(),
		AuditSvc:  audits,
	})

	return &fixture{
		db:       db,
		svc:      svc.(*Service),
		ctx:      ctx,
		orgID:    company.ID,
		customer: customer,
		vat19:    vat19,
		vat7:     vat7,
		terms:    terms,
	}
}

func boolPtr(v bool) *bool { return &v }

func (f *fixture) createInvoice(t *testing.T, lines ...documentdomain.CreateLineRequest) documentdomain.Document {
	t.Helper()
	doc, err := f.svc.Create(f.ctx, documentdomain.CreateDocumentRequest{
		CustomerID:   f.customer.ID,
		DocumentType: documentdomain.DocumentTypeInvoice,
		IssueDate:    "2026-01-01",
		Lines:        lines,
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) normal(qty, price string, rate taxdomain.TaxRate) documentdomain.CreateLineRequest {
	return documentdomain.CreateLineRequest{
		Description:  "Service",
		Quantity:     decimal.RequireFromString(qty),
		UnitPriceNet: decimal.RequireFromString(price),
		TaxRateID:    rate.ID,
		LineType:     documentdomain.LineTypeNormal,
	}
}

func TestCreateDocumentStoresTotals(t *testing.T) {
	f := setup(t)

	doc := f.createInvoice(t, f.normal("1", "200.00", f.vat19), f.normal("1", "150.00", f.vat7))
	assert.Equal(t, int64(1), doc.Number)
	assert.Equal(t, "EUR", doc.Currency)
	assert.Equal(t, documentdomain.DocumentStatusDraft, doc.Status)
	assertTotals(t, documentdomain.Totals{Net: doc.TotalNet, Tax: doc.TotalTax, Gross: doc.TotalGross}, "350.00", "48.50", "398.50")

	stored, err := f.svc.GetByID(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, "0.19", stored.Lines[0].TaxRate.Decimal.String())
	assert.Equal(t, "398.50", stored.TotalGross.StringFixed(2))
	assert.Equal(t, "2026-01-01", stored.IssueDate.Format(time.DateOnly))

	second := f.createInvoice(t, f.normal("1", "1", f.vat19))
	assert.Equal(t, int64(2), second.Number)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionDocumentCreated).Count(&audits).Error)
	assert.Equal(t, int64(2), audits)
}

func TestCreateDocumentDueDateFromPaymentTerm(t *testing.T) {
	f := setup(t)
	term, err := f.terms.Create(f.ctx, paymenttermdomain.CreateRequest{Name: "14 days", NetDays: 14})
	require.NoError(t, err)

	doc, err := f.svc.Create(f.ctx, documentdomain.CreateDocumentRequest{
		CustomerID:    f.customer.ID,
		PaymentTermID: &term.ID,
		DocumentType:  documentdomain.DocumentTypeInvoice,
		IssueDate:     "2026-01-01",
		Lines:         []documentdomain.CreateLineRequest{f.normal("1", "10", f.vat19)},
	})
	require.NoError(t, err)
	require.NotNil(t, doc.DueDate)
	assert.Equal(t, "2026-01-15", doc.DueDate.Format(time.DateOnly))
}

func TestCreateDocumentValidation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.ctx, documentdomain.CreateDocumentRequest{
		CustomerID:   f.customer.ID,
		DocumentType: "RECEIPT",
		IssueDate:    "01.01.2026",
		Lines: []documentdomain.CreateLineRequest{
			{
				Description:  "negative",
				Quantity:     decimal.RequireFromString("-1"),
				UnitPriceNet: decimal.RequireFromString("10"),
				TaxRateID:    f.vat19.ID,
				LineType:     documentdomain.LineTypeNormal,
				IsSelected:   boolPtr(false),
			},
			{
				Description:  "unknown",
				Quantity:     decimal.NewFromInt(1),
				UnitPriceNet: decimal.NewFromInt(1),
				TaxRateID:    f.vat19.ID,
				LineType:     "BONUS",
			},
		},
	})
	vErr, ok := validation.As(err)
	require.True(t, ok, "expected validation error, got %v", err)

	fields := map[string]string{}
	for _, fe := range vErr.Errors {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, "datetime", fields["issue_date"])
	assert.Equal(t, "gte", fields["lines[0].quantity"])
	assert.Equal(t, "invalid_combination", fields["lines[0].is_selected"])
	assert.Equal(t, "oneof", fields["lines[1].line_type"])
	assert.Equal(t, "oneof", fields["document_type"])
}

func TestCreateDocumentRejectsExcessPrecision(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.ctx, documentdomain.CreateDocumentRequest{
		CustomerID:   f.customer.ID,
		DocumentType: documentdomain.DocumentTypeInvoice,
		IssueDate:    "2026-01-01",
		Lines: []documentdomain.CreateLineRequest{
			f.normal("3", "0.335", f.vat19),
			f.normal("1.23456", "10.00", f.vat19),
		},
	})
	vErr, ok := validation.As(err)
	require.True(t, ok, "expected validation error, got %v", err)

	fields := map[string]string{}
	for _, fe := range vErr.Errors {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, "precision", fields["lines[0].unit_price_net"])
	assert.Equal(t, "precision", fields["lines[1].quantity"])
	assert.NotContains(t, fields, "lines[0].quantity")

	var docs int64
	require.NoError(t, f.db.Model(&documentdomain.Document{}).Count(&docs).Error)
	assert.Zero(t, docs)

	// Trailing zeros do not change the value and are accepted.
	doc := f.createInvoice(t, f.normal("2.50000", "10.0100", f.vat19))
	assertTotals(t, documentdomain.Totals{Net: doc.TotalNet, Tax: doc.TotalTax, Gross: doc.TotalGross}, "25.03", "4.76", "29.79")
}

func TestCreateDocumentUnknownTaxRate(t *testing.T) {
	f := setup(t)
	missing := f.normal("1", "10", taxdomain.TaxRate{ID: snowflake.ID(42)})

	_, err := f.svc.Create(f.ctx, documentdomain.CreateDocumentRequest{
		CustomerID:   f.customer.ID,
		DocumentType: documentdomain.DocumentTypeQuote,
		IssueDate:    "2026-01-01",
		Lines:        []documentdomain.CreateLineRequest{missing},
	})
	_, ok := validation.As(err)
	assert.True(t, ok)

	var count int64
	require.NoError(t, f.db.Model(&documentdomain.Document{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecalculatePersistIsIdempotent(t *testing.T) {
	f := setup(t)
	doc := f.createInvoice(t, f.normal("2.5", "10.01", f.vat19))

	// Drift the stored totals so the recalculation has something to fix.
	require.NoError(t, f.db.Exec("UPDATE documents SET total_net = 0, total_tax = 0, total_gross = 0 WHERE id = ?", doc.ID).Error)

	preview, err := f.svc.Recalculate(f.ctx, f.orgID, doc.ID, false)
	require.NoError(t, err)
	assertTotals(t, preview, "25.03", "4.76", "29.79")

	stored, err := f.svc.GetByID(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", stored.TotalGross.StringFixed(2))

	first, err := f.svc.Recalculate(f.ctx, f.orgID, doc.ID, true)
	require.NoError(t, err)
	second, err := f.svc.Recalculate(f.ctx, f.orgID, doc.ID, true)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	stored, err = f.svc.GetByID(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.03", stored.TotalNet.StringFixed(2))
	assert.Equal(t, "4.76", stored.TotalTax.StringFixed(2))
	assert.Equal(t, "29.79", stored.TotalGross.StringFixed(2))
}

func TestRecalculateSelectingOptionalLine(t *testing.T) {
	f := setup(t)
	optional := f.normal("1", "50.00", f.vat19)
	optional.LineType = documentdomain.LineTypeOptional
	doc := f.createInvoice(t, f.normal("1", "100.00", f.vat19), optional)
	assert.Equal(t, "119.00", doc.TotalGross.StringFixed(2))

	require.NoError(t, f.db.Exec("UPDATE document_lines SET is_selected = ? WHERE document_id = ? AND line_type = ?",
		true, doc.ID, documentdomain.LineTypeOptional).Error)

	totals, err := f.svc.Recalculate(f.ctx, f.orgID, doc.ID, true)
	require.NoError(t, err)
	assertTotals(t, totals, "150.00", "28.50", "178.50")
}

func TestRecalculateMissingTaxRateFailsLoudly(t *testing.T) {
	f := setup(t)
	doc := f.createInvoice(t, f.normal("1", "10", f.vat19))
	require.NoError(t, f.db.Exec("UPDATE document_lines SET tax_rate = NULL WHERE document_id = ?", doc.ID).Error)

	_, err := f.svc.Recalculate(f.ctx, f.orgID, doc.ID, true)
	assert.ErrorIs(t, err, documentdomain.ErrMissingTaxRate)

	stored, err := f.svc.GetByID(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "11.90", stored.TotalGross.StringFixed(2))
}

func TestRecalculateNotFound(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Recalculate(f.ctx, f.orgID, snowflake.ID(999), false)
	assert.ErrorIs(t, err, documentdomain.ErrNotFound)

	_, err = f.svc.Recalculate(f.ctx, f.orgID, snowflake.ID(999), true)
	assert.ErrorIs(t, err, documentdomain.ErrNotFound)

	doc := f.createInvoice(t, f.normal("1", "10", f.vat19))
	_, err = f.svc.Recalculate(f.ctx, snowflake.ID(12345), doc.ID, false)
	assert.ErrorIs(t, err, documentdomain.ErrNotFound)
}

func TestListDocumentsFiltersAndPaginates(t *testing.T) {
	f := setup(t)
	for i := 0; i < 3; i++ {
		f.createInvoice(t, f.normal("1", "10", f.vat19))
	}
	_, err := f.svc.Create(f.ctx, documentdomain.CreateDocumentRequest{
		CustomerID:   f.customer.ID,
		DocumentType: documentdomain.DocumentTypeQuote,
		IssueDate:    "2026-01-01",
		Lines:        []documentdomain.CreateLineRequest{f.normal("1", "10", f.vat19)},
	})
	require.NoError(t, err)

	req := documentdomain.ListDocumentRequest{DocumentType: "invoice"}
	req.PageSize = 2
	page, err := f.svc.List(f.ctx, req)
	require.NoError(t, err)
	assert.Len(t, page.Documents, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	req.PageToken = page.NextPageToken
	page, err = f.svc.List(f.ctx, req)
	require.NoError(t, err)
	assert.Len(t, page.Documents, 1)
	assert.False(t, page.HasMore)

	_, err = f.svc.List(f.ctx, documentdomain.ListDocumentRequest{Status: "ARCHIVED"})
	_, ok := validation.As(err)
	assert.True(t, ok)
}

func TestRenderDocument(t *testing.T) {
	f := setup(t)
	doc := f.createInvoice(t, f.normal("1", "1000.00", f.vat19))

	rendered, err := f.svc.Render(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "invoice-invoice-000001-kunde-ag.pdf", rendered.Filename)
	assert.True(t, bytes.HasPrefix(rendered.Content, []byte("%PDF")))
}
