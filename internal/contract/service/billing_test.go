package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/kmanager/internal/audit/domain"
	auditrepository "github.com/smallbiznis/kmanager/internal/audit/repository"
	auditservice "github.com/smallbiznis/kmanager/internal/audit/service"
	"github.com/smallbiznis/kmanager/internal/clock"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	"github.com/smallbiznis/kmanager/internal/contract/repository"
	customerdomain "github.com/smallbiznis/kmanager/internal/customer/domain"
	customerservice "github.com/smallbiznis/kmanager/internal/customer/service"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	documentrepository "github.com/smallbiznis/kmanager/internal/document/repository"
	documentservice "github.com/smallbiznis/kmanager/internal/document/service"
	organizationdomain "github.com/smallbiznis/kmanager/internal/organization/domain"
	organizationservice "github.com/smallbiznis/kmanager/internal/organization/service"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	paymenttermservice "github.com/smallbiznis/kmanager/internal/paymentterm/service"
	"github.com/smallbiznis/kmanager/internal/providers/pdf"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	taxrepository "github.com/smallbiznis/kmanager/internal/tax/repository"
	taxservice "github.com/smallbiznis/kmanager/internal/tax/service"
	pkgrepository "github.com/smallbiznis/kmanager/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	svc       *Service
	documents documentdomain.Service
	terms     paymenttermdomain.Service
	companies organizationdomain.Service
	clock     *clock.FakeClock
	ctx       context.Context
	orgID     snowflake.ID
	customer  customerdomain.Customer
	vat19     taxdomain.TaxRate
	vat7      taxdomain.TaxRate
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
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
		&contractdomain.Contract{},
		&contractdomain.ContractLine{},
		&contractdomain.ContractRun{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC))

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

	termStore := pkgrepository.ProvideStore[paymenttermdomain.PaymentTerm](db)
	terms := paymenttermservice.New(paymenttermservice.Params{Log: log, GenID: node, Repo: termStore})

	taxRepo := taxrepository.NewRepository()
	taxes := taxservice.NewService(taxservice.Params{DB: db, Log: log, GenID: node, Repo: taxRepo})
	vat19, err := taxes.Create(ctx, taxdomain.CreateRequest{Code: "VAT19", Name: "USt 19%", Rate: decimal.RequireFromString("0.19")})
	require.NoError(t, err)
	vat7, err := taxes.Create(ctx, taxdomain.CreateRequest{Code: "VAT7", Name: "USt 7%", Rate: decimal.RequireFromString("0.07")})
	require.NoError(t, err)
	resolver := taxservice.NewResolver(taxservice.ResolverParams{Repository: taxRepo})

	audits := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepository.Provide()})

	documents, writer := documentservice.New(documentservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      documentrepository.Provide(),
		Rates:     resolver,
		Customers: customers,
		Companies: companies,
		Terms:     terms,
		PDF:       pdf.New(),
		AuditSvc:  audits,
	})

	svc, _ := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      repository.Provide(),
		Rates:     resolver,
		Customers: customers,
		Companies: companies,
		Terms:     termStore,
		Documents: writer,
		AuditSvc:  audits,
	})

	return &fixture{
		db:        db,
		svc:       svc.(*Service),
		documents: documents,
		terms:     terms,
		companies: companies,
		clock:     fake,
		ctx:       ctx,
		orgID:     company.ID,
		customer:  customer,
		vat19:     vat19,
		vat7:      vat7,
	}
}

func (f *fixture) createContract(t *testing.T, mutate func(*contractdomain.CreateContractRequest)) contractdomain.Contract {
	t.Helper()
	req := contractdomain.CreateContractRequest{
		CustomerID: f.customer.ID,
		Name:       "Hosting",
		Interval:   contractdomain.IntervalMonthly,
		StartDate:  "2026-01-01",
		Lines: []contractdomain.CreateContractLineRequest{
			{
				Description:  "Managed hosting",
				Quantity:     decimal.NewFromInt(1),
				UnitPriceNet: decimal.RequireFromString("1000.00"),
				TaxRateID:    f.vat19.ID,
			},
		},
	}
	if mutate != nil {
		mutate(&req)
	}
	contract, err := f.svc.Create(f.ctx, req)
	require.NoError(t, err)
	return contract
}

func (f *fixture) generate(t *testing.T, today string, dryRun bool) contractdomain.BatchResult {
	t.Helper()
	result, err := f.svc.GenerateDue(f.ctx, contractdomain.GenerateDueRequest{
		OrgID:  f.orgID,
		Today:  day(today),
		DryRun: dryRun,
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) count(t *testing.T, model any, where ...any) int64 {
	t.Helper()
	var n int64
	stmt := f.db.Model(model)
	if len(where) > 0 {
		stmt = stmt.Where(where[0], where[1:]...)
	}
	require.NoError(t, stmt.Count(&n).Error)
	return n
}

func TestGenerateDueEndToEnd(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, nil)

	result := f.generate(t, "2026-01-01", false)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, result.BatchID, 26)

	run := result.Runs[0]
	assert.Equal(t, contractdomain.RunStatusSuccess, run.Status)
	require.NotNil(t, run.DocumentID)

	doc, err := f.documents.GetByID(f.ctx, *run.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, documentdomain.DocumentTypeInvoice, doc.DocumentType)
	assert.Equal(t, f.customer.ID, doc.CustomerID)
	require.NotNil(t, doc.ContractID)
	assert.Equal(t, contract.ID, *doc.ContractID)
	assert.Equal(t, "EUR", doc.Currency)
	assert.Equal(t, "2026-01-01", doc.IssueDate.Format(time.DateOnly))
	require.NotNil(t, doc.DueDate)
	assert.Equal(t, "2026-01-01", doc.DueDate.Format(time.DateOnly))
	assert.Equal(t, "1000.00", doc.TotalNet.StringFixed(2))
	assert.Equal(t, "190.00", doc.TotalTax.StringFixed(2))
	assert.Equal(t, "1190.00", doc.TotalGross.StringFixed(2))
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, documentdomain.LineTypeNormal, doc.Lines[0].LineType)
	assert.True(t, doc.Lines[0].IsSelected)

	updated, err := f.svc.GetByID(f.ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", updated.NextRunDate.Format(time.DateOnly))
	require.NotNil(t, updated.LastRunDate)
	assert.Equal(t, "2026-01-01", updated.LastRunDate.Format(time.DateOnly))

	assert.Equal(t, int64(1), f.count(t, &contractdomain.ContractRun{}))
	assert.Equal(t, int64(1), f.count(t, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionContractBilled))
}

func TestGenerateDueRunsOncePerDay(t *testing.T) {
	f := setup(t)
	f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.NextRunDate = "2026-01-01"
	})

	first := f.generate(t, "2026-01-01", false)
	assert.Equal(t, 1, first.Succeeded)

	// The contract advanced, so the second batch finds nothing due.
	second := f.generate(t, "2026-01-01", false)
	assert.Empty(t, second.Runs)

	assert.Equal(t, int64(1), f.count(t, &documentdomain.Document{}))
	assert.Equal(t, int64(1), f.count(t, &contractdomain.ContractRun{}))
}

func TestGenerateDueSkipsExistingRunForDate(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, nil)

	// Simulate another scheduler that recorded a run without advancing.
	require.NoError(t, f.db.Create(&contractdomain.ContractRun{
		ID:         snowflake.ID(1),
		OrgID:      f.orgID,
		ContractID: contract.ID,
		RunDate:    day("2026-01-01"),
		Status:     contractdomain.RunStatusSuccess,
		BatchID:    "01JAAAAAAAAAAAAAAAAAAAAAAA",
		CreatedAt:  time.Now().UTC(),
	}).Error)

	result := f.generate(t, "2026-01-01", false)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, contractdomain.RunStatusSkipped, result.Runs[0].Status)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, f.count(t, &documentdomain.Document{}))
}

func TestGenerateDueClampsMonthEnd(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.StartDate = "2026-01-31"
	})

	result := f.generate(t, "2026-01-31", false)
	require.Equal(t, 1, result.Succeeded)

	updated, err := f.svc.GetByID(f.ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", updated.NextRunDate.Format(time.DateOnly))
}

func TestGenerateDueCopiesTemplateValues(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, nil)

	first := f.generate(t, "2026-01-01", false)
	require.Equal(t, 1, first.Succeeded)

	price := decimal.RequireFromString("2000.00")
	_, err := f.svc.UpdateLine(f.ctx, contract.ID, contract.Lines[0].ID, contractdomain.UpdateContractLineRequest{
		UnitPriceNet: &price,
		TaxRateID:    &f.vat7.ID,
	})
	require.NoError(t, err)

	// The tax rate master changes too; copied values stay put.
	require.NoError(t, f.db.Exec("UPDATE tax_rates SET rate = ? WHERE id = ?", "0.25", f.vat19.ID).Error)

	doc, err := f.documents.GetByID(f.ctx, *first.Runs[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "1190.00", doc.TotalGross.StringFixed(2))
	assert.Equal(t, "1000.00", doc.Lines[0].UnitPriceNet.StringFixed(2))
	assert.Equal(t, "0.19", doc.Lines[0].TaxRate.Decimal.String())

	second := f.generate(t, "2026-02-01", false)
	require.Equal(t, 1, second.Succeeded)
	next, err := f.documents.GetByID(f.ctx, *second.Runs[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "2000.00", next.TotalNet.StringFixed(2))
	assert.Equal(t, "140.00", next.TotalTax.StringFixed(2))
	assert.Equal(t, int64(2), next.Number)
}

func TestGenerateDueDryRunPersistsNothing(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, nil)
	failing := f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.Name = "broken"
	})
	require.NoError(t, f.db.Exec("UPDATE contract_lines SET tax_rate = NULL WHERE contract_id = ?", failing.ID).Error)

	result := f.generate(t, "2026-01-01", true)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	for _, run := range result.Runs {
		assert.Nil(t, run.DocumentID, "dry runs keep no documents")
	}

	assert.Zero(t, f.count(t, &documentdomain.Document{}))
	assert.Zero(t, f.count(t, &documentdomain.DocumentLine{}))
	assert.Zero(t, f.count(t, &contractdomain.ContractRun{}))
	assert.Zero(t, f.count(t, &auditdomain.AuditLog{}, "action IN ?", []string{
		auditdomain.ActionContractBilled, auditdomain.ActionContractBillingFailed,
	}))

	unchanged, err := f.svc.GetByID(f.ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", unchanged.NextRunDate.Format(time.DateOnly))
	assert.Nil(t, unchanged.LastRunDate)
}

func TestGenerateDueIsolatesFailures(t *testing.T) {
	f := setup(t)
	failing := f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.Name = "broken"
	})
	healthy := f.createContract(t, nil)
	require.NoError(t, f.db.Exec("UPDATE contract_lines SET tax_rate = NULL WHERE contract_id = ?", failing.ID).Error)

	result := f.generate(t, "2026-01-01", false)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	var failedRun contractdomain.ContractRun
	require.NoError(t, f.db.Where("contract_id = ?", failing.ID).Take(&failedRun).Error)
	assert.Equal(t, contractdomain.RunStatusFailed, failedRun.Status)
	require.NotNil(t, failedRun.Message)
	assert.Contains(t, *failedRun.Message, "missing_tax_rate")
	assert.Nil(t, failedRun.DocumentID)
	assert.Equal(t, int64(1), f.count(t, &documentdomain.Document{}))
	assert.Equal(t, int64(1), f.count(t, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionContractBillingFailed))

	stuck, err := f.svc.GetByID(f.ctx, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", stuck.NextRunDate.Format(time.DateOnly))

	advanced, err := f.svc.GetByID(f.ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", advanced.NextRunDate.Format(time.DateOnly))

	// Same-day retry is blocked by the recorded failure.
	retry := f.generate(t, "2026-01-01", false)
	require.Len(t, retry.Runs, 1)
	assert.Equal(t, contractdomain.RunStatusSkipped, retry.Runs[0].Status)

	// Next day, once fixed, the contract bills with its original issue date.
	require.NoError(t, f.db.Exec("UPDATE contract_lines SET tax_rate = ? WHERE contract_id = ?", "0.19", failing.ID).Error)
	nextDay := f.generate(t, "2026-01-02", false)
	require.Len(t, nextDay.Runs, 1)
	assert.Equal(t, contractdomain.RunStatusSuccess, nextDay.Runs[0].Status)

	doc, err := f.documents.GetByID(f.ctx, *nextDay.Runs[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", doc.IssueDate.Format(time.DateOnly))
}

func TestGenerateDueContractWithoutLinesFails(t *testing.T) {
	f := setup(t)
	f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.Lines = nil
	})

	result := f.generate(t, "2026-01-01", false)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, contractdomain.RunStatusFailed, result.Runs[0].Status)
	assert.Contains(t, *result.Runs[0].Message, "contract_has_no_lines")
}

func TestGenerateDueSelection(t *testing.T) {
	f := setup(t)
	f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.Name = "ended"
		req.StartDate = "2025-01-01"
		req.EndDate = "2025-12-31"
	})
	inactive := false
	f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.Name = "inactive"
		req.IsActive = &inactive
	})
	f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.Name = "future"
		req.StartDate = "2026-03-01"
	})

	result := f.generate(t, "2026-01-01", false)
	assert.Empty(t, result.Runs)
	assert.Zero(t, f.count(t, &documentdomain.Document{}))
}

func TestGenerateDueCatchesUpOnePeriodPerRun(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.StartDate = "2025-11-01"
	})

	first := f.generate(t, "2026-01-10", false)
	require.Equal(t, 1, first.Succeeded)
	updated, err := f.svc.GetByID(f.ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01", updated.NextRunDate.Format(time.DateOnly))

	second := f.generate(t, "2026-01-11", false)
	require.Equal(t, 1, second.Succeeded)
	updated, err = f.svc.GetByID(f.ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", updated.NextRunDate.Format(time.DateOnly))
	assert.Equal(t, "2026-01-11", updated.LastRunDate.Format(time.DateOnly))
}

func TestGenerateDueDueDateFromPaymentTerm(t *testing.T) {
	f := setup(t)
	term, err := f.terms.Create(f.ctx, paymenttermdomain.CreateRequest{Name: "30 days", NetDays: 30})
	require.NoError(t, err)
	f.createContract(t, func(req *contractdomain.CreateContractRequest) {
		req.PaymentTermID = &term.ID
	})

	result := f.generate(t, "2026-01-01", false)
	require.Equal(t, 1, result.Succeeded)

	doc, err := f.documents.GetByID(f.ctx, *result.Runs[0].DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc.DueDate)
	assert.Equal(t, "2026-01-31", doc.DueDate.Format(time.DateOnly))
	require.NotNil(t, doc.PaymentTermID)
	assert.Equal(t, term.ID, *doc.PaymentTermID)
}

func TestGenerateDueAllOrganizations(t *testing.T) {
	f := setup(t)
	f.createContract(t, nil)

	other, err := f.companies.Create(context.Background(), organizationdomain.CreateCompanyRequest{Name: "Other GmbH"})
	require.NoError(t, err)
	assert.NotEqual(t, f.orgID, other.ID)

	result, err := f.svc.GenerateDue(context.Background(), contractdomain.GenerateDueRequest{Today: day("2026-01-01")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
}

func TestGenerateDueDefaultsToClockDate(t *testing.T) {
	f := setup(t)
	f.createContract(t, nil)
	f.clock.AdvanceDays(1)

	result, err := f.svc.GenerateDue(f.ctx, contractdomain.GenerateDueRequest{OrgID: f.orgID})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", result.RunDate.Format(time.DateOnly))
	assert.Equal(t, 1, result.Succeeded)
}

func TestGenerateDueStopsOnCancelledContext(t *testing.T) {
	f := setup(t)
	f.createContract(t, nil)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	result, err := f.svc.GenerateDue(ctx, contractdomain.GenerateDueRequest{OrgID: f.orgID, Today: day("2026-01-01")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Runs)
}

// staleRunReader hides existing runs from the pre-check, as a concurrent
// scheduler committing between FindRun and InsertRun would.
type staleRunReader struct {
	contractdomain.Repository
}

func (staleRunReader) FindRun(context.Context, *gorm.DB, snowflake.ID, time.Time) (*contractdomain.ContractRun, error) {
	return nil, nil
}

func (f *fixture) commitConcurrentRun(t *testing.T, contract contractdomain.Contract, runDate string) {
	t.Helper()
	run := contractdomain.ContractRun{
		ID:         f.svc.genID.Generate(),
		OrgID:      f.orgID,
		ContractID: contract.ID,
		RunDate:    day(runDate),
		Status:     contractdomain.RunStatusSuccess,
		BatchID:    ulid.Make().String(),
		CreatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.svc.repo.InsertRun(f.ctx, f.db, &run))
	f.svc.repo = staleRunReader{Repository: f.svc.repo}
}

func TestGenerateDueConcurrentRunInsideTransactionIsSkipped(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, nil)
	f.commitConcurrentRun(t, contract, "2026-01-01")

	result := f.generate(t, "2026-01-01", false)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, contractdomain.RunStatusSkipped, result.Runs[0].Status)
	require.NotNil(t, result.Runs[0].Message)
	assert.Equal(t, "concurrent run for the same date", *result.Runs[0].Message)
	assert.Equal(t, 1, result.Skipped)

	assert.Zero(t, f.count(t, &documentdomain.Document{}))
	assert.Zero(t, f.count(t, &documentdomain.DocumentLine{}))
	assert.Equal(t, int64(1), f.count(t, &contractdomain.ContractRun{}))
	assert.Zero(t, f.count(t, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionContractBilled))

	unchanged, err := f.svc.GetByID(f.ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", unchanged.NextRunDate.Format(time.DateOnly))
	assert.Nil(t, unchanged.LastRunDate)
}

func TestGenerateDueConcurrentRunAfterFailureIsSkipped(t *testing.T) {
	f := setup(t)
	contract := f.createContract(t, nil)
	require.NoError(t, f.db.Exec("UPDATE contract_lines SET tax_rate = NULL WHERE contract_id = ?", contract.ID).Error)
	f.commitConcurrentRun(t, contract, "2026-01-01")

	result := f.generate(t, "2026-01-01", false)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, contractdomain.RunStatusSkipped, result.Runs[0].Status)
	require.NotNil(t, result.Runs[0].Message)
	assert.Equal(t, "run already recorded for the same date", *result.Runs[0].Message)
	assert.Zero(t, result.Failed)

	var runs []contractdomain.ContractRun
	require.NoError(t, f.db.Where("contract_id = ?", contract.ID).Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, contractdomain.RunStatusSuccess, runs[0].Status)
	assert.Zero(t, f.count(t, &documentdomain.Document{}))
	assert.Zero(t, f.count(t, &auditdomain.AuditLog{}, "action = ?", auditdomain.ActionContractBillingFailed))
}
