package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/kmanager/internal/audit/domain"
	"github.com/smallbiznis/kmanager/internal/clock"
	customerdomain "github.com/smallbiznis/kmanager/internal/customer/domain"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/kmanager/internal/organization/domain"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	"github.com/smallbiznis/kmanager/internal/providers/pdf"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	"github.com/smallbiznis/kmanager/internal/validation"
	"github.com/smallbiznis/kmanager/pkg/db"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const numberAllocationAttempts = 3

var tracer = otel.Tracer("kmanager/document")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      documentdomain.Repository
	Rates     taxdomain.RateResolver
	Customers customerdomain.Service
	Companies organizationdomain.Service
	Terms     paymenttermdomain.Service
	PDF       pdf.Provider
	AuditSvc  auditdomain.Service

	Metrics          *metrics.Metrics          `optional:"true"`
	SchedulerMetrics *metrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      documentdomain.Repository
	rates     taxdomain.RateResolver
	customers customerdomain.Service
	companies organizationdomain.Service
	terms     paymenttermdomain.Service
	pdf       pdf.Provider
	auditSvc  auditdomain.Service

	metrics          *metrics.Metrics
	schedulerMetrics *metrics.SchedulerMetrics
}

// New exposes the same instance as the public service and as the writer
// used by contract billing inside its own transactions.
func New(p Params) (documentdomain.Service, documentdomain.TxWriter) {
	svc := &Service{
		db:               p.DB,
		log:              p.Log.Named("document.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		rates:            p.Rates,
		customers:        p.Customers,
		companies:        p.Companies,
		terms:            p.Terms,
		pdf:              p.PDF,
		auditSvc:         p.AuditSvc,
		metrics:          p.Metrics,
		schedulerMetrics: p.SchedulerMetrics,
	}
	return svc, svc
}

func (s *Service) Create(ctx context.Context, req documentdomain.CreateDocumentRequest) (documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return documentdomain.Document{}, documentdomain.ErrInvalidOrganization
	}

	req.DocumentType = documentdomain.DocumentType(strings.ToUpper(strings.TrimSpace(string(req.DocumentType))))
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.IssueDate = strings.TrimSpace(req.IssueDate)
	if err := validateCreateRequest(req); err != nil {
		return documentdomain.Document{}, err
	}

	issueDate, err := time.Parse(time.DateOnly, req.IssueDate)
	if err != nil {
		return documentdomain.Document{}, validation.New("issue_date", "datetime", "issue_date must be YYYY-MM-DD")
	}

	if _, err := s.customers.GetByID(ctx, orgID, req.CustomerID); err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) {
			return documentdomain.Document{}, validation.New("customer_id", "not_found", "customer does not exist")
		}
		return documentdomain.Document{}, err
	}

	currency := req.Currency
	if currency == "" {
		company, err := s.companies.GetByID(ctx, orgID)
		if err != nil {
			return documentdomain.Document{}, err
		}
		currency = company.Currency
	}

	var dueDate *time.Time
	if req.PaymentTermID != nil && *req.PaymentTermID != 0 {
		term, err := s.terms.GetByID(ctx, orgID, *req.PaymentTermID)
		if err != nil {
			if errors.Is(err, paymenttermdomain.ErrNotFound) {
				return documentdomain.Document{}, validation.New("payment_term_id", "not_found", "payment term does not exist")
			}
			return documentdomain.Document{}, err
		}
		due := term.ComputeDueDate(issueDate)
		dueDate = &due
	}

	var doc documentdomain.Document
	for attempt := 1; ; attempt++ {
		doc, err = s.createOnce(ctx, orgID, req, issueDate, dueDate, currency)
		if !errors.Is(err, documentdomain.ErrNumberConflict) || attempt >= numberAllocationAttempts {
			break
		}
		s.log.Warn("document number conflict, retrying",
			zap.String("org_id", orgID.String()),
			zap.String("document_type", string(req.DocumentType)),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return documentdomain.Document{}, err
	}

	s.metrics.RecordDocumentGenerated(ctx, int64(orgID), string(doc.DocumentType))
	s.audit(ctx, doc, auditdomain.ActionDocumentCreated, map[string]any{
		"document_type": string(doc.DocumentType),
		"number":        doc.Number,
		"total_gross":   doc.TotalGross.StringFixed(2),
	})
	return doc, nil
}

func (s *Service) createOnce(
	ctx context.Context,
	orgID snowflake.ID,
	req documentdomain.CreateDocumentRequest,
	issueDate time.Time,
	dueDate *time.Time,
	currency string,
) (documentdomain.Document, error) {
	var doc documentdomain.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rateIDs := make([]snowflake.ID, 0, len(req.Lines))
		for _, line := range req.Lines {
			rateIDs = append(rateIDs, line.TaxRateID)
		}
		rates, err := s.rates.ResolveRates(ctx, tx, orgID, rateIDs)
		if err != nil {
			if errors.Is(err, taxdomain.ErrNotFound) || errors.Is(err, taxdomain.ErrTaxRateInactive) {
				return validation.New("lines.tax_rate_id", "invalid", err.Error())
			}
			return err
		}

		draft := documentdomain.Draft{
			OrgID:         orgID,
			CustomerID:    req.CustomerID,
			PaymentTermID: req.PaymentTermID,
			DocumentType:  req.DocumentType,
			Currency:      currency,
			IssueDate:     issueDate,
			DueDate:       dueDate,
			Notes:         strings.TrimSpace(req.Notes),
			Lines:         make([]documentdomain.DraftLine, 0, len(req.Lines)),
		}
		for _, line := range req.Lines {
			rate := rates[line.TaxRateID]
			rateID := rate.ID
			draft.Lines = append(draft.Lines, documentdomain.DraftLine{
				Description:    strings.TrimSpace(line.Description),
				Quantity:       line.Quantity,
				UnitPriceNet:   line.UnitPriceNet,
				TaxRateID:      &rateID,
				TaxRate:        rate.NullRate(),
				LineType:       line.LineType,
				IsSelected:     lineSelected(line),
				IsDiscountable: line.IsDiscountable,
			})
		}

		doc, err = s.CreateDraft(ctx, tx, draft)
		if err != nil {
			return err
		}
		totals, err := s.RecalculateTx(ctx, tx, orgID, doc.ID)
		if err != nil {
			return err
		}
		doc.TotalNet, doc.TotalTax, doc.TotalGross = totals.Net, totals.Tax, totals.Gross
		return nil
	})
	if err != nil {
		return documentdomain.Document{}, err
	}
	return doc, nil
}

// CreateDraft allocates the next number and writes the header and lines with
// zero totals. Callers follow up with RecalculateTx in the same transaction.
func (s *Service) CreateDraft(ctx context.Context, tx *gorm.DB, draft documentdomain.Draft) (documentdomain.Document, error) {
	if draft.OrgID == 0 {
		return documentdomain.Document{}, documentdomain.ErrInvalidOrganization
	}
	if !draft.DocumentType.Valid() {
		return documentdomain.Document{}, documentdomain.ErrInvalidDocumentType
	}

	number, err := s.repo.NextNumber(ctx, tx, draft.OrgID, draft.DocumentType)
	if err != nil {
		return documentdomain.Document{}, err
	}

	now := s.clock.Now()
	zero := documentdomain.ZeroTotals()
	doc := documentdomain.Document{
		ID:            s.genID.Generate(),
		OrgID:         draft.OrgID,
		CustomerID:    draft.CustomerID,
		ContractID:    draft.ContractID,
		PaymentTermID: draft.PaymentTermID,
		DocumentType:  draft.DocumentType,
		Status:        documentdomain.DocumentStatusDraft,
		Number:        number,
		Currency:      draft.Currency,
		IssueDate:     draft.IssueDate,
		DueDate:       draft.DueDate,
		TotalNet:      zero.Net,
		TotalTax:      zero.Tax,
		TotalGross:    zero.Gross,
		Notes:         draft.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, tx, &doc); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return documentdomain.Document{}, documentdomain.ErrNumberConflict
		}
		return documentdomain.Document{}, err
	}

	lines := make([]documentdomain.DocumentLine, 0, len(draft.Lines))
	for i, line := range draft.Lines {
		if !line.LineType.Valid() {
			return documentdomain.Document{}, fmt.Errorf("line %d: %w", i+1, documentdomain.ErrInvalidLineType)
		}
		lines = append(lines, documentdomain.DocumentLine{
			ID:             s.genID.Generate(),
			OrgID:          doc.OrgID,
			DocumentID:     doc.ID,
			Position:       i + 1,
			Description:    line.Description,
			Quantity:       line.Quantity,
			UnitPriceNet:   line.UnitPriceNet,
			TaxRateID:      line.TaxRateID,
			TaxRate:        line.TaxRate,
			LineType:       line.LineType,
			IsSelected:     line.IsSelected,
			IsDiscountable: line.IsDiscountable,
			CreatedAt:      now,
		})
	}
	if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
		return documentdomain.Document{}, err
	}

	doc.Lines = lines
	return doc, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return documentdomain.Document{}, documentdomain.ErrInvalidOrganization
	}
	if id == 0 {
		return documentdomain.Document{}, documentdomain.ErrInvalidID
	}

	doc, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return documentdomain.Document{}, err
	}
	if doc == nil {
		return documentdomain.Document{}, documentdomain.ErrNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, orgID, id)
	if err != nil {
		return documentdomain.Document{}, err
	}
	doc.Lines = lines
	return *doc, nil
}

func (s *Service) List(ctx context.Context, req documentdomain.ListDocumentRequest) (documentdomain.ListDocumentResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return documentdomain.ListDocumentResponse{}, documentdomain.ErrInvalidOrganization
	}

	filter, err := parseListFilter(req)
	if err != nil {
		return documentdomain.ListDocumentResponse{}, err
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter, req.Pagination)
	if err != nil {
		return documentdomain.ListDocumentResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, req.Pagination.Size(), func(doc *documentdomain.Document) string {
		return doc.ID.String()
	})
	docs := make([]documentdomain.Document, 0, len(items))
	for _, doc := range items {
		docs = append(docs, *doc)
	}
	return documentdomain.ListDocumentResponse{PageInfo: pageInfo, Documents: docs}, nil
}

// Recalculate derives the totals from the current lines. With persist the
// document row is locked and the totals are written in one transaction.
func (s *Service) Recalculate(ctx context.Context, orgID, documentID snowflake.ID, persist bool) (documentdomain.Totals, error) {
	if orgID == 0 {
		return documentdomain.Totals{}, documentdomain.ErrInvalidOrganization
	}
	if documentID == 0 {
		return documentdomain.Totals{}, documentdomain.ErrInvalidID
	}

	ctx, span := tracer.Start(ctx, "document.recalculate", trace.WithAttributes(
		attribute.String("document_id", documentID.String()),
		attribute.Bool("persist", persist),
	))
	defer span.End()

	start := time.Now()
	var (
		totals documentdomain.Totals
		err    error
	)
	if persist {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			totals, txErr = s.RecalculateTx(ctx, tx, orgID, documentID)
			return txErr
		})
	} else {
		totals, err = s.calculate(ctx, s.db, orgID, documentID, false)
	}
	if err != nil {
		span.RecordError(err)
		return documentdomain.Totals{}, err
	}
	s.metrics.RecordRecalculation(ctx, persist, time.Since(start))

	if persist {
		s.audit(ctx, documentdomain.Document{ID: documentID, OrgID: orgID}, auditdomain.ActionDocumentRecalculated, map[string]any{
			"total_net":   totals.Net.StringFixed(2),
			"total_tax":   totals.Tax.StringFixed(2),
			"total_gross": totals.Gross.StringFixed(2),
		})
	}
	return totals, nil
}

// RecalculateTx locks the document row and stores freshly computed totals.
func (s *Service) RecalculateTx(ctx context.Context, tx *gorm.DB, orgID, documentID snowflake.ID) (documentdomain.Totals, error) {
	totals, err := s.calculate(ctx, tx, orgID, documentID, true)
	if err != nil {
		return documentdomain.Totals{}, err
	}
	if err := s.repo.UpdateTotals(ctx, tx, orgID, documentID, totals, s.clock.Now()); err != nil {
		return documentdomain.Totals{}, err
	}
	s.log.Debug("document totals stored",
		zap.String("org_id", orgID.String()),
		zap.String("document_id", documentID.String()),
		zap.String("total_gross", totals.Gross.StringFixed(2)),
	)
	return totals, nil
}

func (s *Service) calculate(ctx context.Context, conn *gorm.DB, orgID, documentID snowflake.ID, lock bool) (documentdomain.Totals, error) {
	var (
		doc *documentdomain.Document
		err error
	)
	if lock {
		start := time.Now()
		doc, err = s.repo.LockByID(ctx, conn, orgID, documentID)
		s.schedulerMetrics.ObserveDBLockWait(metrics.LockResourceDocumentTotals, time.Since(start))
	} else {
		doc, err = s.repo.FindByID(ctx, conn, orgID, documentID)
	}
	if err != nil {
		return documentdomain.Totals{}, err
	}
	if doc == nil {
		return documentdomain.Totals{}, documentdomain.ErrNotFound
	}

	lines, err := s.repo.ListLines(ctx, conn, orgID, documentID)
	if err != nil {
		return documentdomain.Totals{}, err
	}
	return Calculate(lines)
}

func (s *Service) audit(ctx context.Context, doc documentdomain.Document, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	orgID := doc.OrgID
	targetID := doc.ID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "document", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("document_id", targetID),
			zap.Error(err),
		)
	}
}

func lineSelected(line documentdomain.CreateLineRequest) bool {
	if line.IsSelected != nil {
		return *line.IsSelected
	}
	return line.LineType == documentdomain.LineTypeNormal
}

func validateCreateRequest(req documentdomain.CreateDocumentRequest) error {
	errs := &validation.Errors{}
	if err := validation.Struct(req); err != nil {
		fieldErrs, ok := validation.As(err)
		if !ok {
			return err
		}
		errs.Errors = append(errs.Errors, fieldErrs.Errors...)
	}

	if !req.DocumentType.Valid() {
		errs.Add("document_type", "oneof", "document_type must be one of [INVOICE QUOTE ORDER CREDIT_NOTE]")
	}
	for i, line := range req.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		errs.Precision(field+".quantity", line.Quantity, documentdomain.QuantityScale)
		errs.Precision(field+".unit_price_net", line.UnitPriceNet, documentdomain.UnitPriceScale)
		if !line.LineType.Valid() {
			errs.Add(field+".line_type", "oneof", "line_type must be one of [NORMAL OPTIONAL ALTERNATIVE]")
			continue
		}
		if line.LineType == documentdomain.LineTypeNormal && line.IsSelected != nil && !*line.IsSelected {
			errs.Add(field+".is_selected", "invalid_combination", "NORMAL lines are always selected")
		}
	}
	return errs.Err()
}

func parseListFilter(req documentdomain.ListDocumentRequest) (documentdomain.ListFilter, error) {
	var filter documentdomain.ListFilter
	errs := &validation.Errors{}

	if value := strings.ToUpper(strings.TrimSpace(req.DocumentType)); value != "" {
		filter.DocumentType = documentdomain.DocumentType(value)
		if !filter.DocumentType.Valid() {
			errs.Add("document_type", "oneof", "document_type must be one of [INVOICE QUOTE ORDER CREDIT_NOTE]")
		}
	}
	if value := strings.ToUpper(strings.TrimSpace(req.Status)); value != "" {
		filter.Status = documentdomain.DocumentStatus(value)
		if !filter.Status.Valid() {
			errs.Add("status", "oneof", "status must be one of [DRAFT ISSUED PAID CANCELLED]")
		}
	}
	if value := strings.TrimSpace(req.CustomerID); value != "" {
		id, err := snowflake.ParseString(value)
		if err != nil {
			errs.Add("customer_id", "invalid", "customer_id must be an id")
		}
		filter.CustomerID = id
	}
	if value := strings.TrimSpace(req.ContractID); value != "" {
		id, err := snowflake.ParseString(value)
		if err != nil {
			errs.Add("contract_id", "invalid", "contract_id must be an id")
		}
		filter.ContractID = id
	}
	if err := errs.Err(); err != nil {
		return documentdomain.ListFilter{}, err
	}
	return filter, nil
}
