package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/kmanager/internal/audit/domain"
	"github.com/smallbiznis/kmanager/internal/clock"
	"github.com/smallbiznis/kmanager/internal/config"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	customerdomain "github.com/smallbiznis/kmanager/internal/customer/domain"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/kmanager/internal/organization/domain"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	"github.com/smallbiznis/kmanager/internal/validation"
	"github.com/smallbiznis/kmanager/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      contractdomain.Repository
	Rates     taxdomain.RateResolver
	Customers customerdomain.Service
	Companies organizationdomain.Service
	Terms     paymenttermdomain.Repository
	Documents documentdomain.TxWriter
	AuditSvc  auditdomain.Service

	Billing          *config.BillingConfigHolder `optional:"true"`
	Metrics          *metrics.Metrics            `optional:"true"`
	SchedulerMetrics *metrics.SchedulerMetrics   `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      contractdomain.Repository
	rates     taxdomain.RateResolver
	customers customerdomain.Service
	companies organizationdomain.Service
	terms     paymenttermdomain.Repository
	documents documentdomain.TxWriter
	auditSvc  auditdomain.Service

	billing          *config.BillingConfigHolder
	metrics          *metrics.Metrics
	schedulerMetrics *metrics.SchedulerMetrics
}

func New(p Params) (contractdomain.Service, contractdomain.BillingService) {
	svc := &Service{
		db:               p.DB,
		log:              p.Log.Named("contract.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		rates:            p.Rates,
		customers:        p.Customers,
		companies:        p.Companies,
		terms:            p.Terms,
		documents:        p.Documents,
		auditSvc:         p.AuditSvc,
		billing:          p.Billing,
		metrics:          p.Metrics,
		schedulerMetrics: p.SchedulerMetrics,
	}
	return svc, svc
}

func (s *Service) Create(ctx context.Context, req contractdomain.CreateContractRequest) (contractdomain.Contract, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return contractdomain.Contract{}, contractdomain.ErrInvalidOrganization
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Interval = contractdomain.Interval(strings.ToUpper(strings.TrimSpace(string(req.Interval))))
	req.DocumentType = documentdomain.DocumentType(strings.ToUpper(strings.TrimSpace(string(req.DocumentType))))
	if req.DocumentType == "" {
		req.DocumentType = documentdomain.DocumentTypeInvoice
	}

	contract, err := s.buildContract(orgID, req)
	if err != nil {
		return contractdomain.Contract{}, err
	}

	if _, err := s.customers.GetByID(ctx, orgID, req.CustomerID); err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) {
			return contractdomain.Contract{}, validation.New("customer_id", "not_found", "customer does not exist")
		}
		return contractdomain.Contract{}, err
	}
	if contract.PaymentTermID != nil {
		term, err := s.terms.FindOne(ctx, &paymenttermdomain.PaymentTerm{OrgID: orgID, ID: *contract.PaymentTermID})
		if err != nil {
			return contractdomain.Contract{}, err
		}
		if term == nil {
			return contractdomain.Contract{}, validation.New("payment_term_id", "not_found", "payment term does not exist")
		}
	}
	if contract.Currency == "" {
		company, err := s.companies.GetByID(ctx, orgID)
		if err != nil {
			return contractdomain.Contract{}, err
		}
		contract.Currency = company.Currency
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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

		if err := s.repo.Insert(ctx, tx, &contract); err != nil {
			return err
		}
		lines := make([]contractdomain.ContractLine, 0, len(req.Lines))
		for i, line := range req.Lines {
			rate := rates[line.TaxRateID]
			rateID := rate.ID
			lines = append(lines, contractdomain.ContractLine{
				ID:             s.genID.Generate(),
				OrgID:          orgID,
				ContractID:     contract.ID,
				Position:       i + 1,
				Description:    strings.TrimSpace(line.Description),
				Quantity:       line.Quantity,
				UnitPriceNet:   line.UnitPriceNet,
				TaxRateID:      &rateID,
				TaxRate:        rate.NullRate(),
				IsDiscountable: line.IsDiscountable,
				CreatedAt:      contract.CreatedAt,
				UpdatedAt:      contract.CreatedAt,
			})
		}
		if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
			return err
		}
		contract.Lines = lines
		return nil
	})
	if err != nil {
		return contractdomain.Contract{}, err
	}

	s.audit(ctx, orgID, auditdomain.ActionContractCreated, contract.ID, map[string]any{
		"interval":      string(contract.Interval),
		"next_run_date": contract.NextRunDate.Format(time.DateOnly),
		"lines":         len(contract.Lines),
	})
	return contract, nil
}

func (s *Service) buildContract(orgID snowflake.ID, req contractdomain.CreateContractRequest) (contractdomain.Contract, error) {
	errs := &validation.Errors{}
	if err := validation.Struct(req); err != nil {
		fieldErrs, ok := validation.As(err)
		if !ok {
			return contractdomain.Contract{}, err
		}
		errs.Errors = append(errs.Errors, fieldErrs.Errors...)
	}
	for i, line := range req.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		errs.Precision(field+".quantity", line.Quantity, documentdomain.QuantityScale)
		errs.Precision(field+".unit_price_net", line.UnitPriceNet, documentdomain.UnitPriceScale)
	}
	if !req.Interval.Valid() {
		errs.Add("interval", "oneof", "interval must be one of [MONTHLY QUARTERLY SEMI_ANNUAL ANNUAL]")
	}
	if !req.DocumentType.Valid() {
		errs.Add("document_type", "oneof", "document_type must be one of [INVOICE QUOTE ORDER CREDIT_NOTE]")
	}
	if err := errs.Err(); err != nil {
		return contractdomain.Contract{}, err
	}

	start, _ := time.Parse(time.DateOnly, req.StartDate)
	next := start
	if req.NextRunDate != "" {
		next, _ = time.Parse(time.DateOnly, req.NextRunDate)
	}
	var end *time.Time
	if req.EndDate != "" {
		parsed, _ := time.Parse(time.DateOnly, req.EndDate)
		end = &parsed
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	var termID *snowflake.ID
	if req.PaymentTermID != nil && *req.PaymentTermID != 0 {
		termID = req.PaymentTermID
	}

	now := s.clock.Now()
	contract := contractdomain.Contract{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		CustomerID:    req.CustomerID,
		PaymentTermID: termID,
		DocumentType:  req.DocumentType,
		Name:          req.Name,
		Currency:      req.Currency,
		Interval:      req.Interval,
		StartDate:     start,
		EndDate:       end,
		NextRunDate:   next,
		IsActive:      isActive,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch err := contract.Validate(); {
	case err == nil:
	case errors.Is(err, contractdomain.ErrEndBeforeStart):
		return contractdomain.Contract{}, validation.New("end_date", "gtefield", "end_date must not be before start_date")
	case errors.Is(err, contractdomain.ErrNextRunBeforeStart):
		return contractdomain.Contract{}, validation.New("next_run_date", "gtefield", "next_run_date must not be before start_date")
	default:
		return contractdomain.Contract{}, err
	}
	return contract, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (contractdomain.Contract, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return contractdomain.Contract{}, contractdomain.ErrInvalidOrganization
	}
	if id == 0 {
		return contractdomain.Contract{}, contractdomain.ErrInvalidID
	}

	contract, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return contractdomain.Contract{}, err
	}
	if contract == nil {
		return contractdomain.Contract{}, contractdomain.ErrNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, orgID, id)
	if err != nil {
		return contractdomain.Contract{}, err
	}
	contract.Lines = lines
	return *contract, nil
}

func (s *Service) List(ctx context.Context, req contractdomain.ListContractRequest) (contractdomain.ListContractResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return contractdomain.ListContractResponse{}, contractdomain.ErrInvalidOrganization
	}

	filter := contractdomain.ListFilter{IsActive: req.IsActive}
	if value := strings.TrimSpace(req.CustomerID); value != "" {
		id, err := snowflake.ParseString(value)
		if err != nil {
			return contractdomain.ListContractResponse{}, validation.New("customer_id", "invalid", "customer_id must be an id")
		}
		filter.CustomerID = id
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter, req.Pagination)
	if err != nil {
		return contractdomain.ListContractResponse{}, err
	}
	items, pageInfo := pagination.Trim(items, req.Pagination.Size(), func(c *contractdomain.Contract) string {
		return c.ID.String()
	})

	contracts := make([]contractdomain.Contract, 0, len(items))
	for _, c := range items {
		contracts = append(contracts, *c)
	}
	return contractdomain.ListContractResponse{PageInfo: pageInfo, Contracts: contracts}, nil
}

// UpdateLine edits a template line. Documents generated earlier keep the
// values they copied.
func (s *Service) UpdateLine(ctx context.Context, contractID, lineID snowflake.ID, req contractdomain.UpdateContractLineRequest) (contractdomain.ContractLine, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return contractdomain.ContractLine{}, contractdomain.ErrInvalidOrganization
	}
	if contractID == 0 || lineID == 0 {
		return contractdomain.ContractLine{}, contractdomain.ErrInvalidID
	}
	if err := validateLineUpdate(req); err != nil {
		return contractdomain.ContractLine{}, err
	}

	var updated contractdomain.ContractLine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		line, err := s.repo.FindLine(ctx, tx, orgID, contractID, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return contractdomain.ErrLineNotFound
		}

		if req.Description != nil {
			line.Description = strings.TrimSpace(*req.Description)
		}
		if req.Quantity != nil {
			line.Quantity = *req.Quantity
		}
		if req.UnitPriceNet != nil {
			line.UnitPriceNet = *req.UnitPriceNet
		}
		if req.IsDiscountable != nil {
			line.IsDiscountable = *req.IsDiscountable
		}
		if req.TaxRateID != nil {
			rates, err := s.rates.ResolveRates(ctx, tx, orgID, []snowflake.ID{*req.TaxRateID})
			if err != nil {
				if errors.Is(err, taxdomain.ErrNotFound) || errors.Is(err, taxdomain.ErrTaxRateInactive) {
					return validation.New("tax_rate_id", "invalid", err.Error())
				}
				return err
			}
			rate := rates[*req.TaxRateID]
			rateID := rate.ID
			line.TaxRateID = &rateID
			line.TaxRate = rate.NullRate()
		}
		if err := line.Validate(); err != nil {
			return validation.New("line", "invalid", err.Error())
		}

		line.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateLine(ctx, tx, line); err != nil {
			return err
		}
		updated = *line
		return nil
	})
	if err != nil {
		return contractdomain.ContractLine{}, err
	}

	s.audit(ctx, orgID, auditdomain.ActionContractLineUpdated, contractID, map[string]any{
		"line_id":  lineID.String(),
		"position": updated.Position,
	})
	return updated, nil
}

func (s *Service) ListRuns(ctx context.Context, req contractdomain.ListRunsRequest) (contractdomain.ListRunsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return contractdomain.ListRunsResponse{}, contractdomain.ErrInvalidOrganization
	}

	filter := contractdomain.RunFilter{ContractID: req.ContractID}
	errs := &validation.Errors{}
	if value := strings.ToUpper(strings.TrimSpace(req.Status)); value != "" {
		filter.Status = contractdomain.RunStatus(value)
		switch filter.Status {
		case contractdomain.RunStatusSuccess, contractdomain.RunStatusFailed:
		default:
			errs.Add("status", "oneof", "status must be one of [SUCCESS FAILED]")
		}
	}
	if value := strings.TrimSpace(req.From); value != "" {
		from, err := time.Parse(time.DateOnly, value)
		if err != nil {
			errs.Add("from", "datetime", "from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if value := strings.TrimSpace(req.To); value != "" {
		to, err := time.Parse(time.DateOnly, value)
		if err != nil {
			errs.Add("to", "datetime", "to must be YYYY-MM-DD")
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		errs.Add("to", "gtefield", "to must not be before from")
	}
	if err := errs.Err(); err != nil {
		return contractdomain.ListRunsResponse{}, err
	}

	items, err := s.repo.ListRuns(ctx, s.db, orgID, filter, req.Pagination)
	if err != nil {
		return contractdomain.ListRunsResponse{}, err
	}
	items, pageInfo := pagination.Trim(items, req.Pagination.Size(), func(run *contractdomain.ContractRun) string {
		return run.ID.String()
	})

	runs := make([]contractdomain.ContractRun, 0, len(items))
	for _, run := range items {
		runs = append(runs, *run)
	}
	return contractdomain.ListRunsResponse{PageInfo: pageInfo, Runs: runs}, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, contractID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := contractID.String()
	if err := s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "contract", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("contract_id", targetID),
			zap.Error(err),
		)
	}
}

func validateLineUpdate(req contractdomain.UpdateContractLineRequest) error {
	errs := &validation.Errors{}
	if err := validation.Struct(req); err != nil {
		fieldErrs, ok := validation.As(err)
		if !ok {
			return err
		}
		errs.Errors = append(errs.Errors, fieldErrs.Errors...)
	}
	if req.Quantity != nil {
		errs.Precision("quantity", *req.Quantity, documentdomain.QuantityScale)
	}
	if req.UnitPriceNet != nil {
		errs.Precision("unit_price_net", *req.UnitPriceNet, documentdomain.UnitPriceScale)
	}
	return errs.Err()
}

// truncate cuts message to at most limit bytes on a rune boundary.
func truncate(message string, limit int) string {
	message = strings.ToValidUTF8(message, "")
	if len(message) <= limit {
		return message
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + "..."
}
