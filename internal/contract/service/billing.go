package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/kmanager/internal/audit/domain"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/internal/observability/metrics"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	"github.com/smallbiznis/kmanager/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxRunMessageLength = 1000

var tracer = otel.Tracer("kmanager/contract")

var (
	// errSkipRun and errDryRun abort the per-contract transaction without
	// counting as a failure.
	errSkipRun = errors.New("skip_run")
	errDryRun  = errors.New("dry_run")
)

type skip struct {
	reason string
}

func (s skip) Error() string { return s.reason }
func (s skip) Unwrap() error { return errSkipRun }

// GenerateDue bills every due contract once for the run date. Each contract
// runs in its own transaction; a failing contract is recorded and the batch
// moves on. Only errors that stop the whole batch are returned.
func (s *Service) GenerateDue(ctx context.Context, req contractdomain.GenerateDueRequest) (contractdomain.BatchResult, error) {
	today := req.Today
	if today.IsZero() {
		today = s.billingToday()
	}
	today = contractdomain.DateOf(today)

	batchID := req.BatchID
	if batchID == "" {
		batchID = ulid.Make().String()
	}

	result := contractdomain.BatchResult{BatchID: batchID, RunDate: today, DryRun: req.DryRun, Runs: []contractdomain.ContractRun{}}

	ctx, span := tracer.Start(ctx, "contract.generate_due", trace.WithAttributes(
		attribute.String("batch_id", batchID),
		attribute.String("run_date", today.Format(time.DateOnly)),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()

	log := s.log.With(
		zap.String("batch_id", batchID),
		zap.String("run_date", today.Format(time.DateOnly)),
		zap.Bool("dry_run", req.DryRun),
	)

	orgIDs := []snowflake.ID{req.OrgID}
	if req.OrgID == 0 {
		ids, err := s.companies.ListIDs(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list organizations")
			return result, fmt.Errorf("list organizations: %w", err)
		}
		orgIDs = ids
	}

	for _, orgID := range orgIDs {
		due, err := s.repo.ListDue(ctx, s.db, orgID, today)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list due contracts")
			return result, fmt.Errorf("list due contracts for org %s: %w", orgID, err)
		}
		log.Info("due contracts selected", zap.String("org_id", orgID.String()), zap.Int("count", len(due)))

		for _, contract := range due {
			if err := ctx.Err(); err != nil {
				log.Warn("billing batch interrupted", zap.Int("processed", len(result.Runs)), zap.Error(err))
				return result, err
			}
			result.Add(s.billContract(ctx, log, contract, today, batchID, req.DryRun))
		}
	}

	span.SetAttributes(
		attribute.Int("succeeded", result.Succeeded),
		attribute.Int("failed", result.Failed),
		attribute.Int("skipped", result.Skipped),
	)
	log.Info("billing batch finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Service) billContract(ctx context.Context, log *zap.Logger, contract contractdomain.Contract, today time.Time, batchID string, dryRun bool) contractdomain.ContractRun {
	ctx, span := tracer.Start(ctx, "contract.bill", trace.WithAttributes(
		attribute.String("contract_id", contract.ID.String()),
	))
	defer span.End()

	log = log.With(zap.String("org_id", contract.OrgID.String()), zap.String("contract_id", contract.ID.String()))

	run := contractdomain.ContractRun{
		ID:         s.genID.Generate(),
		OrgID:      contract.OrgID,
		ContractID: contract.ID,
		RunDate:    today,
		BatchID:    batchID,
		CreatedAt:  s.clock.Now(),
	}

	var doc documentdomain.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		doc, txErr = s.billContractTx(ctx, tx, &run, contract.ID, today)
		if txErr != nil {
			return txErr
		}
		if dryRun {
			return errDryRun
		}
		return nil
	})

	var skipped skip
	switch {
	case err == nil:
		run.Status = contractdomain.RunStatusSuccess
		run.DocumentID = &doc.ID
		log.Info("contract billed",
			zap.String("document_id", doc.ID.String()),
			zap.String("total_gross", doc.TotalGross.StringFixed(2)),
		)
	case errors.Is(err, errDryRun):
		// The document was rolled back, so there is no id to report.
		run.Status = contractdomain.RunStatusSuccess
		run.DocumentID = nil
		log.Info("contract would be billed", zap.String("total_gross", doc.TotalGross.StringFixed(2)))
	case errors.As(err, &skipped):
		run.Status = contractdomain.RunStatusSkipped
		run.Message = stringPtr(skipped.reason)
		log.Info("contract skipped", zap.String("reason", skipped.reason))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "billing failed")
		run.Status = contractdomain.RunStatusFailed
		run.DocumentID = nil
		run.Message = stringPtr(truncate(err.Error(), maxRunMessageLength))
		log.Warn("contract billing failed", zap.Error(err))
		if !dryRun {
			s.recordFailure(ctx, log, &run)
		}
	}

	s.metrics.RecordContractRun(ctx, string(run.Status), dryRun)
	if dryRun {
		return run
	}

	switch run.Status {
	case contractdomain.RunStatusSuccess:
		s.schedulerMetrics.IncContractRun(string(run.Status))
		s.metrics.RecordDocumentGenerated(ctx, int64(run.OrgID), string(doc.DocumentType))
		s.audit(ctx, run.OrgID, auditdomain.ActionContractBilled, run.ContractID, map[string]any{
			"batch_id":    batchID,
			"run_date":    today.Format(time.DateOnly),
			"document_id": doc.ID.String(),
			"total_gross": doc.TotalGross.StringFixed(2),
		})
	case contractdomain.RunStatusFailed:
		s.schedulerMetrics.IncContractRun(string(run.Status))
		s.audit(ctx, run.OrgID, auditdomain.ActionContractBillingFailed, run.ContractID, map[string]any{
			"batch_id": batchID,
			"run_date": today.Format(time.DateOnly),
			"message":  *run.Message,
		})
	}
	return run
}

// billContractTx performs the locked re-check, document generation, run
// insert and contract advance inside tx.
func (s *Service) billContractTx(ctx context.Context, tx *gorm.DB, run *contractdomain.ContractRun, contractID snowflake.ID, today time.Time) (documentdomain.Document, error) {
	start := time.Now()
	contract, err := s.repo.LockByID(ctx, tx, run.OrgID, contractID)
	s.schedulerMetrics.ObserveDBLockWait(metrics.LockResourceContractDue, time.Since(start))
	if err != nil {
		return documentdomain.Document{}, err
	}
	if contract == nil || !contract.IsDue(today) {
		return documentdomain.Document{}, skip{reason: "contract no longer due"}
	}

	existing, err := s.repo.FindRun(ctx, tx, contract.ID, today)
	if err != nil {
		return documentdomain.Document{}, err
	}
	if existing != nil {
		return documentdomain.Document{}, skip{reason: fmt.Sprintf("already ran on %s with status %s", today.Format(time.DateOnly), existing.Status)}
	}

	doc, err := s.generateDocument(ctx, tx, *contract)
	if err != nil {
		return documentdomain.Document{}, err
	}

	run.Status = contractdomain.RunStatusSuccess
	run.DocumentID = &doc.ID
	if err := s.repo.InsertRun(ctx, tx, run); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return documentdomain.Document{}, skip{reason: "concurrent run for the same date"}
		}
		return documentdomain.Document{}, fmt.Errorf("insert contract run: %w", err)
	}

	next := contract.Interval.AddInterval(contract.NextRunDate)
	if err := s.repo.Advance(ctx, tx, contract.OrgID, contract.ID, today, next, s.clock.Now()); err != nil {
		return documentdomain.Document{}, fmt.Errorf("advance contract: %w", err)
	}
	return doc, nil
}

// generateDocument copies the contract header and every template line into
// a new draft document and stores its totals.
func (s *Service) generateDocument(ctx context.Context, tx *gorm.DB, contract contractdomain.Contract) (documentdomain.Document, error) {
	lines, err := s.repo.ListLines(ctx, tx, contract.OrgID, contract.ID)
	if err != nil {
		return documentdomain.Document{}, err
	}
	if len(lines) == 0 {
		return documentdomain.Document{}, contractdomain.ErrContractHasNoLines
	}

	issueDate := contract.NextRunDate
	dueDate := issueDate
	if contract.PaymentTermID != nil {
		term, err := s.terms.WithTrx(tx).FindOne(ctx, &paymenttermdomain.PaymentTerm{OrgID: contract.OrgID, ID: *contract.PaymentTermID})
		if err != nil {
			return documentdomain.Document{}, err
		}
		if term == nil {
			return documentdomain.Document{}, fmt.Errorf("payment term %s: %w", contract.PaymentTermID, paymenttermdomain.ErrNotFound)
		}
		dueDate = term.ComputeDueDate(issueDate)
	}

	draft := documentdomain.Draft{
		OrgID:         contract.OrgID,
		CustomerID:    contract.CustomerID,
		ContractID:    &contract.ID,
		PaymentTermID: contract.PaymentTermID,
		DocumentType:  contract.DocumentType,
		Currency:      contract.Currency,
		IssueDate:     issueDate,
		DueDate:       &dueDate,
		Notes:         contract.Notes,
		Lines:         make([]documentdomain.DraftLine, 0, len(lines)),
	}
	for _, line := range lines {
		if !line.TaxRate.Valid {
			return documentdomain.Document{}, fmt.Errorf("contract line %d: %w", line.Position, contractdomain.ErrMissingTaxRate)
		}
		draft.Lines = append(draft.Lines, documentdomain.DraftLine{
			Description:    line.Description,
			Quantity:       line.Quantity,
			UnitPriceNet:   line.UnitPriceNet,
			TaxRateID:      line.TaxRateID,
			TaxRate:        line.TaxRate,
			LineType:       documentdomain.LineTypeNormal,
			IsSelected:     true,
			IsDiscountable: line.IsDiscountable,
		})
	}

	doc, err := s.documents.CreateDraft(ctx, tx, draft)
	if err != nil {
		return documentdomain.Document{}, err
	}
	totals, err := s.documents.RecalculateTx(ctx, tx, contract.OrgID, doc.ID)
	if err != nil {
		return documentdomain.Document{}, err
	}
	doc.TotalNet, doc.TotalTax, doc.TotalGross = totals.Net, totals.Tax, totals.Gross
	return doc, nil
}

// recordFailure writes the FAILED run after the billing transaction rolled
// back. A row already present for the date turns the outcome into a skip.
func (s *Service) recordFailure(ctx context.Context, log *zap.Logger, run *contractdomain.ContractRun) {
	err := s.repo.InsertRun(ctx, s.db, run)
	if err == nil {
		return
	}
	if db.IsDuplicateKeyErr(err) {
		run.Status = contractdomain.RunStatusSkipped
		run.Message = stringPtr("run already recorded for the same date")
		return
	}
	log.Error("failed to record failed contract run", zap.Error(err))
}

func (s *Service) billingToday() time.Time {
	now := s.clock.Now()
	if s.billing == nil {
		return contractdomain.DateOf(now)
	}
	return s.billing.Get().Today(now)
}

func stringPtr(v string) *string { return &v }
