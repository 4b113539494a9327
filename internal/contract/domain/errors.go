package domain

import (
	"errors"

	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrLineNotFound        = errors.New("contract_line_not_found")
	ErrContractHasNoLines  = errors.New("contract_has_no_lines")
	ErrInvalidInterval     = errors.New("invalid_interval")
	ErrEndBeforeStart      = errors.New("end_date_before_start_date")
	ErrNextRunBeforeStart  = errors.New("next_run_date_before_start_date")
	ErrNegativeAmount      = errors.New("negative_amount")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrExcessPrecision     = errors.New("excess_precision")

	// ErrMissingTaxRate matches the document calculation error so callers
	// can test for either with errors.Is.
	ErrMissingTaxRate = documentdomain.ErrMissingTaxRate
)
