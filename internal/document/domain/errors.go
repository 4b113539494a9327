package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrMissingTaxRate      = errors.New("missing_tax_rate")
	ErrInvalidLineType     = errors.New("invalid_line_type")
	ErrInvalidDocumentType = errors.New("invalid_document_type")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrNumberConflict      = errors.New("document_number_conflict")
)
