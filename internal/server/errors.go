package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	customerdomain "github.com/smallbiznis/kmanager/internal/customer/domain"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	organizationdomain "github.com/smallbiznis/kmanager/internal/organization/domain"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	"github.com/smallbiznis/kmanager/internal/validation"
	"github.com/smallbiznis/kmanager/pkg/db"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string                  `json:"type"`
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return validation.New(field, code, message)
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr, ok := validation.As(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []validation.FieldError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code to the request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

var validationSentinels = []error{
	ErrInvalidRequest,
	organizationdomain.ErrInvalidID,
	customerdomain.ErrInvalidOrganization,
	customerdomain.ErrInvalidID,
	paymenttermdomain.ErrInvalidOrganization,
	paymenttermdomain.ErrInvalidID,
	paymenttermdomain.ErrInvalidNetDays,
	paymenttermdomain.ErrInvalidDiscountDays,
	paymenttermdomain.ErrInvalidDiscountPercent,
	taxdomain.ErrInvalidOrganization,
	taxdomain.ErrInvalidName,
	taxdomain.ErrInvalidID,
	taxdomain.ErrInvalidTaxCode,
	taxdomain.ErrInvalidTaxRate,
	taxdomain.ErrTaxRateInactive,
	documentdomain.ErrInvalidOrganization,
	documentdomain.ErrInvalidID,
	documentdomain.ErrMissingTaxRate,
	documentdomain.ErrInvalidLineType,
	documentdomain.ErrInvalidDocumentType,
	documentdomain.ErrInvalidStatus,
	contractdomain.ErrInvalidOrganization,
	contractdomain.ErrInvalidID,
	contractdomain.ErrContractHasNoLines,
	contractdomain.ErrInvalidInterval,
	contractdomain.ErrEndBeforeStart,
	contractdomain.ErrNextRunBeforeStart,
	contractdomain.ErrNegativeAmount,
	contractdomain.ErrInvalidTaxRate,
	contractdomain.ErrExcessPrecision,
}

func isValidationError(err error) bool {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, organizationdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, paymenttermdomain.ErrNotFound),
		errors.Is(err, taxdomain.ErrNotFound),
		errors.Is(err, documentdomain.ErrNotFound),
		errors.Is(err, contractdomain.ErrNotFound),
		errors.Is(err, contractdomain.ErrLineNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, taxdomain.ErrDuplicateTaxCode),
		errors.Is(err, documentdomain.ErrNumberConflict),
		db.IsDuplicateKeyErr(err):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "request"
	case errors.Is(err, customerdomain.ErrInvalidOrganization),
		errors.Is(err, paymenttermdomain.ErrInvalidOrganization),
		errors.Is(err, taxdomain.ErrInvalidOrganization),
		errors.Is(err, documentdomain.ErrInvalidOrganization),
		errors.Is(err, contractdomain.ErrInvalidOrganization):
		return "X-Org-ID"
	case errors.Is(err, paymenttermdomain.ErrInvalidNetDays):
		return "net_days"
	case errors.Is(err, paymenttermdomain.ErrInvalidDiscountDays):
		return "discount_days"
	case errors.Is(err, paymenttermdomain.ErrInvalidDiscountPercent):
		return "discount_percent"
	case errors.Is(err, taxdomain.ErrInvalidTaxCode):
		return "code"
	case errors.Is(err, taxdomain.ErrInvalidName):
		return "name"
	case errors.Is(err, taxdomain.ErrInvalidTaxRate),
		errors.Is(err, contractdomain.ErrInvalidTaxRate),
		errors.Is(err, taxdomain.ErrTaxRateInactive),
		errors.Is(err, documentdomain.ErrMissingTaxRate):
		return "tax_rate_id"
	case errors.Is(err, documentdomain.ErrInvalidLineType):
		return "line_type"
	case errors.Is(err, documentdomain.ErrInvalidDocumentType):
		return "document_type"
	case errors.Is(err, contractdomain.ErrInvalidInterval):
		return "interval"
	case errors.Is(err, contractdomain.ErrEndBeforeStart):
		return "end_date"
	case errors.Is(err, contractdomain.ErrNextRunBeforeStart):
		return "next_run_date"
	case errors.Is(err, contractdomain.ErrContractHasNoLines):
		return "lines"
	default:
		return "id"
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_tax_rate":
		return "line has no tax rate"
	case "tax_rate_inactive":
		return "tax rate is inactive"
	case "contract_has_no_lines":
		return "contract has no lines"
	default:
		return "invalid value"
	}
}
