package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	obscontext "github.com/smallbiznis/kmanager/internal/observability/context"
)

type runBillingRequest struct {
	Date   string `json:"date"`
	DryRun bool   `json:"dry_run"`
}

// RunBilling triggers a batch for the requesting company only.
func (s *Server) RunBilling(c *gin.Context) {
	var req runBillingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	var today time.Time
	if date := strings.TrimSpace(req.Date); date != "" {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
			return
		}
		today = parsed
	}

	orgID, _ := orgIDFromRequest(c)
	ctx := obscontext.WithActor(c.Request.Context(), "api", "billing.run")

	result, err := s.billingSvc.GenerateDue(ctx, contractdomain.GenerateDueRequest{
		OrgID:  orgID,
		Today:  today,
		DryRun: req.DryRun,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
