package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
)

type recalculateRequest struct {
	Persist bool `json:"persist"`
}

func (s *Server) CreateDocument(c *gin.Context) {
	var req documentdomain.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.documentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListDocuments(c *gin.Context) {
	var query documentdomain.ListDocumentRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.documentSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDocumentByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.documentSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecalculateDocument previews totals, or stores them when persist is set.
func (s *Server) RecalculateDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req recalculateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	orgID, _ := orgIDFromRequest(c)
	totals, err := s.documentSvc.Recalculate(c.Request.Context(), orgID, id, req.Persist)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"document_id": id.String(),
		"persisted":   req.Persist,
		"total_net":   totals.Net.StringFixed(2),
		"total_tax":   totals.Tax.StringFixed(2),
		"total_gross": totals.Gross.StringFixed(2),
	}})
}

func (s *Server) RenderDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	rendered, err := s.documentSvc.Render(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", "inline; filename="+strconv.Quote(rendered.Filename))
	c.Data(http.StatusOK, "application/pdf", rendered.Content)
}
