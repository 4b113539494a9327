package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
)

type paymentTermResponse struct {
	paymenttermdomain.PaymentTerm
	Text string `json:"text"`
}

func (s *Server) CreatePaymentTerm(c *gin.Context) {
	var req paymenttermdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	resp, err := s.paymentTermSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": paymentTermResponse{PaymentTerm: resp, Text: resp.Text()}})
}

func (s *Server) GetPaymentTermByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	orgID, _ := orgIDFromRequest(c)

	resp, err := s.paymentTermSvc.GetByID(c.Request.Context(), orgID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": paymentTermResponse{PaymentTerm: resp, Text: resp.Text()}})
}
