package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kmanager/internal/config"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	customerdomain "github.com/smallbiznis/kmanager/internal/customer/domain"
	documentdomain "github.com/smallbiznis/kmanager/internal/document/domain"
	"github.com/smallbiznis/kmanager/internal/observability"
	obslogger "github.com/smallbiznis/kmanager/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kmanager/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kmanager/internal/observability/tracing"
	organizationdomain "github.com/smallbiznis/kmanager/internal/organization/domain"
	paymenttermdomain "github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	taxdomain "github.com/smallbiznis/kmanager/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Engine(),
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config

	companySvc     organizationdomain.Service
	customerSvc    customerdomain.Service
	paymentTermSvc paymenttermdomain.Service
	taxSvc         taxdomain.Service
	documentSvc    documentdomain.Service
	contractSvc    contractdomain.Service
	billingSvc     contractdomain.BillingService
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	CompanySvc     organizationdomain.Service
	CustomerSvc    customerdomain.Service
	PaymentTermSvc paymenttermdomain.Service
	TaxSvc         taxdomain.Service
	DocumentSvc    documentdomain.Service
	ContractSvc    contractdomain.Service
	BillingSvc     contractdomain.BillingService
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		companySvc:     p.CompanySvc,
		customerSvc:    p.CustomerSvc,
		paymentTermSvc: p.PaymentTermSvc,
		taxSvc:         p.TaxSvc,
		documentSvc:    p.DocumentSvc,
		contractSvc:    p.ContractSvc,
		billingSvc:     p.BillingSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Companies --------
	api.POST("/companies", s.CreateCompany)
	api.GET("/companies/:id", s.GetCompany)

	tenant := api.Group("", OrgContext())

	// -------- Customers --------
	tenant.GET("/customers", s.ListCustomers)
	tenant.POST("/customers", s.CreateCustomer)
	tenant.GET("/customers/:id", s.GetCustomerByID)

	// -------- Tax Rates --------
	tenant.GET("/tax-rates", s.ListTaxRates)
	tenant.POST("/tax-rates", s.CreateTaxRate)
	tenant.GET("/tax-rates/:id", s.GetTaxRateByID)
	tenant.POST("/tax-rates/:id/deactivate", s.DeactivateTaxRate)

	// -------- Payment Terms --------
	tenant.POST("/payment-terms", s.CreatePaymentTerm)
	tenant.GET("/payment-terms/:id", s.GetPaymentTermByID)

	// -------- Contracts --------
	tenant.GET("/contracts", s.ListContracts)
	tenant.POST("/contracts", s.CreateContract)
	tenant.GET("/contracts/:id", s.GetContractByID)
	tenant.PATCH("/contracts/:id/lines/:line_id", s.UpdateContractLine)
	tenant.GET("/contracts/:id/runs", s.ListContractRuns)

	// -------- Billing --------
	tenant.POST("/billing/runs", s.RunBilling)

	// -------- Documents --------
	tenant.GET("/documents", s.ListDocuments)
	tenant.POST("/documents", s.CreateDocument)
	tenant.GET("/documents/:id", s.GetDocumentByID)
	tenant.POST("/documents/:id/recalculate", s.RecalculateDocument)
	tenant.GET("/documents/:id/pdf", s.RenderDocument)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
