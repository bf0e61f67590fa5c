// Package server exposes the HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	allocationdomain "github.com/vhodhq/vhod/internal/allocation/domain"
	billingdomain "github.com/vhodhq/vhod/internal/billing/domain"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/config"
	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/events"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/internal/identity"
	intercomdomain "github.com/vhodhq/vhod/internal/intercom/domain"
	meteringdomain "github.com/vhodhq/vhod/internal/metering/domain"
	"github.com/vhodhq/vhod/internal/observability"
	obslogger "github.com/vhodhq/vhod/internal/observability/logger"
	"github.com/vhodhq/vhod/internal/policy"
	"github.com/vhodhq/vhod/internal/providers/pdf"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	identities    identity.Provider
	policySvc     policy.Service
	buildingSvc   buildingdomain.Service
	directorySvc  directorydomain.Service
	expenseSvc    expensedomain.Service
	allocationSvc allocationdomain.Service
	billingSvc    billingdomain.Service
	meteringSvc   meteringdomain.Service
	intercomSvc   intercomdomain.Service
	pdfProvider   pdf.Provider
	hub           *events.Hub
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	Identities    identity.Provider
	PolicySvc     policy.Service
	BuildingSvc   buildingdomain.Service
	DirectorySvc  directorydomain.Service
	ExpenseSvc    expensedomain.Service
	AllocationSvc allocationdomain.Service
	BillingSvc    billingdomain.Service
	MeteringSvc   meteringdomain.Service
	IntercomSvc   intercomdomain.Service
	PDFProvider   pdf.Provider `optional:"true"`
	Hub           *events.Hub  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		identities:    p.Identities,
		policySvc:     p.PolicySvc,
		buildingSvc:   p.BuildingSvc,
		directorySvc:  p.DirectorySvc,
		expenseSvc:    p.ExpenseSvc,
		allocationSvc: p.AllocationSvc,
		billingSvc:    p.BillingSvc,
		meteringSvc:   p.MeteringSvc,
		intercomSvc:   p.IntercomSvc,
		pdfProvider:   p.PDFProvider,
		hub:           p.Hub,
	}
}

func registerRoutes(s *Server) {
	s.registerAPIRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.IdentityRequired())

	// -------- Buildings --------
	api.POST("/buildings", s.CreateBuilding)
	api.GET("/buildings", s.ListBuildings)
	api.GET("/buildings/:id", s.GetBuilding)
	api.PUT("/buildings/:id/settings", s.UpdateBuildingSettings)
	api.PUT("/buildings/:id/entrances", s.UpdateBuildingEntrances)
	api.POST("/buildings/:id/units", s.CreateUnit)
	api.GET("/buildings/:id/units", s.ListUnits)
	api.GET("/units/:id", s.GetUnit)
	api.PATCH("/units/:id", s.UpdateUnit)
	api.PUT("/units/:id/active", s.SetUnitActive)

	// -------- Directory --------
	api.POST("/users", s.CreateUser)
	api.GET("/users/:id", s.GetUser)
	api.POST("/buildings/:id/memberships", s.AssignMembership)
	api.GET("/buildings/:id/memberships", s.ListBuildingMemberships)
	api.GET("/units/:id/memberships", s.ListUnitMemberships)
	api.POST("/memberships/:id/end", s.EndMembership)

	// -------- Expenses --------
	api.POST("/buildings/:id/categories", s.CreateCategory)
	api.GET("/buildings/:id/categories", s.ListCategories)
	api.PATCH("/categories/:id", s.UpdateCategory)
	api.POST("/buildings/:id/expenses", s.CreateExpense)
	api.GET("/buildings/:id/expenses", s.ListExpenses)
	api.GET("/expenses/:id", s.GetExpense)
	api.PATCH("/expenses/:id/amount", s.UpdateExpenseAmount)
	api.DELETE("/expenses/:id", s.VoidExpense)

	// -------- Allocations --------
	api.POST("/expenses/:id/recompute", s.RecomputeExpense)
	api.POST("/buildings/:id/allocations/recompute", s.RecomputePeriod)
	api.GET("/expenses/:id/allocations", s.ListExpenseAllocations)
	api.GET("/units/:id/allocations", s.ListUnitAllocations)

	// -------- Invoices & payments --------
	api.POST("/buildings/:id/invoices/issue", s.IssueInvoices)
	api.GET("/buildings/:id/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoice)
	api.GET("/invoices/:id/pdf", s.RenderInvoicePDF)
	api.GET("/units/:id/invoices", s.ListUnitInvoices)
	api.GET("/units/:id/credit", s.GetUnitCredit)
	api.GET("/invoices/:id/payments", s.ListPayments)
	api.POST("/invoices/:id/payments", s.RecordPayment)
	api.POST("/invoices/:id/void", s.VoidInvoice)
	api.POST("/invoices/:id/late-fee", s.AddLateFee)
	api.POST("/invoices/:id/recalculate", s.RecalculateInvoice)

	// -------- Meters & readings --------
	api.POST("/buildings/:id/meters", s.RegisterMeter)
	api.GET("/buildings/:id/meters", s.ListMeters)
	api.GET("/meters/:id/readings", s.ListReadings)
	api.POST("/meters/:id/readings", s.RecordReading)
	api.POST("/buildings/:id/readings/import", s.ImportReadings)

	// -------- Intercom --------
	api.POST("/buildings/:id/intercom/endpoints", s.CreateIntercomEndpoint)
	api.GET("/buildings/:id/intercom/endpoints", s.ListIntercomEndpoints)
	api.PATCH("/intercom/endpoints/:id", s.UpdateIntercomEndpoint)

	// -------- Policy --------
	api.GET("/buildings/:id/policy/check", s.CheckPolicy)
	api.PUT("/buildings/:id/policy/overrides", s.ReplacePolicyOverrides)

	// -------- Events --------
	api.GET("/events/stream", s.StreamEvents)

	// Door panels authenticate as service accounts but may also ring
	// public endpoints anonymously.
	call := s.engine.Group("/api/v1", s.IdentityOptional())
	call.POST("/intercom/endpoints/:id/call", s.IntercomCall)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
