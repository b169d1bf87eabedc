package router

import (
	"time"

	"posledger/internal/config"
	"posledger/internal/handler"
	"posledger/internal/infra"
	"posledger/internal/middleware"
	"posledger/internal/repository"
	"posledger/internal/service"
	"posledger/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns the configured Gin engine together
// with the queue handlers and the account service, so the caller can start
// the worker pool and the overdue cron on the same wired instances.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*gin.Engine, worker.Handlers, service.AccountService) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Infrastructure ───────────────────────────────────────────────────────
	mailer := infra.NewMailer(cfg)
	balanceCache := infra.NewBalanceCache(rdb, time.Duration(cfg.BalanceCacheTTLSeconds)*time.Second)

	// ── Repositories ─────────────────────────────────────────────────────────
	registerRepo := repository.NewRegisterRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	methodRepo := repository.NewPaymentMethodRepository(db)

	// Worker dispatcher — injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	registerSvc := service.NewRegisterService(registerRepo, methodRepo, dispatcher)
	accountSvc := service.NewAccountService(accountRepo, dispatcher, balanceCache, service.Thresholds{
		SuspendOverdueDays:     cfg.SuspendOverdueDays,
		CreditGrace:            cfg.CreditGrace(),
		DefaultPaymentTermDays: cfg.DefaultPaymentTermDays,
	})

	// Queue handlers, wired by the caller into the worker pool
	workerHandlers := worker.Handlers{
		CashSync: worker.NewCashSyncWorker(registerSvc),
		Report:   worker.NewReportWorker(registerSvc, mailer, cfg.PDFStoragePath, cfg.AlertEmail),
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	registerH := handler.NewRegisterHandler(registerSvc, cfg.PDFStoragePath)
	accountH := handler.NewAccountHandler(accountSvc)
	methodsH := handler.NewPaymentMethodsHandler(methodRepo)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb))

	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	anyRole := middleware.RequireRole(middleware.RoleCashier, middleware.RoleSupervisor, middleware.RoleAdmin)
	supervision := middleware.RequireRole(middleware.RoleSupervisor, middleware.RoleAdmin)
	v1 := r.Group("/v1", jwtMW)
	{
		v1.GET("/payment-methods", anyRole, methodsH.List)

		register := v1.Group("/register")
		{
			register.POST("/open", anyRole, registerH.Open)
			register.POST("/movements", anyRole, registerH.RecordMovement)
			register.POST("/close", anyRole, registerH.Close)
			register.POST("/:id/reopen", supervision, registerH.Reopen)
			register.GET("/open", anyRole, registerH.GetOpen)
			register.GET("/status", anyRole, registerH.Status)
			register.GET("/suggested-amount", anyRole, registerH.SuggestedAmount)
			register.GET("/history", supervision, registerH.History)
			register.GET("/stats", supervision, registerH.Stats)
			register.GET("/:id", anyRole, registerH.GetByID)
			register.GET("/:id/report.pdf", supervision, registerH.ReportPDF)
		}

		accounts := v1.Group("/accounts")
		{
			accounts.GET("", anyRole, accountH.List)
			accounts.GET("/debtors", supervision, accountH.Debtors)
			accounts.GET("/stats", supervision, accountH.Stats)
			accounts.GET("/overdue-alerts", supervision, accountH.OverdueAlerts)
			accounts.POST("/recalculate-overdue", middleware.RequireRole(middleware.RoleAdmin), accountH.RecalculateOverdue)

			accounts.POST("/:customerId", anyRole, accountH.Create)
			accounts.GET("/:customerId", anyRole, accountH.Get)
			accounts.PATCH("/:customerId", supervision, accountH.Update)
			accounts.GET("/:customerId/balance", anyRole, accountH.Balance)
			accounts.POST("/:customerId/movements", anyRole, accountH.ApplyMovement)
			accounts.GET("/:customerId/movements", anyRole, accountH.ListMovements)
			accounts.GET("/:customerId/statement", anyRole, accountH.Statement)
			accounts.POST("/:customerId/surcharge", supervision, accountH.Surcharge)
		}
	}

	return r, workerHandlers, accountSvc
}
