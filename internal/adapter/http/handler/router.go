package handler

import (
	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/adapter/http/middleware"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc      ports.AuthService
	WalletSvc    ports.WalletService
	LedgerSvc    ports.LedgerService
	PaymentSvc   ports.PaymentRouter
	UpgradeSvc   ports.UpgradeService
	ReportingSvc ports.ReportingService
	BusinessRepo ports.BusinessRepository
	EncSvc       ports.EncryptionService
	SigSvc       ports.SignatureService
	NonceStore   ports.NonceStore
	TokenSvc     ports.TokenService
	RateLimiter  middleware.Limiter // nil = rate limiting disabled
	AuditSvc     ports.AuditService // nil = denied requests are not audited
	Metrics      *metrics.Metrics   // nil = no /metrics endpoint
	Money        dto.Money
	// KYCWebhookSecret signs provider callbacks. Empty rejects every callback.
	KYCWebhookSecret string
	MaxBodyBytes     int64
	HealthCheckers   []ports.HealthChecker
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditDenied(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimiter == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- HMAC-authenticated routes (channel adapters) ---
	hmacAuth := middleware.HMACAuth(deps.BusinessRepo, deps.EncSvc, deps.SigSvc, deps.NonceStore, deps.Logger)
	paymentHandler := NewPaymentHandler(deps.PaymentSvc, deps.Money)
	channel := v1.Group("/channel", rl("channel_payments"), hmacAuth)
	{
		channel.POST("/payments", paymentHandler.ChannelPayment)
	}

	upgradeHandler := NewUpgradeHandler(deps.UpgradeSvc, deps.Money, deps.Logger)
	webhooks := v1.Group("/webhooks", rl("webhooks"))
	{
		webhooks.POST("/kyc", middleware.WebhookAuth("kyc", deps.KYCWebhookSecret, deps.SigSvc, deps.NonceStore, deps.Logger), upgradeHandler.KYCWebhook)
	}

	// --- JWT-authenticated routes (business dashboard) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	walletHandler := NewWalletHandler(deps.WalletSvc, deps.LedgerSvc, deps.PaymentSvc, deps.Money)
	wallets := v1.Group("/wallets", jwtAuth, rl("wallets"))
	{
		wallets.POST("", walletHandler.Create)
		wallets.GET("", walletHandler.List)
		wallets.GET("/:id", walletHandler.Get)
		wallets.GET("/:id/balance", walletHandler.Balance)
		wallets.GET("/:id/transactions", walletHandler.History)
		wallets.PATCH("/:id/limits", walletHandler.UpdateLimits)
		wallets.PATCH("/:id/status", walletHandler.ChangeStatus)
		wallets.POST("/:id/topup", walletHandler.TopUp)
		wallets.POST("/:id/payout", walletHandler.Payout)
		wallets.POST("/:id/upgrade", rl("upgrades"), upgradeHandler.Request)
	}

	v1.POST("/transfers", jwtAuth, rl("transfers"), paymentHandler.Transfer)

	upgrades := v1.Group("/upgrades", jwtAuth, rl("upgrades"))
	{
		upgrades.GET("/:id", upgradeHandler.Get)
		upgrades.POST("/:id/advance", upgradeHandler.Advance)
	}

	dashboardHandler := NewDashboardHandler(deps.ReportingSvc, deps.Money)
	v1.GET("/dashboard/stats", jwtAuth, rl("dashboard"), dashboardHandler.GetStats)

	return r
}
