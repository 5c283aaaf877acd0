package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/config"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/middleware"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/service"
)

// Services are the dependencies the HTTP API is built on.
type Services struct {
	Store        service.Store
	Machine      *service.StateMachine
	Orchestrator *service.Orchestrator
	Exporter     *service.ExportService
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(cfg *config.Config, svc Services) *gin.Engine {
	authHandler := NewAuthHandler(cfg)
	contractHandler := NewContractHandler(svc.Store, svc.Machine, svc.Orchestrator, svc.Exporter)
	callbackHandler := NewCallbackHandler(svc.Orchestrator, cfg.Provider.WebhookSecret)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.RateLimit(100, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", middleware.RateLimit(10, time.Minute), authHandler.Login)
		api.POST("/signatures/callback", callbackHandler.HandleCallback)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/contracts", contractHandler.Create)
		protected.GET("/contracts", contractHandler.List)
	}

	contract := protected.Group("/contracts/:id", middleware.ContractScope())
	{
		contract.GET("", contractHandler.Get)
		contract.POST("/approve", contractHandler.Approve)
		contract.POST("/send", contractHandler.Send)
		contract.POST("/cancel", contractHandler.Cancel)
		contract.POST("/poll", contractHandler.Poll)
		contract.POST("/recompute", contractHandler.Recompute)
		contract.POST("/signatures/:role/resend", contractHandler.Resend)
		contract.POST("/signatures/:role/complete", contractHandler.Complete)
		contract.GET("/export", contractHandler.Export)
	}

	return router
}
