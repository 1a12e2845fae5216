package router

import (
	"fmt"
	"strings"

	"github.com/sellos-next/internal/cache"
	"github.com/sellos-next/internal/config"
	adminhandlers "github.com/sellos-next/internal/http/handlers/admin"
	publichandlers "github.com/sellos-next/internal/http/handlers/public"
	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires middleware and routes
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sellos"
	}
	redisClient := cache.Client()
	registerRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:register", redisPrefix),
		WindowSeconds: cfg.RateLimit.WindowSeconds,
		MaxRequests:   cfg.RateLimit.MaxRequests,
		Message:       "too many registrations",
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		cards := apiV1.Group("/cards")
		{
			cards.POST("", RateLimitMiddleware(redisClient, registerRule, KeyByIPAndJSONField("phone")), publicHandler.RegisterCard)
			cards.GET("/resolve", publicHandler.ResolveCard)
			cards.GET("/:id", publicHandler.GetCard)
			cards.POST("/:id/stamps", publicHandler.AddStamp)
			cards.POST("/:id/sessions/consume", publicHandler.ConsumeSession)
			cards.PATCH("/:id/plan", publicHandler.ChangePlan)
			cards.POST("/:id/redeem", publicHandler.RedeemCard)
			cards.POST("/:id/appointments", publicHandler.ScheduleAppointment)
			cards.GET("/:id/appointments", publicHandler.ListCardAppointments)
			cards.GET("/:id/pass/apple", publicHandler.GetApplePass)
			cards.GET("/:id/pass/google", publicHandler.GetGoogleSaveURL)
		}

		admin := apiV1.Group("/admin")
		{
			admin.GET("/cards", adminHandler.ListCards)
			admin.POST("/cards/:id/reset", adminHandler.ResetCard)
			admin.GET("/duplicates", adminHandler.ListDuplicates)
			admin.POST("/duplicates/merge", adminHandler.MergeCards)
			admin.POST("/duplicates/scan", adminHandler.EnqueueDuplicateScan)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
