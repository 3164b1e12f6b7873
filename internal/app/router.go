package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rental/internal/handler"
	"rental/internal/middleware"
	"rental/internal/scheduler"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	BookingHandler *handler.BookingHandler
	PaymentHandler *handler.PaymentHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	Logger         *zap.Logger
	JWTSecret      []byte
	Monitor        http.Handler // Optional asynq dashboard, served to authenticated users.
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Monitor != nil {
		monitoring := router.Group(scheduler.MonitoringPath, middleware.Auth(deps.JWTSecret))
		monitoring.Any("/*path", gin.WrapH(deps.Monitor))
	}

	v1 := router.Group("/v1")

	// PayHere authenticates with md5sig, not a bearer token.
	v1.POST("/webhooks/payhere", deps.PaymentHandler.PayHereNotification)

	authed := v1.Group("", middleware.Auth(deps.JWTSecret), middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	{
		authed.GET("/vehicles/:id/quote", deps.BookingHandler.Quote)

		bookings := authed.Group("/bookings")
		{
			bookings.POST("", deps.BookingHandler.CreateBooking)
			bookings.GET("/:id", deps.BookingHandler.GetBooking)
			bookings.POST("/:id/cancel", deps.BookingHandler.CancelBooking)
			bookings.POST("/:id/complete", deps.BookingHandler.CompleteBooking)
			bookings.POST("/:id/payments", deps.PaymentHandler.ProcessPayment)
		}

		authed.GET("/payments/:id", deps.PaymentHandler.GetPayment)
	}

	return router
}
