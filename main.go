package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-core/internal/cache"
	"messaging-core/internal/config"
	"messaging-core/internal/handlers"
	"messaging-core/internal/identity"
	"messaging-core/internal/middleware"
	"messaging-core/internal/observability"
	"messaging-core/internal/rabbitmq"
	"messaging-core/internal/store"
	"messaging-core/internal/telemetry"
	"messaging-core/internal/ws"
)

func main() {
	cfg := config.Load()

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "messaging-core", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	audit := telemetry.NewAuditEmitter(publisher, "audit.realtime", "messaging-core", cfg.Environment)

	verifier := identity.NewClient(cfg.IdentityBaseURL, cfg.ConnectTimeout)
	storeClient := store.NewClient(cfg.StoreBaseURL, cfg.ConnectTimeout)

	var participantCache *cache.ParticipantCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		participantCache = cache.New(rdb, cfg.ParticipantCacheTTL)
		log.Printf("participant cache enabled addr=%s ttl=%s", cfg.RedisAddr, cfg.ParticipantCacheTTL)
	}

	hub := ws.NewHub()
	gateway := ws.NewGatewayHandler(hub, verifier, storeClient, participantCache, audit)
	presence := ws.NewPresenceHandler(hub, verifier)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware("messaging-core"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/ws/conversations", gateway.Handle)
	router.GET("/ws/presence", presence.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("", middleware.AuthMiddleware(verifier))
	handlers.RegisterDebugRoutes(protected, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
