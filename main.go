package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"

	"dm-service/internal/blob"
	"dm-service/internal/config"
	"dm-service/internal/db"
	"dm-service/internal/delivery"
	"dm-service/internal/handlers"
	"dm-service/internal/idem"
	"dm-service/internal/identity"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/presence"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

const serviceName = "dm-service"

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracer := initTracer(ctx, cfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	emitter := telemetry.NewEmitter(publisher, serviceName, cfg.Environment)

	var dedupe idem.Store = idem.Noop{}
	if cfg.RedisAddr != "" {
		dedupe = idem.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	}

	var blobs blob.Store
	if cfg.MinioEndpoint != "" {
		blobs, err = blob.New(ctx, blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to connect to blob store: %v", err)
		}
	}

	messageRepo := repositories.NewMessageRepo(database)
	conversationRepo := repositories.NewConversationRepo(database, cfg.AtomicPairWrite)

	registry := presence.NewRegistry()
	engine := delivery.NewEngine(messageRepo, conversationRepo, registry, dedupe, emitter, cfg.MaxTextLength)

	resolver := identity.NewJWTResolver(cfg.JWTSecret)

	dmHandler := handlers.NewDMHandler(engine, messageRepo, conversationRepo, blobs)
	pushHandler := ws.NewPushHandler(registry, engine, resolver, emitter)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(resolver)

	router.GET("/conversations", authMiddleware, dmHandler.ListConversations)
	router.GET("/messages/history/:peer", authMiddleware, dmHandler.GetHistory)
	router.PUT("/messages/recall", authMiddleware, dmHandler.RecallMessage)
	router.DELETE("/messages/delete", authMiddleware, dmHandler.DeleteMessage)
	router.POST("/messages/forward", authMiddleware, dmHandler.ForwardMessage)
	router.POST("/uploads", authMiddleware, dmHandler.UploadFile)

	router.GET("/ws", pushHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, registry, cfg.DebugEndpoints)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func initTracer(ctx context.Context, cfg *config.Config) func(context.Context) error {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		log.Printf("otel exporter disabled: %v", err)
		return func(context.Context) error { return nil }
	}

	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return provider.Shutdown
}
