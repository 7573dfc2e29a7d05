package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/scandesk/scandesk-services-sessions/handlers"
	"github.com/scandesk/scandesk-services-sessions/internal/config"
	"github.com/scandesk/scandesk-services-sessions/internal/health"
	"github.com/scandesk/scandesk-services-sessions/internal/logging"
	"github.com/scandesk/scandesk-services-sessions/internal/tracing"
)

type App struct {
	Server *http.Server
	Engine *gin.Engine

	DynamoDB *dynamodb.Client
	Redis    *redis.Client
	S3       *s3.Client
	Sqs      *sqs.Client

	Config    config.Config
	AwsConfig aws.Config

	Services       *Services
	Health         *health.Monitor
	TracerProvider *trace.TracerProvider
	Logger         logging.Logger
}

func SetupApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.AWSConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	awsCfg, err := initAWS(cfg.AWSConfig)
	if err != nil {
		return nil, err
	}

	appLogger := logging.NewSlogLogger(logging.CreateAppLogger(cfg.Env))

	app := &App{
		DynamoDB: initDynamo(awsCfg, cfg.AWSConfig),
		Redis:    initRedis(cfg.RedisConfig),
		S3:       initS3(awsCfg, cfg.AWSConfig),
		Sqs:      initSqs(awsCfg, cfg.AWSConfig),

		Config:    cfg,
		AwsConfig: awsCfg,
		Logger:    appLogger,
	}

	if app.Config.Tracing {
		tp, err := tracing.InitTracer(context.Background(), "sessions", cfg.TracingAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		app.TracerProvider = tp
	}

	app.Services = BuildServices(app)

	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	if a.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.Engine = gin.New()
	a.Engine.Use(gin.Recovery(), handlers.CORS())
	if a.Config.Tracing {
		a.Engine.Use(otelgin.Middleware("sessions"))
	}

	a.Services.HTTPHandler.Register(a.Engine)
	a.createHealthMonitor(ctx)

	a.Server = &http.Server{
		Addr:    a.Config.ServiceConfig.SessionHTTPAddr,
		Handler: a.Engine,
	}

	a.Logger.Info("http server starting", "addr", a.Server.Addr)
	return a.Server.ListenAndServe()
}

func (a *App) createHealthMonitor(ctx context.Context) {
	// starts pessimistic until a full pass of checks succeeds
	a.Health = health.NewMonitor(
		5*time.Second,
		a.Services.Stores.sessions,
		a.Services.Stores.scans,
	)
	a.Health.Start(ctx)

	a.Engine.GET("/health", func(c *gin.Context) {
		if a.Health.Ready() {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
	})
}

func initAWS(cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func initDynamo(awsCfg aws.Config, cfg config.AWSConfig) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

func initS3(awsCfg aws.Config, cfg config.AWSConfig) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
}

func initSqs(awsCfg aws.Config, cfg config.AWSConfig) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       0,
	})
}

func (a *App) Shutdown(ctx context.Context) error {
	log.Println("starting graceful shutdown")

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			log.Printf("http shutdown error: %v", err)
			a.Server.Close() // force
		}
	}

	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			log.Printf("services shutdown error: %v", err)
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			log.Printf("tracer shutdown error: %v", err)
		}
	}

	log.Println("graceful shutdown complete")
	return nil
}
