package main

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-xray-sdk-go/xray"
	adaptermiddleware "visa-tracker/internal/adapters/http/middleware"
	adapterlogger "visa-tracker/internal/adapters/logger"
	"visa-tracker/internal/application"
	"visa-tracker/internal/infrastructure/auth"
	"visa-tracker/internal/infrastructure/dynamodb"
	"visa-tracker/internal/infrastructure/storage"
	httpiface "visa-tracker/internal/interfaces/http"
)

type config struct {
	TableName     string
	Region        string
	JWTSecret     string
	Port          string
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func loadConfig() (config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	cfg := config{
		TableName:     os.Getenv("TABLE_NAME"),
		Region:        os.Getenv("AWS_REGION"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		Port:          port,
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     os.Getenv("ADMIN_NAME"),
	}
	if cfg.TableName == "" || cfg.Region == "" {
		return config{}, errors.New("missing required environment variables")
	}
	if cfg.JWTSecret == "" {
		return config{}, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func main() {
	logger := adapterlogger.New()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error(context.Background(), "configuration error", "error", err)
		os.Exit(1)
	}
	xray.Configure(xray.Config{LogLevel: "error"})

	ddbClient, err := dynamodb.NewClient(context.Background(), cfg.Region, cfg.TableName)
	if err != nil {
		logger.Error(context.Background(), "failed to initialize dynamodb client", "error", err)
		os.Exit(1)
	}
	appRepo := dynamodb.NewApplicationRepository(ddbClient)
	adminRepo := dynamodb.NewAdminRepository(ddbClient)

	store, err := storage.FromEnv(context.Background())
	if err != nil {
		logger.Error(context.Background(), "failed to initialize storage backend", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret)
	if err != nil {
		logger.Error(context.Background(), "failed to initialize token manager", "error", err)
		os.Exit(1)
	}

	appSvc := application.NewApplicationService(appRepo, store, logger)
	adminSvc := application.NewAdminService(adminRepo, tokens, logger)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := adminSvc.EnsureAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
			logger.Error(context.Background(), "failed to provision admin account", "error", err)
			os.Exit(1)
		}
	}

	mw := httpiface.Middleware{
		Auth:          adaptermiddleware.RequireAuth(tokens),
		XRay:          adaptermiddleware.XRayMiddleware("visa-tracker-http"),
		RequestLogger: adaptermiddleware.RequestLogger(logger),
	}

	e := httpiface.NewRouter(
		httpiface.NewApplicationsHandler(appSvc),
		httpiface.NewAdminHandler(adminSvc),
		mw,
	)
	logger.Info(context.Background(), "starting http server", "port", cfg.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
