package main

import (
	"context"
	"errors"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	adaptermiddleware "visa-tracker/internal/adapters/http/middleware"
	adapterlogger "visa-tracker/internal/adapters/logger"
	"visa-tracker/internal/application"
	"visa-tracker/internal/infrastructure/auth"
	"visa-tracker/internal/infrastructure/dynamodb"
	"visa-tracker/internal/infrastructure/storage"
	httpiface "visa-tracker/internal/interfaces/http"
	lambdaplatform "visa-tracker/internal/platform/lambda"
)

func main() {
	logger := adapterlogger.New()
	ctx := context.Background()

	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	jwtSecret := os.Getenv("JWT_SECRET")
	if tableName == "" || region == "" {
		logger.Error(ctx, "configuration error", "error", errors.New("missing required environment variables"))
		os.Exit(1)
	}

	ddbClient, err := dynamodb.NewClient(ctx, region, tableName)
	if err != nil {
		logger.Error(ctx, "failed to initialize dynamodb client", "error", err)
		os.Exit(1)
	}
	store, err := storage.FromEnv(ctx)
	if err != nil {
		logger.Error(ctx, "failed to initialize storage backend", "error", err)
		os.Exit(1)
	}
	tokens, err := auth.NewTokenManager(jwtSecret)
	if err != nil {
		logger.Error(ctx, "failed to initialize token manager", "error", err)
		os.Exit(1)
	}

	appSvc := application.NewApplicationService(dynamodb.NewApplicationRepository(ddbClient), store, logger)
	adminSvc := application.NewAdminService(dynamodb.NewAdminRepository(ddbClient), tokens, logger)

	mw := httpiface.Middleware{
		Auth:          adaptermiddleware.RequireAuth(tokens),
		RequestLogger: adaptermiddleware.RequestLogger(logger),
	}
	e := httpiface.NewRouter(
		httpiface.NewApplicationsHandler(appSvc),
		httpiface.NewAdminHandler(adminSvc),
		mw,
	)
	awslambda.Start(lambdaplatform.NewLambdaHandler(e))
}
