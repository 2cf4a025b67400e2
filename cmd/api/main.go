package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/auth"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/database"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/handlers"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	ctx := context.Background()

	clients, err := awsclients.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("[api] init aws clients: %v", err)
	}

	settings, err := database.LoadSettings(ctx, clients.SSM)
	if err != nil {
		log.Fatalf("[api] load database settings: %v", err)
	}
	db, err := database.Open(ctx, settings)
	if err != nil {
		log.Fatalf("[api] open database: %v", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("[api] ensure schema: %v", err)
	}

	var tokenTTL time.Duration
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		tokenTTL, err = time.ParseDuration(v)
		if err != nil {
			log.Fatalf("[api] parse TOKEN_TTL: %v", err)
		}
	}

	tokensTable := envOr("TOKENS_TABLE", "tokens")
	cfg := handlers.HandlerConfig{
		Gate:          auth.NewGate(clients.DynamoDB, tokensTable),
		Issuer:        auth.NewIssuer(clients.DynamoDB, tokensTable, tokenTTL),
		Store:         database.NewStore(db),
		OrderQueue:    queue.NewSQSQueue(clients.SQS, os.Getenv("ORDER_QUEUE_URL")),
		PaymentQueue:  queue.NewSQSQueue(clients.SQS, os.Getenv("PAYMENT_QUEUE_URL")),
		S3Client:      clients.S3,
		PaymentBucket: envOr("PAYMENT_BUCKET", "lks-ilmi-payment-bucket"),
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("[api] running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("[api] local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
