package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/connections"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/database"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/metrics"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/notify"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/orderflow"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx := context.Background()

	cfg, err := awsclients.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatalf("[orderworker] load aws config: %v", err)
	}
	clients, err := awsclients.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("[orderworker] init aws clients: %v", err)
	}

	settings, err := database.LoadSettings(ctx, clients.SSM)
	if err != nil {
		log.Fatalf("[orderworker] load database settings: %v", err)
	}
	db, err := database.Open(ctx, settings)
	if err != nil {
		log.Fatalf("[orderworker] open database: %v", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("[orderworker] ensure schema: %v", err)
	}

	registry := connections.NewRegistry(clients.DynamoDB, envOr("WS_CONNECTION_TABLE", "wsConnection"))
	management := awsclients.NewManagementClient(cfg, os.Getenv("WEBSOCKET_CALLBACK_URL"))
	fanout := notify.NewFanout(management, registry)
	emitter := metrics.NewEmitter(clients.CloudWatch)

	worker := orderflow.NewWorker(database.NewStore(db), fanout, emitter)

	// If RUN_LOCAL=true, long-poll the queue directly instead of waiting
	// for the lambda event source.
	if os.Getenv("RUN_LOCAL") == "true" {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		q := queue.NewSQSQueue(clients.SQS, os.Getenv("ORDER_QUEUE_URL"))
		log.Printf("[orderworker] polling order queue")
		if err := worker.Run(ctx, q); err != nil && ctx.Err() == nil {
			log.Fatalf("[orderworker] run: %v", err)
		}
		return
	}

	lambda.Start(worker.Handle)
}
