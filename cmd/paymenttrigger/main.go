package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/payment"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
)

func main() {
	ctx := context.Background()

	clients, err := awsclients.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("[paymenttrigger] init aws clients: %v", err)
	}

	q := queue.NewSQSQueue(clients.SQS, os.Getenv("PAYMENT_QUEUE_URL"))
	trigger := payment.NewTrigger(q)

	// If RUN_LOCAL=true, simulate a single object-created event.
	if os.Getenv("RUN_LOCAL") == "true" {
		key := os.Getenv("LOCAL_OBJECT_KEY")
		if key == "" {
			key = payment.ProofPrefix + "local-order-1.png"
		}
		ev := events.S3Event{
			Records: []events.S3EventRecord{
				{
					EventName: "ObjectCreated:Put",
					S3: events.S3Entity{
						Bucket: events.S3Bucket{Name: os.Getenv("PAYMENT_BUCKET")},
						Object: events.S3Object{Key: key, ETag: os.Getenv("LOCAL_ETAG")},
					},
				},
			},
		}
		if err := trigger.HandleS3(ctx, ev); err != nil {
			log.Fatalf("[paymenttrigger] local handler error: %v", err)
		}
		return
	}

	lambda.Start(trigger.HandleS3)
}
