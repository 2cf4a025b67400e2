package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/connections"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/notify"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/wsapi"
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
		log.Fatalf("[websocket] load aws config: %v", err)
	}
	clients, err := awsclients.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("[websocket] init aws clients: %v", err)
	}

	registry := connections.NewRegistry(clients.DynamoDB, envOr("WS_CONNECTION_TABLE", "wsConnection"))
	management := awsclients.NewManagementClient(cfg, os.Getenv("WEBSOCKET_CALLBACK_URL"))
	handler := wsapi.NewHandler(registry, notify.NewFanout(management, registry))

	// If RUN_LOCAL=true, simulate a single $connect event.
	if os.Getenv("RUN_LOCAL") == "true" {
		req := events.APIGatewayWebsocketProxyRequest{
			QueryStringParameters: map[string]string{"deviceId": envOr("LOCAL_DEVICE_ID", "local-device")},
			RequestContext: events.APIGatewayWebsocketProxyRequestContext{
				ConnectionID: "local-conn-1",
				RouteKey:     wsapi.RouteConnect,
			},
		}
		resp, err := handler.Handle(ctx, req)
		if err != nil {
			log.Fatalf("[websocket] local handler error: %v", err)
		}
		log.Printf("[websocket] local response status: %d", resp.StatusCode)
		return
	}

	lambda.Start(handler.Handle)
}
