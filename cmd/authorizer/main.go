package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/auth"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// header does a case-insensitive lookup; API Gateway forwards request
// headers with their original casing.
func header(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func policy(principalID, effect, resource string) events.APIGatewayCustomAuthorizerResponse {
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID: principalID,
		PolicyDocument: events.APIGatewayCustomAuthorizerPolicy{
			Version: "2012-10-17",
			Statement: []events.IAMPolicyStatement{
				{
					Action:   []string{"execute-api:Invoke"},
					Effect:   effect,
					Resource: []string{resource},
				},
			},
		},
	}
}

func newHandler(gate *auth.Gate) func(ctx context.Context, req events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	return func(ctx context.Context, req events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
		token := header(req.Headers, "Authorization")
		deviceID := header(req.Headers, "Deviceid")

		principal, err := gate.Authorize(ctx, token, deviceID)
		if errors.Is(err, auth.ErrDenied) {
			return policy("anonymous", "Deny", req.MethodArn), nil
		}
		if err != nil {
			return events.APIGatewayCustomAuthorizerResponse{}, err
		}

		resp := policy(principal.DeviceID, "Allow", req.MethodArn)
		resp.Context = map[string]interface{}{
			"deviceId": principal.DeviceID,
		}
		return resp, nil
	}
}

func main() {
	ctx := context.Background()

	clients, err := awsclients.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("[authorizer] init aws clients: %v", err)
	}
	gate := auth.NewGate(clients.DynamoDB, envOr("TOKENS_TABLE", "tokens"))
	handler := newHandler(gate)

	// If RUN_LOCAL=true, simulate a single authorization request.
	if os.Getenv("RUN_LOCAL") == "true" {
		req := events.APIGatewayCustomAuthorizerRequestTypeRequest{
			MethodArn: "arn:aws:execute-api:local/*/POST/order",
			Headers: map[string]string{
				"Authorization": os.Getenv("LOCAL_TOKEN"),
				"Deviceid":      os.Getenv("LOCAL_DEVICE_ID"),
			},
		}
		resp, err := handler(ctx, req)
		if err != nil {
			log.Fatalf("[authorizer] local handler error: %v", err)
		}
		log.Printf("[authorizer] local decision: %s", resp.PolicyDocument.Statement[0].Effect)
		return
	}

	lambda.Start(handler)
}
