// Package auth is the identity gate every mutating request passes through.
// There is deliberately no caching layer in front of the tokens table:
// revoking a device must take effect on the next call.
package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

// ErrDenied is returned for every rejection: missing credentials, unknown
// token, device mismatch, expiry, or a failed lookup. Lookup failures deny
// rather than allow.
var ErrDenied = errors.New("authorization denied")

// TokenRecord is the shape persisted in the tokens table, keyed by
// token (PK) + deviceId (SK).
type TokenRecord struct {
	Token     string    `dynamodbav:"token"`
	DeviceID  string    `dynamodbav:"deviceId"`
	IssuedAt  time.Time `dynamodbav:"issued_at"`
	ExpiresAt int64     `dynamodbav:"expires_at,omitempty"` // epoch seconds; zero = non-expiring
}

// Principal identifies an authorized caller.
type Principal struct {
	Token    string
	DeviceID string
}

// Gate validates token + device pairs against the tokens table.
type Gate struct {
	client    awsclients.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewGate returns a gate bound to the tokens table.
func NewGate(client awsclients.DynamoDBAPI, tableName string) *Gate {
	return &Gate{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Authorize performs a fresh composite-key lookup and returns the principal
// on success. Every failure path returns ErrDenied.
func (g *Gate) Authorize(ctx context.Context, token, deviceID string) (*Principal, error) {
	if token == "" || deviceID == "" {
		return nil, ErrDenied
	}

	out, err := g.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &g.tableName,
		Key: map[string]types.AttributeValue{
			"token":    &types.AttributeValueMemberS{Value: token},
			"deviceId": &types.AttributeValueMemberS{Value: deviceID},
		},
	})
	if err != nil {
		// fail closed
		log.Printf("[auth] token lookup failed: %v", err)
		return nil, ErrDenied
	}
	if len(out.Item) == 0 {
		return nil, ErrDenied
	}

	var rec TokenRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		log.Printf("[auth] token record unmarshal failed: %v", err)
		return nil, ErrDenied
	}
	if rec.DeviceID != deviceID {
		return nil, ErrDenied
	}
	if rec.ExpiresAt != 0 && rec.ExpiresAt <= g.nowFunc().Unix() {
		return nil, ErrDenied
	}

	return &Principal{Token: rec.Token, DeviceID: rec.DeviceID}, nil
}
