package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

// Issuer mints opaque tokens for a device. Issuance sits behind
// platform-level signed-request auth, not behind the gate itself.
type Issuer struct {
	client    awsclients.DynamoDBAPI
	tableName string
	ttl       time.Duration // zero = non-expiring tokens
	nowFunc   func() time.Time
	newToken  func() string
}

// NewIssuer returns an issuer writing to the tokens table.
func NewIssuer(client awsclients.DynamoDBAPI, tableName string, ttl time.Duration) *Issuer {
	return &Issuer{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		nowFunc:   time.Now,
		newToken:  uuid.NewString,
	}
}

// Issue creates and persists a fresh token for deviceID.
func (i *Issuer) Issue(ctx context.Context, deviceID string) (*TokenRecord, error) {
	now := i.nowFunc()
	rec := TokenRecord{
		Token:    i.newToken(),
		DeviceID: deviceID,
		IssuedAt: now,
	}
	if i.ttl > 0 {
		rec.ExpiresAt = now.Add(i.ttl).Unix()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal token record: %w", err)
	}
	if _, err := i.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &i.tableName,
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("put token record: %w", err)
	}
	return &rec, nil
}
