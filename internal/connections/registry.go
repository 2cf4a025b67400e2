// Package connections tracks live push-transport connections in the
// wsConnection table. Registry membership is the source of truth for who
// is reachable; the fan-out reconciles staleness by pruning connections
// whose deliveries fail.
package connections

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

// Connection is the item stored per live connection, keyed by connectionId.
type Connection struct {
	ConnectionID string    `dynamodbav:"connectionId"`
	DeviceID     string    `dynamodbav:"deviceId,omitempty"`
	ConnectedAt  time.Time `dynamodbav:"connectedAt"`
}

// Registry owns the connection records. Register and Unregister are atomic
// per key; a concurrent broadcast may observe membership changing
// mid-iteration, which is acceptable for best-effort delivery.
type Registry struct {
	client    awsclients.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewRegistry returns a registry bound to the wsConnection table.
func NewRegistry(client awsclients.DynamoDBAPI, tableName string) *Registry {
	return &Registry{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Register records a connection. Re-registering an id overwrites it, which
// covers reconnects reusing an id after a missed disconnect.
func (r *Registry) Register(ctx context.Context, connectionID, deviceID string) error {
	item, err := attributevalue.MarshalMap(Connection{
		ConnectionID: connectionID,
		DeviceID:     deviceID,
		ConnectedAt:  r.nowFunc(),
	})
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put connection: %w", err)
	}
	return nil
}

// Unregister removes a connection. Deleting an absent id is not an error.
func (r *Registry) Unregister(ctx context.Context, connectionID string) error {
	_, err := r.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &r.tableName,
		Key: map[string]types.AttributeValue{
			"connectionId": &types.AttributeValueMemberS{Value: connectionID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// Exists reports whether a connection id is currently registered.
func (r *Registry) Exists(ctx context.Context, connectionID string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &r.tableName,
		Key: map[string]types.AttributeValue{
			"connectionId": &types.AttributeValueMemberS{Value: connectionID},
		},
	})
	if err != nil {
		return false, fmt.Errorf("get connection: %w", err)
	}
	return len(out.Item) > 0, nil
}

// ConnectionIDs returns a snapshot of registered connection ids, the
// broadcast target set.
func (r *Registry) ConnectionIDs(ctx context.Context) ([]string, error) {
	projection := "connectionId"
	var ids []string
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dyn.ScanInput{
			TableName:            &r.tableName,
			ProjectionExpression: &projection,
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan connections: %w", err)
		}
		for _, item := range out.Items {
			var c Connection
			if err := attributevalue.UnmarshalMap(item, &c); err != nil {
				return nil, fmt.Errorf("unmarshal connection: %w", err)
			}
			ids = append(ids, c.ConnectionID)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return ids, nil
}
