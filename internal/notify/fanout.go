// Package notify delivers push messages over the WebSocket management API.
// Delivery is best effort and intentionally non-durable: a dropped
// notification never re-queues and never rolls back the mutation that
// produced it.
package notify

import (
	"context"
	"errors"
	"log"

	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	mgmttypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/smithy-go"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

// registry is the slice of the connection registry the fan-out needs.
type registry interface {
	ConnectionIDs(ctx context.Context) ([]string, error)
	Unregister(ctx context.Context, connectionID string) error
}

// BroadcastReport summarizes a broadcast. Per-connection failures never
// surface as an error from the broadcast itself.
type BroadcastReport struct {
	Attempted int
	Delivered int
	Pruned    int
}

// Fanout sends to one or all registered connections, pruning connections
// it discovers to be gone.
type Fanout struct {
	client   awsclients.ManagementAPI
	registry registry
}

// NewFanout returns a fan-out over the given management client and registry.
func NewFanout(client awsclients.ManagementAPI, reg registry) *Fanout {
	return &Fanout{client: client, registry: reg}
}

// Unicast sends data to a single connection. A gone peer is pruned from
// the registry and reported as ErrConnectionGone; the caller decides
// whether that matters (workers treat every delivery failure as non-fatal).
var ErrConnectionGone = errors.New("connection gone")

func (f *Fanout) Unicast(ctx context.Context, connectionID string, data []byte) error {
	_, err := f.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: &connectionID,
		Data:         data,
	})
	if err == nil {
		return nil
	}
	if isGone(err) {
		// self-healing removal: the registry record outlived the transport
		if uerr := f.registry.Unregister(ctx, connectionID); uerr != nil {
			log.Printf("[notify] prune %s failed: %v", connectionID, uerr)
		}
		return ErrConnectionGone
	}
	return err
}

// Broadcast sends data to every connection in the current registry
// snapshot. Each send is independent; one dead connection never aborts
// delivery to the rest.
func (f *Fanout) Broadcast(ctx context.Context, data []byte) BroadcastReport {
	var report BroadcastReport

	ids, err := f.registry.ConnectionIDs(ctx)
	if err != nil {
		log.Printf("[notify] broadcast snapshot failed: %v", err)
		return report
	}

	for _, id := range ids {
		report.Attempted++
		err := f.Unicast(ctx, id, data)
		switch {
		case err == nil:
			report.Delivered++
		case errors.Is(err, ErrConnectionGone):
			report.Pruned++
		default:
			log.Printf("[notify] send to %s failed: %v", id, err)
		}
	}
	return report
}

func isGone(err error) bool {
	var gone *mgmttypes.GoneException
	if errors.As(err, &gone) {
		return true
	}
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "GoneException"
}
