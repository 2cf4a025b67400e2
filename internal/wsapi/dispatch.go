// Package wsapi handles inbound WebSocket routes: lifecycle routes keep
// the connection registry current, named actions map to explicit handlers,
// and a default route answers anything unrecognized.
package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/connections"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/notify"
)

const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteDefault    = "$default"

	ActionSendMessage      = "sendMessage"
	ActionGetConnectionID  = "getConnectionId"
	ActionBroadcastMessage = "broadcastMessage"
)

// inboundMessage is the body of a routed WebSocket frame. Action selects
// the handler; the remaining fields are per-action.
type inboundMessage struct {
	Action       string          `json:"action"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
}

type actionFunc func(ctx context.Context, callerID string, msg inboundMessage) error

// Handler dispatches WebSocket routes for the push transport.
type Handler struct {
	registry *connections.Registry
	fanout   *notify.Fanout
	actions  map[string]actionFunc
}

// NewHandler wires the action table.
func NewHandler(registry *connections.Registry, fanout *notify.Fanout) *Handler {
	h := &Handler{
		registry: registry,
		fanout:   fanout,
	}
	h.actions = map[string]actionFunc{
		ActionSendMessage:      h.sendMessage,
		ActionGetConnectionID:  h.getConnectionID,
		ActionBroadcastMessage: h.broadcastMessage,
	}
	return h
}

// Handle processes one WebSocket event.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connID := req.RequestContext.ConnectionID

	switch req.RequestContext.RouteKey {
	case RouteConnect:
		deviceID := req.QueryStringParameters["deviceId"]
		if err := h.registry.Register(ctx, connID, deviceID); err != nil {
			log.Printf("[websocket] register %s: %v", connID, err)
			return response(http.StatusInternalServerError), err
		}
		return response(http.StatusOK), nil

	case RouteDisconnect:
		if err := h.registry.Unregister(ctx, connID); err != nil {
			log.Printf("[websocket] unregister %s: %v", connID, err)
			return response(http.StatusInternalServerError), err
		}
		return response(http.StatusOK), nil
	}

	var msg inboundMessage
	if err := json.Unmarshal([]byte(req.Body), &msg); err != nil {
		h.replyError(ctx, connID, "invalid message body")
		return response(http.StatusBadRequest), nil
	}

	action, ok := h.actions[msg.Action]
	if !ok {
		// default-route fallback
		h.replyError(ctx, connID, fmt.Sprintf("unknown action %q", msg.Action))
		return response(http.StatusOK), nil
	}
	if err := action(ctx, connID, msg); err != nil {
		log.Printf("[websocket] action %s from %s: %v", msg.Action, connID, err)
		return response(http.StatusInternalServerError), err
	}
	return response(http.StatusOK), nil
}

func (h *Handler) sendMessage(ctx context.Context, callerID string, msg inboundMessage) error {
	if msg.ConnectionID == "" {
		h.replyError(ctx, callerID, "sendMessage requires connectionId")
		return nil
	}
	known, err := h.registry.Exists(ctx, msg.ConnectionID)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", msg.ConnectionID, err)
	}
	if !known {
		h.replyError(ctx, callerID, fmt.Sprintf("unknown connectionId %q", msg.ConnectionID))
		return nil
	}
	// delivery failures are best effort, including to the caller's target
	if err := h.fanout.Unicast(ctx, msg.ConnectionID, msg.Message); err != nil {
		h.replyError(ctx, callerID, fmt.Sprintf("delivery to %s failed", msg.ConnectionID))
	}
	return nil
}

func (h *Handler) getConnectionID(ctx context.Context, callerID string, _ inboundMessage) error {
	body, _ := json.Marshal(map[string]string{"connectionId": callerID})
	_ = h.fanout.Unicast(ctx, callerID, body)
	return nil
}

func (h *Handler) broadcastMessage(ctx context.Context, callerID string, msg inboundMessage) error {
	report := h.fanout.Broadcast(ctx, msg.Message)
	log.Printf("[websocket] broadcast from %s: attempted=%d delivered=%d pruned=%d",
		callerID, report.Attempted, report.Delivered, report.Pruned)
	return nil
}

func (h *Handler) replyError(ctx context.Context, connID, message string) {
	body, _ := json.Marshal(map[string]string{"error": message})
	_ = h.fanout.Unicast(ctx, connID, body)
}

func response(status int) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status}
}
