// Package handlers is the REST ingress: every mutating route passes the
// identity gate, order submissions become queue events, and payment-proof
// uploads pass through to object storage.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/auth"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/database"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/validation"
)

// DomainStore is the slice of the Postgres store the REST routes use.
type DomainStore interface {
	CreateEvent(ctx context.Context, e database.Event) error
	GetEvent(ctx context.Context, id string) (*database.Event, error)
	ListEvents(ctx context.Context) ([]database.Event, error)
	UpdateEvent(ctx context.Context, e database.Event) error
	DeleteEvent(ctx context.Context, id string) error
	CreateTicket(ctx context.Context, t database.Ticket) error
	DeleteTicket(ctx context.Context, id string) error
	ListOrders(ctx context.Context, customerID string) ([]database.Order, error)
}

// HandlerConfig groups dependencies for the REST routes.
type HandlerConfig struct {
	Gate          *auth.Gate
	Issuer        *auth.Issuer
	Store         DomainStore
	OrderQueue    queue.Queue
	PaymentQueue  queue.Queue
	S3Client      awsclients.S3API
	PaymentBucket string
}

// RegisterRoutes mounts the API. Token issuance sits outside the gate
// (platform-level signed-request auth in production); everything else
// requires Authorization + Deviceid.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/token", tokenHandler(cfg, v))

	gated := r.Group("/", GateMiddleware(cfg.Gate))
	gated.POST("/order", createOrderHandler(cfg, v))
	gated.GET("/order", listOrdersHandler(cfg))
	gated.POST("/event", createEventHandler(cfg, v))
	gated.GET("/event", listEventsHandler(cfg))
	gated.GET("/event/:id", getEventHandler(cfg))
	gated.PUT("/event/:id", updateEventHandler(cfg, v))
	gated.DELETE("/event/:id", deleteEventHandler(cfg))
	gated.POST("/ticket", createTicketHandler(cfg, v))
	gated.DELETE("/ticket/:id", deleteTicketHandler(cfg))
	gated.PUT("/payment/:filename", uploadPaymentHandler(cfg))
}
