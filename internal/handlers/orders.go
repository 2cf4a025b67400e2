package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/fingerprint"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/orderflow"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/queue"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/validation"
)

// createOrderHandler admits an order onto the order queue. The caller gets
// 202 at enqueue time; everything downstream is asynchronous.
func createOrderHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		// fingerprint over the canonical request content, so identical
		// resubmissions inside the dedup window collapse
		canonical, err := json.Marshal(req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "canonicalize_failed"})
			return
		}
		fp := fingerprint.Order(canonical)

		var quantity int
		for _, it := range req.Items {
			quantity += it.Quantity
		}

		event := orderflow.OrderEvent{
			OrderID:      req.OrderID,
			CustomerID:   req.CustomerID,
			EventID:      req.EventID,
			Quantity:     quantity,
			Amount:       req.Amount,
			ConnectionID: req.ConnectionID,
			Fingerprint:  fp,
			EnqueuedAt:   time.Now().UTC(),
		}
		body, err := json.Marshal(event)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "marshal_failed"})
			return
		}

		err = cfg.OrderQueue.Enqueue(ctx, queue.Message{
			GroupID:     req.CustomerID,
			Fingerprint: fp,
			Body:        body,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed", "detail": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"orderId": req.OrderID, "status": "PENDING"})
	}
}

func listOrdersHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := cfg.Store.ListOrders(c.Request.Context(), c.Query("customerId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}
