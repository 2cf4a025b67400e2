package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/database"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/validation"
)

func createTicketHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CreateTicketRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		ticket := database.Ticket{
			ID:      uuid.NewString(),
			EventID: req.EventID,
			OrderID: req.OrderID,
			Seat:    req.Seat,
		}
		if err := cfg.Store.CreateTicket(c.Request.Context(), ticket); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": ticket.ID})
	}
}

func deleteTicketHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := cfg.Store.DeleteTicket(c.Request.Context(), c.Param("id"))
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket_not_found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	}
}
