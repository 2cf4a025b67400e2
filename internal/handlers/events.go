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

func createEventHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CreateEventRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		event := database.Event{
			ID:       uuid.NewString(),
			Name:     req.Name,
			Venue:    req.Venue,
			StartsAt: req.StartsAt,
			Capacity: req.Capacity,
			Price:    req.Price,
		}
		if err := cfg.Store.CreateEvent(c.Request.Context(), event); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": event.ID})
	}
}

func listEventsHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := cfg.Store.ListEvents(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

func getEventHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := cfg.Store.GetEvent(c.Request.Context(), c.Param("id"))
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event_not_found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed"})
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

func updateEventHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CreateEventRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		event := database.Event{
			ID:       c.Param("id"),
			Name:     req.Name,
			Venue:    req.Venue,
			StartsAt: req.StartsAt,
			Capacity: req.Capacity,
			Price:    req.Price,
		}
		err := cfg.Store.UpdateEvent(c.Request.Context(), event)
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event_not_found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": event.ID})
	}
}

func deleteEventHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := cfg.Store.DeleteEvent(c.Request.Context(), c.Param("id"))
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event_not_found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	}
}
