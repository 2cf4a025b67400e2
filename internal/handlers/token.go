package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/validation"
)

func tokenHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.TokenRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		rec, err := cfg.Issuer.Issue(c.Request.Context(), req.DeviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "issue_failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"token":    rec.Token,
			"deviceId": rec.DeviceID,
		})
	}
}
