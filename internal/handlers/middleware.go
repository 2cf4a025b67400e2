package handlers

import (
	"net/http"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/auth"
)

const principalKey = "principal"

// GateMiddleware runs every request through the identity gate. When the
// request arrived through the lambda authorizer, the gateway already ran
// the gate; the authorizer context carries the decision and the lookup is
// skipped. Otherwise (RUN_LOCAL) the gate performs a fresh lookup per
// call, so revocation takes effect on the next request.
func GateMiddleware(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiCtx, ok := core.GetAPIGatewayContextFromContext(c.Request.Context()); ok {
			if deviceID, _ := apiCtx.Authorizer["deviceId"].(string); deviceID != "" {
				c.Set(principalKey, &auth.Principal{DeviceID: deviceID})
				c.Next()
				return
			}
		}

		token := c.GetHeader("Authorization")
		deviceID := c.GetHeader("Deviceid")

		principal, err := gate.Authorize(c.Request.Context(), token, deviceID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}
