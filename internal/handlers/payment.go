package handlers

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/fingerprint"
	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/payment"
)

// maxProofSize caps payment proof uploads at 8 MiB.
const maxProofSize = 8 << 20

// uploadPaymentHandler stores the proof under the payment prefix and admits
// the payment event itself, instead of waiting for the bucket trigger. Both
// producers derive the same fingerprint, so the event dedups either way.
func uploadPaymentHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		filename := c.Param("filename")

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProofSize+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read_body_failed"})
			return
		}
		if len(body) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_body"})
			return
		}
		if len(body) > maxProofSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "proof_too_large"})
			return
		}

		objectKey := payment.ProofPrefix + filename
		contentType := c.ContentType()
		putInput := &s3.PutObjectInput{
			Bucket: &cfg.PaymentBucket,
			Key:    &objectKey,
			Body:   bytes.NewReader(body),
		}
		if contentType != "" {
			putInput.ContentType = &contentType
		}
		out, err := cfg.S3Client.PutObject(ctx, putInput)
		if err != nil {
			log.Printf("[api] upload proof %s: %v", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
			return
		}

		var etag string
		if out.ETag != nil {
			etag = *out.ETag
		}
		event := payment.PaymentEvent{
			OrderID:        payment.OrderIDFromKey(objectKey),
			ProofObjectKey: objectKey,
			Fingerprint:    fingerprint.Payment(objectKey, etag),
			Source:         payment.SourceAPI,
			EnqueuedAt:     time.Now().UTC(),
		}
		msg, err := payment.NewMessage(event)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "marshal_failed"})
			return
		}
		if err := cfg.PaymentQueue.Enqueue(ctx, msg); err != nil {
			log.Printf("[api] enqueue payment for %s: %v", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"objectKey": objectKey,
			"orderId":   event.OrderID,
		})
	}
}
