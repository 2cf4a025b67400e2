// Package fingerprint derives the deduplication fingerprints used for
// every message admitted to the order and payment queues. Every producer
// of a queue must derive fingerprints through this package, or duplicate
// processing becomes possible.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Order fingerprints an order submission by its raw payload bytes, so two
// submissions with identical content collapse into one logical event.
func Order(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Payment fingerprints a payment proof by object key plus content digest.
// Re-uploading identical bytes to the same key yields the same fingerprint;
// different bytes at the same key yield a new one. Both the REST upload
// path and the object-storage trigger call this with the object's ETag.
func Payment(objectKey, contentDigest string) string {
	// S3 quotes ETags; normalize so both producers agree.
	digest := strings.Trim(contentDigest, `"`)
	h := sha256.New()
	h.Write([]byte("payment"))
	h.Write([]byte{0})
	h.Write([]byte(objectKey))
	h.Write([]byte{0})
	h.Write([]byte(digest))
	return hex.EncodeToString(h.Sum(nil))
}
