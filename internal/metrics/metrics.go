// Package metrics emits pipeline counters to CloudWatch. Emission is best
// effort: a metrics failure never fails the unit of work that produced it.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

const Namespace = "LKS/Pipeline"

// Metric names published by the pipeline.
const (
	OrdersProcessed     = "OrdersProcessed"
	OrderConflicts      = "OrderConflicts"
	PaymentsProcessed   = "PaymentsProcessed"
	NotificationsPruned = "NotificationsPruned"
	ValidationFailures  = "ValidationFailures"
)

// Emitter publishes custom metrics. A nil *Emitter is valid and no-ops,
// so tests and local runs can skip CloudWatch entirely.
type Emitter struct {
	client    awsclients.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewEmitter returns an emitter for the pipeline namespace.
func NewEmitter(client awsclients.CloudWatchAPI) *Emitter {
	return &Emitter{
		client:    client,
		namespace: Namespace,
		nowFunc:   time.Now,
	}
}

// Count adds n to the named counter.
func (e *Emitter) Count(ctx context.Context, name string, n float64) {
	if e == nil {
		return
	}
	now := e.nowFunc()
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &e.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      &n,
			},
		},
	})
	if err != nil {
		log.Printf("[metrics] put %s failed: %v", name, err)
	}
}
