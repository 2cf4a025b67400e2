package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

// SQSQueue backs the Queue contract with an SQS FIFO queue. Ordering comes
// from the message group, dedup from the deduplication id, and the
// dead-letter move from the queue's broker-side redrive policy
// (maxReceiveCount 3 onto the .fifo DLQ sibling).
type SQSQueue struct {
	client   awsclients.SQSAPI
	queueURL string
}

// NewSQSQueue returns a queue bound to queueURL.
func NewSQSQueue(client awsclients.SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
	}
}

func (q *SQSQueue) Enqueue(ctx context.Context, msg Message) error {
	body := string(msg.Body)
	input := &sqs.SendMessageInput{
		QueueUrl:               &q.queueURL,
		MessageBody:            &body,
		MessageGroupId:         &msg.GroupID,
		MessageDeduplicationId: &msg.Fingerprint,
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     10,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqstypes.MessageSystemAttributeNameMessageGroupId,
			sqstypes.MessageSystemAttributeNameMessageDeduplicationId,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	receiveCount, _ := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	d := &Delivery{
		Message: Message{
			GroupID:     m.Attributes[string(sqstypes.MessageSystemAttributeNameMessageGroupId)],
			Fingerprint: m.Attributes[string(sqstypes.MessageSystemAttributeNameMessageDeduplicationId)],
			Body:        []byte(derefString(m.Body)),
		},
		ReceiveCount: receiveCount,
		receipt:      derefString(m.ReceiptHandle),
	}
	return d, nil
}

func (q *SQSQueue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &d.receipt,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Nack zeroes the visibility timeout so the message is redelivered
// immediately instead of waiting out the lease.
func (q *SQSQueue) Nack(ctx context.Context, d *Delivery) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &q.queueURL,
		ReceiptHandle:     &d.receipt,
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("change message visibility: %w", err)
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
