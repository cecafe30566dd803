package queue

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cuemby/colony/pkg/log"
	"github.com/cuemby/colony/pkg/metrics"
	"github.com/cuemby/colony/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultWait is the long-poll window used by Receive
	DefaultWait = 10 * time.Second

	// MaxWait is the longest long-poll the queue service accepts
	MaxWait = 20 * time.Second
)

// SQSAPI is the subset of the SQS client the coordinator calls.
// *sqs.Client satisfies it.
type SQSAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Config holds coordinator configuration
type Config struct {
	Topology          []types.QueueDescriptor // Defaults to types.DefaultTopology()
	Wait              time.Duration           // Default long-poll window, defaults to DefaultWait
	VisibilityTimeout time.Duration           // In-flight window for Fetch, 0 uses the queue default
}

// Coordinator sends to and receives from the ordered channels of the topology
type Coordinator struct {
	client     SQSAPI
	channels   map[types.Direction]types.QueueDescriptor
	wait       time.Duration
	visibility time.Duration
	logger     zerolog.Logger

	mu   sync.RWMutex
	urls map[types.Direction]string
}

// NewCoordinator creates a coordinator bound to a fixed topology
func NewCoordinator(client SQSAPI, cfg Config) (*Coordinator, error) {
	topology := cfg.Topology
	if len(topology) == 0 {
		topology = types.DefaultTopology()
	}

	channels := make(map[types.Direction]types.QueueDescriptor, len(topology))
	for _, desc := range topology {
		if _, err := types.ParseDirection(string(desc.Direction)); err != nil {
			return nil, err
		}
		if desc.Name == "" || desc.GroupID == "" {
			return nil, fmt.Errorf("channel %s needs a queue name and group id", desc.Direction)
		}
		if _, dup := channels[desc.Direction]; dup {
			return nil, fmt.Errorf("channel %s defined twice", desc.Direction)
		}
		channels[desc.Direction] = desc
	}

	wait := cfg.Wait
	if wait <= 0 {
		wait = DefaultWait
	}

	return &Coordinator{
		client:     client,
		channels:   channels,
		wait:       wait,
		visibility: cfg.VisibilityTimeout,
		logger:     log.WithComponent("queue"),
		urls:       make(map[types.Direction]string),
	}, nil
}

// Descriptor returns the channel bound to a direction
func (c *Coordinator) Descriptor(dir types.Direction) (types.QueueDescriptor, error) {
	desc, ok := c.channels[dir]
	if !ok {
		return types.QueueDescriptor{}, types.Errorf(types.ErrQueueTransport, "resolve "+string(dir), "no channel for direction %q", dir)
	}
	return desc, nil
}

// CreateChannel ensures the ordered, deduplicated channel for dir exists.
// Creating an existing channel with the same attributes is a no-op.
func (c *Coordinator) CreateChannel(ctx context.Context, dir types.Direction) error {
	desc, err := c.Descriptor(dir)
	if err != nil {
		return err
	}

	out, err := c.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(desc.Name),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameFifoQueue):                 "true",
			string(sqstypes.QueueAttributeNameContentBasedDeduplication): "true",
		},
	})
	if err != nil {
		metrics.QueueErrorsTotal.WithLabelValues(string(dir), string(types.ErrQueueTransport)).Inc()
		return types.NewError(types.ErrQueueTransport, "create "+desc.Name, err)
	}

	if url := aws.ToString(out.QueueUrl); url != "" {
		c.mu.Lock()
		c.urls[dir] = url
		c.mu.Unlock()
	}

	c.logger.Debug().Str("direction", string(dir)).Str("queue", desc.Name).Msg("Channel ready")
	return nil
}

// CreateAll ensures every channel of the topology exists
func (c *Coordinator) CreateAll(ctx context.Context) error {
	for _, dir := range types.Directions {
		if _, ok := c.channels[dir]; !ok {
			continue
		}
		if err := c.CreateChannel(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// resolve returns the channel's address, asking the service once per direction
func (c *Coordinator) resolve(ctx context.Context, desc types.QueueDescriptor) (string, error) {
	c.mu.RLock()
	url, ok := c.urls[desc.Direction]
	c.mu.RUnlock()
	if ok {
		return url, nil
	}

	out, err := c.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(desc.Name),
	})
	if err != nil {
		return "", types.NewError(types.ErrQueueTransport, "resolve "+desc.Name, err)
	}

	url = aws.ToString(out.QueueUrl)
	c.mu.Lock()
	c.urls[desc.Direction] = url
	c.mu.Unlock()
	return url, nil
}

// Send submits body on dir's channel tagged with the direction's group id.
// Messages sent in one direction are delivered in send order.
func (c *Coordinator) Send(ctx context.Context, dir types.Direction, body string) (string, error) {
	desc, err := c.Descriptor(dir)
	if err != nil {
		return "", err
	}
	logger := log.WithQueue(dir, desc.Name)

	url, err := c.resolve(ctx, desc)
	if err != nil {
		metrics.QueueErrorsTotal.WithLabelValues(string(dir), string(types.ErrQueueTransport)).Inc()
		return "", err
	}

	out, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:       aws.String(url),
		MessageBody:    aws.String(body),
		MessageGroupId: aws.String(desc.GroupID),
	})
	if err != nil {
		metrics.QueueErrorsTotal.WithLabelValues(string(dir), string(types.ErrQueueTransport)).Inc()
		return "", types.NewError(types.ErrQueueTransport, "send "+desc.Name, err)
	}

	metrics.MessagesSentTotal.WithLabelValues(string(dir)).Inc()
	messageID := aws.ToString(out.MessageId)
	logger.Debug().Str("message_id", messageID).Int("bytes", len(body)).Msg("Message sent")
	return messageID, nil
}

// Receive is ReceiveOne with the configured default wait
func (c *Coordinator) Receive(ctx context.Context, dir types.Direction) (*types.Message, error) {
	return c.ReceiveOne(ctx, dir, c.wait)
}

// ReceiveOne long-polls dir's channel for up to wait and returns at most one
// message, or nil when the wait elapses with nothing delivered.
//
// The message is deleted before it is returned. If the caller crashes before
// processing it, the message is lost rather than redelivered; use Fetch and
// Ack when processing must survive crashes. A failed delete is logged and the
// message is still returned, so it may be delivered again later.
func (c *Coordinator) ReceiveOne(ctx context.Context, dir types.Direction, wait time.Duration) (*types.Message, error) {
	msg, url, err := c.fetch(ctx, dir, wait, 0)
	if err != nil || msg == nil {
		return nil, err
	}

	if err := c.deleteMessage(ctx, url, msg); err != nil {
		c.logger.Error().Err(err).
			Str("direction", string(dir)).
			Str("kind", string(types.ErrAcknowledgment)).
			Str("message_id", msg.ID).
			Msg("Failed to acknowledge received message, it may be redelivered")
	}
	return msg, nil
}

// Fetch long-polls like ReceiveOne but leaves the message in flight for the
// visibility timeout. It must be acknowledged with Ack once processed,
// otherwise it becomes visible again and is redelivered.
func (c *Coordinator) Fetch(ctx context.Context, dir types.Direction, wait time.Duration) (*types.Message, error) {
	msg, _, err := c.fetch(ctx, dir, wait, c.visibility)
	return msg, err
}

// Ack deletes a message obtained from Fetch
func (c *Coordinator) Ack(ctx context.Context, msg *types.Message) error {
	desc, err := c.Descriptor(msg.Direction)
	if err != nil {
		return err
	}
	url, err := c.resolve(ctx, desc)
	if err != nil {
		return err
	}
	return c.deleteMessage(ctx, url, msg)
}

func (c *Coordinator) fetch(ctx context.Context, dir types.Direction, wait, visibility time.Duration) (*types.Message, string, error) {
	desc, err := c.Descriptor(dir)
	if err != nil {
		return nil, "", err
	}

	url, err := c.resolve(ctx, desc)
	if err != nil {
		metrics.QueueErrorsTotal.WithLabelValues(string(dir), string(types.ErrQueueTransport)).Inc()
		return nil, "", err
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     waitSeconds(wait),
	}
	if visibility > 0 {
		input.VisibilityTimeout = int32(math.Ceil(visibility.Seconds()))
	}

	out, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		metrics.QueueErrorsTotal.WithLabelValues(string(dir), string(types.ErrQueueTransport)).Inc()
		return nil, "", types.NewError(types.ErrQueueTransport, "receive "+desc.Name, err)
	}
	if len(out.Messages) == 0 {
		return nil, url, nil
	}

	raw := out.Messages[0]
	msg := &types.Message{
		ID:            aws.ToString(raw.MessageId),
		Body:          aws.ToString(raw.Body),
		ReceiptHandle: aws.ToString(raw.ReceiptHandle),
		Direction:     dir,
		ReceivedAt:    time.Now(),
	}

	metrics.MessagesReceivedTotal.WithLabelValues(string(dir)).Inc()
	c.logger.Debug().
		Str("direction", string(dir)).
		Str("queue", desc.Name).
		Str("message_id", msg.ID).
		Msg("Message received")
	return msg, url, nil
}

func (c *Coordinator) deleteMessage(ctx context.Context, url string, msg *types.Message) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		metrics.QueueErrorsTotal.WithLabelValues(string(msg.Direction), string(types.ErrAcknowledgment)).Inc()
		return types.NewError(types.ErrAcknowledgment, "delete "+msg.ID, err)
	}
	return nil
}

// waitSeconds converts a wait window to whole seconds within the service limits
func waitSeconds(wait time.Duration) int32 {
	if wait <= 0 {
		return 0
	}
	if wait > MaxWait {
		wait = MaxWait
	}
	return int32(math.Ceil(wait.Seconds()))
}
