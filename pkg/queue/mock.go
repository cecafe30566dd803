package queue

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

const (
	mockURLPrefix         = "https://sqs.mock.local/000000000000/"
	mockDedupWindow       = 5 * time.Minute
	mockDefaultVisibility = 30 * time.Second
	mockPollInterval      = 10 * time.Millisecond
)

type mockMessage struct {
	id           string
	body         string
	group        string
	receipt      string
	invisibleTil time.Time
}

type mockQueue struct {
	name       string
	attributes map[string]string
	messages   []*mockMessage
	dedup      map[[32]byte]mockDedupEntry
}

type mockDedupEntry struct {
	messageID string
	sentAt    time.Time
}

// MockSQS implements SQSAPI in memory for testing. Queues keep FIFO order per
// message group, hide in-flight messages until their visibility expires, and
// apply content-based deduplication when the queue enables it.
type MockSQS struct {
	mu     sync.Mutex
	queues map[string]*mockQueue
	calls  map[string]int

	CreateErr  error
	SendErr    error
	ReceiveErr error
	DeleteErr  error
}

func NewMockSQS() *MockSQS {
	return &MockSQS{
		queues: make(map[string]*mockQueue),
		calls:  make(map[string]int),
	}
}

// Calls returns how many times op was invoked
func (m *MockSQS) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Depth returns the number of messages stored in a queue, in flight or not
func (m *MockSQS) Depth(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[name]; ok {
		return len(q.messages)
	}
	return 0
}

// Attributes returns the attributes a queue was created with
func (m *MockSQS) Attributes(name string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		return nil
	}
	attrs := make(map[string]string, len(q.attributes))
	for k, v := range q.attributes {
		attrs[k] = v
	}
	return attrs
}

func (m *MockSQS) queueByURL(url string) (*mockQueue, error) {
	name := strings.TrimPrefix(url, mockURLPrefix)
	q, ok := m.queues[name]
	if !ok {
		return nil, fmt.Errorf("AWS.SimpleQueueService.NonExistentQueue: %s", url)
	}
	return q, nil
}

func (m *MockSQS) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["CreateQueue"]++

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	name := aws.ToString(params.QueueName)
	if existing, ok := m.queues[name]; ok {
		for k, v := range params.Attributes {
			if existing.attributes[k] != v {
				return nil, fmt.Errorf("QueueAlreadyExists: %s exists with different attribute %s", name, k)
			}
		}
	} else {
		if params.Attributes[string(sqstypes.QueueAttributeNameFifoQueue)] == "true" && !strings.HasSuffix(name, ".fifo") {
			return nil, fmt.Errorf("InvalidParameterValue: FIFO queue name must end with .fifo")
		}
		attrs := make(map[string]string, len(params.Attributes))
		for k, v := range params.Attributes {
			attrs[k] = v
		}
		m.queues[name] = &mockQueue{
			name:       name,
			attributes: attrs,
			dedup:      make(map[[32]byte]mockDedupEntry),
		}
	}
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(mockURLPrefix + name)}, nil
}

func (m *MockSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetQueueUrl"]++

	name := aws.ToString(params.QueueName)
	if _, ok := m.queues[name]; !ok {
		return nil, fmt.Errorf("AWS.SimpleQueueService.NonExistentQueue: %s", name)
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(mockURLPrefix + name)}, nil
}

func (m *MockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["SendMessage"]++

	if m.SendErr != nil {
		return nil, m.SendErr
	}
	q, err := m.queueByURL(aws.ToString(params.QueueUrl))
	if err != nil {
		return nil, err
	}

	group := aws.ToString(params.MessageGroupId)
	if q.attributes[string(sqstypes.QueueAttributeNameFifoQueue)] == "true" && group == "" {
		return nil, fmt.Errorf("MissingParameter: MessageGroupId is required for FIFO queues")
	}

	body := aws.ToString(params.MessageBody)
	now := time.Now()
	msg := &mockMessage{id: uuid.NewString(), body: body, group: group}

	if q.attributes[string(sqstypes.QueueAttributeNameContentBasedDeduplication)] == "true" {
		key := sha256.Sum256([]byte(body))
		if entry, seen := q.dedup[key]; seen && now.Sub(entry.sentAt) < mockDedupWindow {
			return &sqs.SendMessageOutput{MessageId: aws.String(entry.messageID)}, nil
		}
		q.dedup[key] = mockDedupEntry{messageID: msg.id, sentAt: now}
	}

	q.messages = append(q.messages, msg)
	return &sqs.SendMessageOutput{MessageId: aws.String(msg.id)}, nil
}

func (m *MockSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	deadline := time.Now().Add(time.Duration(params.WaitTimeSeconds) * time.Second)

	for {
		msgs, err := m.tryReceive(params)
		if err != nil || len(msgs) > 0 || !time.Now().Before(deadline) {
			return &sqs.ReceiveMessageOutput{Messages: msgs}, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mockPollInterval):
		}
	}
}

func (m *MockSQS) tryReceive(params *sqs.ReceiveMessageInput) ([]sqstypes.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ReceiveMessage"]++

	if m.ReceiveErr != nil {
		return nil, m.ReceiveErr
	}
	q, err := m.queueByURL(aws.ToString(params.QueueUrl))
	if err != nil {
		return nil, err
	}

	limit := int(params.MaxNumberOfMessages)
	if limit <= 0 {
		limit = 1
	}
	visibility := mockDefaultVisibility
	if params.VisibilityTimeout > 0 {
		visibility = time.Duration(params.VisibilityTimeout) * time.Second
	}

	now := time.Now()
	blocked := make(map[string]bool)
	var out []sqstypes.Message
	for _, msg := range q.messages {
		if len(out) == limit {
			break
		}
		// A group with a message in flight delivers nothing behind it
		if blocked[msg.group] {
			continue
		}
		if now.Before(msg.invisibleTil) {
			blocked[msg.group] = true
			continue
		}
		msg.receipt = uuid.NewString()
		msg.invisibleTil = now.Add(visibility)
		blocked[msg.group] = true
		out = append(out, sqstypes.Message{
			MessageId:     aws.String(msg.id),
			Body:          aws.String(msg.body),
			ReceiptHandle: aws.String(msg.receipt),
		})
	}
	return out, nil
}

func (m *MockSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["DeleteMessage"]++

	if m.DeleteErr != nil {
		return nil, m.DeleteErr
	}
	q, err := m.queueByURL(aws.ToString(params.QueueUrl))
	if err != nil {
		return nil, err
	}

	receipt := aws.ToString(params.ReceiptHandle)
	for i, msg := range q.messages {
		if msg.receipt != "" && msg.receipt == receipt {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return &sqs.DeleteMessageOutput{}, nil
		}
	}
	return nil, fmt.Errorf("ReceiptHandleIsInvalid: %s", receipt)
}
