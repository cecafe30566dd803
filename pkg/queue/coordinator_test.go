package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cuemby/colony/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, client *MockSQS) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(client, Config{Wait: time.Second, VisibilityTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, coord.CreateAll(context.Background()))
	return coord
}

func TestNewCoordinatorValidatesTopology(t *testing.T) {
	client := NewMockSQS()

	_, err := NewCoordinator(client, Config{Topology: []types.QueueDescriptor{
		{Direction: "sideways", Name: "X.fifo", GroupID: "g"},
	}})
	assert.Error(t, err)

	_, err = NewCoordinator(client, Config{Topology: []types.QueueDescriptor{
		{Direction: types.DirectionLocalToManager, Name: "A.fifo", GroupID: "g"},
		{Direction: types.DirectionLocalToManager, Name: "B.fifo", GroupID: "g"},
	}})
	assert.Error(t, err)

	_, err = NewCoordinator(client, Config{Topology: []types.QueueDescriptor{
		{Direction: types.DirectionLocalToManager, Name: "A.fifo"},
	}})
	assert.Error(t, err)

	coord, err := NewCoordinator(client, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWait, coord.wait)
}

func TestCreateChannelIdempotent(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	require.NoError(t, coord.CreateChannel(ctx, types.DirectionManagerToWorkers))
	require.NoError(t, coord.CreateChannel(ctx, types.DirectionManagerToWorkers))

	attrs := client.Attributes("ManagerWorkersQueue.fifo")
	assert.Equal(t, "true", attrs[string(sqstypes.QueueAttributeNameFifoQueue)])
	assert.Equal(t, "true", attrs[string(sqstypes.QueueAttributeNameContentBasedDeduplication)])
	assert.Equal(t, 4+2, client.Calls("CreateQueue"))
}

func TestCreateChannelFailure(t *testing.T) {
	client := NewMockSQS()
	client.CreateErr = errors.New("AccessDenied")
	coord, err := NewCoordinator(client, Config{})
	require.NoError(t, err)

	err = coord.CreateAll(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrQueueTransport))
}

func TestSendReceiveRoundTrip(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	id, err := coord.Send(ctx, types.DirectionLocalToManager, "new task: input-1.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msg, err := coord.ReceiveOne(ctx, types.DirectionLocalToManager, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "new task: input-1.txt", msg.Body)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, types.DirectionLocalToManager, msg.Direction)

	// Acknowledged before return, so never delivered again
	assert.Zero(t, client.Depth("LocalManagerQueue.fifo"))
	again, err := coord.ReceiveOne(ctx, types.DirectionLocalToManager, 0)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestReceiveKeepsSendOrder(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	bodies := []string{"A", "B", "C", "D"}
	for _, body := range bodies {
		_, err := coord.Send(ctx, types.DirectionManagerToWorkers, body)
		require.NoError(t, err)
	}

	for _, want := range bodies {
		msg, err := coord.ReceiveOne(ctx, types.DirectionManagerToWorkers, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, want, msg.Body)
	}
}

func TestDirectionsAreIndependent(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	_, err := coord.Send(ctx, types.DirectionWorkersToManager, "result")
	require.NoError(t, err)

	msg, err := coord.ReceiveOne(ctx, types.DirectionManagerToLocal, 0)
	require.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = coord.ReceiveOne(ctx, types.DirectionWorkersToManager, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "result", msg.Body)
}

func TestReceiveEmptyWaitsForWindow(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)

	start := time.Now()
	msg, err := coord.ReceiveOne(context.Background(), types.DirectionManagerToLocal, time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond, "returned before the wait window")
	assert.Less(t, elapsed, 3*time.Second, "blocked well past the wait window")
}

func TestReceiveReturnsAvailableMessageImmediately(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	_, err := coord.Send(ctx, types.DirectionManagerToLocal, "done")
	require.NoError(t, err)

	start := time.Now()
	msg, err := coord.ReceiveOne(ctx, types.DirectionManagerToLocal, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReceiveDuringWaitDeliversLateMessage(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	go func() {
		time.Sleep(200 * time.Millisecond)
		_, _ = coord.Send(ctx, types.DirectionLocalToManager, "late")
	}()

	msg, err := coord.ReceiveOne(ctx, types.DirectionLocalToManager, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "late", msg.Body)
}

func TestSendFailureIsTransportError(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	client.SendErr = errors.New("ServiceUnavailable")

	_, err := coord.Send(context.Background(), types.DirectionManagerToLocal, "x")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrQueueTransport))
	assert.Equal(t, 1, client.Calls("SendMessage"), "no automatic retry")
}

func TestSendToMissingChannel(t *testing.T) {
	client := NewMockSQS()
	coord, err := NewCoordinator(client, Config{})
	require.NoError(t, err)

	_, err = coord.Send(context.Background(), types.DirectionManagerToLocal, "x")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrQueueTransport))
}

func TestReceiveFailureIsTransportError(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	client.ReceiveErr = errors.New("ServiceUnavailable")

	msg, err := coord.ReceiveOne(context.Background(), types.DirectionManagerToLocal, 0)
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.True(t, types.IsKind(err, types.ErrQueueTransport))
}

func TestReceiveDeleteFailureStillReturnsMessage(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	_, err := coord.Send(ctx, types.DirectionWorkersToManager, "result-7")
	require.NoError(t, err)
	client.DeleteErr = errors.New("InternalError")

	msg, err := coord.ReceiveOne(ctx, types.DirectionWorkersToManager, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "result-7", msg.Body)

	// Left on the queue, so it can come back once its visibility lapses
	assert.Equal(t, 1, client.Depth("WorkersManagerQueue.fifo"))
}

func TestFetchAckRedeliversUntilAcknowledged(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	_, err := coord.Send(ctx, types.DirectionManagerToWorkers, "job-1")
	require.NoError(t, err)

	first, err := coord.Fetch(ctx, types.DirectionManagerToWorkers, 0)
	require.NoError(t, err)
	require.NotNil(t, first)

	// In flight: hidden from other consumers
	hidden, err := coord.Fetch(ctx, types.DirectionManagerToWorkers, 0)
	require.NoError(t, err)
	assert.Nil(t, hidden)

	// Not acknowledged: visible again after the visibility timeout
	redelivered, err := coord.Fetch(ctx, types.DirectionManagerToWorkers, 3*time.Second)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, first.ID, redelivered.ID)

	require.NoError(t, coord.Ack(ctx, redelivered))
	assert.Zero(t, client.Depth("ManagerWorkersQueue.fifo"))
}

func TestAckFailureIsAcknowledgmentError(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	_, err := coord.Send(ctx, types.DirectionManagerToWorkers, "job-2")
	require.NoError(t, err)
	msg, err := coord.Fetch(ctx, types.DirectionManagerToWorkers, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)

	client.DeleteErr = errors.New("InternalError")
	err = coord.Ack(ctx, msg)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrAcknowledgment))
}

func TestIdenticalBodiesAreDeduplicated(t *testing.T) {
	client := NewMockSQS()
	coord := newTestCoordinator(t, client)
	ctx := context.Background()

	first, err := coord.Send(ctx, types.DirectionLocalToManager, "same")
	require.NoError(t, err)
	second, err := coord.Send(ctx, types.DirectionLocalToManager, "same")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.Depth("LocalManagerQueue.fifo"))
}

func TestResolveIsCached(t *testing.T) {
	client := NewMockSQS()
	coord, err := NewCoordinator(client, Config{})
	require.NoError(t, err)
	ctx := context.Background()

	// Create the queue out of band so the coordinator has to look it up
	other, err := NewCoordinator(client, Config{})
	require.NoError(t, err)
	require.NoError(t, other.CreateChannel(ctx, types.DirectionManagerToLocal))

	for i := 0; i < 3; i++ {
		_, err := coord.Send(ctx, types.DirectionManagerToLocal, string(rune('a'+i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, client.Calls("GetQueueUrl"))
}

func TestWaitSeconds(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int32
	}{
		{wait: 0, want: 0},
		{wait: -time.Second, want: 0},
		{wait: 500 * time.Millisecond, want: 1},
		{wait: 10 * time.Second, want: 10},
		{wait: time.Minute, want: 20},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, waitSeconds(tt.wait), "wait %v", tt.wait)
	}
}
