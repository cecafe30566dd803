package fleet

import (
	"context"
	"time"

	"github.com/cuemby/colony/pkg/events"
	"github.com/cuemby/colony/pkg/types"
)

// Send submits body on the channel for dir
func (c *Controller) Send(ctx context.Context, dir types.Direction, body string) (string, error) {
	id, err := c.deps.Queues.Send(ctx, dir, body)
	if err != nil {
		return "", err
	}
	c.publishMessage(events.EventMessageSent, dir, id)
	return id, nil
}

// Receive waits the default window for one message on dir's channel and
// returns nil when none arrives. The message is already acknowledged.
func (c *Controller) Receive(ctx context.Context, dir types.Direction) (*types.Message, error) {
	msg, err := c.deps.Queues.Receive(ctx, dir)
	if err != nil || msg == nil {
		return nil, err
	}
	c.publishMessage(events.EventMessageReceived, dir, msg.ID)
	return msg, nil
}

// ReceiveWithin is Receive with an explicit wait window
func (c *Controller) ReceiveWithin(ctx context.Context, dir types.Direction, wait time.Duration) (*types.Message, error) {
	msg, err := c.deps.Queues.ReceiveOne(ctx, dir, wait)
	if err != nil || msg == nil {
		return nil, err
	}
	c.publishMessage(events.EventMessageReceived, dir, msg.ID)
	return msg, nil
}

// SendToManager sends from the local client to the manager
func (c *Controller) SendToManager(ctx context.Context, body string) (string, error) {
	return c.Send(ctx, types.DirectionLocalToManager, body)
}

// SendToLocal sends from the manager to the local client
func (c *Controller) SendToLocal(ctx context.Context, body string) (string, error) {
	return c.Send(ctx, types.DirectionManagerToLocal, body)
}

// SendToWorkers sends a task from the manager to the worker pool
func (c *Controller) SendToWorkers(ctx context.Context, body string) (string, error) {
	return c.Send(ctx, types.DirectionManagerToWorkers, body)
}

// SendFromWorker sends a result from a worker to the manager
func (c *Controller) SendFromWorker(ctx context.Context, body string) (string, error) {
	return c.Send(ctx, types.DirectionWorkersToManager, body)
}

// ReceiveFromLocal is the manager reading what the local client sent
func (c *Controller) ReceiveFromLocal(ctx context.Context) (*types.Message, error) {
	return c.Receive(ctx, types.DirectionLocalToManager)
}

// ReceiveFromManager is the local client reading what the manager sent
func (c *Controller) ReceiveFromManager(ctx context.Context) (*types.Message, error) {
	return c.Receive(ctx, types.DirectionManagerToLocal)
}

// ReceiveFromWorkers is the manager reading worker results
func (c *Controller) ReceiveFromWorkers(ctx context.Context) (*types.Message, error) {
	return c.Receive(ctx, types.DirectionWorkersToManager)
}

// ReceiveWorkerTask is a worker reading the next task from the manager
func (c *Controller) ReceiveWorkerTask(ctx context.Context) (*types.Message, error) {
	return c.Receive(ctx, types.DirectionManagerToWorkers)
}

func (c *Controller) publishMessage(eventType events.EventType, dir types.Direction, messageID string) {
	if c.deps.Events == nil {
		return
	}
	c.deps.Events.Publish(events.NewEvent(eventType, string(dir), map[string]string{
		"direction":  string(dir),
		"message_id": messageID,
	}))
}
