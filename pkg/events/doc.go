/*
Package events provides an in-memory event broker for fleet and relay events.

The fleet controller publishes an event for every slot outcome (provisioned,
started, replaced, unsupported, failed) and for every relayed message. The CLI
watch command subscribes and logs them. Events are broadcast to every
subscriber; there is no topic filtering.

Publishing never blocks: the broker queue holds 100 events and each subscriber
buffers 50. When either is full the event is dropped for that consumer.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for e := range sub {
		fmt.Println(e.Type, e.Message)
	}
*/
package events
