package events

import (
	"context"
	"sync"
	"time"
)

const (
	// TopicDataChanged fires after a successful upsert or derive pass.
	TopicDataChanged = "data-changed"
	// TopicNotification fires when a new notification is emitted.
	TopicNotification = "notification"
)

// Message describes one data-changed event. Kind names the entity
// table that changed; RecordIDs may be empty for bulk writes.
type Message struct {
	Topic     string
	Kind      string
	RecordIDs []string
	Timestamp time.Time
}

// Dispatcher fans data-changed events out to subscribed consumers.
// Consumers subscribe explicitly; there is no implicit re-query on
// write. Slow subscribers drop messages rather than block publishers.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Message
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a consumer for all events until ctx is done or
// the returned cancel function runs.
func (d *Dispatcher) Subscribe(ctx context.Context) (<-chan Message, func()) {
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.register(sub)
	cleanup := func() {
		d.unregister(sub.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (d *Dispatcher) Publish(message Message) {
	if message.Topic == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[sub.id] = sub
}

func (d *Dispatcher) unregister(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
