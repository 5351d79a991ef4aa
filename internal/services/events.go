package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventsChannel is the Redis pub/sub channel shared by every instance
const EventsChannel = "hostel:events"

// Resources announced on the change stream
const (
	ResourceFees          = "fees"
	ResourceStudents      = "students"
	ResourceRooms         = "rooms"
	ResourceLeaveRequests = "leave_requests"
	ResourceComplaints    = "complaints"
	ResourceMembers       = "members"
	ResourceMessMenu      = "mess_menu"
)

// Actions announced on the change stream
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ChangeEvent tells connected clients that a record changed and their view is stale
type ChangeEvent struct {
	Resource string    `json:"resource"`
	Action   string    `json:"action"`
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
}

// NewChangeEvent stamps an event with the current time
func NewChangeEvent(resource, action, id string) ChangeEvent {
	return ChangeEvent{Resource: resource, Action: action, ID: id, At: time.Now().UTC()}
}

// EventPublisher announces changes
type EventPublisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// EventHub fans events out to the subscribers connected to this process
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan ChangeEvent]struct{}
	logger *zap.Logger
}

func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		subs:   make(map[chan ChangeEvent]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new listener. The returned function unregisters it and closes the channel.
func (h *EventHub) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (h *EventHub) Publish(_ context.Context, event ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Warn("Dropping change event for slow subscriber",
				zap.String("resource", event.Resource),
				zap.String("id", event.ID))
		}
	}
	return nil
}

// SubscriberCount returns the number of connected listeners
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// RedisEventBus publishes through Redis so that clients of every instance see
// the event. Run relays the channel back into the local hub.
type RedisEventBus struct {
	cache  *RedisCache
	hub    *EventHub
	logger *zap.Logger
}

func NewRedisEventBus(cache *RedisCache, hub *EventHub, logger *zap.Logger) *RedisEventBus {
	return &RedisEventBus{cache: cache, hub: hub, logger: logger}
}

// Publish sends the event on EventsChannel
func (b *RedisEventBus) Publish(ctx context.Context, event ChangeEvent) error {
	return b.cache.Publish(ctx, EventsChannel, event)
}

// Run forwards EventsChannel messages to the hub until ctx is cancelled
func (b *RedisEventBus) Run(ctx context.Context) error {
	pubsub := b.cache.Subscribe(ctx, EventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("Subscribed to change events", zap.String("channel", EventsChannel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("Ignoring malformed change event", zap.Error(err))
				continue
			}
			_ = b.hub.Publish(ctx, event)
		}
	}
}
