package events

import (
	"sync"

	"go.uber.org/zap"
)

const (
	defaultBufferSize       = 50
	defaultSubscriberBuffer = 16
)

// Hub fans events out by type. Each type keeps a bounded replay buffer
// handed to new subscribers.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
	log              *zap.Logger
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub       *Hub
	eventType string
	id        uint64
	ch        chan Event
	once      sync.Once
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       defaultBufferSize,
		subscriberBuffer: defaultSubscriberBuffer,
		log:              log.Named("events.hub"),
	}
}

func (h *Hub) Publish(event Event) {
	if h == nil || event.Type == "" {
		return
	}
	h.mu.RLock()
	st := h.streams[event.Type]
	h.mu.RUnlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.buffer = append(st.buffer, event)
	if len(st.buffer) > h.bufferSize {
		st.buffer = st.buffer[len(st.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(st.subs))
	for _, ch := range st.subs {
		subs = append(subs, ch)
	}
	st.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			h.log.Warn("subscriber buffer full, event dropped",
				zap.String("type", event.Type),
				zap.String("event_id", event.ID),
			)
		}
	}
}

// Subscribe registers for one event type and returns the replay buffer
// accumulated so far.
func (h *Hub) Subscribe(eventType string) (*Subscription, []Event) {
	st := h.ensureStream(eventType)

	st.mu.Lock()
	if st.subs == nil {
		st.subs = make(map[uint64]chan Event)
	}
	id := st.nextID
	st.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	st.subs[id] = ch
	buffer := append([]Event(nil), st.buffer...)
	st.mu.Unlock()

	return &Subscription{
		hub:       h,
		eventType: eventType,
		id:        id,
		ch:        ch,
	}, buffer
}

func (h *Hub) ensureStream(eventType string) *stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.streams[eventType]
	if st == nil {
		st = &stream{}
		h.streams[eventType] = st
	}
	return st
}

// Events is the subscriber's receive channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.RLock()
		st := s.hub.streams[s.eventType]
		s.hub.mu.RUnlock()
		if st == nil {
			return
		}
		st.mu.Lock()
		delete(st.subs, s.id)
		st.mu.Unlock()
		close(s.ch)
	})
}
