package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/neural-portfolio/pkg/logging"
)

// ErrClosed is returned when publishing or subscribing after Close
var ErrClosed = errors.New("publisher is closed")

// subscriptionQueue is the number of undelivered events a subscriber may lag behind
// before new events are dropped for it
const subscriptionQueue = 100

// TopicConfig configures buffering behavior for a topic
type TopicConfig struct {
	BufferSize int  // Number of events to buffer (0 = no buffering)
	ReplayAll  bool // If true, replay all buffered events; if false, only replay last event
}

// topicState is everything the publisher tracks for one topic
type topicState struct {
	config  TopicConfig
	version int
	buffer  []Event
	subs    map[*sseSubscription]struct{}
}

// replay returns the buffered events a new subscriber should see
func (t *topicState) replay() []Event {
	if len(t.buffer) == 0 {
		return nil
	}
	events := t.buffer
	if !t.config.ReplayAll {
		events = events[len(events)-1:]
	}
	if len(events) > subscriptionQueue {
		events = events[len(events)-subscriptionQueue:]
	}
	return append([]Event(nil), events...)
}

// SSEPublisher is an in-process Publisher whose events are streamed to HTTP
// clients as server-sent events and to websocket sessions.
type SSEPublisher struct {
	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
}

// NewSSEPublisher creates a publisher with no topic buffering
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topicState)}
}

// NewScenePublisher creates a publisher configured for the scene topics. New
// subscribers get the latest layout status and selection; edges and frames are live only.
func NewScenePublisher() *SSEPublisher {
	p := NewSSEPublisher()
	p.ConfigureTopic(TopicLayout, TopicConfig{BufferSize: 1})
	p.ConfigureTopic(TopicSelection, TopicConfig{BufferSize: 1})
	return p
}

// topic returns the state for name, creating it. Callers hold p.mu.
func (p *SSEPublisher) topic(name string) *topicState {
	t, ok := p.topics[name]
	if !ok {
		t = &topicState{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// ConfigureTopic sets buffering configuration for a topic
func (p *SSEPublisher) ConfigureTopic(topic string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic(topic).config = config
}

// Subscribe creates a subscription that lives until it is closed or ctx is done.
// Buffered events are delivered first according to the topic configuration.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &sseSubscription{
		topic:     topic,
		events:    make(chan Event, subscriptionQueue),
		publisher: p,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	t := p.topic(topic)
	t.subs[sub] = struct{}{}
	// Replayed under the lock so no live event can overtake them
	replayed := t.replay()
	for _, ev := range replayed {
		sub.events <- ev
	}
	p.mu.Unlock()

	if len(replayed) > 0 {
		logging.Debug("replayed events to new subscriber", "count", len(replayed), "topic", topic)
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Publish sends an event to all subscribers of a topic. Subscribers whose queue is
// full miss the event.
func (p *SSEPublisher) Publish(topic string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	t := p.topic(topic)
	t.version++
	event := Event{Topic: topic, Type: eventType, Data: payload, Version: t.version}

	if n := t.config.BufferSize; n > 0 {
		t.buffer = append(t.buffer, event)
		if len(t.buffer) > n {
			t.buffer = t.buffer[len(t.buffer)-n:]
		}
	}

	for sub := range t.subs {
		select {
		case sub.events <- event:
		default:
			logging.Trace("subscriber queue full, dropping event", "topic", topic, "version", event.Version)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions to topic
func (p *SSEPublisher) Subscribers(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[topic]; ok {
		return len(t.subs)
	}
	return 0
}

// Close ends all subscriptions. Their event channels are closed.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = nil
	}
	return nil
}

// unsubscribe removes sub and closes its channel unless Close already did
func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[sub.topic]
	if !ok {
		return
	}
	if _, live := t.subs[sub]; live {
		delete(t.subs, sub)
		close(sub.events)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	once      sync.Once
}

func (s *sseSubscription) Topic() string {
	return s.topic
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

// Close unsubscribes and closes the event channel. It is safe to call more than once.
func (s *sseSubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s) })
	return nil
}

// WriteSSE writes an event in server-sent events framing: "data: {json}\n\n"
func WriteSSE(w io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
