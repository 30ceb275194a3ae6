package mqtt

import (
	"fmt"
	"sort"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionTable remembers what to replay after a reconnect.
// The zero value is ready to use.
type subscriptionTable struct {
	mu     sync.RWMutex
	topics map[string]subscription
}

func (t *subscriptionTable) put(sub subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.topics == nil {
		t.topics = make(map[string]subscription)
	}
	t.topics[sub.topic] = sub
}

func (t *subscriptionTable) drop(topic string) {
	t.mu.Lock()
	delete(t.topics, topic)
	t.mu.Unlock()
}

func (t *subscriptionTable) has(topic string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.topics[topic]
	return ok
}

func (t *subscriptionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.topics)
}

// all returns the subscriptions ordered by topic.
func (t *subscriptionTable) all() []subscription {
	t.mu.RLock()
	out := make([]subscription, 0, len(t.topics))
	for _, sub := range t.topics {
		out = append(out, sub)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].topic < out[j].topic })
	return out
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards. The subscription survives reconnects.
//
//	err := client.Subscribe(mqtt.Topics{}.AllDeviceEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        name, kind, _ := mqtt.ParseDeviceTopic(topic)
//	        return net.handle(name, kind, payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	// Recorded first so a reconnect racing this call still replays it.
	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	if err := wait(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), defaultPublishTimeout); err != nil {
		c.subs.drop(topic)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe drops a subscription. Messages already in flight may still
// reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.drop(topic)
	if err := wait(c.client.Unsubscribe(topic), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// SubscriptionCount returns the number of remembered subscriptions.
func (c *Client) SubscriptionCount() int {
	return c.subs.len()
}

// HasSubscription reports whether exactly topic is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	return c.subs.has(topic)
}
