package pubsub

import (
	"fmt"
	"sort"
	"sync"
)

// Subscription is a scoped handle on a set of device telemetry topics.
//
// Each consumer of a room's devices acquires its own handle and releases
// it when done. The broker topic set is the union of all live handles:
// a topic is subscribed when its reference count rises from zero and
// unsubscribed when it falls back to zero. Two consumers watching the
// same device share one broker subscription.
type Subscription struct {
	client *Client
	topics []string

	mu       sync.Mutex
	released bool
}

// Acquire registers interest in the telemetry topics of the given devices.
//
// Safe to call before Connect: the topics are recorded and subscribed
// when the connection comes up. Acquiring an already-subscribed device
// only bumps its reference count; the broker sees nothing.
//
// Parameters:
//   - deviceIDs: devices to receive telemetry for
//
// Returns:
//   - *Subscription: handle to release when the consumer goes away
//   - error: ErrInvalidDeviceID, ErrClosed
func (c *Client) Acquire(deviceIDs []string) (*Subscription, error) {
	for _, id := range deviceIDs {
		if id == "" {
			return nil, ErrInvalidDeviceID
		}
	}

	c.connMu.RLock()
	closed := c.closed
	c.connMu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	topics := make([]string, 0, len(deviceIDs))
	seen := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		topic := Topics{}.DeviceStatus(id)
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}

	var fresh []string
	c.subMu.Lock()
	for _, topic := range topics {
		c.refs[topic]++
		if c.refs[topic] == 1 {
			fresh = append(fresh, topic)
		}
	}
	c.subMu.Unlock()

	// Only first references touch the broker. Offline failures are fine:
	// the flush on (re)connect converges to the tracked set.
	for _, topic := range fresh {
		if err := c.subscribeTopic(topic); err != nil {
			c.logger.Warn("deferred subscribe until connect", "topic", topic, "error", err)
		}
	}

	return &Subscription{client: c, topics: topics}, nil
}

// Release gives up this handle's interest. Topics whose reference count
// reaches zero are unsubscribed from the broker.
//
// Returns:
//   - error: ErrReleased if the handle was already released
func (s *Subscription) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrReleased
	}
	s.released = true
	s.mu.Unlock()

	c := s.client

	var gone []string
	c.subMu.Lock()
	for _, topic := range s.topics {
		if c.refs[topic] == 0 {
			continue // defensive; refs never go negative
		}
		c.refs[topic]--
		if c.refs[topic] == 0 {
			delete(c.refs, topic)
			gone = append(gone, topic)
		}
	}
	c.subMu.Unlock()

	if len(gone) == 0 {
		return nil
	}

	// Nobody watches these devices anymore; their accumulated live state
	// goes with them.
	for _, topic := range gone {
		if id := DeviceIDFromStatusTopic(topic); id != "" {
			c.evictLive(id)
		}
	}

	if !c.IsConnected() {
		return nil
	}

	token := c.client.Unsubscribe(gone...)
	if !token.WaitTimeout(defaultOpTimeout) || token.Error() != nil {
		c.logger.Warn("unsubscribe failed", "topics", gone, "error", token.Error())
	}
	return nil
}

// Topics returns the broker topics covered by this handle, sorted.
func (s *Subscription) Topics() []string {
	out := make([]string, len(s.topics))
	copy(out, s.topics)
	sort.Strings(out)
	return out
}

// SubscriptionCount returns the number of distinct subscribed topics.
func (c *Client) SubscriptionCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.refs)
}

// HasSubscription reports whether the given device's telemetry topic is
// in the desired topic set.
func (c *Client) HasSubscription(deviceID string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	_, ok := c.refs[Topics{}.DeviceStatus(deviceID)]
	return ok
}

// subscribeTopic issues one broker subscribe for an already-tracked topic.
func (c *Client) subscribeTopic(topic string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, c.cfg.QoS, c.telemetryHandler())
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// flushSubscriptions reissues every tracked topic. Runs on each connect;
// with clean sessions the broker starts from nothing every time.
func (c *Client) flushSubscriptions() {
	c.subMu.Lock()
	topics := make([]string, 0, len(c.refs))
	for topic := range c.refs {
		topics = append(topics, topic)
	}
	c.subMu.Unlock()

	for _, topic := range topics {
		token := c.client.Subscribe(topic, c.cfg.QoS, c.telemetryHandler())
		if !token.WaitTimeout(defaultOpTimeout) || token.Error() != nil {
			c.logger.Warn("resubscribe failed", "topic", topic, "error", token.Error())
		}
	}
}
