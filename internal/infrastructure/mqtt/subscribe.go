package mqtt

import (
	"fmt"
	"strings"
)

// Subscribe subscribes to the specified topic.
//
// A nil handler is allowed and is the normal case against emitter: the
// broker delivers messages on the bare channel, not on the key-prefixed
// topic used to subscribe, so they reach the handlers registered with
// AddMessageHandler. A non-nil handler is installed as a paho route for
// topic.
//
// Subscriptions are automatically restored if the connection is lost and
// reconnected. A restored subscription drops the emitter "last" option so
// stored messages are replayed only once.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	restored := withoutReplay(topic)

	c.subMu.Lock()
	c.subscriptions[restored] = subscription{
		topic:   restored,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.routeCallback(handler))
	if !token.WaitTimeout(defaultOperationTimeout) {
		c.forget(restored)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(restored)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription.
//
// Messages already in flight may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(withoutReplay(topic))

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// forget drops topic from the reconnect tracking table.
func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// withoutReplay removes the emitter "last" option from topic's query,
// dropping the "?" when no other option remains.
func withoutReplay(topic string) string {
	base, query, found := strings.Cut(topic, "?")
	if !found {
		return topic
	}

	kept := make([]string, 0, strings.Count(query, "&")+1)
	for _, param := range strings.Split(query, "&") {
		if param == "" || param == "last" || strings.HasPrefix(param, "last=") {
			continue
		}
		kept = append(kept, param)
	}
	if len(kept) == 0 {
		return base
	}
	return base + "?" + strings.Join(kept, "&")
}
