package emitter

import (
	"context"
	"encoding/json"
	"fmt"
)

// response is a payload received on one of a request's reply topics.
type response struct {
	topic   string
	payload []byte
}

// Keygen asks the broker to generate a key for channel from a master key.
//
// keyType is a combination of the permission letters the broker accepts
// (for example "rw"); ttl is the key lifetime in seconds, 0 for no expiry.
// Keygen blocks until the broker replies, ctx ends or the request timeout
// elapses. A non-200 reply wraps ErrRequestFailed with the broker's message.
func (c *Client) Keygen(ctx context.Context, key, channel, keyType string, ttl int) (string, error) {
	if channel == "" {
		return "", ErrInvalidChannel
	}

	req := KeygenRequest{
		Key:     key,
		Channel: channel,
		Type:    keyType,
		TTL:     ttl,
	}

	resp, err := c.request(ctx, Topics{}.Keygen(), req)
	if err != nil {
		return "", fmt.Errorf("keygen for %s: %w", channel, err)
	}

	var keygen KeygenResponse
	if err := json.Unmarshal(resp.payload, &keygen); err != nil {
		return "", fmt.Errorf("keygen for %s: %w: %w", channel, ErrMalformedResponse, err)
	}
	if err := requestError(keygen.Status, keygen.Message); err != nil {
		return "", fmt.Errorf("keygen for %s: %w", channel, err)
	}

	return keygen.Key, nil
}

// Me asks the broker for information about the current connection.
func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	resp, err := c.request(ctx, Topics{}.Me(), nil)
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}

	var me MeResponse
	if err := json.Unmarshal(resp.payload, &me); err != nil {
		return nil, fmt.Errorf("me: %w: %w", ErrMalformedResponse, err)
	}
	return &me, nil
}

// Link creates a short link name for channel.
//
// The link points at the fully formatted channel, so the key and the me and
// ttl options are captured by the link. Once created, PublishWithLink can
// publish through name. The broker's reply arrives on emitter/link/.
func (c *Client) Link(ctx context.Context, key, channel, name string, private, subscribe bool, opts ...PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == "" {
		return ErrInvalidChannel
	}
	if name == "" {
		return ErrInvalidLink
	}

	req := LinkRequest{
		Key:       key,
		Channel:   FormatChannel(key, channel, publishOptions(opts)),
		Name:      name,
		Private:   private,
		Subscribe: subscribe,
	}
	if err := c.publishJSON(Topics{}.Link(), req); err != nil {
		return fmt.Errorf("link %s: %w", name, err)
	}
	return nil
}

// Presence requests the presence status of channel and/or subscribes to
// presence changes. Nil status or changes are sent as null and left to the
// broker's defaults. Replies and notifications arrive on emitter/presence/
// and can be decoded with DecodePresenceEvent.
func (c *Client) Presence(ctx context.Context, key, channel string, status, changes *bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == "" {
		return ErrInvalidChannel
	}

	req := PresenceRequest{
		Key:     key,
		Channel: channel,
		Status:  status,
		Changes: changes,
	}
	if err := c.publishJSON(Topics{}.Presence(), req); err != nil {
		return fmt.Errorf("presence for %s: %w", channel, err)
	}
	return nil
}

func (c *Client) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.transport.Publish(topic, payload, 0, false)
}

// request publishes body to topic and waits for the reply on the same
// topic or on emitter/error/. A nil body publishes an empty payload.
//
// Requests are serialised: the broker does not correlate replies, so only
// one exchange may be in flight per client.
func (c *Client) request(ctx context.Context, topic string, body any) (*response, error) {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
	}

	errorTopic := Topics{}.Error()
	replies := make(chan response, 1)
	id := c.transport.AddMessageHandler(func(t string, p []byte) error {
		if t != topic && t != errorTopic {
			return nil
		}
		select {
		case replies <- response{topic: t, payload: p}:
		default:
		}
		return nil
	})
	defer c.transport.RemoveMessageHandler(id)

	if err := c.transport.Publish(topic, payload, 0, false); err != nil {
		return nil, err
	}

	select {
	case resp := <-replies:
		if resp.topic == errorTopic {
			brokerErr, err := DecodeError(resp.payload)
			if err != nil {
				return nil, err
			}
			if err := requestError(brokerErr.Status, brokerErr.Message); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrRequestFailed, brokerErr.Message)
		}
		return &resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
