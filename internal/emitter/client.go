package emitter

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wunderwerk/emitter-go/internal/infrastructure/config"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/logging"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/mqtt"
)

// Default timings used when the client is built without config.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultLoopInterval   = 100 * time.Millisecond
)

// Transport is the MQTT connection the client publishes and subscribes
// through. *mqtt.Client implements it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	AddMessageHandler(handler mqtt.MessageHandler) mqtt.HandlerID
	RemoveMessageHandler(id mqtt.HandlerID) bool
	IsConnected() bool
	HealthCheck(ctx context.Context) error
	Close() error
}

// connectionWatcher is implemented by transports that reconnect on their
// own and report connection changes.
type connectionWatcher interface {
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// MessageHandler receives every channel message and control response
// delivered to the connection.
type MessageHandler func(c *Client, topic string, payload []byte)

// LoopHandler is invoked on every Loop tick with the time elapsed since the
// loop started.
type LoopHandler func(c *Client, elapsed time.Duration)

// HandlerID identifies a registered message or loop handler.
type HandlerID uint64

// Client talks to an emitter broker over a Transport.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Message handlers run on transport goroutines, concurrently with Loop.
type Client struct {
	transport Transport
	logger    *logging.Logger

	requestTimeout time.Duration
	loopInterval   time.Duration

	nextID          atomic.Uint64
	messageHandlers *handlerMap[HandlerID, mqtt.HandlerID]
	loopHandlers    *handlerMap[HandlerID, LoopHandler]

	// loopStop is non-nil while Loop runs; closing it ends the loop.
	loopStop chan struct{}
	loopMu   sync.Mutex

	// requestMu serialises request/response exchanges.
	requestMu sync.Mutex
}

// Option configures a Client built with New.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestTimeout bounds how long Keygen and Me wait for a response.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithLoopInterval sets the tick between loop handler invocations.
func WithLoopInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.loopInterval = d
		}
	}
}

// New creates a Client over an established transport.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:       transport,
		requestTimeout:  defaultRequestTimeout,
		loopInterval:    defaultLoopInterval,
		messageHandlers: newHandlerMap[HandlerID, mqtt.HandlerID](),
		loopHandlers:    newHandlerMap[HandlerID, LoopHandler](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	if w, ok := transport.(connectionWatcher); ok {
		c.watchConnection(w)
	}
	return c
}

// watchConnection logs connection loss and automatic reconnects.
func (c *Client) watchConnection(w connectionWatcher) {
	w.SetOnDisconnect(func(err error) {
		c.logger.Warn("emitter connection lost, reconnecting", "error", err)
	})
	w.SetOnConnect(func() {
		c.logger.Info("reconnected to emitter broker")
	})
}

// Dial connects to the broker described by cfg.
//
// The configured username is reported by the broker to presence
// subscribers. Connection failures wrap mqtt.ErrConnectionFailed.
func Dial(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}

	transport, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("dialing %s:%d: %w", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, err)
	}
	transport.SetLogger(logger.With("component", "mqtt"))

	logger.Info("connected to emitter broker",
		"host", cfg.MQTT.Broker.Host,
		"port", cfg.MQTT.Broker.Port,
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	return New(transport,
		WithLogger(logger),
		WithRequestTimeout(cfg.GetKeygenTimeout()),
		WithLoopInterval(cfg.GetLoopInterval()),
	), nil
}

// Close disconnects from the broker. Closing more than once is safe.
func (c *Client) Close() error {
	c.Interrupt()
	return c.transport.Close()
}

// Disconnect is an alias for Close.
func (c *Client) Disconnect() error {
	return c.Close()
}

// IsConnected reports whether the transport is connected.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// HealthCheck verifies the broker connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.transport.HealthCheck(ctx)
}

// AddMessageHandler registers h for every message delivered to the
// connection, including responses on emitter/* control topics.
func (c *Client) AddMessageHandler(h MessageHandler) (HandlerID, error) {
	if h == nil {
		return 0, ErrNilHandler
	}

	wrapped := func(topic string, payload []byte) error {
		h(c, topic, payload)
		return nil
	}

	id := HandlerID(c.nextID.Add(1))
	c.messageHandlers.Add(id, c.transport.AddMessageHandler(wrapped))
	return id, nil
}

// RemoveMessageHandler unregisters a handler added with AddMessageHandler.
func (c *Client) RemoveMessageHandler(id HandlerID) error {
	transportID, ok := c.messageHandlers.Remove(id)
	if !ok {
		return fmt.Errorf("%w: message handler %d", ErrUnknownHandler, id)
	}
	c.transport.RemoveMessageHandler(transportID)
	return nil
}

// AddLoopHandler registers h to run on every Loop tick.
func (c *Client) AddLoopHandler(h LoopHandler) (HandlerID, error) {
	if h == nil {
		return 0, ErrNilHandler
	}

	id := HandlerID(c.nextID.Add(1))
	c.loopHandlers.Add(id, h)
	return id, nil
}

// RemoveLoopHandler unregisters a handler added with AddLoopHandler.
func (c *Client) RemoveLoopHandler(id HandlerID) error {
	if _, ok := c.loopHandlers.Remove(id); !ok {
		return fmt.Errorf("%w: loop handler %d", ErrUnknownHandler, id)
	}
	return nil
}

// publishSettings collects PublishOption values.
type publishSettings struct {
	ttl int
	me  *bool
}

// PublishOption configures Publish and Link.
type PublishOption func(*publishSettings)

// WithTTL asks the broker to store the message for ttl seconds.
// Values of zero or less are ignored.
func WithTTL(ttl int) PublishOption {
	return func(s *publishSettings) { s.ttl = ttl }
}

// WithMe controls whether the publisher receives its own message.
// The broker default used by this client is true.
func WithMe(me bool) PublishOption {
	return func(s *publishSettings) { s.me = &me }
}

// subscribeSettings collects SubscribeOption values.
type subscribeSettings struct {
	last *int
}

// SubscribeOption configures Subscribe.
type SubscribeOption func(*subscribeSettings)

// WithLast asks the broker to replay up to n stored messages on subscribe.
func WithLast(n int) SubscribeOption {
	return func(s *subscribeSettings) { s.last = &n }
}

// publishOptions encodes me and ttl in that order.
func publishOptions(opts []PublishOption) Options {
	var s publishSettings
	for _, opt := range opts {
		opt(&s)
	}

	var o Options
	if s.me == nil || *s.me {
		o.Set(optionMe, "1")
	} else {
		o.Set(optionMe, "0")
	}
	if s.ttl > 0 {
		o.Set(optionTTL, strconv.Itoa(s.ttl))
	}
	return o
}

func subscribeOptions(opts []SubscribeOption) Options {
	var s subscribeSettings
	for _, opt := range opts {
		opt(&s)
	}

	var o Options
	if s.last != nil {
		o.Set(optionLast, strconv.Itoa(*s.last))
	}
	return o
}

// Publish sends payload to channel using key.
func (c *Client) Publish(ctx context.Context, key, channel string, payload []byte, opts ...PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == "" {
		return ErrInvalidChannel
	}

	topic := FormatChannel(key, channel, publishOptions(opts))
	if err := c.transport.Publish(topic, payload, 0, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to channel using key. Messages are delivered to
// every registered message handler.
func (c *Client) Subscribe(ctx context.Context, key, channel string, opts ...SubscribeOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == "" {
		return ErrInvalidChannel
	}

	topic := FormatChannel(key, channel, subscribeOptions(opts))
	if err := c.transport.Subscribe(topic, 0, nil); err != nil {
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	c.logger.Debug("subscribed", "channel", channel)
	return nil
}

// Unsubscribe removes a subscription made with Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, key, channel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if channel == "" {
		return ErrInvalidChannel
	}

	topic := FormatChannel(key, channel, Options{})
	if err := c.transport.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", channel, err)
	}

	c.logger.Debug("unsubscribed", "channel", channel)
	return nil
}

// PublishWithLink publishes payload to a link created with Link.
func (c *Client) PublishWithLink(ctx context.Context, link string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if link == "" {
		return ErrInvalidLink
	}

	if err := c.transport.Publish(link, payload, 0, false); err != nil {
		return fmt.Errorf("publishing to link %s: %w", link, err)
	}
	return nil
}
