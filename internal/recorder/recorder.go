package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wunderwerk/emitter-go/internal/emitter"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/config"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/logging"
)

// saveTimeout bounds a single archive write from a message handler.
const saveTimeout = 5 * time.Second

// Metrics counts recorded messages. *influxdb.Client implements it.
type Metrics interface {
	WriteMessageMetric(channel string, size int, receivedAt time.Time)
}

// Recorder archives the messages received on a set of channels.
//
// Thread Safety:
//   - Start and Stop are safe for concurrent use.
//   - Messages are handled on emitter client goroutines.
type Recorder struct {
	client   *emitter.Client
	store    Store
	metrics  Metrics
	channels []config.RecorderChannel
	logger   *logging.Logger
	now      func() time.Time

	mu        sync.Mutex
	running   bool
	handlerID emitter.HandlerID
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMetrics counts every recorded message in m.
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithLogger sets the recorder logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Recorder for channels.
func New(client *emitter.Client, store Store, channels []config.RecorderChannel, opts ...Option) *Recorder {
	r := &Recorder{
		client:   client,
		store:    store,
		channels: channels,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	r.logger = r.logger.With("component", "recorder")
	return r
}

// Start registers the message handler and subscribes to every channel.
// If a subscription fails, the ones already made are undone.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}
	if len(r.channels) == 0 {
		return ErrNoChannels
	}

	id, err := r.client.AddMessageHandler(r.handle)
	if err != nil {
		return fmt.Errorf("registering recorder handler: %w", err)
	}

	for i, ch := range r.channels {
		var opts []emitter.SubscribeOption
		if ch.Last != nil {
			opts = append(opts, emitter.WithLast(*ch.Last))
		}

		if err := r.client.Subscribe(ctx, ch.Key, ch.Channel, opts...); err != nil {
			_ = r.unsubscribe(ctx, r.channels[:i])
			_ = r.client.RemoveMessageHandler(id)
			return fmt.Errorf("starting recorder: %w", err)
		}
		r.logger.Info("recording channel", "channel", ch.Channel)
	}

	r.handlerID = id
	r.running = true
	return nil
}

// Stop removes the message handler and unsubscribes from every channel.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrNotRunning
	}
	r.running = false

	return errors.Join(
		r.client.RemoveMessageHandler(r.handlerID),
		r.unsubscribe(ctx, r.channels),
	)
}

func (r *Recorder) unsubscribe(ctx context.Context, channels []config.RecorderChannel) error {
	var errs []error
	for _, ch := range channels {
		if err := r.client.Unsubscribe(ctx, ch.Key, ch.Channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handle archives a channel message and logs broker errors.
func (r *Recorder) handle(_ *emitter.Client, topic string, payload []byte) {
	if emitter.IsControl(topic) {
		if topic == (emitter.Topics{}).Error() {
			r.logBrokerError(payload)
		}
		return
	}

	msg := Message{
		ID:         uuid.NewString(),
		Channel:    topic,
		Payload:    append([]byte{}, payload...),
		Size:       len(payload),
		ReceivedAt: r.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := r.store.Save(ctx, msg); err != nil {
		r.logger.Error("failed to archive message", "channel", topic, "error", err)
		return
	}

	if r.metrics != nil {
		r.metrics.WriteMessageMetric(msg.Channel, msg.Size, msg.ReceivedAt)
	}
}

func (r *Recorder) logBrokerError(payload []byte) {
	brokerErr, err := emitter.DecodeError(payload)
	if err != nil {
		r.logger.Warn("undecodable broker error", "payload", string(payload))
		return
	}
	r.logger.Warn("broker reported error", "status", brokerErr.Status, "message", brokerErr.Message)
}
