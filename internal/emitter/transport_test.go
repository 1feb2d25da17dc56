package emitter

import (
	"context"
	"io"
	"sync"

	"github.com/wunderwerk/emitter-go/internal/infrastructure/config"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/logging"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/mqtt"
)

type publication struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type subscriptionCall struct {
	topic      string
	qos        byte
	hasHandler bool
}

// memTransport is an in-memory Transport. Published messages are recorded
// and can be answered through onPublish.
type memTransport struct {
	mu           sync.Mutex
	connected    bool
	closeCalls   int
	published    []publication
	subscribed   []subscriptionCall
	unsubscribed []string

	nextID   mqtt.HandlerID
	handlers map[mqtt.HandlerID]mqtt.MessageHandler
	order    []mqtt.HandlerID

	// err is returned by Publish, Subscribe and Unsubscribe when set.
	err error

	// onPublish runs after a publish is recorded, outside the lock.
	onPublish func(topic string, payload []byte)

	onConnect    func()
	onDisconnect func(err error)
}

func newMemTransport() *memTransport {
	return &memTransport{
		connected: true,
		handlers:  make(map[mqtt.HandlerID]mqtt.MessageHandler),
	}
}

func (m *memTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return m.err
	}
	m.published = append(m.published, publication{topic: topic, payload: payload, qos: qos, retained: retained})
	hook := m.onPublish
	m.mu.Unlock()

	if hook != nil {
		hook(topic, payload)
	}
	return nil
}

func (m *memTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.subscribed = append(m.subscribed, subscriptionCall{topic: topic, qos: qos, hasHandler: handler != nil})
	return nil
}

func (m *memTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

func (m *memTransport) AddMessageHandler(handler mqtt.MessageHandler) mqtt.HandlerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.handlers[m.nextID] = handler
	m.order = append(m.order, m.nextID)
	return m.nextID
}

func (m *memTransport) RemoveMessageHandler(id mqtt.HandlerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[id]; !ok {
		return false
	}
	delete(m.handlers, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

func (m *memTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *memTransport) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return nil
}

func (m *memTransport) SetOnConnect(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = callback
}

func (m *memTransport) SetOnDisconnect(callback func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = callback
}

// drop simulates a lost connection followed by an automatic reconnect.
func (m *memTransport) drop(err error) {
	m.mu.Lock()
	m.connected = false
	lost := m.onDisconnect
	m.mu.Unlock()
	if lost != nil {
		lost(err)
	}

	m.mu.Lock()
	m.connected = true
	restored := m.onConnect
	m.mu.Unlock()
	if restored != nil {
		restored()
	}
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.closeCalls++
	return nil
}

// deliver passes a message to every registered handler in order.
func (m *memTransport) deliver(topic string, payload []byte) {
	m.mu.Lock()
	handlers := make([]mqtt.MessageHandler, 0, len(m.order))
	for _, id := range m.order {
		handlers = append(handlers, m.handlers[id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		_ = h(topic, payload)
	}
}

func (m *memTransport) handlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *memTransport) lastPublished() publication {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return publication{}
	}
	return m.published[len(m.published)-1]
}

// replyOn answers every publish to topic with reply on replyTopic.
func (m *memTransport) replyOn(topic, replyTopic, reply string) {
	m.onPublish = func(t string, _ []byte) {
		if t == topic {
			m.deliver(replyTopic, []byte(reply))
		}
	}
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "debug"}, "test")
}

func newTestClient(opts ...Option) (*Client, *memTransport) {
	transport := newMemTransport()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	return New(transport, opts...), transport
}
