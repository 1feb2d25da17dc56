package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wunderwerk/emitter-go/internal/infrastructure/config"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/logging"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/mqtt"
)

func TestPublishTopics(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		opts    []PublishOption
		want    string
	}{
		{"defaults", "articles", nil, "KEY/articles/?me=1"},
		{"me true", "articles/", []PublishOption{WithMe(true)}, "KEY/articles/?me=1"},
		{"me false", "articles", []PublishOption{WithMe(false)}, "KEY/articles/?me=0"},
		{"ttl", "articles", []PublishOption{WithTTL(60)}, "KEY/articles/?me=1&ttl=60"},
		{"ttl before me still encodes me first", "articles", []PublishOption{WithTTL(5), WithMe(false)}, "KEY/articles/?me=0&ttl=5"},
		{"zero ttl omitted", "articles", []PublishOption{WithTTL(0)}, "KEY/articles/?me=1"},
		{"negative ttl omitted", "articles", []PublishOption{WithTTL(-1)}, "KEY/articles/?me=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newTestClient()

			err := client.Publish(context.Background(), "KEY", tt.channel, []byte("hello"), tt.opts...)
			require.NoError(t, err)

			got := transport.lastPublished()
			assert.Equal(t, tt.want, got.topic)
			assert.Equal(t, []byte("hello"), got.payload)
			assert.Equal(t, byte(0), got.qos)
			assert.False(t, got.retained)
		})
	}
}

func TestSubscribeTopics(t *testing.T) {
	tests := []struct {
		name string
		opts []SubscribeOption
		want string
	}{
		{"no last", nil, "KEY/articles/"},
		{"last zero", []SubscribeOption{WithLast(0)}, "KEY/articles/?last=0"},
		{"last five", []SubscribeOption{WithLast(5)}, "KEY/articles/?last=5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newTestClient()

			require.NoError(t, client.Subscribe(context.Background(), "KEY", "articles", tt.opts...))
			require.Len(t, transport.subscribed, 1)
			assert.Equal(t, tt.want, transport.subscribed[0].topic)
			assert.Equal(t, byte(0), transport.subscribed[0].qos)
			assert.False(t, transport.subscribed[0].hasHandler, "subscribe must leave routing to message handlers")
		})
	}
}

func TestUnsubscribe(t *testing.T) {
	client, transport := newTestClient()

	require.NoError(t, client.Unsubscribe(context.Background(), "KEY", "articles"))
	assert.Equal(t, []string{"KEY/articles/"}, transport.unsubscribed)
}

func TestChannelValidation(t *testing.T) {
	client, transport := newTestClient()
	ctx := context.Background()

	assert.ErrorIs(t, client.Publish(ctx, "KEY", "", nil), ErrInvalidChannel)
	assert.ErrorIs(t, client.Subscribe(ctx, "KEY", ""), ErrInvalidChannel)
	assert.ErrorIs(t, client.Unsubscribe(ctx, "KEY", ""), ErrInvalidChannel)
	assert.ErrorIs(t, client.Link(ctx, "KEY", "", "a0", false, false), ErrInvalidChannel)
	assert.ErrorIs(t, client.Presence(ctx, "KEY", "", nil, nil), ErrInvalidChannel)

	_, err := client.Keygen(ctx, "MASTER", "", "rw", 0)
	assert.ErrorIs(t, err, ErrInvalidChannel)

	assert.Empty(t, transport.published)
	assert.Empty(t, transport.subscribed)
}

func TestTransportErrorsAreWrapped(t *testing.T) {
	client, transport := newTestClient()
	transport.err = mqtt.ErrNotConnected
	ctx := context.Background()

	assert.ErrorIs(t, client.Publish(ctx, "KEY", "a", nil), mqtt.ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe(ctx, "KEY", "a"), mqtt.ErrNotConnected)
	assert.ErrorIs(t, client.Unsubscribe(ctx, "KEY", "a"), mqtt.ErrNotConnected)
	assert.ErrorIs(t, client.PublishWithLink(ctx, "a0", nil), mqtt.ErrNotConnected)
	assert.ErrorIs(t, client.Link(ctx, "KEY", "a", "a0", true, true), mqtt.ErrNotConnected)
	assert.ErrorIs(t, client.Presence(ctx, "KEY", "a", nil, nil), mqtt.ErrNotConnected)

	_, err := client.Keygen(ctx, "MASTER", "a/", "rw", 0)
	assert.ErrorIs(t, err, mqtt.ErrNotConnected)
	assert.Zero(t, transport.handlerCount(), "keygen must unregister its reply handler")
}

func TestCancelledContext(t *testing.T) {
	client, transport := newTestClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, client.Publish(ctx, "KEY", "a", nil), context.Canceled)
	assert.ErrorIs(t, client.Subscribe(ctx, "KEY", "a"), context.Canceled)
	assert.ErrorIs(t, client.PublishWithLink(ctx, "a0", nil), context.Canceled)

	_, err := client.Keygen(ctx, "MASTER", "a/", "rw", 0)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, transport.published)
}

func TestPublishWithLink(t *testing.T) {
	client, transport := newTestClient()

	require.NoError(t, client.PublishWithLink(context.Background(), "a0", []byte("hi")))
	got := transport.lastPublished()
	assert.Equal(t, "a0", got.topic)
	assert.Equal(t, []byte("hi"), got.payload)

	assert.ErrorIs(t, client.PublishWithLink(context.Background(), "", nil), ErrInvalidLink)
}

func TestLinkRequest(t *testing.T) {
	client, transport := newTestClient()

	err := client.Link(context.Background(), "KEY", "articles", "a0", true, false, WithTTL(30))
	require.NoError(t, err)

	got := transport.lastPublished()
	assert.Equal(t, "emitter/link/", got.topic)
	assert.JSONEq(t,
		`{"key":"KEY","channel":"KEY/articles/?me=1&ttl=30","name":"a0","private":true,"subscribe":false}`,
		string(got.payload))

	assert.ErrorIs(t, client.Link(context.Background(), "KEY", "articles", "", false, false), ErrInvalidLink)
}

func TestPresenceRequest(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name    string
		status  *bool
		changes *bool
		want    string
	}{
		{"unset", nil, nil, `{"key":"KEY","channel":"articles/","status":null,"changes":null}`},
		{"status only", &yes, nil, `{"key":"KEY","channel":"articles/","status":true,"changes":null}`},
		{"both", &yes, &no, `{"key":"KEY","channel":"articles/","status":true,"changes":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newTestClient()

			require.NoError(t, client.Presence(context.Background(), "KEY", "articles/", tt.status, tt.changes))
			got := transport.lastPublished()
			assert.Equal(t, "emitter/presence/", got.topic)
			assert.Equal(t, tt.want, string(got.payload))
		})
	}
}

func TestKeygen(t *testing.T) {
	client, transport := newTestClient()
	transport.replyOn("emitter/keygen/", "emitter/keygen/",
		`{"status":200,"key":"Gmr1-hRW9eDQvYBHvrapCbWQKL2e-SHm","channel":"article1/"}`)

	key, err := client.Keygen(context.Background(), "MASTER", "article1/", "rw", 10)
	require.NoError(t, err)
	assert.Equal(t, "Gmr1-hRW9eDQvYBHvrapCbWQKL2e-SHm", key)

	require.Len(t, transport.published, 1)
	assert.JSONEq(t, `{"key":"MASTER","channel":"article1/","type":"rw","ttl":10}`,
		string(transport.published[0].payload))
	assert.Zero(t, transport.handlerCount())
}

func TestKeygenFailures(t *testing.T) {
	tests := []struct {
		name       string
		replyTopic string
		reply      string
		want       error
		message    string
	}{
		{
			name:       "non-200 status",
			replyTopic: "emitter/keygen/",
			reply:      `{"status":401,"message":"the security key provided is not authorized"}`,
			want:       ErrRequestFailed,
			message:    "not authorized",
		},
		{
			name:       "broker error",
			replyTopic: "emitter/error/",
			reply:      `{"status":400,"message":"the request was invalid"}`,
			want:       ErrRequestFailed,
			message:    "the request was invalid",
		},
		{
			name:       "malformed reply",
			replyTopic: "emitter/keygen/",
			reply:      `not json`,
			want:       ErrMalformedResponse,
		},
		{
			name:       "malformed error",
			replyTopic: "emitter/error/",
			reply:      `{`,
			want:       ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := newTestClient()
			transport.replyOn("emitter/keygen/", tt.replyTopic, tt.reply)

			_, err := client.Keygen(context.Background(), "MASTER", "a/", "rw", 0)
			require.ErrorIs(t, err, tt.want)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
			assert.Zero(t, transport.handlerCount())
		})
	}
}

func TestKeygenIgnoresUnrelatedMessages(t *testing.T) {
	client, transport := newTestClient()
	transport.onPublish = func(topic string, _ []byte) {
		if topic != "emitter/keygen/" {
			return
		}
		transport.deliver("article1/", []byte("channel traffic"))
		transport.deliver("emitter/keygen/", []byte(`{"status":200,"key":"k"}`))
	}

	key, err := client.Keygen(context.Background(), "MASTER", "article1/", "r", 0)
	require.NoError(t, err)
	assert.Equal(t, "k", key)
}

func TestKeygenTimeout(t *testing.T) {
	client, transport := newTestClient(WithRequestTimeout(20 * time.Millisecond))

	start := time.Now()
	_, err := client.Keygen(context.Background(), "MASTER", "a/", "rw", 0)
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, transport.handlerCount())
}

func TestMe(t *testing.T) {
	client, transport := newTestClient()
	transport.replyOn("emitter/me/", "emitter/me/", `{"id":"Y5NVRRUXJCKD3KPZGUPCEDG4NY","links":{"a0":"article1/"}}`)

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Y5NVRRUXJCKD3KPZGUPCEDG4NY", me.ID)
	assert.Equal(t, map[string]string{"a0": "article1/"}, me.Links)

	got := transport.lastPublished()
	assert.Equal(t, "emitter/me/", got.topic)
	assert.Empty(t, got.payload)
}

func TestMessageHandlers(t *testing.T) {
	client, transport := newTestClient()

	type delivery struct {
		client  *Client
		topic   string
		payload string
	}
	var got []delivery

	id, err := client.AddMessageHandler(func(c *Client, topic string, payload []byte) {
		got = append(got, delivery{c, topic, string(payload)})
	})
	require.NoError(t, err)

	transport.deliver("article1/", []byte("hello world"))
	require.Len(t, got, 1)
	assert.Same(t, client, got[0].client)
	assert.Equal(t, "article1/", got[0].topic)
	assert.Equal(t, "hello world", got[0].payload)

	require.NoError(t, client.RemoveMessageHandler(id))
	assert.Zero(t, transport.handlerCount())

	transport.deliver("article1/", []byte("again"))
	assert.Len(t, got, 1)

	assert.ErrorIs(t, client.RemoveMessageHandler(id), ErrUnknownHandler)
}

func TestAddNilHandlers(t *testing.T) {
	client, _ := newTestClient()

	_, err := client.AddMessageHandler(nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = client.AddLoopHandler(nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestHandlerIDsAreDistinct(t *testing.T) {
	client, _ := newTestClient()
	noop := func(*Client, string, []byte) {}

	a, err := client.AddMessageHandler(noop)
	require.NoError(t, err)
	b, err := client.AddMessageHandler(noop)
	require.NoError(t, err)
	c, err := client.AddLoopHandler(func(*Client, time.Duration) {})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
}

func TestCloseIsRepeatable(t *testing.T) {
	client, transport := newTestClient()

	assert.True(t, client.IsConnected())
	require.NoError(t, client.Close())
	require.NoError(t, client.Disconnect())
	assert.False(t, client.IsConnected())
	assert.Equal(t, 2, transport.closeCalls)
}

func TestHealthCheck(t *testing.T) {
	client, _ := newTestClient()
	require.NoError(t, client.HealthCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.HealthCheck(ctx), context.Canceled)

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.HealthCheck(context.Background()), mqtt.ErrNotConnected)
}

func TestConnectionChangesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")
	transport := newMemTransport()
	client := New(transport, WithLogger(logger))

	transport.drop(errors.New("broker gone"))

	out := buf.String()
	assert.Contains(t, out, "emitter connection lost, reconnecting")
	assert.Contains(t, out, "broker gone")
	assert.Contains(t, out, "reconnected to emitter broker")
	assert.True(t, client.IsConnected())
}

func TestDecodePresenceEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    PresenceEvent
	}{
		{
			name:    "status reply",
			payload: `{"time":1589626821,"event":"status","channel":"a/","who":[{"id":"A","username":"alice"},{"id":"B"}]}`,
			want: PresenceEvent{
				Event: "status", Channel: "a/", Time: 1589626821,
				Who: []PresenceInfo{{ID: "A", Username: "alice"}, {ID: "B"}},
			},
		},
		{
			name:    "change notification",
			payload: `{"time":1589626822,"event":"subscribe","channel":"a/","who":{"id":"C","username":"carol"}}`,
			want: PresenceEvent{
				Event: "subscribe", Channel: "a/", Time: 1589626822,
				Who: []PresenceInfo{{ID: "C", Username: "carol"}},
			},
		},
		{
			name:    "no who",
			payload: `{"event":"status","channel":"a/","who":null}`,
			want:    PresenceEvent{Event: "status", Channel: "a/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePresenceEvent([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}

	_, err := DecodePresenceEvent([]byte(`[`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodeError(t *testing.T) {
	resp, err := DecodeError([]byte(`{"req":0,"status":401,"message":"unauthorized"}`))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.Status)
	assert.Equal(t, "401: unauthorized", resp.Error())

	_, err = DecodeError([]byte(`nope`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "emitter/keygen/", Topics{}.Keygen())
	assert.Equal(t, "emitter/link/", Topics{}.Link())
	assert.Equal(t, "emitter/presence/", Topics{}.Presence())
	assert.Equal(t, "emitter/me/", Topics{}.Me())
	assert.Equal(t, "emitter/error/", Topics{}.Error())

	assert.True(t, IsControl("emitter/error/"))
	assert.False(t, IsControl("article1/"))
}

func TestRequestTypesEncode(t *testing.T) {
	data, err := json.Marshal(KeygenRequest{Key: "M", Channel: "a/", Type: "rwp", TTL: 0})
	require.NoError(t, err)
	assert.Equal(t, `{"key":"M","channel":"a/","type":"rwp","ttl":0}`, string(data))
}
