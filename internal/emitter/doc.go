// Package emitter is a client for emitter.io brokers.
//
// Emitter is an MQTT broker whose access control is carried in the topic:
// every channel operation is prefixed with a channel key and may carry
// options in a query suffix, for example "KEY/articles/?me=0&ttl=60".
// FormatChannel builds those topics. Keys, links and presence are managed
// through JSON requests published on emitter/* control topics, and the
// broker replies on the same topics.
//
// The Client layers these conventions over the mqtt transport:
//   - Publish, Subscribe and Unsubscribe format channel topics
//   - Keygen and Me publish a request and wait for the reply
//   - Link and Presence publish requests whose replies reach message handlers
//   - Loop drives periodic loop handlers until interrupted
//
// Message handlers receive every message delivered to the connection,
// including control replies and broker errors on emitter/error/. Use
// IsControl to tell them apart from channel traffic.
//
// # Usage
//
//	client, err := emitter.Dial(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	key, err := client.Keygen(ctx, masterKey, "articles/", "rw", 0)
//	if err != nil {
//	    return err
//	}
//
//	client.AddMessageHandler(func(c *emitter.Client, topic string, payload []byte) {
//	    fmt.Printf("%s: %s\n", topic, payload)
//	})
//	err = client.Subscribe(ctx, key, "articles/", emitter.WithLast(5))
package emitter
