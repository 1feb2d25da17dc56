// Package mqtt provides the MQTT transport used to talk to an emitter broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS validation and timeouts
//   - Topic subscriptions, restored after a reconnect
//   - Fan-out of unrouted messages to registered default handlers
//
// # Routing
//
// Emitter subscriptions are made with key-prefixed topics such as
// "KEY/article1/?last=5", but messages are delivered on the bare channel
// ("article1/"). Paho's router matches on the subscribed filter, so those
// messages never reach a per-subscription callback. Subscribe with a nil
// handler instead and register default handlers with AddMessageHandler;
// every message that matches no route is passed to each of them.
//
// Responses to control requests (emitter/keygen/, emitter/me/, ...) and
// server errors (emitter/error/) arrive the same way.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	id := client.AddMessageHandler(func(topic string, payload []byte) error {
//	    log.Printf("%s: %s", topic, payload)
//	    return nil
//	})
//	defer client.RemoveMessageHandler(id)
//
//	err = client.Subscribe("KEY/article1/", 0, nil)
package mqtt
