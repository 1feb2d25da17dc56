package mqtt

// HandlerID identifies a registered default message handler.
type HandlerID uint64

type registeredHandler struct {
	id      HandlerID
	handler MessageHandler
}

// AddMessageHandler registers a handler for every message that is not
// claimed by a subscription with its own handler.
//
// Emitter delivers channel messages on the bare channel topic rather than on
// the key-prefixed subscribe topic, so these handlers see all channel
// traffic as well as replies on emitter/* control topics. Handlers run in
// registration order.
func (c *Client) AddMessageHandler(handler MessageHandler) HandlerID {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	c.nextHandlerID++
	id := c.nextHandlerID
	c.handlers = append(c.handlers, registeredHandler{id: id, handler: handler})
	return id
}

// RemoveMessageHandler unregisters the handler with the given id.
// It reports whether a handler was removed.
func (c *Client) RemoveMessageHandler(id HandlerID) bool {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	for i, h := range c.handlers {
		if h.id == id {
			c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// dispatch delivers a message to a snapshot of the default handlers.
func (c *Client) dispatch(topic string, payload []byte) {
	c.handlerMu.RLock()
	snapshot := make([]registeredHandler, len(c.handlers))
	copy(snapshot, c.handlers)
	c.handlerMu.RUnlock()

	for _, h := range snapshot {
		c.invoke(h.handler, topic, payload)
	}
}
