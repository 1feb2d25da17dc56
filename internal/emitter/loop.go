package emitter

import (
	"context"
	"time"
)

// Loop runs the registered loop handlers every loop interval until
// Interrupt is called or ctx is done.
//
// Each handler receives the time elapsed since Loop started. Message
// delivery does not depend on Loop; it only drives loop handlers and gives
// callers a place to block. Loop returns nil after Interrupt, ctx.Err()
// when ctx ends, and ErrLoopRunning if another Loop is active.
func (c *Client) Loop(ctx context.Context) error {
	stop, err := c.startLoop()
	if err != nil {
		return err
	}
	defer c.endLoop(stop)

	ticker := time.NewTicker(c.loopInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case now := <-ticker.C:
			// Interrupt wins over a tick that is ready at the same time.
			select {
			case <-stop:
				return nil
			default:
			}

			elapsed := now.Sub(start)
			for _, h := range c.loopHandlers.Values() {
				c.runLoopHandler(h, elapsed)
			}
		}
	}
}

// Interrupt stops a running Loop. It does nothing if no Loop is running.
func (c *Client) Interrupt() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.loopStop != nil {
		close(c.loopStop)
		c.loopStop = nil
	}
}

func (c *Client) startLoop() (chan struct{}, error) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.loopStop != nil {
		return nil, ErrLoopRunning
	}
	c.loopStop = make(chan struct{})
	return c.loopStop, nil
}

func (c *Client) endLoop(stop chan struct{}) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.loopStop == stop {
		c.loopStop = nil
	}
}

func (c *Client) runLoopHandler(h LoopHandler, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("loop handler panic recovered", "panic", r)
		}
	}()
	h(c, elapsed)
}
