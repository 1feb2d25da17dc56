package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/wunderwerk/emitter-go/internal/emitter"
)

// syncWriter serialises writes from message handlers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (s *syncWriter) JSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ignoreCanceled treats interruption by the user as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) keygenCommand() *cobra.Command {
	var (
		keyType string
		ttl     int
	)

	cmd := &cobra.Command{
		Use:   "keygen <master-key> <channel>",
		Short: "Generate a channel key from the master key",
		Long: `Generate a channel key for <channel> from the broker's master key.

The access type is any combination of r (read), w (write), s (store),
l (load), p (presence), e (extend) and x (execute). A ttl of 0 creates a
key that does not expire.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			key, err := client.Keygen(cmd.Context(), args[0], args[1], keyType, ttl)
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyType, "type", "t", "rw", "Access type of the generated key")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Key lifetime in seconds (0 = never expires)")
	return cmd
}

func (a *app) publishCommand() *cobra.Command {
	var (
		ttl  int
		noMe bool
	)

	cmd := &cobra.Command{
		Use:   "publish <channel-key> <channel> <message>",
		Short: "Publish a message to a channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			var opts []emitter.PublishOption
			if ttl > 0 {
				opts = append(opts, emitter.WithTTL(ttl))
			}
			if noMe {
				opts = append(opts, emitter.WithMe(false))
			}

			if err := client.Publish(cmd.Context(), args[0], args[1], []byte(args[2]), opts...); err != nil {
				return err
			}
			logger.Info("message published", "channel", args[1], "bytes", len(args[2]))
			return nil
		},
	}

	cmd.Flags().IntVar(&ttl, "ttl", 0, "Store the message for this many seconds")
	cmd.Flags().BoolVar(&noMe, "no-me", false, "Do not deliver the message back to this connection")
	return cmd
}

func (a *app) subscribeCommand() *cobra.Command {
	var (
		last  int
		count int64
	)

	cmd := &cobra.Command{
		Use:   "subscribe <channel-key> <channel>",
		Short: "Print messages received on a channel until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, _, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			out := &syncWriter{w: cmd.OutOrStdout()}
			var received atomic.Int64

			if _, err := client.AddMessageHandler(func(_ *emitter.Client, topic string, payload []byte) {
				if topic == (emitter.Topics{}).Error() {
					logger.Warn("broker reported error", "payload", string(payload))
					return
				}
				if emitter.IsControl(topic) {
					return
				}
				out.Printf("%s %s\n", topic, payload)
				received.Add(1)
			}); err != nil {
				return err
			}

			if count > 0 {
				if _, err := client.AddLoopHandler(func(c *emitter.Client, _ time.Duration) {
					if received.Load() >= count {
						c.Interrupt()
					}
				}); err != nil {
					return err
				}
			}

			var opts []emitter.SubscribeOption
			if cmd.Flags().Changed("last") {
				opts = append(opts, emitter.WithLast(last))
			}
			if err := client.Subscribe(ctx, args[0], args[1], opts...); err != nil {
				return err
			}
			logger.Info("subscribed, waiting for messages", "channel", args[1])

			loopErr := ignoreCanceled(client.Loop(ctx))

			// ctx may be done; unsubscribe gets its own deadline.
			unsubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := client.Unsubscribe(unsubCtx, args[0], args[1]); err != nil {
				logger.Warn("unsubscribe failed", "channel", args[1], "error", err)
			}
			return loopErr
		},
	}

	cmd.Flags().IntVar(&last, "last", 0, "Replay this many stored messages first")
	cmd.Flags().Int64Var(&count, "count", 0, "Exit after this many messages (0 = run until interrupted)")
	return cmd
}

func (a *app) unsubscribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <channel-key> <channel>",
		Short: "Remove a channel subscription",
		Long: `Remove a subscription held by the configured client id.

The broker keeps subscriptions of persistent sessions across connections,
so this is mainly useful together with a fixed mqtt.broker.client_id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			if err := client.Unsubscribe(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			logger.Info("unsubscribed", "channel", args[1])
			return nil
		},
	}
}

func (a *app) linkCommand() *cobra.Command {
	var (
		private   bool
		subscribe bool
		ttl       int
		noMe      bool
	)

	cmd := &cobra.Command{
		Use:   "link <channel-key> <channel> <name>",
		Short: "Create a short link to a channel",
		Long: `Create a link <name> to <channel> for this connection.

Messages published with "emitterctl publish-link" go to the linked
channel with the options given here. With --subscribe the connection
is also subscribed to the channel.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			var opts []emitter.PublishOption
			if ttl > 0 {
				opts = append(opts, emitter.WithTTL(ttl))
			}
			if noMe {
				opts = append(opts, emitter.WithMe(false))
			}

			if err := client.Link(cmd.Context(), args[0], args[1], args[2], private, subscribe, opts...); err != nil {
				return err
			}
			logger.Info("link requested", "channel", args[1], "link", args[2])
			return nil
		},
	}

	cmd.Flags().BoolVar(&private, "private", false, "Create a private link for this connection")
	cmd.Flags().BoolVar(&subscribe, "subscribe", false, "Also subscribe to the linked channel")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Store linked messages for this many seconds")
	cmd.Flags().BoolVar(&noMe, "no-me", false, "Do not deliver linked messages back to this connection")
	return cmd
}

func (a *app) publishLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-link <link> <message>",
		Short: "Publish a message through a link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			if err := client.PublishWithLink(cmd.Context(), args[0], []byte(args[1])); err != nil {
				return err
			}
			logger.Info("message published", "link", args[0], "bytes", len(args[1]))
			return nil
		},
	}
}

func (a *app) presenceCommand() *cobra.Command {
	var status, changes bool

	cmd := &cobra.Command{
		Use:   "presence <channel-key> <channel>",
		Short: "Show who is subscribed to a channel",
		Long: `Request the presence status of <channel> and print the reply as JSON.

With --changes the command keeps running and prints every join and
leave until interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, cfg, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			out := &syncWriter{w: cmd.OutOrStdout()}
			first := make(chan struct{})
			var once sync.Once

			if _, err := client.AddMessageHandler(func(_ *emitter.Client, topic string, payload []byte) {
				if topic != (emitter.Topics{}).Presence() {
					return
				}
				event, err := emitter.DecodePresenceEvent(payload)
				if err != nil {
					logger.Warn("ignoring presence message", "error", err)
					return
				}
				if err := out.JSON(event); err != nil {
					logger.Error("writing presence event", "error", err)
				}
				once.Do(func() { close(first) })
			}); err != nil {
				return err
			}

			statusFlag := optionalBool(cmd, "status", status)
			changesFlag := optionalBool(cmd, "changes", changes)
			if statusFlag == nil && changesFlag == nil {
				defaultStatus := true
				statusFlag = &defaultStatus
			}

			if err := client.Presence(ctx, args[0], args[1], statusFlag, changesFlag); err != nil {
				return err
			}

			if changesFlag != nil && *changesFlag {
				return ignoreCanceled(client.Loop(ctx))
			}

			select {
			case <-first:
				return nil
			case <-time.After(cfg.GetKeygenTimeout()):
				return fmt.Errorf("waiting for presence reply: %w", emitter.ErrTimeout)
			case <-ctx.Done():
				return ignoreCanceled(ctx.Err())
			}
		},
	}

	cmd.Flags().BoolVar(&status, "status", true, "Request the current subscribers")
	cmd.Flags().BoolVar(&changes, "changes", false, "Follow subscribe and unsubscribe events")
	return cmd
}

// optionalBool returns nil when the flag was not given on the command line.
func optionalBool(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func (a *app) meCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show this connection's id and links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, logger, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			me, err := client.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("requesting connection info: %w", err)
			}
			return (&syncWriter{w: cmd.OutOrStdout()}).JSON(me)
		},
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "emitterctl %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
