package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/wunderwerk/emitter-go/internal/emitter"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/config"
	"github.com/wunderwerk/emitter-go/internal/infrastructure/logging"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names a config file when --config is not given.
const configEnv = "EMITTER_CONFIG"

// dialFunc connects an emitter client. Tests replace it.
type dialFunc func(cfg *config.Config, logger *logging.Logger) (*emitter.Client, error)

// app holds the state shared by all commands.
type app struct {
	configPath string
	dial       dialFunc
	out        io.Writer
}

func newApp() *app {
	return &app{
		dial: emitter.Dial,
		out:  os.Stdout,
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "emitterctl",
		Short: "Command-line client for emitter.io brokers",
		Long: `emitterctl talks to an emitter.io broker over MQTT.

Channels are addressed with a channel key. Generate one from the master
key with "emitterctl keygen", then publish and subscribe with it:

  emitterctl keygen <master-key> articles/ --type rw
  emitterctl subscribe <channel-key> articles/
  emitterctl publish <channel-key> articles/ "hello"

Connection settings come from the config file and EMITTER_* environment
variables (EMITTER_HOST, EMITTER_PORT, EMITTER_USERNAME, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "Path to the configuration file")

	root.AddCommand(
		a.keygenCommand(),
		a.publishCommand(),
		a.subscribeCommand(),
		a.unsubscribeCommand(),
		a.linkCommand(),
		a.publishLinkCommand(),
		a.presenceCommand(),
		a.meCommand(),
		a.recordCommand(),
		a.migrateCommand(),
		a.versionCommand(),
	)

	return root
}

// resolveConfigPath picks the config file to load.
//
// An explicit --config must exist. Otherwise EMITTER_CONFIG is used, and
// a missing default file means running on defaults and environment only.
func resolveConfigPath(cmd *cobra.Command, path string) (string, error) {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return path, nil
	}
	if env := os.Getenv(configEnv); env != "" {
		return env, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("checking config file: %w", err)
	}
	return path, nil
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	path, err := resolveConfigPath(cmd, a.configPath)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	if path != "" {
		logger.Debug("configuration loaded", "path", path)
	}
	return cfg, logger, nil
}

// connect loads the configuration and dials the broker.
func (a *app) connect(cmd *cobra.Command) (*emitter.Client, *config.Config, *logging.Logger, error) {
	cfg, logger, err := a.setup(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := a.dial(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to emitter: %w", err)
	}
	return client, cfg, logger, nil
}

// closeClient disconnects and logs failures.
func closeClient(client *emitter.Client, logger *logging.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("error closing emitter connection", "error", err)
	}
}
