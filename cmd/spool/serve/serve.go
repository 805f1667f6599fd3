// Package servecmder provides the serve command for running the capture relay.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vivek100/spool/pkg/config"
	"github.com/vivek100/spool/pkg/dotdir"
	"github.com/vivek100/spool/pkg/eventstream"
	"github.com/vivek100/spool/pkg/eventstream/kafka"
	"github.com/vivek100/spool/pkg/logger"
	"github.com/vivek100/spool/pkg/storage"
	"github.com/vivek100/spool/pkg/storage/inmemory"
	"github.com/vivek100/spool/pkg/storage/postgres"
	"github.com/vivek100/spool/pkg/storage/sqlite"
	"github.com/vivek100/spool/relay"
)

type serveCommander struct {
	listen        string
	upstream      string
	provider      string
	storageDriver string
	sqlitePath    string
	postgresURL   string
	workers       uint
	queueSize     uint
	kafkaBrokers  string
	kafkaTopic    string
	debug         bool

	viper  *viper.Viper
	logger *slog.Logger
}

// serveFlags is the flag registry for the serve command. Each entry binds a
// CLI flag to its dotted viper key so flag > env > file > default precedence
// holds without per-flag plumbing.
var serveFlags = config.FlagSet{
	config.FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay to listen on"},
	config.FlagUpstream:      {Name: "upstream", Shorthand: "u", ViperKey: "relay.upstream", Description: "Upstream LLM provider URL"},
	config.FlagProvider:      {Name: "provider", Shorthand: "p", ViperKey: "relay.provider", Description: "LLM provider type (anthropic, openai, ollama)"},
	config.FlagStorageDriver: {Name: "storage-driver", ViperKey: "storage.driver", Description: "Session storage driver (memory, sqlite, postgres)"},
	config.FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: .spool/spool.db)"},
	config.FlagPostgres:      {Name: "postgres", ViperKey: "storage.postgres_url", Description: "Postgres connection URL"},
	config.FlagWorkers:       {Name: "workers", ViperKey: "relay.workers", Description: "Number of capture workers"},
	config.FlagQueueSize:     {Name: "queue-size", ViperKey: "relay.queue_size", Description: "Capture queue capacity"},
	config.FlagKafkaBrokers:  {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma-separated Kafka brokers (empty disables event publishing)"},
	config.FlagKafkaTopic:    {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for session events"},
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagProvider,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagWorkers,
	config.FlagQueueSize,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the spool capture relay.

The relay intercepts all requests and transparently forwards them to the
configured upstream URL. SSE responses stream back to the client verbatim
while their data frames are decoded into records and the completed session
is stored asynchronously.

Supported provider types: anthropic, openai, ollama

Optionally configure Kafka event publishing so downstream consumers learn
about recorded sessions.`

const serveShortDesc string = "Run the spool capture relay"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)

			cmder.viper = v
			cmder.listen = v.GetString("relay.listen")
			cmder.upstream = v.GetString("relay.upstream")
			cmder.provider = v.GetString("relay.provider")
			cmder.storageDriver = v.GetString("storage.driver")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresURL = v.GetString("storage.postgres_url")
			cmder.workers = v.GetUint("relay.workers")
			cmder.queueSize = v.GetUint("relay.queue_size")
			cmder.kafkaBrokers = v.GetString("eventstream.brokers")
			cmder.kafkaTopic = v.GetString("eventstream.topic")

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, serveFlags, config.FlagProvider, &cmder.provider)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgres, &cmder.postgresURL)
	config.AddUintFlag(cmd, serveFlags, config.FlagWorkers, &cmder.workers)
	config.AddUintFlag(cmd, serveFlags, config.FlagQueueSize, &cmder.queueSize)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)

	return cmd
}

func (c *serveCommander) run() error {
	logFile, err := c.openLogFile()
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	c.logger = c.newLogger(logFile)

	driver, err := c.newStorageDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	r, err := relay.New(
		relay.Config{
			ListenAddr:  c.listen,
			UpstreamURL: c.upstream,
			Provider:    c.provider,
			NumWorkers:  c.workers,
			QueueSize:   c.queueSize,
		},
		driver,
		publisher,
		c.logger,
	)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	defer r.Close()

	c.watchConfig()

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := r.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// openLogFile opens relay.log in the resolved .spool/ directory for the JSON
// log stream. Returns nil when the dot directory cannot be resolved; the
// relay then logs to stdout only.
func (c *serveCommander) openLogFile() (*os.File, error) {
	dir, err := dotdir.NewManager().Target("")
	if err != nil || dir == "" {
		return nil, nil
	}

	f, err := os.OpenFile(
		filepath.Join(dir, "relay.log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	return f, nil
}

// newLogger builds the serve logger: pretty output on stdout, plus a JSON
// stream into relay.log when the dot directory is available.
func (c *serveCommander) newLogger(logFile *os.File) *slog.Logger {
	pretty := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
	)

	if logFile == nil {
		return pretty
	}

	return logger.Multi(
		pretty,
		logger.New(
			logger.WithDebug(c.debug),
			logger.WithJSON(true),
			logger.WithWriter(logFile),
		),
	)
}

// watchConfig logs config.toml edits while the relay runs. Changed values
// apply on the next restart; the watch exists so operators can see that the
// running process is stale.
func (c *serveCommander) watchConfig() {
	if c.viper == nil || c.viper.ConfigFileUsed() == "" {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.logger.Info("config file changed, restart to apply",
			"file", e.Name,
			"op", e.Op.String(),
		)
	})
	c.viper.WatchConfig()
}

func (c *serveCommander) newStorageDriver() (storage.Driver, error) {
	switch c.storageDriver {
	case "memory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "sqlite", "":
		path := c.sqlitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().DatabasePath("")
			if err != nil {
				return nil, fmt.Errorf("resolving database path: %w", err)
			}
		}

		driver, err := sqlite.NewDriver(context.Background(), path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case "postgres":
		if c.postgresURL == "" {
			return nil, fmt.Errorf("storage.postgres_url is required for the postgres driver")
		}

		driver, err := postgres.NewDriver(context.Background(), c.postgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres driver: %w", err)
		}
		c.logger.Info("using Postgres storage")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (available: memory, sqlite, postgres)", c.storageDriver)
	}
}

// newPublisher builds the Kafka publisher when brokers are configured.
// Returns nil when event publishing is disabled.
func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	if c.kafkaBrokers == "" {
		return nil, nil
	}

	brokers := strings.Split(c.kafkaBrokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.kafkaTopic,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("kafka event publishing enabled",
		"brokers", brokers,
		"topic", c.kafkaTopic,
	)

	return publisher, nil
}
