// notesnookd serves an encrypted notes database over a local HTTP API.
//
// The database is opened at startup but stays locked until the vault key is
// applied, either from NOTESNOOK_VAULT_PASSPHRASE or through
// POST /api/v1/unlock. Schema migrations run once the database answers
// queries.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/Keekuk/notesnook/migrations"

	"github.com/Keekuk/notesnook/internal/api"
	"github.com/Keekuk/notesnook/internal/audit"
	"github.com/Keekuk/notesnook/internal/auth"
	"github.com/Keekuk/notesnook/internal/infrastructure/config"
	"github.com/Keekuk/notesnook/internal/infrastructure/database"
	"github.com/Keekuk/notesnook/internal/infrastructure/influxdb"
	"github.com/Keekuk/notesnook/internal/infrastructure/logging"
	"github.com/Keekuk/notesnook/internal/infrastructure/mqtt"
	"github.com/Keekuk/notesnook/internal/note"
	"github.com/Keekuk/notesnook/internal/vault"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath     string
	showVersion    bool
	issueToken     bool
	deleteDatabase bool
}

// parseFlags parses args into options.
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("notesnookd", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version information and exit")
	fs.BoolVar(&opts.issueToken, "issue-token", false, "print an API access token signed with the configured secret and exit")
	fs.BoolVar(&opts.deleteDatabase, "delete-database", false, "delete the database file and its journals, then exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "notesnookd %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	switch {
	case opts.issueToken:
		return issueToken(cfg, stdout)
	case opts.deleteDatabase:
		return deleteDatabase(ctx, cfg, logging.New(cfg.Logging, version))
	}

	return serve(ctx, cfg)
}

// issueToken prints a fresh access token.
func issueToken(cfg *config.Config, stdout io.Writer) error {
	if !cfg.AuthEnabled() {
		return errors.New("security.jwt.secret is not set; authentication is disabled")
	}
	token, err := auth.GenerateAccessToken("local", cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

// deleteDatabase removes the database file without opening it.
func deleteDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	conn := database.NewConnection(newEngine(cfg))
	conn.SetLogger(log)
	conn.SetDeleteRetryDelay(cfg.Database.DeleteRetryDelay)

	if err := conn.Delete(ctx, cfg.Database.Path); err != nil {
		return fmt.Errorf("deleting database: %w", err)
	}
	log.Info("database deleted", "path", cfg.Database.Path)
	return nil
}

func newEngine(cfg *config.Config) *database.SQLiteEngine {
	return database.NewSQLiteEngine(database.SQLiteConfig{
		ExtensionDir: cfg.Database.ExtensionDir,
		BusyTimeout:  cfg.Database.BusyTimeout,
		Unsafe:       cfg.Database.Unsafe,
		Encrypted:    cfg.Vault.Enabled,
	})
}

// serve runs the daemon until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.New(cfg.Logging, version)
	log.Info("starting notesnookd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var statePub *mqtt.StatePublisher
	if cfg.MQTT.Enabled {
		var err error
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// Stops after the database closes, so "closed" is still published.
		statePub = mqtt.NewStatePublisher(mqttClient, func(err error) {
			log.Warn("publishing database state failed", "error", err)
		})
		statePub.Start()
		defer statePub.Stop()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var err error
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub outlives the API server so database state changes
	// can be broadcast from the first Open.
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(hubCtx)

	conn := database.NewConnection(newEngine(cfg))
	conn.SetLogger(log)
	conn.SetDeleteRetryDelay(cfg.Database.DeleteRetryDelay)
	conn.SetOnStateChange(stateChangeHook(log, hub, statePub, influxClient))
	if influxClient != nil {
		conn.SetOnQuery(func(s database.QueryStats) {
			influxClient.WriteQueryMetric(influxdb.QueryMetric{
				Kind:     s.Kind,
				Duration: s.Duration,
				Rows:     s.Rows,
				Failed:   s.Failed,
			})
		})
	}

	if err := conn.Open(ctx, cfg.Database.Path); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database opened", "path", cfg.Database.Path)

	auditRepo := audit.NewSQLiteRepository(conn)

	var unlocker *vault.Unlocker
	if cfg.Vault.Enabled {
		v, err := vault.Open(cfg.Vault.Path)
		if err != nil {
			return fmt.Errorf("opening vault: %w", err)
		}
		unlocker = &vault.Unlocker{Vault: v, DB: conn, AfterUnlock: conn.Migrate}

		if cfg.Vault.Passphrase != "" {
			if err := unlocker.Unlock(ctx, cfg.Vault.Passphrase); err != nil {
				return fmt.Errorf("unlocking database: %w", err)
			}
			log.Info("database unlocked from environment")
			if err := auditRepo.Create(ctx, &audit.AuditLog{
				Action:     audit.ActionUnlock,
				EntityType: audit.EntityDatabase,
				Source:     "env",
			}); err != nil {
				log.Warn("recording audit entry failed", "error", err)
			}
		} else {
			log.Info("database locked, waiting for POST /api/v1/unlock")
		}
	} else {
		if err := conn.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database migrations complete")
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		DB:       conn,
		Notes:    note.NewSQLiteRepository(conn),
		Audit:    auditRepo,
		Hub:      hub,
		Version:  version,
	}
	if unlocker != nil {
		deps.Unlocker = unlocker
	}
	if mqttClient != nil {
		deps.Events = mqttClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if !cfg.AuthEnabled() {
		log.Warn("API authentication disabled, keep the listener on loopback",
			"address", server.Addr(),
		)
	}

	if err := healthCheck(ctx, conn, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// stateChangeHook fans database lifecycle changes out to the WebSocket hub,
// MQTT and InfluxDB. It runs under the connection lock, so MQTT changes are
// only queued; the StatePublisher sends them in order.
func stateChangeHook(log *logging.Logger, hub *api.Hub, statePub *mqtt.StatePublisher, influxClient *influxdb.Client) func(database.StateChange) {
	return func(change database.StateChange) {
		log.Info("database state changed", "state", change.State)
		hub.BroadcastDatabaseState(change)

		if influxClient != nil {
			influxClient.WriteDatabaseState(string(change.State), change.State == database.StateReady && len(change.Extensions) > 0)
		}
		if statePub != nil {
			statePub.Enqueue(string(change.State), change.Path, change.Extensions)
		}
	}
}

// getConfigPath returns the default configuration file path.
// Uses NOTESNOOK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NOTESNOOK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the open connections.
// A locked database is healthy; it only has to be open.
func healthCheck(ctx context.Context, conn *database.Connection, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if conn.State() == database.StateReady {
		if err := conn.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
