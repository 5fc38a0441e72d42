// Gray Serial Bridge - Arduino to WebSocket relay
//
// This is the main entry point for the Gray Serial Bridge daemon.
// The bridge connects a line-oriented serial device (typically an Arduino)
// to WebSocket clients, with optional MQTT mirroring, InfluxDB telemetry,
// and a SQLite link event log.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-serial-bridge/migrations"

	"github.com/nerrad567/gray-serial-bridge/internal/api"
	"github.com/nerrad567/gray-serial-bridge/internal/bridge"
	"github.com/nerrad567/gray-serial-bridge/internal/eventlog"
	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-serial-bridge/internal/link"
	"github.com/nerrad567/gray-serial-bridge/internal/mirror"
	"github.com/nerrad567/gray-serial-bridge/internal/telemetry"
	"github.com/nerrad567/gray-serial-bridge/internal/ws"
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

// cliFlags holds command-line overrides. Flags beat environment variables,
// which beat the config file.
type cliFlags struct {
	configPath string
	serialPort string
	baudRate   int
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "path to configuration file")
	flag.StringVar(&f.serialPort, "serial-port", "", "serial device path (overrides config)")
	flag.IntVar(&f.baudRate, "baudrate", 0, "serial baud rate (overrides config)")
	flag.Parse()
	return f
}

func main() {
	flags := parseFlags()

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - flags: Parsed command-line overrides
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, flags cliFlags) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Serial Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath(flags)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Apply command-line overrides
	if flags.serialPort != "" {
		cfg.Serial.Port = flags.serialPort
	}
	if flags.baudRate > 0 {
		cfg.Serial.BaudRate = flags.baudRate
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open event log database (optional)
	var db *database.DB
	var eventRepo *eventlog.SQLiteRepository
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		eventRepo = eventlog.NewSQLiteRepository(db.DB)
	} else {
		log.Info("event log disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var mir *mirror.Mirror
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		mir = mirror.New(mqttClient, byte(cfg.MQTT.QoS), mirror.WithLogger(log)) //nolint:gosec // QoS validated to 0..2
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var recorder *telemetry.Recorder
	if cfg.InfluxDB.Enabled {
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		recorder = telemetry.NewRecorder(influxClient, log)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Set up the serial link manager
	linkManager := link.NewManager(link.Config{
		Port:              cfg.Serial.Port,
		BaudRate:          cfg.Serial.BaudRate,
		ReadTimeout:       cfg.Serial.GetReadTimeout(),
		ReconnectInterval: cfg.Serial.GetReconnectInterval(),
	})
	linkManager.SetLogger(log)

	if recorder != nil {
		linkManager.OnStatusChange(func(connected bool) {
			recorder.RecordLinkTransition(cfg.Serial.Port, connected)
		})
	}

	// Client registry and bridge router
	registry := ws.NewRegistry(cfg.WebSocket.MaxConnections, log)

	routerOpts := []bridge.RouterOption{bridge.WithLogger(log)}
	if mir != nil {
		routerOpts = append(routerOpts, bridge.WithMirror(mir))
	}
	if recorder != nil {
		routerOpts = append(routerOpts, bridge.WithTelemetry(recorder))
	}
	if eventRepo != nil {
		routerOpts = append(routerOpts, bridge.WithEventSink(eventRepo))
	}
	router := bridge.NewRouter(linkManager, registry, routerOpts...)

	router.Start(ctx)
	defer router.Stop()
	log.Info("bridge router started",
		"serial_port", cfg.Serial.Port,
		"baudrate", cfg.Serial.BaudRate,
	)

	// Forward MQTT command topics to the serial device
	if mir != nil {
		if subErr := mir.SubscribeCommands(router.Publish); subErr != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", subErr)
		}
		log.Info("MQTT command forwarding active")
	}

	// Start the API server
	var eventStore api.EventStore
	if eventRepo != nil {
		eventStore = eventRepo
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Bridge:   router,
		Registry: registry,
		Events:   eventStore,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stop accepting clients)
	// 2. Bridge router (reconnect loop, ingress pump, serial link)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database (if enabled)

	log.Info("Gray Serial Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Precedence: --config flag, GRAYBRIDGE_CONFIG environment variable, default.
func getConfigPath(flags cliFlags) string {
	if flags.configPath != "" {
		return flags.configPath
	}
	if path := os.Getenv("GRAYBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all enabled infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil if disabled)
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - server: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
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

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Serial link health is not gated here: the bridge is expected to run
	// degraded while the device is unplugged, reconnecting in the background.

	return nil
}
