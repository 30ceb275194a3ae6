// obsgate is the gateway of a robotic observatory.
//
// It tracks the devices announced on the MQTT device network, exposes
// their typed values over HTTP RPC and WebSocket push, and runs the
// state and value triggers of the rule file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/obsgate/migrations"

	"github.com/nerrad567/obsgate/internal/api"
	"github.com/nerrad567/obsgate/internal/auth"
	"github.com/nerrad567/obsgate/internal/automation"
	"github.com/nerrad567/obsgate/internal/devnet"
	"github.com/nerrad567/obsgate/internal/gateway"
	"github.com/nerrad567/obsgate/internal/infrastructure/config"
	"github.com/nerrad567/obsgate/internal/infrastructure/database"
	"github.com/nerrad567/obsgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/obsgate/internal/infrastructure/logging"
	"github.com/nerrad567/obsgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/obsgate/internal/process"
	"github.com/nerrad567/obsgate/internal/reactor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Spawned program limits.
const (
	spawnTimeout         = 10 * time.Minute
	spawnGracefulTimeout = 5 * time.Second
	shutdownTimeout      = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(exitCode(err))
	}
}

// run starts the gateway and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting obsgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(cfg.Database)
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

	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedUser(ctx, users, cfg.Security.SeedUser, log.Component("auth")); seedErr != nil {
		return fmt.Errorf("seeding user: %w", seedErr)
	}

	loop := reactor.New(nil)
	loop.SetLogger(log.Component("reactor"))

	sessions := auth.NewSessionManager(cfg.Security.TokenSecret, cfg.GetSessionTimeout(), loop.Now)
	authService := auth.NewService(auth.NewVerifier(users), sessions, loop)
	authService.SetLogger(log.Component("auth"))

	spawner := process.NewSpawner(process.Config{
		Timeout:         spawnTimeout,
		GracefulTimeout: spawnGracefulTimeout,
	})
	spawner.SetLogger(log.Component("process"))
	defer func() {
		log.Info("stopping spawned programs", "running", spawner.Running())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := spawner.Shutdown(shutdownCtx); stopErr != nil {
			log.Error("error stopping spawned programs", "error", stopErr)
		}
	}()

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
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

	// Value telemetry is optional.
	var (
		influxClient *influxdb.Client
		sink         automation.ValueSink
	)
	influxClient, err = influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
		influxClient = nil
	case err != nil:
		log.Warn("InfluxDB unavailable, Record actions will fail", "error", err)
		influxClient = nil
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sink = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	hub := api.NewHub(log.Component("push"))
	publisher := &networkPublisher{}

	gw, err := gateway.New(gateway.Config{
		RulesPath:          cfg.Triggers.File,
		MessageCapacity:    cfg.Messages.Capacity,
		Notifications:      cfg.Notifications.Enabled,
		NotificationSender: cfg.Notifications.Sender,
	}, gateway.Deps{
		Loop:        loop,
		Auth:        authService,
		Spawner:     spawner,
		Publisher:   publisher,
		Sink:        sink,
		Broadcaster: hub,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	gw.SetLogger(log.Component("gateway"))
	spawner.OnExit(gw.ProcessExited)

	network := devnet.New(mqttClient, loop, gw.Registry(), gw, devnet.Config{
		QoS: byte(cfg.MQTT.QoS),
	})
	network.SetLogger(log.Component("devnet"))
	publisher.network = network

	// The reactor owns all gateway state from here on.
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	go hub.Run(loopCtx)

	if cfg.Triggers.File != "" {
		n, reloadErr := gw.ReloadTriggers(ctx)
		if reloadErr != nil {
			return fmt.Errorf("loading triggers: %w", reloadErr)
		}
		log.Info("triggers loaded", "path", cfg.Triggers.File, "count", n)
	} else {
		log.Info("no trigger file configured")
	}

	if startErr := network.Start(loopCtx); startErr != nil {
		return fmt.Errorf("starting device network: %w", startErr)
	}
	defer func() {
		log.Info("stopping device network")
		network.Close()
	}()

	metrics := api.MetricsSource{
		MQTT:         mqttClient.Stats,
		DeviceCounts: deviceCounts(loop, gw),
		DB:           db.DB,
	}
	if influxClient != nil {
		metrics.Telemetry = func() (uint64, uint64) {
			st := influxClient.Stats()
			return st.Queued, st.FailedWrites
		}
	}

	server, err := api.New(api.Deps{
		Config:   cfg.RPC,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		RPC:      gw.Dispatcher(),
		Sessions: authService,
		Hub:      hub,
		Metrics:  metrics,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting api server: %w", startErr)
	}
	defer func() {
		log.Info("stopping api server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping api server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Info("initialisation complete, waiting for shutdown signal")

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			return nil
		case <-hup:
			reloadLogLevel(log, configPath)
			n, reloadErr := gw.ReloadTriggers(ctx)
			if reloadErr != nil {
				log.Error("trigger reload failed, keeping previous rules", "error", reloadErr)
				continue
			}
			log.Info("triggers reloaded", "count", n)
		}
	}
}

// reloadLogLevel applies the logging level from the config file. Other
// settings need a restart.
func reloadLogLevel(log *logging.Logger, path string) {
	fresh, err := config.Load(path)
	if err != nil {
		log.Warn("config reload failed, keeping log level", "path", path, "error", err)
		return
	}
	if prev := log.SetLevel(fresh.Logging.Level); prev != log.Level() {
		log.Info("log level changed", "from", prev.String(), "to", log.Level().String())
	}
}

// getConfigPath returns the configuration file path.
// Uses OBSGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OBSGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when telemetry is off.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// deviceCounts reads the registry and trigger totals on the reactor.
func deviceCounts(loop *reactor.Reactor, gw *gateway.Gateway) func(context.Context) (int, int, error) {
	return func(ctx context.Context) (int, int, error) {
		var devices, triggers int
		err := loop.Do(ctx, func() {
			devices = gw.Registry().Count()
			triggers = gw.Engine().Count()
		})
		return devices, triggers, err
	}
}

// networkPublisher forwards notifications to the device network, which is
// built after the gateway because it needs the gateway's registry.
// network is set before the reactor starts and never changes afterwards.
type networkPublisher struct {
	network *devnet.Network
}

// Publish implements automation.Publisher.
func (p *networkPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if p.network == nil {
		return errors.New("device network not started")
	}
	return p.network.Publish(topic, payload, qos, retained)
}
