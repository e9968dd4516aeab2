// hamonitor - Home Assistant dashboard companion service
//
// hamonitor polls Home Assistant over its WebSocket API and derives the data
// behind the dashboard cards: offline devices and entities, pending software
// updates, balance sensors and to-do lists. The derived state is served over
// a REST/WebSocket API and, when enabled, published to MQTT and InfluxDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/hamonitor/internal/api"
	"github.com/nerrad567/hamonitor/internal/audit"
	"github.com/nerrad567/hamonitor/internal/balance"
	"github.com/nerrad567/hamonitor/internal/duedate"
	"github.com/nerrad567/hamonitor/internal/hass"
	"github.com/nerrad567/hamonitor/internal/history"
	"github.com/nerrad567/hamonitor/internal/infrastructure/config"
	"github.com/nerrad567/hamonitor/internal/infrastructure/database"
	"github.com/nerrad567/hamonitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/hamonitor/internal/infrastructure/logging"
	"github.com/nerrad567/hamonitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/hamonitor/internal/metrics"
	"github.com/nerrad567/hamonitor/internal/monitor"
	"github.com/nerrad567/hamonitor/internal/offline"
	"github.com/nerrad567/hamonitor/internal/publish"
	"github.com/nerrad567/hamonitor/internal/todo"
	"github.com/nerrad567/hamonitor/internal/updates"
	"github.com/nerrad567/hamonitor/migrations"
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

// haProbeTimeout bounds the startup reachability check of Home Assistant.
const haProbeTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", getConfigPath(), "path to config.yaml (env HAMONITOR_CONFIG)")
	mintSubject := flag.String("mint-token", "", "print an API token for the given subject and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hamonitor %s (%s, %s)\n", version, commit, date)
		return
	}

	if *mintSubject != "" {
		if err := mintToken(os.Stdout, *configPath, *mintSubject, time.Now()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns HAMONITOR_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("HAMONITOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mintToken writes a signed API token for subject to w. The lifetime is
// security.jwt.token_ttl minutes.
func mintToken(w io.Writer, configPath, subject string, now time.Time) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ttl := time.Duration(cfg.Security.JWT.TokenTTL) * time.Minute
	token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl, now)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: config.yaml location
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting hamonitor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	checks := make(map[string]api.HealthChecker)

	// Home Assistant. The client reconnects lazily, so an unreachable
	// instance at startup only produces unknown polls.
	ha := hass.New(cfg.HomeAssistant)
	ha.SetLogger(log)
	ha.SetOnDisconnect(func(err error) {
		log.Warn("home assistant disconnected", "error", err)
	})
	defer func() {
		log.Info("closing home assistant connection")
		if closeErr := ha.Close(); closeErr != nil {
			log.Error("error closing home assistant connection", "error", closeErr)
		}
	}()
	probeCtx, probeCancel := context.WithTimeout(ctx, haProbeTimeout)
	if pingErr := ha.Ping(probeCtx); pingErr != nil {
		log.Warn("home assistant not reachable yet, polls will retry", "url", cfg.HomeAssistant.URL, "error", pingErr)
	} else {
		log.Info("home assistant connected", "url", cfg.HomeAssistant.URL, "ha_version", ha.Version())
	}
	probeCancel()
	checks["homeassistant"] = ha

	poller := monitor.NewPoller(ha, monitor.Options{
		Interval: cfg.HomeAssistant.PollInterval,
		Offline: offline.NewBuilder(offline.Options{
			ExcludeDevices:  cfg.Cards.Offline.ExcludeDevices,
			ExcludeEntities: cfg.Cards.Offline.ExcludeEntities,
		}),
		Updates: updates.Options{IncludeSkipped: cfg.Cards.Updates.IncludeSkipped},
		Balance: balance.NewReader(balanceEntities(cfg.Cards.Balance.Entities)),
	}, log)

	collector := metrics.NewCollector()
	poller.Subscribe(collector)

	// Database: audit log always, poll history when enabled.
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS, "."); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	checks["database"] = db

	var historyReader api.HistoryReader
	if cfg.History.Enabled {
		repo := history.NewSQLiteRepository(db.DB)
		poller.Subscribe(history.NewRecorder(repo, cfg.History.Retention, log))
		historyReader = repo
		log.Info("poll history enabled", "retention", cfg.History.Retention)
	} else {
		log.Info("poll history disabled")
	}

	// MQTT
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"prefix", mqttClient.Topics().Prefix(),
		)

		poller.Subscribe(publish.NewMQTTPublisher(mqttClient, mqttClient.Topics(), log))
		refreshTopic := mqttClient.Topics().Refresh()
		if subErr := mqttClient.Subscribe(refreshTopic, mqttClient.QoS(), publish.RefreshHandler(poller)); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", refreshTopic, subErr)
		}
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
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

		poller.Subscribe(publish.NewInfluxPublisher(influxClient))
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// API
	formatter := duedate.New(duedate.WithLabels(duedate.LabelsFor(cfg.Cards.Todo.Language)))
	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Cards:    cfg.Cards,
		Logger:   log,
		Monitor:  poller,
		Updates:  updates.NewActions(ha),
		Todo:     todo.NewManager(ha, formatter, cfg.Cards.Todo.Entities),
		History:  historyReader,
		Audit:    audit.NewSQLiteRepository(db.DB),
		Metrics:  collector.Handler(),
		Checks:   checks,
		Version:  version,
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if gaugeErr := collector.RegisterGaugeFunc("hamonitor_websocket_clients",
		"Connected dashboard WebSocket clients.",
		func() float64 { return float64(server.Hub().ClientCount()) },
	); gaugeErr != nil {
		return fmt.Errorf("registering websocket gauge: %w", gaugeErr)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	// Deferred Close() calls run in reverse order: API, InfluxDB, MQTT,
	// database, Home Assistant.
	log.Info("hamonitor stopped")
	return nil
}

func balanceEntities(cfgs []config.BalanceEntityConfig) []balance.Entity {
	out := make([]balance.Entity, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, balance.Entity{EntityID: c.EntityID, Name: c.Name, Warning: c.Warning})
	}
	return out
}
