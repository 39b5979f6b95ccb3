package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"automata/internal/api"
	"automata/internal/config"
	"automata/internal/events"
	"automata/internal/fetch"
	"automata/internal/loader"
	"automata/internal/logging"
	"automata/internal/luaenv"
	"automata/internal/mirror"
	"automata/internal/mqtt"
	"automata/internal/registry"
	"automata/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load environment variables before the config so they can override it
	envErr := godotenv.Load()

	configPath := os.Getenv("AUTOMATA_CONFIG")
	if configPath == "" {
		configPath = "automata.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Automata host failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting automata host",
		zap.String("store", cfg.Store.Backend),
		zap.Int("port", cfg.HTTP.Port),
		zap.Bool("mqtt", cfg.MQTT.Enabled))

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	settings := store.NewSettings(st)
	if len(cfg.Loader.URLs) > 0 {
		seeded, err := settings.SeedURLs(ctx, cfg.Loader.URLs)
		if err != nil {
			return fmt.Errorf("seeding package urls: %w", err)
		}
		if seeded {
			logger.Info("Seeded package URLs from config", zap.Int("urls", len(cfg.Loader.URLs)))
		}
	}

	bus := events.NewBus(logger, nil)

	hub := api.NewHub(logger)
	bus.Subscribe(hub.Publish)

	if cfg.MQTT.Enabled {
		pub, err := mqtt.Connect(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger)
		if err != nil {
			// Events still reach the log and websocket clients.
			logger.Error("MQTT disabled", zap.Error(err))
		} else {
			bus.Subscribe(pub.Publish)
			defer pub.Close()
		}
	}

	namespace := mirror.NewNamespace()
	env := luaenv.NewEnvironment(logger,
		luaenv.WithExecTimeout(cfg.Lua.ExecTimeout),
		luaenv.WithNamespace(namespace))

	reg := registry.New(registry.Config{
		Executor:     env,
		Events:       bus,
		Mirror:       namespace,
		RestartDelay: cfg.Loader.RestartDelay,
		Logger:       logger,
	})

	ld := loader.New(loader.Config{
		Registry: reg,
		Fetcher:  fetch.New(cfg.Loader.FetchTimeout),
		Settings: settings,
		Events:   bus,
		Logger:   logger,
	})

	server := api.NewServer(reg, ld, settings, hub, logger, cfg.HTTP.Port)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	if cfg.Loader.LoadOnStart {
		n, err := ld.LoadAll(ctx)
		if err != nil {
			logger.Warn("Some packages failed to load", zap.Error(err))
		}
		logger.Info("Initial load complete", zap.Int("automata_loaded", n))
	}

	logger.Info("Automata host running. Press Ctrl+C to exit.")
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}
	shutdownAll(reg, logger)
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendRedis:
		return store.NewRedisStore(ctx, store.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return store.OpenSQLite(cfg.SQLitePath)
	}
}

// shutdownAll tears automata down in reverse load order, killing any whose
// teardown fails.
func shutdownAll(reg *registry.Registry, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	names := reg.List()
	for i := len(names) - 1; i >= 0; i-- {
		if err := reg.Shutdown(ctx, names[i]); err != nil {
			logger.Warn("Teardown failed, killing automaton",
				zap.String("automaton", names[i]),
				zap.Error(err))
			reg.Kill(names[i])
		}
	}
}
