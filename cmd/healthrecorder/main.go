package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/healthrecorder/internal/adapter/actor"
	"github.com/berfenger/healthrecorder/internal/config"
	"github.com/berfenger/healthrecorder/internal/core/actor"
	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/port"
	"github.com/berfenger/healthrecorder/internal/core/service"
	"github.com/berfenger/healthrecorder/internal/mqtt"
	"github.com/berfenger/healthrecorder/internal/observability"
	"github.com/berfenger/healthrecorder/internal/persistence"
	"github.com/berfenger/healthrecorder/internal/recorder"
	"github.com/berfenger/healthrecorder/internal/server"
	"github.com/berfenger/healthrecorder/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig(os.Args[1:])
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("starting healthrecorder", zap.String("version", versioninfo.Short()))

	// persistence backend
	repo, closeRepo, err := persistence.NewMachineRepository(context.Background(), cfg.Persistence, logger)
	if err != nil {
		logger.Error("persistence init failed", zap.Error(err))
		os.Exit(1)
	}
	defer closeRepo()

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewSessionMetrics(registry)

	eventStream := &eventstream.EventStream{}
	metrics.Subscribe(eventStream)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	snapshot := &actor.SnapshotCell{}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(eventStream,
			persistenceActorProvider(cfg, repo, logger),
			sessionActorProvider(cfg, snapshot, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("master actor spawn failed", zap.Error(err))
		return
	}

	rec := recorder.NewRecorder(ctx, pid, snapshot)
	server := server.NewServer(*cfg, rec, registry)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	// release the broker link before the actor system goes away
	if _, err := rec.Stop(); err != nil {
		logger.Warn("stop recording on shutdown", zap.Error(err))
	}

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig(args []string) (*config.Config, error) {

	flags := pflag.NewFlagSet("healthrecorder", pflag.ContinueOnError)
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.Uint("port", 8080, "http port")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	// alias PORT => HEALTHREC_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("HEALTHREC_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("healthrec")
	// mqtt.uri => HEALTHREC_MQTT_URI
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlag("port", flags.Lookup("port")); err != nil {
		return nil, err
	}

	// if defined, try to load config from file
	cfgFile, _ := flags.GetString("config")
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func persistenceActorProvider(cfg *config.Config, repo port.MachineRepository, logger *zap.Logger) actor.PersistenceActorProvider {
	return func() *adactor.PersistenceActor {
		return adactor.NewPersistenceActor(repo, cfg.Recorder.PersistTimeout(), logger)
	}
}

func sessionActorProvider(cfg *config.Config, snapshot *actor.SnapshotCell, logger *zap.Logger) actor.SessionActorProvider {
	linkProvider := mqtt.NewBrokerLinkProvider(cfg)
	synthesizer := service.NewReadingSynthesizer(cfg.Recorder.JitterFraction)
	return func(persistenceActor *pactor.PID, eventStream *eventstream.EventStream) *actor.SessionActor {
		return actor.NewSessionActor(cfg, linkProvider, synthesizer, persistenceActor, eventStream, snapshot, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.uri", "tcp://localhost:1883")
	// keys without a default are invisible to Unmarshal, even when set in env
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.client_id_prefix", mqtt.DEFAULT_CLIENT_ID_PREFIX)
	viper.SetDefault("mqtt.clean", true)
	viper.SetDefault("mqtt.reconnect_period_millis", 1000)
	viper.SetDefault("mqtt.connect_timeout_millis", 30000)
	viper.SetDefault("mqtt.operation_timeout_millis", 5000)
	viper.SetDefault("mqtt.health_check_topic", "healthCheck")
	viper.SetDefault("recorder.jitter_fraction", 0.1)
	viper.SetDefault("recorder.min_interval_seconds", config.MIN_INTERVAL_SECONDS)
	viper.SetDefault("recorder.persist_timeout_millis", 5000)
	viper.SetDefault("persistence.backend", config.PERSISTENCE_BACKEND_SQLITE)
	viper.SetDefault("persistence.db_path", "healthrec.db")
	viper.SetDefault("persistence.seed_file", "")
	viper.SetDefault("persistence.base_url", "")
	viper.SetDefault("persistence.timeout_millis", 5000)
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
