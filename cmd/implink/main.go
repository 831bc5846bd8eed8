// Command implink runs one direction instance of the Implink message
// router: either remote-terminated (forwarding local traffic out to
// third-party clients) or remote-originated (accepting third-party
// traffic and fanning it in locally), per spec §2.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kuiperzone/implink/internal/clientadapter"
	"github.com/kuiperzone/implink/internal/config"
	"github.com/kuiperzone/implink/internal/dispatch"
	"github.com/kuiperzone/implink/internal/logging"
	"github.com/kuiperzone/implink/internal/metrics"
	"github.com/kuiperzone/implink/internal/msgrouter"
	"github.com/kuiperzone/implink/internal/noncecache"
	"github.com/kuiperzone/implink/internal/profile"
	"github.com/kuiperzone/implink/internal/profilestore"
	"github.com/kuiperzone/implink/internal/refresh"
	"github.com/kuiperzone/implink/internal/registry"
	"github.com/kuiperzone/implink/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/implink/implink.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("implink %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("configuration is valid")
		os.Exit(0)
	}

	log, logCloser, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	}()

	if err := run(*configPath, cfg, log); err != nil {
		log.Error("fatal startup error", zap.Error(err))
		os.Exit(1)
	}
}

func run(configPath string, cfg *config.Config, log *zap.Logger) error {
	log.Info("starting implink",
		zap.String("direction", string(cfg.Direction)),
		zap.String("listenAddress", cfg.ListenAddress))

	var store profilestore.Store
	switch cfg.DatabaseKind {
	case "File":
		store = profilestore.NewFileStore(cfg.DatabaseConnection)
	case "MySQL", "Postgres":
		store = profilestore.NewSQLStore(cfg.DatabaseConnection)
	default:
		return fmt.Errorf("unsupported databaseKind %q", cfg.DatabaseKind)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	dispatcher := dispatch.New(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize, log)

	clientFactory := &clientadapter.Factory{Log: log}
	clients := registry.New[*profile.ClientProfile, *clientadapter.Adapter](clientFactory)

	var nonceCache *noncecache.Cache
	if cfg.NonceCache.Enabled {
		var err error
		nonceCache, err = noncecache.New(cfg.NonceCache.Size)
		if err != nil {
			return fmt.Errorf("building nonce cache: %w", err)
		}
	}

	routeFactory := &msgrouter.Factory{
		Clients:       clients,
		WaitOnForward: cfg.WaitOnForward,
		Dispatcher:    dispatcher,
		Log:           log,
		Metrics:       m,
		NonceCache:    nonceCache,
	}
	routes := registry.New[*profile.RouteProfile, *msgrouter.Router](routeFactory)

	remoteOriginated := cfg.Direction == config.DirectionRemoteOriginated
	refresher := refresh.New(store, remoteOriginated, clients, routes, clientFactory, routeFactory, cfg.RefreshInterval, log)

	srv := server.New(cfg, routes, refresher, dispatcher, clients, clientFactory, reg, log)

	watcher, err := config.NewWatcher(configPath, log)
	if err != nil {
		return fmt.Errorf("building config watcher: %w", err)
	}
	watcher.OnChange(func(*config.Config) { refresher.TriggerNow() })
	watcher.OnProfileChange(refresher.TriggerNow)
	if cfg.DatabaseKind == "File" {
		if err := watcher.WatchDir(cfg.DatabaseConnection); err != nil {
			log.Warn("failed to watch profile directory; falling back to periodic refresh only", zap.Error(err))
		}
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}
	defer watcher.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go refresher.Run(refreshCtx)

	return srv.Run(ctx)
}
