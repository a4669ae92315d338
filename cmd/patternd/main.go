// Patternd is the pattern-memory analytics daemon.
//
// It serves similarity-graph analytics, spiking-network simulation, and
// anomaly detection over a reasoning bank's pattern records, with an HTTP
// API and an optional NATS spike event stream.
//
// Usage:
//
//	# Start with defaults (badger store under ./data/patternd)
//	patternd
//
//	# Start with a config file
//	patternd -config /etc/patternd/config.yaml
//
//	# Configure via environment
//	PATTERND_SERVER_PORT=9093 PATTERND_STORE_BACKEND=memory patternd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/analytics"
	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/events"
	httpapi "github.com/fyrsmithlabs/patternd/internal/http"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/search"
	"github.com/fyrsmithlabs/patternd/internal/store"
	"github.com/fyrsmithlabs/patternd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  patternd           Start the patternd daemon\n")
			fmt.Fprintf(os.Stderr, "  patternd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("patternd: %v", err)
	}

	log.Println("shutdown complete")
}

func printVersion() {
	fmt.Printf("patternd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, nil)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting patternd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("nats_enabled", cfg.NATS.Enabled))

	tel, err := telemetry.New(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close(logger)

	opts := []analytics.Option{analytics.WithIndex(deps.index)}
	if deps.publisher != nil {
		opts = append(opts, analytics.WithPublisher(deps.publisher))
	}
	svc, err := analytics.NewService(deps.store, cfg.Engine, cfg.Spiking, logger, opts...)
	if err != nil {
		return fmt.Errorf("initializing analytics service: %w", err)
	}

	srv, err := httpapi.NewServer(svc, logger, &httpapi.Config{
		Host:                 cfg.Server.Host,
		Port:                 cfg.Server.Port,
		MaintenanceRPS:       cfg.Server.MaintenanceRPS,
		AnomalyWindowSeconds: cfg.Anomaly.WindowSeconds,
		AnomalyZThreshold:    cfg.Anomaly.ZThreshold,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// dependencies holds the daemon's infrastructure.
type dependencies struct {
	store      store.Store
	index      *search.Index
	natsServer *natsserver.Server
	natsConn   *nats.Conn
	publisher  *events.Publisher
}

// Close releases infrastructure resources in reverse dependency order.
func (d *dependencies) Close(logger *zap.Logger) {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.natsServer != nil {
		d.natsServer.Shutdown()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.Warn("closing store", zap.Error(err))
		}
	}
}

// initDependencies opens the pattern store, the search index, and the
// optional NATS spike bus.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	switch cfg.Store.Backend {
	case "memory":
		deps.store = store.NewInMemoryStore()
	default:
		st, err := store.NewBadgerStore(store.BadgerOptions{
			Path:       cfg.Store.Path,
			SyncWrites: cfg.Store.SyncWrites,
		})
		if err != nil {
			return nil, fmt.Errorf("opening badger store at %s: %w", cfg.Store.Path, err)
		}
		deps.store = st
	}
	logger.Info("pattern store opened",
		zap.String("backend", cfg.Store.Backend),
		zap.String("path", cfg.Store.Path))

	idx, err := search.NewIndex(cfg.Index, logger)
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	deps.index = idx

	if cfg.NATS.Enabled {
		natsURL := cfg.NATS.URL
		if cfg.NATS.Embedded {
			srv, err := events.StartEmbedded(natsPort(cfg.NATS.URL))
			if err != nil {
				deps.Close(logger)
				return nil, err
			}
			deps.natsServer = srv
			natsURL = srv.ClientURL()
			logger.Info("embedded NATS server started", zap.String("url", natsURL))
		}

		nc, err := events.Connect(natsURL)
		if err != nil {
			deps.Close(logger)
			return nil, err
		}
		deps.natsConn = nc
		deps.publisher = events.NewPublisher(nc, logger)
		logger.Info("spike events enabled", zap.String("url", natsURL))
	}

	return deps, nil
}

// natsPort extracts the port from a NATS URL, falling back to the protocol
// default when the URL carries none.
func natsPort(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 4222
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 {
		return 4222
	}
	return port
}
