// Command server runs the wot grid server: it accepts WebSocket
// connections at /grid, serves Prometheus metrics and a health
// endpoint, and periodically flushes pending edits to a SQLite chunk
// database.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Garmelon/wot/internal/config"
	"github.com/Garmelon/wot/internal/observability"
	"github.com/Garmelon/wot/internal/ratelimit"
	"github.com/Garmelon/wot/internal/serverpool"
	"github.com/Garmelon/wot/internal/serverstore"
	"github.com/Garmelon/wot/internal/session"
	"github.com/Garmelon/wot/internal/validation"
	"github.com/Garmelon/wot/internal/wstransport"
)

const version = "0.1.0"

func main() {
	cfg := config.DefaultServerConfig()

	flag.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "WebSocket listen address")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "metrics/health listen address (empty disables)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the chunk SQLite database")
	flag.DurationVar(&cfg.SavePeriod, "save-period", cfg.SavePeriod, "background flush interval")
	flag.DurationVar(&cfg.MaxAge, "max-age", cfg.MaxAge, "chunk eviction age")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		cfg.DBPath = args[0]
		if len(args) > 1 {
			cfg.ListenAddr = fmt.Sprintf(":%s", args[1])
		}
	}

	if err := validation.ValidateAddr(cfg.ListenAddr); err != nil {
		fmt.Fprintln(os.Stderr, "wot-server:", err)
		os.Exit(1)
	}

	log := observability.NewLogger("wot-server", version, os.Stdout)

	shutdownTracing, err := observability.InitTracing(context.Background(), "wot-server")
	if err != nil {
		log.Fatal(err, "failed to initialize tracing")
	}
	defer shutdownTracing(context.Background())

	store, err := serverstore.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err, "failed to open chunk database")
	}
	defer store.Close()

	metrics := observability.NewMetrics()
	pool := serverpool.New(store, cfg.MaxAge, log, metrics)
	registry := session.NewRegistry()

	health := observability.NewHealthChecker(version)
	health.RegisterCheck("store", observability.DatabaseCheck(store))
	health.RegisterCheck("sessions", observability.RegistrySizeCheck(registry.Len, 1000))
	health.RegisterCheck("chunks", observability.ResidentChunksCheck(pool.Len))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/grid", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wstransport.Upgrade(w, r)
		if err != nil {
			log.Warn("websocket upgrade failed: " + err.Error())
			return
		}
		limiter := ratelimit.NewTokenBucket(cfg.SaveChangesRateLimit, cfg.SaveChangesBurst)
		s := session.New(uuid.NewString(), conn, pool, registry, log, metrics, limiter)
		go func() {
			_ = s.Serve()
		}()
	})
	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsMux.HandleFunc("/healthz", health.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		group.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		pool.Run(gctx, cfg.SavePeriod)
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	if err := group.Wait(); err != nil {
		log.Error(err, "server exited with error")
	}

	pool.Lock()
	if _, err := pool.SaveChanges(); err != nil {
		log.StoreError("final save-changes", err, true)
	}
	pool.Unlock()
	if err := pool.RemoveEmpty(); err != nil {
		log.StoreError("remove-empty", err, true)
	}
}
