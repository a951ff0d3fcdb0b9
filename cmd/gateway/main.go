// Command gateway is the PageGate paging-network gateway process.
// It loads configuration, initialises node identity and the record store,
// and starts the transmitter and REST listeners.
//
// Usage:
//
//	gateway [--config path/to/config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hampager/pagegate/internal/beacon"
	"github.com/hampager/pagegate/internal/bridge"
	"github.com/hampager/pagegate/internal/config"
	"github.com/hampager/pagegate/internal/gateway"
	"github.com/hampager/pagegate/internal/metrics"
	"github.com/hampager/pagegate/internal/model"
	"github.com/hampager/pagegate/internal/node"
	transphttp "github.com/hampager/pagegate/internal/transport/http"
	transptcp "github.com/hampager/pagegate/internal/transport/tcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pagegate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── 2. Set up structured logger ──────────────────────────────────────────
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// ── 3. Initialise node identity ──────────────────────────────────────────
	n, err := node.New(cfg.Node.DataDir, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("init node: %w", err)
	}

	slog.Info("pagegate starting",
		"node_id", n.ID(),
		"gateway_port", cfg.Gateway.Port,
		"http_port", cfg.HTTP.Port,
		"data_dir", n.DataDir(),
	)

	// ── 4. Open record store and repository ──────────────────────────────────
	store, err := model.OpenStore(filepath.Join(n.DataDir(), "records.db"))
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	repo, err := model.OpenRepository(store)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	// ── 5. Initialise metrics registry ───────────────────────────────────────
	var metricsReg *metrics.Registry
	if cfg.Metrics.Enabled {
		metricsReg = &metrics.Registry{}
	}

	// ── 6. Initialise gateway ────────────────────────────────────────────────
	var gwOpts []gateway.Option
	if metricsReg != nil {
		gwOpts = append(gwOpts, gateway.WithMetrics(metricsReg))
	}
	gw, err := gateway.New(repo, gwOpts...)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 7. Start transmitter TCP listener ────────────────────────────────────
	handshakeTimeout, err := cfg.Gateway.ParseHandshakeTimeout()
	if err != nil {
		return fmt.Errorf("invalid handshake timeout: %w", err)
	}
	tcpAddr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	tcpSrv := transptcp.NewServer(gw, tcpAddr, handshakeTimeout)
	tcpErr := make(chan error, 1)
	go func() {
		tcpErr <- tcpSrv.ListenAndServe(ctx)
	}()

	// ── 8. Start HTTP / WebSocket transport ──────────────────────────────────
	srv := transphttp.New(gw, cfg, n.ID().String(), metricsReg)
	httpAddr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("pagegate ready", "node_id", n.ID(), "addr", httpAddr)
		if err := srv.ListenAndServe(httpAddr); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	// ── 9. Start time beacon ─────────────────────────────────────────────────
	if cfg.Beacon.Enabled {
		interval, err := cfg.Beacon.ParseInterval()
		if err != nil {
			return fmt.Errorf("invalid beacon interval: %w", err)
		}
		loc, err := cfg.Beacon.Location()
		if err != nil {
			return fmt.Errorf("invalid beacon timezone: %w", err)
		}
		go func() {
			if err := beacon.New(gw, interval, loc).Run(ctx); err != nil {
				slog.Warn("beacon stopped", "err", err)
			}
		}()
	}

	// ── 10. Start legacy broker bridge ───────────────────────────────────────
	var br *bridge.Bridge
	if cfg.Bridge.Enabled {
		br, err = bridge.Dial(cfg.Bridge.URL, cfg.Bridge.Exchange, gw)
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		for _, tx := range repo.ListTransmitters() {
			if err := br.Subscribe(tx.Name); err != nil {
				slog.Warn("bridge subscribe failed", "transmitter", tx.Name, "err", err)
			}
		}
	}

	// ── 11. Graceful shutdown on SIGINT / SIGTERM ────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-serveErr:
		cancel()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case err := <-tcpErr:
		cancel()
		if err != nil {
			return fmt.Errorf("tcp server: %w", err)
		}
		return nil
	}

	// Give in-flight requests 5 seconds to complete.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()

	cancel()
	if br != nil {
		if err := br.Close(); err != nil {
			slog.Warn("bridge close error", "err", err)
		}
	}
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	<-tcpErr

	slog.Info("pagegate stopped")
	return nil
}
