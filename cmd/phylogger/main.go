// Package main implements phylogger, a command line recorder for the phyphox
// remote interface. It loads the experiment configuration from the phone,
// selects buffers, optionally starts the measurement, then polls new samples
// at a fixed interval while serving status and metrics over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/phyxlog/cmd/phylogger/config"
	"github.com/HatiCode/phyxlog/cmd/phylogger/logger"
	"github.com/HatiCode/phyxlog/cmd/phylogger/metrics"
	"github.com/HatiCode/phyxlog/cmd/phylogger/router"
	"github.com/HatiCode/phyxlog/pkg/client"
	"github.com/HatiCode/phyxlog/pkg/errors"
	"github.com/HatiCode/phyxlog/pkg/httpx"
	"github.com/HatiCode/phyxlog/pkg/poller"
	"github.com/HatiCode/phyxlog/pkg/query"
	"github.com/HatiCode/phyxlog/pkg/storage"
	"github.com/HatiCode/phyxlog/pkg/transport"
)

const version = "v0.1.0"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	if cfg.Probe {
		if err := probe(cfg, logger); err != nil {
			logger.Error("probe failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("phylogger failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting phylogger",
		"version", version,
		"address", cfg.Address,
		"port", cfg.Port,
		"mode", cfg.Mode,
	)

	mode, err := query.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	specs, err := cfg.Selection()
	if err != nil {
		return err
	}

	phone, err := transport.NewClient(cfg.Address, cfg.Port, transport.Options{
		Protocol: cfg.Protocol,
		Timeout:  cfg.Timeout,
		NoProxy:  cfg.NoProxy,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	p := poller.New(phone, storage.NewMemoryStore(), poller.Options{
		Stacking: cfg.Stack,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta, err := p.RefreshMeta(ctx, false)
	if err != nil {
		m.RecordError("meta", err)
		return err
	}
	if model := meta.Device.DeviceModel; model != nil {
		logger.Info("connected to phone", "model", *model, "sensors", meta.SensorNames())
	}

	exp, err := p.RefreshConfig(ctx, false)
	if err != nil {
		m.RecordError("config", err)
		return err
	}
	logger.Info("experiment loaded", "title", exp.Title(), "groups", len(exp.Groups))

	ok, err := p.Select(specs...)
	if err != nil {
		m.RecordError("selector", err)
		return err
	}
	if !ok {
		return errors.New("invalid buffer selected")
	}

	if cfg.Clear {
		if err := control(ctx, phone.Clear, "clear", m, logger); err != nil {
			return err
		}
	}
	if cfg.Start {
		if err := control(ctx, phone.Start, "start", m, logger); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
			defer cancel()
			if err := control(stopCtx, phone.Stop, "stop", m, logger); err != nil {
				logger.Error("failed to stop measurement", "error", err)
			}
		}()
	}

	rec := NewRecorder(p, m, mode, cfg.Polls, logger)

	g, gctx := errgroup.WithContext(ctx)

	var server *httpx.Server
	if cfg.Listen != "" {
		server = httpx.NewServer(cfg.Listen, router.SetupRoutes(p, reg, 2*cfg.Interval, logger), logger)
		g.Go(server.Start)
	}

	g.Go(func() error {
		err := rec.Run(gctx, cfg.Interval)
		if server != nil {
			if stopErr := server.Stop(10 * time.Second); stopErr != nil {
				logger.Error("server shutdown failed", "error", stopErr)
			}
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// probe queries a running phylogger and fails when it is unreachable or its
// last poll is stale.
func probe(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	res, err := client.NewStatusClientWithTimeout(cfg.StatusURL(), cfg.Timeout).GetStatus(ctx)
	if err != nil {
		return err
	}
	st := res.Status
	logger.Info("phylogger status",
		"title", st.Title,
		"selected", st.Selected,
		"sample_count", st.SampleCount,
		"snapshots", st.Snapshots,
		"overflowed", st.Overflowed,
		"stale", res.Stale,
	)
	if res.Stale {
		return errors.New("last poll is stale")
	}
	return nil
}

// control sends a measurement command and reports a false result as an error.
func control(ctx context.Context, cmd func(context.Context) (bool, error), name string, m *metrics.Metrics, logger *slog.Logger) error {
	ok, err := cmd(ctx)
	if err != nil {
		m.RecordError("control", err)
		return fmt.Errorf("%s measurement: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%s measurement: phone refused the command", name)
	}
	logger.Info("measurement command sent", "command", name)
	return nil
}
