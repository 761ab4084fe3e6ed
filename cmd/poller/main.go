package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speedwagon-io/icinga-status/internal/buffer"
	"github.com/speedwagon-io/icinga-status/internal/config"
	"github.com/speedwagon-io/icinga-status/internal/health"
	"github.com/speedwagon-io/icinga-status/internal/icinga"
	"github.com/speedwagon-io/icinga-status/internal/lib/logger/sl"
	"github.com/speedwagon-io/icinga-status/internal/poller"
	"github.com/speedwagon-io/icinga-status/internal/sender"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log events instead of sending")
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting icinga status poller",
		slog.String("env", cfg.Env),
		slog.String("base_uri", cfg.Icinga.BaseURI),
		slog.Duration("refresh_rate", cfg.Icinga.RefreshRate),
		slog.Bool("dry_run", *dryRun),
	)

	if cfg.Source == "" {
		log.Warn("no config file found, using environment and defaults")
	}
	if cfg.Icinga.BaseURI == "" || cfg.Icinga.AuthKey == "" {
		log.Warn("icinga base_uri or authkey is empty, polls will fail until configured")
	}

	fetcher := icinga.NewFetcher(log, cfg.Icinga.Timeout, cfg.Icinga.InsecureSkipVerify)
	defer fetcher.Close()

	var eventSender sender.Sender
	switch {
	case *dryRun || cfg.Sender.Kind == "log":
		eventSender = sender.NewLogSender(log)
		log.Info("events will be logged instead of sent")
	case cfg.Sender.Kind == "nats":
		natsSender, err := sender.NewNATSSender(log, cfg.Sender.URL, cfg.Sender.SubjectPrefix)
		if err != nil {
			log.Error("failed to create nats sender", sl.Err(err))
			os.Exit(1)
		}
		defer natsSender.Close()
		eventSender = natsSender
	default:
		eventSender = sender.NewHTTPSender(log, &cfg.Sender)
	}

	var buf buffer.Buffer
	if cfg.Buffer.Enabled && !*dryRun {
		sqliteBuf, err := buffer.NewSQLiteBuffer(log, cfg.Buffer.Path)
		if err != nil {
			log.Error("failed to create buffer", sl.Err(err))
			os.Exit(1)
		}
		buf = sqliteBuf
		log.Info("buffer enabled", slog.String("path", cfg.Buffer.Path))
	}

	manager := poller.NewManager(log, cfg, poller.DefaultTargets(cfg.Icinga), fetcher, eventSender, buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		err := manager.RunCycle(ctx)
		closeBuffer(log, buf)
		if err != nil {
			log.Error("poll cycle failed", sl.Err(err))
			os.Exit(1)
		}
		return
	}

	healthServer := health.NewServer(log, cfg.Health.Address)
	healthServer.AddChecker(health.NewDashboardChecker(eventSender.Health))
	healthServer.AddChecker(health.NewPollerChecker(manager.LastCycle, 3*cfg.Icinga.RefreshRate))
	if buf != nil {
		healthServer.AddChecker(health.NewSpoolChecker(buf.Count))
	}

	if err := healthServer.Start(); err != nil {
		log.Error("failed to start health server", sl.Err(err))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	manager.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	manager.Stop()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop health server", sl.Err(err))
	}

	closeBuffer(log, buf)

	log.Info("poller stopped")
}

func closeBuffer(log *slog.Logger, buf buffer.Buffer) {
	if buf == nil {
		return
	}
	if err := buf.Close(); err != nil {
		log.Error("failed to close buffer", sl.Err(err))
	}
}
