package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eth-scalper/internal/engine"
	"eth-scalper/internal/eod"
	"eth-scalper/internal/journal"
	"eth-scalper/internal/logger"
	"eth-scalper/internal/server"
	"eth-scalper/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = trace.Shutdown(context.Background()) }()

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}
	compressOldLogs(ctx, cfg)

	js, err := journal.Open(cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open journal", err, "backend", cfg.Journal.Backend, "path", cfg.Journal.Path)
		os.Exit(1)
	}
	defer js.Close()

	creds := loadCredentials()
	hc := newHTTPClient(cfg)
	market, exec := initializePorts(ctx, cfg, creds, js, hc)
	sent := initializeSentiment(ctx, cfg, creds, hc)
	eng := initializeEngine(cfg, market, sent, exec, js)

	worker := engine.NewWorker(eng, cfg)
	srv := server.New(ctx, cfg, eng, worker, creds.exchange())

	if cfg.AutoStart {
		if cfg.Paper() || creds.exchange() {
			worker.Start(ctx)
		} else {
			logger.Warn(ctx, "auto_start skipped: exchange credentials missing")
		}
	}

	go runEOD(ctx)

	logger.Info(ctx, "Bot started", "mode", cfg.Mode, "symbol", cfg.Symbol, "data_source", cfg.DataSource)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Control server failed", err)
		stop()
	}

	logger.Info(context.Background(), "Shutting down...")
	worker.Stop(context.Background())
	waitCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	worker.Wait(waitCtx)

	if p, err := eod.SummarizeDay(time.Now()); err == nil && p != "" {
		logger.Info(context.Background(), "EOD CSV written", "path", p)
	}
}

// runEOD writes the previous UTC day's summary once it is complete.
func runEOD(ctx context.Context) {
	tick := time.NewTicker(60 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			ok, day := eod.ShouldRunNow(now)
			if !ok {
				continue
			}
			if p, err := eod.SummarizeDay(day); err != nil {
				logger.Warn(ctx, "EOD summary failed", "day", day.Format("2006-01-02"), "error", err)
			} else if p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
		}
	}
}
