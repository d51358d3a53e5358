// Command ingestd is a reference telemetry service accepting metrics and feedback.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/toolkit-telemetry/internal/buildinfo"
	"github.com/and161185/toolkit-telemetry/internal/config"
	"github.com/and161185/toolkit-telemetry/internal/ingest"
	"github.com/and161185/toolkit-telemetry/storage"
	"github.com/and161185/toolkit-telemetry/storage/inmemory"
	"github.com/and161185/toolkit-telemetry/storage/postgres"
)

func main() {
	buildinfo.PrintBuildInfo(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewIngestConfig()
	if err != nil {
		panic(err)
	}

	var (
		st  storage.Storage
		mem *inmemory.MemStorage
	)
	if cfg.DatabaseDsn != "" {
		st, err = postgres.NewPostgresStorage(ctx, cfg.DatabaseDsn, cfg.Logger)
		if err != nil {
			cfg.Logger.Fatal(err)
		}
	} else {
		mem = inmemory.NewMemStorage(cfg.Logger)
		if cfg.StoragePath != "" {
			if err := mem.LoadFromFile(ctx, cfg.StoragePath); err != nil {
				cfg.Logger.Fatal(err)
			}
		}
		st = mem
	}
	defer st.Close()

	cfg.Logger.Infof("Ingest config: Addr=%s, DatabaseDSN set=%t, StoragePath=%q, TrustedSubnet=%q, Key set=%t",
		cfg.Addr,
		cfg.DatabaseDsn != "",
		cfg.StoragePath,
		cfg.TrustedSubnet,
		cfg.Key != "",
	)

	srv, err := ingest.NewServer(st, cfg)
	if err != nil {
		cfg.Logger.Fatal(err)
	}
	if err := srv.Run(ctx); err != nil {
		cfg.Logger.Error(err)
	}

	if mem != nil && cfg.StoragePath != "" {
		if err := mem.SaveToFile(context.Background(), cfg.StoragePath); err != nil {
			cfg.Logger.Error(err)
		}
	}
}
