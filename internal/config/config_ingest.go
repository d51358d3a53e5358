package config

import (
	"flag"
	"os"

	"go.uber.org/zap"
)

// IngestConfig holds the configuration of the reference ingestion server.
type IngestConfig struct {
	Addr          string // Listen address
	DatabaseDsn   string // PostgreSQL DSN, in-memory storage when empty
	StoragePath   string // in-memory snapshot file, none when empty
	Key           string // Key for body signature verification
	TrustedSubnet string // CIDR allowed to post, empty allows everyone
	LogLevel      string
	Logger        *zap.SugaredLogger
}

// NewIngestConfig parses the process command line and environment.
func NewIngestConfig() (*IngestConfig, error) {
	return LoadIngestConfig(flag.CommandLine, os.Args[1:])
}

// LoadIngestConfig parses args with fs and applies JSON and environment overrides.
func LoadIngestConfig(fs *flag.FlagSet, args []string) (*IngestConfig, error) {
	cfg := &IngestConfig{Addr: "localhost:8080", LogLevel: "info"}

	var fAddr, fDsn, fPath, fKey, fSubnet, fLevel, fConf strFlag
	fs.Var(&fAddr, "a", "listen address")
	fs.Var(&fDsn, "d", "DB connection string")
	fs.Var(&fPath, "f", "in-memory storage snapshot file")
	fs.Var(&fKey, "k", "Hash key string")
	fs.Var(&fSubnet, "trusted-subnet", "CIDR allowed to post")
	fs.Var(&fLevel, "log-level", "log level")
	fs.Var(&fConf, "c", "Path to JSON config file")
	fs.Var(&fConf, "config", "Path to JSON config file (alias)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fConf.v == "" {
		fConf.v = os.Getenv("CONFIG")
	}
	if fConf.v != "" {
		var js ingestJSON
		if err := loadJSON(fConf.v, &js); err == nil {
			applyString(js.Address, fAddr.set, &cfg.Addr)
			applyString(js.DatabaseDSN, fDsn.set, &cfg.DatabaseDsn)
			applyString(js.StoreFile, fPath.set, &cfg.StoragePath)
			applyString(js.Key, fKey.set, &cfg.Key)
			applyString(js.TrustedSubnet, fSubnet.set, &cfg.TrustedSubnet)
			applyString(js.LogLevel, fLevel.set, &cfg.LogLevel)
		}
	}

	for f, dst := range map[*strFlag]*string{
		&fAddr:   &cfg.Addr,
		&fDsn:    &cfg.DatabaseDsn,
		&fPath:   &cfg.StoragePath,
		&fKey:    &cfg.Key,
		&fSubnet: &cfg.TrustedSubnet,
		&fLevel:  &cfg.LogLevel,
	} {
		if f.set {
			*dst = f.v
		}
	}

	readIngestEnvironment(cfg)

	cfg.Logger = NewLogger(cfg.LogLevel, "")
	return cfg, nil
}

func readIngestEnvironment(cfg *IngestConfig) {
	envString("ADDRESS", &cfg.Addr)
	envString("DATABASE_DSN", &cfg.DatabaseDsn)
	envString("FILE_STORAGE_PATH", &cfg.StoragePath)
	envString("KEY", &cfg.Key)
	envString("TRUSTED_SUBNET", &cfg.TrustedSubnet)
	envString("LOG_LEVEL", &cfg.LogLevel)
}
