// Package config provides application configuration structures and helpers.
//
// Values are resolved in this order, later sources winning:
// built-in defaults, JSON file (-c / CONFIG) for keys not given as flags,
// command-line flags, environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production zap logger writing to stdout and,
// when file is not empty, to that file as well.
func NewLogger(level, file string) *zap.SugaredLogger {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stdout"}
	if file != "" {
		logCfg.OutputPaths = append(logCfg.OutputPaths, file)
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		logCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zap.Must(logCfg.Build()).Sugar()
}

func normalizeURL(addr string) string {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/")
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s env var: %v", name, err)
		return
	}
	*dst = i
}

func envBool(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("invalid %s env var: %v", name, err)
		return
	}
	*dst = b
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s env var: %v", name, err)
		return
	}
	*dst = d
}
