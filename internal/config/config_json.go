package config

import (
	"encoding/json"
	"os"
	"time"
)

type agentJSON struct {
	Endpoint           *string `json:"endpoint"`
	ClientTimeout      *string `json:"client_timeout"` // "10s"
	Key                *string `json:"key"`
	TelemetryEnabled   *bool   `json:"telemetry_enabled"`
	AccountID          *string `json:"account_id"`
	ClientIDFile       *string `json:"client_id_file"`
	LoopInterval       *string `json:"loop_interval"`
	MaxPublishInterval *string `json:"max_publish_interval"`
	QueueSizeThreshold *int    `json:"queue_size_threshold"`
	MaxBatchSize       *int    `json:"max_batch_size"`
	QueueCapacity      *int    `json:"queue_capacity"`
	HeartbeatInterval  *string `json:"heartbeat_interval"`
	Product            *string `json:"product"`
	ParentProduct      *string `json:"parent_product"`
	ParentVersion      *string `json:"parent_product_version"`
	MetricsAddr        *string `json:"metrics_addr"`
	LogLevel           *string `json:"log_level"`
}

type ingestJSON struct {
	Address       *string `json:"address"`
	DatabaseDSN   *string `json:"database_dsn"`
	StoreFile     *string `json:"store_file"`
	Key           *string `json:"key"`
	TrustedSubnet *string `json:"trusted_subnet"`
	LogLevel      *string `json:"log_level"`
}

func loadJSON(path string, dst any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func applyString(src *string, flagSet bool, dst *string) {
	if src != nil && !flagSet {
		*dst = *src
	}
}

func applyInt(src *int, flagSet bool, dst *int) {
	if src != nil && !flagSet {
		*dst = *src
	}
}

func applyDuration(src *string, flagSet bool, dst *time.Duration) {
	if src == nil || flagSet {
		return
	}
	if d, err := time.ParseDuration(*src); err == nil {
		*dst = d
	}
}
