package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// AgentConfig holds the configuration of the host agent and its telemetry pipeline.
type AgentConfig struct {
	Endpoint         string        // Telemetry service base URL
	ClientTimeout    time.Duration // HTTP client timeout
	Key              string        // Key for body signatures
	TelemetryEnabled bool          // User permitted telemetry
	AccountID        string        // Account id stamped on recorded data
	ClientIDFile     string        // Where the installation id is persisted
	AutomatedTest    bool          // Running under automation

	LoopInterval       time.Duration // Publisher wake-up period
	MaxPublishInterval time.Duration // Publish at least this often when data is queued
	QueueSizeThreshold int           // Publish early at this many queued batches
	MaxBatchSize       int           // Batches per request
	QueueCapacity      int           // Queue bound, 0 is unbounded

	HeartbeatInterval    time.Duration // Runtime heartbeat period, 0 disables
	Product              string
	ParentProduct        string
	ParentProductVersion string
	OSVersion            string

	MetricsAddr string // Prometheus listen address, empty disables
	LogLevel    string

	Sentiment string // One-shot feedback
	Comment   string

	Logger *zap.SugaredLogger
}

// ErrMissingEndpoint is returned when no telemetry endpoint is configured.
var ErrMissingEndpoint = errors.New("telemetry endpoint is not set")

func defaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Endpoint:           "http://localhost:8080",
		ClientTimeout:      10 * time.Second,
		TelemetryEnabled:   true,
		ClientIDFile:       defaultClientIDFile(),
		LoopInterval:       20 * time.Second,
		MaxPublishInterval: 5 * time.Minute,
		QueueSizeThreshold: 12,
		MaxBatchSize:       20,
		QueueCapacity:      10000,
		HeartbeatInterval:  time.Minute,
		Product:            "AWS Toolkit For VisualStudio",
		LogLevel:           "info",
	}
}

func defaultClientIDFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "toolkit-telemetry", "clientid")
}

// NewAgentConfig parses the process command line and environment.
func NewAgentConfig() (*AgentConfig, error) {
	return LoadAgentConfig(flag.CommandLine, os.Args[1:])
}

// LoadAgentConfig parses args with fs and applies JSON and environment overrides.
func LoadAgentConfig(fs *flag.FlagSet, args []string) (*AgentConfig, error) {
	cfg := defaultAgentConfig()

	var fEndpoint, fKey, fAccount, fIDFile, fProduct, fParent, fParentVer, fOSVer, fMetrics, fLevel, fConf strFlag
	var fSentiment, fComment strFlag
	var fTimeout, fLoop, fMaxInterval, fHeartbeat durFlag
	var fThreshold, fBatch, fCapacity intFlag
	var fEnabled boolFlag
	fs.Var(&fEndpoint, "a", "telemetry endpoint (must include http(s)://)")
	fs.Var(&fTimeout, "t", "client timeout (duration)")
	fs.Var(&fKey, "k", "body signature key")
	fs.Var(&fEnabled, "enabled", "telemetry permitted")
	fs.Var(&fAccount, "account", "account id attached to metrics")
	fs.Var(&fIDFile, "client-id-file", "path of the persisted client id")
	fs.Var(&fLoop, "loop", "publisher loop interval (duration)")
	fs.Var(&fMaxInterval, "max-interval", "maximum time between publishes (duration)")
	fs.Var(&fThreshold, "threshold", "queue size that triggers a publish")
	fs.Var(&fBatch, "batch", "maximum batches per request")
	fs.Var(&fCapacity, "capacity", "queue capacity, 0 for unbounded")
	fs.Var(&fHeartbeat, "heartbeat", "runtime heartbeat interval, 0 disables")
	fs.Var(&fProduct, "product", "product name")
	fs.Var(&fParent, "parent", "parent product name")
	fs.Var(&fParentVer, "parent-version", "parent product version")
	fs.Var(&fOSVer, "os-version", "operating system version")
	fs.Var(&fMetrics, "metrics-addr", "Prometheus listen address")
	fs.Var(&fLevel, "log-level", "log level")
	fs.Var(&fSentiment, "sentiment", "send feedback with this sentiment and exit")
	fs.Var(&fComment, "comment", "feedback comment")
	fs.Var(&fConf, "c", "Path to JSON config file")
	fs.Var(&fConf, "config", "Path to JSON config file (alias)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fConf.v == "" {
		fConf.v = os.Getenv("CONFIG")
	}
	if fConf.v != "" {
		var js agentJSON
		if err := loadJSON(fConf.v, &js); err == nil {
			applyString(js.Endpoint, fEndpoint.set, &cfg.Endpoint)
			applyDuration(js.ClientTimeout, fTimeout.set, &cfg.ClientTimeout)
			applyString(js.Key, fKey.set, &cfg.Key)
			if js.TelemetryEnabled != nil && !fEnabled.set {
				cfg.TelemetryEnabled = *js.TelemetryEnabled
			}
			applyString(js.AccountID, fAccount.set, &cfg.AccountID)
			applyString(js.ClientIDFile, fIDFile.set, &cfg.ClientIDFile)
			applyDuration(js.LoopInterval, fLoop.set, &cfg.LoopInterval)
			applyDuration(js.MaxPublishInterval, fMaxInterval.set, &cfg.MaxPublishInterval)
			applyInt(js.QueueSizeThreshold, fThreshold.set, &cfg.QueueSizeThreshold)
			applyInt(js.MaxBatchSize, fBatch.set, &cfg.MaxBatchSize)
			applyInt(js.QueueCapacity, fCapacity.set, &cfg.QueueCapacity)
			applyDuration(js.HeartbeatInterval, fHeartbeat.set, &cfg.HeartbeatInterval)
			applyString(js.Product, fProduct.set, &cfg.Product)
			applyString(js.ParentProduct, fParent.set, &cfg.ParentProduct)
			applyString(js.ParentVersion, fParentVer.set, &cfg.ParentProductVersion)
			applyString(js.MetricsAddr, fMetrics.set, &cfg.MetricsAddr)
			applyString(js.LogLevel, fLevel.set, &cfg.LogLevel)
		}
	}

	setString := func(f strFlag, dst *string) {
		if f.set {
			*dst = f.v
		}
	}
	setDuration := func(f durFlag, dst *time.Duration) {
		if f.set {
			*dst = f.v
		}
	}
	setInt := func(f intFlag, dst *int) {
		if f.set {
			*dst = f.v
		}
	}
	setString(fEndpoint, &cfg.Endpoint)
	setDuration(fTimeout, &cfg.ClientTimeout)
	setString(fKey, &cfg.Key)
	if fEnabled.set {
		cfg.TelemetryEnabled = fEnabled.v
	}
	setString(fAccount, &cfg.AccountID)
	setString(fIDFile, &cfg.ClientIDFile)
	setDuration(fLoop, &cfg.LoopInterval)
	setDuration(fMaxInterval, &cfg.MaxPublishInterval)
	setInt(fThreshold, &cfg.QueueSizeThreshold)
	setInt(fBatch, &cfg.MaxBatchSize)
	setInt(fCapacity, &cfg.QueueCapacity)
	setDuration(fHeartbeat, &cfg.HeartbeatInterval)
	setString(fProduct, &cfg.Product)
	setString(fParent, &cfg.ParentProduct)
	setString(fParentVer, &cfg.ParentProductVersion)
	setString(fOSVer, &cfg.OSVersion)
	setString(fMetrics, &cfg.MetricsAddr)
	setString(fLevel, &cfg.LogLevel)
	setString(fSentiment, &cfg.Sentiment)
	setString(fComment, &cfg.Comment)

	readAgentEnvironment(cfg)

	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	cfg.Endpoint = normalizeURL(cfg.Endpoint)
	cfg.Logger = NewLogger(cfg.LogLevel, "")
	return cfg, nil
}

func readAgentEnvironment(cfg *AgentConfig) {
	envString("TELEMETRY_ENDPOINT", &cfg.Endpoint)
	envDuration("CLIENT_TIMEOUT", &cfg.ClientTimeout)
	envString("KEY", &cfg.Key)
	envBool("TELEMETRY_ENABLED", &cfg.TelemetryEnabled)
	envString("ACCOUNT_ID", &cfg.AccountID)
	envString("CLIENT_ID_FILE", &cfg.ClientIDFile)
	envBool("TOOLKIT_AUTOMATED_TEST", &cfg.AutomatedTest)
	envDuration("LOOP_INTERVAL", &cfg.LoopInterval)
	envDuration("MAX_PUBLISH_INTERVAL", &cfg.MaxPublishInterval)
	envInt("QUEUE_SIZE_THRESHOLD", &cfg.QueueSizeThreshold)
	envInt("MAX_BATCH_SIZE", &cfg.MaxBatchSize)
	envInt("QUEUE_CAPACITY", &cfg.QueueCapacity)
	envString("METRICS_ADDR", &cfg.MetricsAddr)
	envString("LOG_LEVEL", &cfg.LogLevel)
}
