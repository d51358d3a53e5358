// Command agent runs the telemetry pipeline for a host process and reports
// session activity to the telemetry service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/and161185/toolkit-telemetry/internal/buildinfo"
	"github.com/and161185/toolkit-telemetry/internal/client"
	"github.com/and161185/toolkit-telemetry/internal/clientid"
	"github.com/and161185/toolkit-telemetry/internal/config"
	"github.com/and161185/toolkit-telemetry/internal/heartbeat"
	"github.com/and161185/toolkit-telemetry/internal/queue"
	"github.com/and161185/toolkit-telemetry/internal/telemetry"
	"github.com/and161185/toolkit-telemetry/model"
)

func main() {
	buildinfo.PrintBuildInfo(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewAgentConfig()
	if err != nil {
		panic(err)
	}

	a, err := newAgent(cfg, clock.WallClock)
	if err != nil {
		cfg.Logger.Fatal(err)
	}
	if err := a.run(ctx); err != nil {
		cfg.Logger.Error(err)
	}
}

type agent struct {
	cfg       *config.AgentConfig
	clock     clock.Clock
	clientID  uuid.UUID
	service   *telemetry.Service
	heartbeat *heartbeat.Heartbeat
	registry  *prometheus.Registry
}

func newAgent(cfg *config.AgentConfig, clk clock.Clock) (*agent, error) {
	id := clientid.Resolve(clientid.Options{
		File:          cfg.ClientIDFile,
		Permitted:     cfg.TelemetryEnabled,
		AutomatedTest: cfg.AutomatedTest,
		Logger:        cfg.Logger,
	})

	q := queue.New(cfg.QueueCapacity)
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewPublisherMetrics(reg, q)
	if err != nil {
		return nil, err
	}

	env := model.NewProductEnvironment(cfg.Product, buildinfo.Version(), cfg.ParentProduct, cfg.ParentProductVersion, cfg.OSVersion)
	c := client.NewClient(cfg, env, cfg.Logger, client.WithClock(clk))

	pub := telemetry.NewPublisher(telemetry.PublisherConfig{
		LoopInterval:       cfg.LoopInterval,
		MaxPublishInterval: cfg.MaxPublishInterval,
		QueueSizeThreshold: cfg.QueueSizeThreshold,
		MaxBatchSize:       cfg.MaxBatchSize,
		MaxBackoffLevel:    telemetry.DefaultPublisherConfig().MaxBackoffLevel,
		SendTimeout:        cfg.ClientTimeout,
	}, q, id,
		telemetry.WithLogger(cfg.Logger),
		telemetry.WithClock(clk),
		telemetry.WithMetrics(metrics),
	)

	svc := telemetry.NewService(q, cfg.Logger)
	svc.SetAccountID(cfg.AccountID)
	if cfg.TelemetryEnabled {
		svc.Enable()
	}
	if err := svc.Initialize(c, pub); err != nil {
		return nil, err
	}

	cfg.Logger.Infof("Agent config: Endpoint=%s, Enabled=%t, ClientID=%s, Loop=%s, MaxInterval=%s, Threshold=%d, Batch=%d, Capacity=%d",
		cfg.Endpoint, cfg.TelemetryEnabled, id, cfg.LoopInterval, cfg.MaxPublishInterval,
		cfg.QueueSizeThreshold, cfg.MaxBatchSize, cfg.QueueCapacity)

	return &agent{
		cfg:       cfg,
		clock:     clk,
		clientID:  id,
		service:   svc,
		heartbeat: heartbeat.New(svc, clk, cfg.HeartbeatInterval),
		registry:  reg,
	}, nil
}

// run records session telemetry until ctx is done. With a sentiment
// configured it submits that feedback and returns instead.
func (a *agent) run(ctx context.Context) error {
	defer func() {
		if err := a.service.Close(); err != nil {
			a.cfg.Logger.Errorf("failed to close telemetry: %v", err)
		}
	}()

	if a.cfg.Sentiment != "" {
		return a.service.SendFeedback(ctx, model.Sentiment(a.cfg.Sentiment), a.cfg.Comment, nil)
	}

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.cfg.Logger.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	a.service.Record(a.heartbeat.SessionStart(a.cfg.Product, buildinfo.Version()))
	if a.cfg.HeartbeatInterval > 0 {
		go a.heartbeat.Run(ctx)
	}

	<-ctx.Done()
	return nil
}
