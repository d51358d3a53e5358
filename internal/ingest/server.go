// Package ingest is a reference implementation of the remote telemetry
// service, used for local development and end-to-end tests.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/toolkit-telemetry/internal/config"
	"github.com/and161185/toolkit-telemetry/internal/ingest/middleware"
	"github.com/and161185/toolkit-telemetry/model"
	"github.com/and161185/toolkit-telemetry/storage"
)

const maxBodySize = 1 << 20

type Server struct {
	storage  storage.Storage
	config   *config.IngestConfig
	logger   *zap.SugaredLogger
	metrics  *ingestMetrics
	registry *prometheus.Registry
	router   http.Handler
}

func NewServer(st storage.Storage, cfg *config.IngestConfig) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	reg := prometheus.NewRegistry()
	m, err := newIngestMetrics(reg)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		storage:  st,
		config:   cfg,
		logger:   logger,
		metrics:  m,
		registry: reg,
	}
	srv.router, err = srv.routes()
	if err != nil {
		return nil, err
	}
	return srv, nil
}

func (srv *Server) routes() (http.Handler, error) {
	trusted, err := middleware.TrustedCIDR(srv.config.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(chiMiddleware.Recoverer)
	router.Use(middleware.LogMiddleware(srv.logger))

	router.Get("/ping", srv.PingHandler)
	router.Handle("/metrics/prometheus", promhttp.HandlerFor(srv.registry, promhttp.HandlerOpts{}))

	router.Group(func(r chi.Router) {
		r.Use(trusted)
		r.Use(chiMiddleware.RequestSize(maxBodySize))
		r.Use(middleware.VerifyHashMiddleware(srv.config.Key))
		r.Use(middleware.DecompressMiddleware)
		r.Post("/metrics", srv.PostMetricsHandler)
		r.Post("/feedback", srv.PostFeedbackHandler)
	})
	return router, nil
}

// Handler returns the root handler.
func (srv *Server) Handler() http.Handler {
	return srv.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              srv.config.Addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Infof("ingest server listening on %s", srv.config.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (srv *Server) PostMetricsHandler(w http.ResponseWriter, r *http.Request) {
	var req model.PostMetricsRequest
	if !srv.decode(w, r, &req) {
		return
	}

	if reason := validateMetrics(&req); reason != "" {
		srv.reject(w, "metrics", reason)
		return
	}

	if err := srv.storage.SaveMetrics(r.Context(), &req); err != nil {
		srv.logger.Errorw("failed to save metrics", "client_id", req.ClientID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	srv.metrics.data.WithLabelValues(req.AWSProduct).Add(float64(len(req.MetricData)))
	w.WriteHeader(http.StatusOK)
}

func validateMetrics(req *model.PostMetricsRequest) string {
	switch {
	case req.ClientID == "":
		return "missing ClientID"
	case len(req.MetricData) > model.MaxMetricDataPerRequest:
		return "too many MetricData entries"
	}
	for _, d := range req.MetricData {
		if d.MetricName == "" {
			return "empty MetricName"
		}
	}
	return ""
}

func (srv *Server) PostFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req model.PostFeedbackRequest
	if !srv.decode(w, r, &req) {
		return
	}

	switch {
	case !req.Sentiment.Valid():
		srv.reject(w, "feedback", "invalid Sentiment")
		return
	case utf8.RuneCountInString(req.Comment) > model.MaxFeedbackCommentLength:
		srv.reject(w, "feedback", "Comment too long")
		return
	}

	if err := srv.storage.SaveFeedback(r.Context(), &req); err != nil {
		srv.logger.Errorw("failed to save feedback", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	srv.metrics.feedback.WithLabelValues(string(req.Sentiment)).Inc()
	w.WriteHeader(http.StatusOK)
}

func (srv *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if err := srv.storage.Ping(ctx); err != nil {
		srv.logger.Errorf("storage ping failed: %v", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (srv *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(dst); err != nil {
		srv.metrics.rejected.WithLabelValues(r.URL.Path, "invalid JSON").Inc()
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (srv *Server) reject(w http.ResponseWriter, kind, reason string) {
	srv.metrics.rejected.WithLabelValues("/"+kind, reason).Inc()
	http.Error(w, reason, http.StatusBadRequest)
}
