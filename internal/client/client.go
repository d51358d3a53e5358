// Package client talks to the remote telemetry service.
package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/and161185/toolkit-telemetry/internal/config"
	"github.com/and161185/toolkit-telemetry/internal/utils"
	"github.com/and161185/toolkit-telemetry/model"
)

var (
	ErrInvalidSentiment = errors.New("invalid sentiment")
	ErrCommentTooLong   = errors.New("feedback comment is too long")
)

// Client sends metrics and feedback to the telemetry service.
type Client struct {
	config     *config.AgentConfig
	env        model.ProductEnvironment
	httpClient *http.Client
	logger     *zap.SugaredLogger
	retry      utils.RetryPolicy
	clock      clock.Clock
	realIP     string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets how feedback submissions are retried.
func WithRetryPolicy(p utils.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithClock sets the clock used between retries.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// NewClient creates a client for cfg.Endpoint.
func NewClient(cfg *config.AgentConfig, env model.ProductEnvironment, logger *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		config:     cfg,
		env:        env,
		httpClient: &http.Client{Timeout: cfg.ClientTimeout},
		logger:     logger,
		retry:      utils.DefaultRetryPolicy,
		clock:      clock.WallClock,
		realIP:     detectOutboundIP(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func detectOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return la.IP.String()
	}
	return ""
}

// PostMetrics sends batch, split into requests of at most
// model.MaxMetricDataPerRequest data entries. It never retries; the
// publisher decides what to do with the outcome. The worst outcome across
// requests is returned and nothing more is sent after a transient failure.
func (clnt *Client) PostMetrics(ctx context.Context, clientID uuid.UUID, batch []model.Metrics) Outcome {
	payload := model.NewPostMetricsRequest(clnt.env, clientID.String(), batch)

	var result Outcome
	for i, req := range splitRequest(payload, model.MaxMetricDataPerRequest) {
		out := clnt.postMetrics(ctx, req)
		if i == 0 || out.Status > result.Status {
			result = out
		}
		if out.Status == TransientFailure {
			break
		}
	}
	return result
}

func (clnt *Client) postMetrics(ctx context.Context, req model.PostMetricsRequest) Outcome {
	body, err := encodeGzipJSON(req)
	if err != nil {
		// Nothing we can send will ever encode; treat as a rejected batch.
		return Outcome{Status: PermanentFailure, Err: err}
	}

	code, err := clnt.post(ctx, "/metrics", body)
	out := Classify(code, err)
	clnt.logger.Debugw("post metrics", "data", len(req.MetricData), "status", out.Status.String(), "code", code)
	return out
}

// splitRequest breaks req into copies carrying at most limit data entries each.
func splitRequest(req model.PostMetricsRequest, limit int) []model.PostMetricsRequest {
	if len(req.MetricData) <= limit {
		return []model.PostMetricsRequest{req}
	}
	data := req.MetricData
	reqs := make([]model.PostMetricsRequest, 0, (len(data)+limit-1)/limit)
	for len(data) > 0 {
		n := min(limit, len(data))
		part := req
		part.MetricData = data[:n]
		reqs = append(reqs, part)
		data = data[n:]
	}
	return reqs
}

// SendFeedback submits user feedback, retrying transient failures.
// Any final failure is returned to the caller.
func (clnt *Client) SendFeedback(ctx context.Context, sentiment model.Sentiment, comment string, metadata []model.MetadataEntry) error {
	if !sentiment.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSentiment, sentiment)
	}
	if utf8.RuneCountInString(comment) > model.MaxFeedbackCommentLength {
		return ErrCommentTooLong
	}

	body, err := encodeGzipJSON(model.NewPostFeedbackRequest(clnt.env, sentiment, comment, metadata))
	if err != nil {
		return err
	}

	err = utils.WithRetry(ctx, clnt.clock, clnt.retry, isRetriable, func() error {
		code, err := clnt.post(ctx, "/feedback", body)
		if err != nil {
			return err
		}
		if code < 200 || code >= 300 {
			return &StatusError{StatusCode: code}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("send feedback: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (clnt *Client) Close() error {
	clnt.httpClient.CloseIdleConnections()
	return nil
}

func isRetriable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return utils.IsNetworkError(err)
}

func encodeGzipJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	if _, err = zw.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err = zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return body.Bytes(), nil
}

func (clnt *Client) post(ctx context.Context, path string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, clnt.config.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	if clnt.realIP != "" {
		req.Header.Set("X-Real-IP", clnt.realIP)
	}
	if clnt.config.Key != "" {
		req.Header.Set(utils.HashHeader, utils.CalculateHash(body, clnt.config.Key))
	}

	resp, err := clnt.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
