// Package postgres stores telemetry submissions in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/and161185/toolkit-telemetry/internal/utils"
	"github.com/and161185/toolkit-telemetry/model"
)

// DB is the subset of *pgxpool.Pool the storage needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS metric_data (
	id              BIGSERIAL PRIMARY KEY,
	client_id       TEXT NOT NULL,
	product         TEXT NOT NULL,
	product_version TEXT NOT NULL,
	metric_name     TEXT NOT NULL,
	unit            TEXT NOT NULL,
	value           DOUBLE PRECISION NOT NULL,
	passive         BOOLEAN NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	metadata        JSONB
);
CREATE INDEX IF NOT EXISTS metric_data_name_created_idx ON metric_data (metric_name, created_at);
CREATE TABLE IF NOT EXISTS feedback (
	id              BIGSERIAL PRIMARY KEY,
	product         TEXT NOT NULL,
	product_version TEXT NOT NULL,
	sentiment       TEXT NOT NULL,
	comment         TEXT NOT NULL,
	metadata        JSONB,
	received_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const insertMetricsSQL = `
INSERT INTO metric_data (client_id, product, product_version, metric_name, unit, value, passive, created_at, metadata)
SELECT $1, $2, $3, t.name, t.unit, t.value, t.passive, to_timestamp(t.ts / 1000.0), t.metadata::jsonb
FROM unnest($4::text[], $5::text[], $6::float8[], $7::bool[], $8::bigint[], $9::text[])
	AS t(name, unit, value, passive, ts, metadata)`

const insertFeedbackSQL = `
INSERT INTO feedback (product, product_version, sentiment, comment, metadata)
VALUES ($1, $2, $3, $4, $5::jsonb)`

type PostgresStorage struct {
	db     DB
	clock  clock.Clock
	retry  utils.RetryPolicy
	logger *zap.SugaredLogger
}

// NewPostgresStorage connects to dsn and creates the schema.
func NewPostgresStorage(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*PostgresStorage, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	store := newStorage(db, clock.WallClock, logger)
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func newStorage(db DB, clk clock.Clock, logger *zap.SugaredLogger) *PostgresStorage {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PostgresStorage{db: db, clock: clk, retry: utils.DefaultRetryPolicy, logger: logger}
}

func (store *PostgresStorage) migrate(ctx context.Context) error {
	return store.exec(ctx, schemaSQL)
}

// SaveMetrics writes all data of req in a single statement.
func (store *PostgresStorage) SaveMetrics(ctx context.Context, req *model.PostMetricsRequest) error {
	n := len(req.MetricData)
	if n == 0 {
		return nil
	}

	names := make([]string, n)
	units := make([]string, n)
	values := make([]float64, n)
	passive := make([]bool, n)
	stamps := make([]int64, n)
	metadata := make([]string, n)
	for i, d := range req.MetricData {
		names[i] = d.MetricName
		units[i] = string(d.Unit)
		values[i] = d.Value
		passive[i] = d.Passive
		stamps[i] = d.EpochTimestamp
		md, err := encodeMetadata(d.Metadata)
		if err != nil {
			return err
		}
		metadata[i] = md
	}

	return store.exec(ctx, insertMetricsSQL,
		req.ClientID, req.AWSProduct, req.AWSProductVersion,
		names, units, values, passive, stamps, metadata)
}

func (store *PostgresStorage) SaveFeedback(ctx context.Context, req *model.PostFeedbackRequest) error {
	md, err := encodeMetadata(req.Metadata)
	if err != nil {
		return err
	}
	return store.exec(ctx, insertFeedbackSQL,
		req.AWSProduct, req.AWSProductVersion, string(req.Sentiment), req.Comment, md)
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.db.Ping(ctx)
}

func (store *PostgresStorage) Close() {
	store.db.Close()
}

func (store *PostgresStorage) exec(ctx context.Context, sql string, args ...any) error {
	start := store.clock.Now()
	err := utils.WithRetry(ctx, store.clock, store.retry, isRetriable, func() error {
		_, err := store.db.Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres exec: %w", err)
	}
	store.logger.Debugw("postgres exec", "duration", store.clock.Now().Sub(start).Round(time.Millisecond))
	return nil
}

func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected
	}
	return utils.IsNetworkError(err)
}

func encodeMetadata(md []model.MetadataEntry) (string, error) {
	obj := make(map[string]string, len(md))
	for _, e := range md {
		obj[e.Key] = e.Value
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}
