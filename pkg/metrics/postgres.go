package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// defaultPostgresOpTimeout bounds every single store operation, so a
// wedged database can never stall the goroutine being measured.
const defaultPostgresOpTimeout = time.Second

// PostgresStore persists samples in a Postgres table, making metric
// history durable and shared across processes. The table is created on
// startup if missing.
type PostgresStore struct {
	pool      *pgxpool.Pool
	logger    zerolog.Logger
	opTimeout time.Duration
}

const metricsSchema = `
CREATE TABLE IF NOT EXISTS perf_metrics (
	id          BIGSERIAL PRIMARY KEY,
	metric_type TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	tags        JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_perf_metrics_type_time
	ON perf_metrics (metric_type, recorded_at);
`

// NewPostgresStore connects to Postgres and ensures the metrics table
// exists.
func NewPostgresStore(ctx context.Context, databaseURL string, logger zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := pool.Exec(schemaCtx, metricsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init metrics schema: %w", err)
	}

	logger.Info().Msg("Metrics store connected to Postgres")
	return &PostgresStore{pool: pool, logger: logger, opTimeout: defaultPostgresOpTimeout}, nil
}

// opCtx derives a deadline-bound context for one store operation.
func (p *PostgresStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.opTimeout
	if timeout <= 0 {
		timeout = defaultPostgresOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Insert implements Store.
func (p *PostgresStore) Insert(ctx context.Context, s Sample) error {
	var tags []byte
	if len(s.Tags) > 0 {
		b, err := json.Marshal(s.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		tags = b
	}

	opCtx, cancel := p.opCtx(ctx)
	defer cancel()
	_, err := p.pool.Exec(opCtx,
		`INSERT INTO perf_metrics (metric_type, value, tags, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		s.Type, s.Value, tags, s.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Query implements Store.
func (p *PostgresStore) Query(ctx context.Context, f Filter) ([]Sample, error) {
	query := `SELECT metric_type, value, tags, recorded_at FROM perf_metrics WHERE TRUE`
	args := []any{}

	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" AND metric_type = $%d", len(args))
	}
	if !f.Start.IsZero() {
		args = append(args, f.Start)
		query += fmt.Sprintf(" AND recorded_at >= $%d", len(args))
	}
	if !f.End.IsZero() {
		args = append(args, f.End)
		query += fmt.Sprintf(" AND recorded_at <= $%d", len(args))
	}

	query += " ORDER BY recorded_at DESC"
	limit := f.Limit
	if limit == 0 {
		limit = DefaultQueryLimit
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	opCtx, cancel := p.opCtx(ctx)
	defer cancel()
	rows, err := p.pool.Query(opCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var tags []byte
		if err := rows.Scan(&s.Type, &s.Value, &tags, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &s.Tags); err != nil {
				p.logger.Warn().Err(err).Msg("Undecodable sample tags")
			}
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DeleteBefore implements Store.
func (p *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	opCtx, cancel := p.opCtx(ctx)
	defer cancel()
	tag, err := p.pool.Exec(opCtx,
		`DELETE FROM perf_metrics WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close implements Store.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
