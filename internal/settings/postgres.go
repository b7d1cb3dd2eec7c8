package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGProvider reads settings from a Postgres table. A row with a matching
// source column takes precedence over the user's default row (source = '').
//
// Expected schema:
//
//	CREATE TABLE user_settings (
//	    user_id          text NOT NULL,
//	    source           text NOT NULL DEFAULT '',
//	    keywords         text[] NOT NULL DEFAULT '{}',
//	    location         text NOT NULL DEFAULT '',
//	    radius_km        int NOT NULL DEFAULT 0,
//	    min_price        numeric,
//	    max_price        numeric,
//	    interval_seconds int NOT NULL DEFAULT 60,
//	    PRIMARY KEY (user_id, source)
//	);
type PGProvider struct {
	pool *pgxpool.Pool
}

func NewPGProvider(pool *pgxpool.Pool) *PGProvider {
	return &PGProvider{pool: pool}
}

// OpenPool builds a pgx connection pool with a bounded connection count.
func OpenPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = int32(maxConns)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	return pool, nil
}

func (p *PGProvider) Get(ctx context.Context, user, source string) (Snapshot, error) {
	var s Snapshot
	err := p.pool.QueryRow(ctx, `
		SELECT keywords, location, radius_km, min_price, max_price, interval_seconds
		FROM user_settings
		WHERE user_id = $1 AND source IN ($2, '')
		ORDER BY (source = $2) DESC
		LIMIT 1`, user, source,
	).Scan(&s.Keywords, &s.Location, &s.RadiusKM, &s.MinPrice, &s.MaxPrice, &s.IntervalSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNoSettings, user)
		}
		return Snapshot{}, fmt.Errorf("failed to load settings for %s: %w", user, err)
	}
	s.Normalize()
	return s, nil
}
