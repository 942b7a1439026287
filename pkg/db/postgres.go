package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-rdisq/rdisq/pkg/config"
)

// Pool wraps pgxpool.Pool for the repositories under examples/ggisimport.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a pool against cfg.Postgres and pings it once before
// returning, so a misconfigured DSN fails at startup rather than on the
// first query.
func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(buildDSN(*cfg))
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.Postgres.MaxConns)
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.Postgres.MinConns)
	}
	poolConfig.ConnConfig.ConnectTimeout = 30 * time.Second

	if schema := cfg.Postgres.Schema; schema != "" {
		prevAfterConnect := poolConfig.AfterConnect
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if prevAfterConnect != nil {
				if err := prevAfterConnect(ctx, conn); err != nil {
					return err
				}
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close releases the pool's connections.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

func buildDSN(cfg config.Config) string {
	pg := cfg.Postgres

	sslmode := pg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	port := pg.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, port, pg.User, pg.Password, pg.DBName, sslmode,
	)
}
