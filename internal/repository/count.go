package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CountSource reads the authoritative candidate total straight from Postgres.
type CountSource struct {
	pool  *pgxpool.Pool
	query string
}

func NewCountSource(pool *pgxpool.Pool, query string) *CountSource {
	if query == "" {
		query = "SELECT count(*) FROM candidates"
	}
	return &CountSource{pool: pool, query: query}
}

func (s *CountSource) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, s.query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return int(n), nil
}
