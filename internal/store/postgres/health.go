package postgres

import (
	"context"
	"time"
)

// HealthStatus reports database connectivity and pool statistics, grounded
// on tarsy's pkg/database/health.go, adapted from database/sql.DBStats to
// pgxpool.Stat.
type HealthStatus struct {
	Status            string        `json:"status"`
	ResponseTime      int64         `json:"response_time_ms"`
	TotalConns        int32         `json:"total_conns"`
	AcquiredConns     int32         `json:"acquired_conns"`
	IdleConns         int32         `json:"idle_conns"`
	MaxConns          int32         `json:"max_conns"`
	NewConnsCount     int64         `json:"new_conns_count"`
	EmptyAcquireCount int64         `json:"empty_acquire_count"`
}

// Health pings the pool and returns its current statistics.
func (s *Store) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	if err := s.Pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start).Milliseconds()}, err
	}
	stat := s.Pool.Stat()
	return &HealthStatus{
		Status:            "healthy",
		ResponseTime:      time.Since(start).Milliseconds(),
		TotalConns:        stat.TotalConns(),
		AcquiredConns:     stat.AcquiredConns(),
		IdleConns:         stat.IdleConns(),
		MaxConns:          stat.MaxConns(),
		NewConnsCount:     stat.NewConnsCount(),
		EmptyAcquireCount: stat.EmptyAcquireCount(),
	}, nil
}
