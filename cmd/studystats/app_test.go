package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/studygroup-stats/config"
	"github.com/alem-hub/studygroup-stats/internal/infrastructure/persistence/postgres"
)

func TestPoolOptions_OverridesDefaults(t *testing.T) {
	opts := poolOptions(config.DatabaseConfig{})
	assert.Equal(t, postgres.DefaultPoolOptions(), opts)

	var cfg config.DatabaseConfig
	cfg.MaxConns = 25
	cfg.ConnMaxIdleTime.Duration = 5 * time.Minute
	opts = poolOptions(cfg)

	assert.Equal(t, int32(25), opts.MaxConns)
	assert.Equal(t, 5*time.Minute, opts.MaxConnIdleTime)
	assert.Equal(t, postgres.DefaultPoolOptions().MinConns, opts.MinConns)
	assert.Equal(t, postgres.DefaultPoolOptions().MaxConnLifetime, opts.MaxConnLifetime)
	assert.Equal(t, time.Minute, opts.HealthCheckPeriod)
}

type stubPool struct {
	status postgres.HealthStatus
}

func (s stubPool) Health(context.Context) postgres.HealthStatus { return s.status }

func TestPoolCheck_ReportsPoolStats(t *testing.T) {
	healthy := postgres.HealthStatus{Healthy: true, TotalConns: 4, IdleConns: 3, AcquiredConns: 1}
	details, err := poolCheck(stubPool{status: healthy})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, healthy, details)

	down := postgres.HealthStatus{Error: "connection refused"}
	details, err = poolCheck(stubPool{status: down})(context.Background())
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, down, details)
}
