package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/taskpulse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, o options)
	}{
		{
			name: "once",
			args: []string{"--once"},
			check: func(t *testing.T, o options) {
				assert.True(t, o.once)
				assert.Equal(t, -1, o.maxRetries)
			},
		},
		{
			name: "loop with overrides",
			args: []string{"--loop", "--interval=2s", "--max-iterations=3", "--batch-size=10", "--max-retries=0"},
			check: func(t *testing.T, o options) {
				assert.True(t, o.loop)
				assert.Equal(t, 2*time.Second, o.interval)
				assert.Equal(t, 3, o.maxIterations)
				assert.Equal(t, 10, o.batchSize)
				assert.Equal(t, 0, o.maxRetries)
			},
		},
		{name: "neither mode", args: nil, wantErr: "exactly one of"},
		{name: "both modes", args: []string{"--once", "--loop"}, wantErr: "exactly one of"},
		{name: "verbose and quiet", args: []string{"--once", "-v", "-q"}, wantErr: "mutually exclusive"},
		{name: "negative iterations", args: []string{"--loop", "--max-iterations=-1"}, wantErr: "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestOptionsApply(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "info"},
		Worker: config.WorkerConfig{BatchSize: 50, MaxRetries: 3, PollInterval: 5 * time.Second},
	}
	options{batchSize: 7, maxRetries: 0, interval: time.Second, quiet: true}.apply(cfg)

	assert.Equal(t, 7, cfg.Worker.BatchSize)
	assert.Equal(t, 0, cfg.Worker.MaxRetries)
	assert.Equal(t, time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, "error", cfg.Server.LogLevel)

	// Unset overrides leave the loaded values alone.
	cfg.Worker.MaxRetries = 3
	options{maxRetries: -1}.apply(cfg)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 7, cfg.Worker.BatchSize)
}

func TestNewWorkers_RunsEmptyCycle(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cols := func() *sqlmock.Rows { return sqlmock.NewRows([]string{"id"}) }
	mock.ExpectQuery("FROM task_events").WillReturnRows(cols())
	mock.ExpectQuery("FROM notification_deliveries").WillReturnRows(cols())
	mock.ExpectQuery("FROM task_reminders").WillReturnRows(cols())

	cfg := &config.Config{
		Events: config.EventsConfig{Enabled: true, Broker: "none", PublishTimeout: time.Second},
		Worker: config.WorkerConfig{BatchSize: 5, MaxRetries: 3, RetryDelay: time.Minute, PollInterval: time.Second},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := newWorkers(context.Background(), cfg, logger, db)
	require.NoError(t, err)
	defer w.close()

	result := w.runner.RunOnce(context.Background())
	assert.False(t, result.HasErrors())
	assert.Equal(t, 3, result.WorkersRun)
	assert.Equal(t, 0, result.TotalProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}
