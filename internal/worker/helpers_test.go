package worker

import (
	"io"
	"log/slog"
	"time"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{BatchSize: 10, MaxRetries: 3, RetryDelay: time.Minute}
}
