package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"homeserve/backend/internal/config"
)

func testConfig(addr string) config.Config {
	return config.Config{
		GRPCAddr:        addr,
		StoreDriver:     config.StoreDriverMemory,
		ShutdownTimeout: time.Second,
	}
}

func TestServe_ReturnsExitCode(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	if code := serve(context.Background(), testConfig(busy.Addr().String()), log); code != 1 {
		t.Fatalf("listen failure exit code = %d, want 1", code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code := serve(ctx, testConfig("127.0.0.1:0"), log); code != 0 {
		t.Fatalf("shutdown exit code = %d, want 0", code)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " WARN ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLogLevel(tt.in); got != tt.want {
				t.Fatalf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
