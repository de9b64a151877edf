package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sheerbytes/thrudrop/internal/config"
)

func TestRootRejectsWrongArgumentCount(t *testing.T) {
	for _, args := range [][]string{{}, {"9000"}, {"9000", "/tmp", "extra"}} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		err := cmd.Execute()
		if !errors.Is(err, config.ErrUsage) {
			t.Fatalf("args %v: expected usage error, got %v", args, err)
		}
	}
}

func TestRootRejectsBadPort(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"notaport", t.TempDir()})
	if err := cmd.Execute(); !errors.Is(err, config.ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.ServerConfig{
		Port:            0,
		TargetDir:       t.TempDir(),
		Workers:         2,
		LogLevel:        "error",
		LogFormat:       "text",
		ShutdownTimeout: time.Second,
		AdminAddr:       "127.0.0.1:0",
	}

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
