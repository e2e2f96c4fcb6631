package main

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"tftstats/internal/logging"
)

func TestSetupSignalHandler_CancelsOnSignal(t *testing.T) {
	var called atomic.Bool
	ctx := SetupSignalHandler(logging.NewNop(), func(context.Context) {
		called.Store(true)
	})

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after SIGINT")
	}

	if !called.Load() {
		t.Error("shutdown callback was not called")
	}
}
