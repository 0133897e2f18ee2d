package app

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/metrics"
)

func TestServeStatus_BindFailureKeepsRunning(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer taken.Close()

	var buf bytes.Buffer
	a := &App{logger: logger.NewWithWriter(&buf), metrics: metrics.New()}
	server := &http.Server{Addr: taken.Addr().String(), Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.serveStatus(ctx, server)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serveStatus did not return after the bind failure")
	}
	if ctx.Err() != nil {
		t.Error("a status server failure must not cancel the frame loop")
	}
	if !strings.Contains(buf.String(), "Status server failed") {
		t.Errorf("failure not logged: %s", buf.String())
	}
}

func TestServeStatus_ShutsDownOnCancel(t *testing.T) {
	a := &App{logger: logger.NewNop(), metrics: metrics.New()}
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.serveStatus(ctx, server)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("serveStatus did not return after cancellation")
	}
}
