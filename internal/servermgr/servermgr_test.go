package servermgr

import (
	"context"
	"errors"
	"testing"
)

type fakeController struct {
	pingErr     error
	stopCalls   int
	startCalls  int
	pingCalls   int
}

func (f *fakeController) Start(ctx context.Context, env []string) error { f.startCalls++; return nil }
func (f *fakeController) Ping(ctx context.Context) error                { f.pingCalls++; return f.pingErr }
func (f *fakeController) Stop(ctx context.Context) error                { f.stopCalls++; return nil }

func TestHealthMonitor_RecoversAfterThreshold(t *testing.T) {
	ctrl := &fakeController{pingErr: errors.New("timeout")}
	h := NewHealthMonitor(ctrl, 3)

	for i := 0; i < 2; i++ {
		if err := h.Ping(context.Background(), nil); err != nil {
			t.Fatalf("unexpected error before threshold: %v", err)
		}
		if !h.Healthy() {
			t.Fatal("expected still healthy before threshold reached")
		}
	}

	if err := h.Ping(context.Background(), nil); err != nil {
		t.Fatalf("recovery Ping returned error: %v", err)
	}
	if h.Healthy() {
		t.Fatal("expected unhealthy once threshold reached")
	}
	if ctrl.stopCalls != 1 || ctrl.startCalls != 1 {
		t.Fatalf("expected one stop+start recovery cycle, got stop=%d start=%d", ctrl.stopCalls, ctrl.startCalls)
	}
}

func TestHealthMonitor_SuccessResetsCounter(t *testing.T) {
	ctrl := &fakeController{pingErr: errors.New("timeout")}
	h := NewHealthMonitor(ctrl, 3)
	h.Ping(context.Background(), nil)
	h.Ping(context.Background(), nil)

	ctrl.pingErr = nil
	if err := h.Ping(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Healthy() {
		t.Fatal("expected healthy after a successful ping")
	}

	ctrl.pingErr = errors.New("timeout again")
	for i := 0; i < 2; i++ {
		h.Ping(context.Background(), nil)
	}
	if !h.Healthy() {
		t.Fatal("expected counter reset to have required a fresh run to threshold")
	}
}

func TestCapacityGate_TryAcquireExhausted(t *testing.T) {
	g := NewCapacityGate(1, 0)
	if err := g.TryAcquire(); err != nil {
		t.Fatalf("expected first acquire to succeed: %v", err)
	}
	if err := g.TryAcquire(); err == nil {
		t.Fatal("expected second acquire to fail with ResourceExhausted")
	}
	g.Release()
	if err := g.TryAcquire(); err != nil {
		t.Fatalf("expected acquire to succeed after release: %v", err)
	}
}
