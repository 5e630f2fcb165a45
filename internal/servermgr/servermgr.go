// Package servermgr is the Server Manager's interface to the core: a
// session-server lifecycle controller, the health-check loop that counts
// ping failures toward numOfFailedPingsBeforeRecovery, and a capacity gate
// bounding concurrent sessions to maxPlaybacks+maxWebAudioPlayers. No
// process fork/exec/signal code lives here — process spawning belongs to
// the external management layer.
package servermgr

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/rdkcentral/rialto-sub011/internal/logger"
	"github.com/rdkcentral/rialto-sub011/internal/rierr"
)

// State mirrors the session-server states observable on the control
// channel.
type State int

const (
	StateUninitialized State = iota
	StateInactive
	StateActive
	StateNotRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInactive:
		return "Inactive"
	case StateActive:
		return "Active"
	case StateNotRunning:
		return "NotRunning"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// SessionServerController is the typed collaborator boundary to the
// external process-management layer.
type SessionServerController interface {
	Start(ctx context.Context, env []string) error
	Ping(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthMonitor counts consecutive ping failures toward
// numOfFailedPingsBeforeRecovery, grounded on
// mediaclient.poolMember.failCount/successCount.
type HealthMonitor struct {
	ctrl      SessionServerController
	threshold int

	failCount atomic.Int32
	healthy   atomic.Bool
}

// NewHealthMonitor returns a monitor for ctrl with the given
// numOfFailedPingsBeforeRecovery threshold.
func NewHealthMonitor(ctrl SessionServerController, threshold int) *HealthMonitor {
	h := &HealthMonitor{ctrl: ctrl, threshold: threshold}
	h.healthy.Store(true)
	return h
}

// Ping performs one health-check cycle: a failed ping increments the
// failure counter; reaching threshold marks the controller unhealthy and
// triggers recovery (Stop then Start). A successful ping resets the
// counter and restores healthy status.
func (h *HealthMonitor) Ping(ctx context.Context, env []string) error {
	if err := h.ctrl.Ping(ctx); err != nil {
		n := h.failCount.Add(1)
		logger.Warn("session server ping failed", "consecutive_failures", n, "error", err)
		if int(n) >= h.threshold {
			h.healthy.Store(false)
			return h.recover(ctx, env)
		}
		return nil
	}
	h.failCount.Store(0)
	h.healthy.Store(true)
	return nil
}

func (h *HealthMonitor) recover(ctx context.Context, env []string) error {
	logger.Warn("session server exceeded failed-ping threshold, recovering")
	if err := h.ctrl.Stop(ctx); err != nil {
		logger.Warn("recovery stop failed", "error", err)
	}
	h.failCount.Store(0)
	return h.ctrl.Start(ctx, env)
}

// Healthy reports the monitor's last-known health status.
func (h *HealthMonitor) Healthy() bool {
	return h.healthy.Load()
}

// CapacityGate bounds concurrent sessions to the fixed
// maxPlaybacks+maxWebAudioPlayers budget with a weighted semaphore.
type CapacityGate struct {
	sem *semaphore.Weighted
}

// NewCapacityGate sizes the gate to maxPlaybacks+maxWebAudioPlayers.
func NewCapacityGate(maxPlaybacks, maxWebAudioPlayers int) *CapacityGate {
	return &CapacityGate{sem: semaphore.NewWeighted(int64(maxPlaybacks + maxWebAudioPlayers))}
}

// Acquire reserves one capacity slot, blocking until one is free or ctx is
// cancelled. Callers that need a non-blocking check should use TryAcquire.
func (g *CapacityGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire reserves one slot without blocking, returning
// rierr.ResourceExhausted if none is free.
func (g *CapacityGate) TryAcquire() error {
	if !g.sem.TryAcquire(1) {
		return rierr.Wrap(rierr.ResourceExhausted, "max playbacks exceeded")
	}
	return nil
}

// Release returns one capacity slot.
func (g *CapacityGate) Release() {
	g.sem.Release(1)
}
