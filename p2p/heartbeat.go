package p2p

import (
	"context"
	"sync"
	"time"

	"github.com/cauchynet/cauchy/arena"
	"github.com/cauchynet/cauchy/config"
)

// Heartbeat periodically solicits Work from a quorum of peers and, after a
// fixed delay, asks the arena to pick a reconciliation leader -- the two
// halves of the reference daemon's Interval/Delay pair, reshaped as a
// ticker plus a one-shot timer per tick.
type Heartbeat struct {
	arena *arena.Arena
	cfg   *config.Config

	mu   sync.Mutex
	busy bool
}

// NewHeartbeat constructs a Heartbeat bound to a.
func NewHeartbeat(a *arena.Arena, cfg *config.Config) *Heartbeat {
	return &Heartbeat{arena: a, cfg: cfg}
}

// Run ticks every work_heartbeat_ms until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	interval := time.Duration(h.cfg.Network.WorkHeartbeatMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

// tick fires a work pulse unless a previous cycle's reconcile timer is
// still pending -- the stand-in for "only heartbeat when idle".
func (h *Heartbeat) tick(ctx context.Context) {
	h.mu.Lock()
	if h.busy {
		h.mu.Unlock()
		return
	}
	h.busy = true
	h.mu.Unlock()

	h.arena.WorkPulse(h.cfg.Network.QuorumSize)

	timeout := time.Duration(h.cfg.Network.ReconcileTimeoutMs) * time.Millisecond
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(timeout):
			h.arena.ReconcileLeader()
		}
		h.mu.Lock()
		h.busy = false
		h.mu.Unlock()
	}()
}
