// Package mining runs the CPU-bound nonce-search workers that race to
// minimize the Hamming distance between a WorkSite and the local
// OddSketch, reporting improvements to Ego's updater.
package mining

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/ego"
	"github.com/cauchynet/cauchy/log"
)

var logger = log.NewModuleLogger(log.ModuleMining)

// sentinelDistance matches Ego's initial best distance: no real Hamming
// distance over a 256-bit sketch reaches it.
const sentinelDistance = 512

// worker is one nonce-search thread. It never sleeps: a reset replaces its
// target and re-scores the current nonce against it; absent a reset it
// just increments the nonce and re-scores, reporting only strict
// improvements.
type worker struct {
	id     int
	pubkey *secp256k1.PublicKey

	resets    chan ego.MiningReset
	proposals chan<- ego.MiningProposal

	hashMeter metrics.Meter
}

func newWorker(id int, pubkey *secp256k1.PublicKey, proposals chan<- ego.MiningProposal) *worker {
	return &worker{
		id:        id,
		pubkey:    pubkey,
		resets:    make(chan ego.MiningReset, 1),
		proposals: proposals,
		hashMeter: metrics.NewRegisteredMeter("cauchy/mining/hashrate", nil),
	}
}

// reset delivers the latest (oddsketch, root) target, overwriting any
// stale, not-yet-consumed one -- only the newest target matters.
func (w *worker) reset(r ego.MiningReset) {
	select {
	case <-w.resets:
	default:
	}
	w.resets <- r
}

// run blocks for the first target, then loops: on a fresh reset it
// re-scores the current nonce against the new target unconditionally; in
// the common case it just increments the nonce and reports strict
// improvements since the last reset.
func (w *worker) run(stop <-chan struct{}) {
	var current ego.MiningReset
	select {
	case current = <-w.resets:
	case <-stop:
		return
	}

	var nonce uint64
	bestDistance := sentinelDistance

	for {
		select {
		case <-stop:
			return
		case current = <-w.resets:
			dist := core.NewWorkSite(w.pubkey, current.Root, nonce).Mine(current.OddSketch)
			w.proposals <- ego.MiningProposal{Nonce: nonce, Distance: dist}
			bestDistance = dist
		default:
			dist := core.NewWorkSite(w.pubkey, current.Root, nonce).Mine(current.OddSketch)
			if dist < bestDistance {
				w.proposals <- ego.MiningProposal{Nonce: nonce, Distance: dist}
				bestDistance = dist
			}
			w.hashMeter.Mark(1)
			nonce++
		}
	}
}
