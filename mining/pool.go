package mining

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/cauchynet/cauchy/ego"
)

// Pool is a fixed-size set of nonce-search workers sharing one pubkey and
// one proposals channel into Ego.Updater.
type Pool struct {
	workers []*worker
	stop    chan struct{}
}

// Start launches n workers, each racing independently against the same
// target, reporting improvements on proposals.
func Start(n int, pubkey *secp256k1.PublicKey, proposals chan<- ego.MiningProposal) *Pool {
	p := &Pool{stop: make(chan struct{})}
	for i := 0; i < n; i++ {
		w := newWorker(i, pubkey, proposals)
		p.workers = append(p.workers, w)
		go w.run(p.stop)
	}
	logger.Info("started mining pool", "workers", n)
	return p
}

// Broadcast pushes a new (oddsketch, root) target to every worker.
func (p *Pool) Broadcast(sketchAndRoot ego.MiningReset) {
	for _, w := range p.workers {
		w.reset(sketchAndRoot)
	}
}

// Stop halts every worker.
func (p *Pool) Stop() {
	close(p.stop)
}
