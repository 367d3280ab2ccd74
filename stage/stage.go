package stage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/crypto/hashes"
	"github.com/cauchynet/cauchy/ego"
	"github.com/cauchynet/cauchy/log"
	"github.com/cauchynet/cauchy/mining"
	"github.com/cauchynet/cauchy/storage/database"
)

var logger = log.NewModuleLogger(log.ModuleStage)

// Stage is the single owner of the commit path: every accepted batch,
// whatever its origin, passes through commit or commitPull under the same
// lock, so the running root hash and the running Ego state never
// interleave.
type Stage struct {
	mu sync.Mutex

	ego    *ego.Ego
	store  database.Store
	pool   *mining.Pool
	resets chan<- ego.MiningReset

	mempool  *TxPool
	knownIDs map[string][]byte
}

// New constructs a Stage. pool may be nil (e.g. in tests exercising ingest
// without a live mining pool); a nil pool simply skips the broadcast step.
// resets may also be nil; when supplied, every accepted batch's new target
// is also pushed onto it so Ego.Updater unconditionally adopts the next
// proposal against the post-ingest root rather than mining stale state.
func New(localEgo *ego.Ego, store database.Store, mempoolSize int, pool *mining.Pool, resets chan<- ego.MiningReset) *Stage {
	return &Stage{
		ego:      localEgo,
		store:    store,
		pool:     pool,
		resets:   resets,
		mempool:  NewTxPool(mempoolSize),
		knownIDs: make(map[string][]byte),
	}
}

// IngestPeer handles a Transactions reply received while peerEgo is
// StatePull: the payload must exactly match the recorded Expectation, or
// the exchange is misbehaviour and the peer is simply reset to Idle.
func (s *Stage) IngestPeer(peerEgo *ego.PeerEgo, txs []*core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := peerEgo.Status()
	if status.Kind != core.StatusStatePull || status.Expectation == nil || !status.Expectation.IsExpectedPayload(txs) {
		logger.Warn("unexpected transaction payload from reconciliation target")
		peerEgo.SetStatus(core.IdleStatus())
		return
	}

	peerEgo.SetStatus(core.IdleStatus())
	if err := s.commitPull(txs, status.Expectation); err != nil {
		logger.Error("commit failed", "error", err)
	}
}

// IngestDirect handles transactions that arrive outside of an active
// reconciliation -- unsolicited peer gossip. It is fire-and-forget: a
// rejected batch is simply dropped.
func (s *Stage) IngestDirect(txs []*core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stageAndCommit(txs)
}

// IngestRPC handles a locally-submitted transaction batch, returning the
// pool/commit error synchronously so an RPC caller can report it.
func (s *Stage) IngestRPC(txs []*core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageAndCommit(txs)
}

func (s *Stage) stageAndCommit(txs []*core.Transaction) error {
	if err := s.mempool.InsertBatch(txs, true); err != nil {
		logger.Warn("rejecting batch", "error", err)
		return err
	}
	staged := s.mempool.Drain()
	if err := s.commit(staged); err != nil {
		logger.Error("commit failed", "error", err)
		return err
	}
	return nil
}

// commit is the six-step accept path for directly-admitted batches
// (RPC/gossip): persist each transaction, recompute the root over the full
// known ID set, fold the batch into Ego by union, and broadcast the new
// target to the mining pool and to Ego's updater.
func (s *Stage) commit(txs []*core.Transaction) error {
	if err := s.persist(txs); err != nil {
		return err
	}

	newRoot := s.computeRoot()
	for _, tx := range txs {
		s.ego.Increment(tx, newRoot)
	}

	s.broadcastReset(ego.MiningReset{OddSketch: s.ego.WorkStack().OddSketch, Root: newRoot})
	return nil
}

// commitPull is the accept path for a reconciliation target's Transactions
// reply: persist the batch, then bulk-replace local state with the leader's
// advertised (oddsketch, minisketch, root) via Ego.Pull rather than folding
// in by union -- a peer's transactions that it no longer advertises (e.g.
// it dropped a duplicate) must not survive the pull.
func (s *Stage) commitPull(txs []*core.Transaction, exp *core.Expectation) error {
	if err := s.persist(txs); err != nil {
		return err
	}

	s.ego.Pull(exp.OddSketch, exp.MiniSketch, exp.Root)
	s.broadcastReset(ego.MiningReset{OddSketch: exp.OddSketch, Root: exp.Root})
	return nil
}

// persist writes each transaction to the TX table and records its ID in
// the running known-ID set the root is computed over.
func (s *Stage) persist(txs []*core.Transaction) error {
	for _, tx := range txs {
		if err := s.store.Put(database.TableTX, tx.ID(), tx.Encode()); err != nil {
			return err
		}
		s.knownIDs[string(tx.ID())] = tx.ID()
	}
	return nil
}

// broadcastReset pushes a new target to the mining pool and, non-blocking,
// to Ego's updater so a pending proposal is adopted against the new root
// rather than left mining the stale one.
func (s *Stage) broadcastReset(reset ego.MiningReset) {
	if s.pool != nil {
		s.pool.Broadcast(reset)
	}
	if s.resets != nil {
		select {
		case s.resets <- reset:
		default:
		}
	}
}

// computeRoot recomputes H(H(concat(sorted ids))) over every transaction
// ID this Stage has ever accepted -- a deliberate recompute-not-maintain
// choice so the root can never drift from the set it summarizes.
func (s *Stage) computeRoot() []byte {
	ids := make([][]byte, 0, len(s.knownIDs))
	for _, id := range s.knownIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i], ids[j]) < 0 })

	var buf bytes.Buffer
	for _, id := range ids {
		buf.Write(id)
	}
	return hashes.DoubleSum256(buf.Bytes())
}

// LookupTx implements p2p.TxLookup by reading the persisted TX table.
func (s *Stage) LookupTx(id []byte) (*core.Transaction, bool, error) {
	raw, ok, err := s.store.Get(database.TableTX, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	tx, _, err := core.DecodeTransaction(raw)
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}
