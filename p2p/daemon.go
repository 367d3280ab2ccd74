// Package p2p runs the per-connection dispatcher: framing each socket with
// the wire codec, driving the PeerEgo state machine against inbound
// messages, and handing accepted transaction batches off to a Stage.
package p2p

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"golang.org/x/net/netutil"

	"github.com/cauchynet/cauchy/arena"
	"github.com/cauchynet/cauchy/config"
	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/crypto/sketches"
	"github.com/cauchynet/cauchy/ego"
	"github.com/cauchynet/cauchy/log"
	"github.com/cauchynet/cauchy/wire"
)

// maxConnections bounds how many peer sockets the dispatcher will accept
// at once, the same defensive cap the reference daemon's MaxPeers flag
// provides, fixed here since the wire protocol has no per-peer handshake
// limit of its own.
const maxConnections = 256

var logger = log.NewModuleLogger(log.ModuleDaemon)

// Stage is the narrow slice of the ingest pipeline the dispatcher drives:
// IngestPeer takes batches that arrive while reconciling a specific peer.
// IngestDirect, for unsolicited batches, is part of the interface, but the
// dispatcher does not call it: Transactions received outside StatePull are
// dropped.
type Stage interface {
	IngestPeer(peerEgo *ego.PeerEgo, txs []*core.Transaction)
	IngestDirect(txs []*core.Transaction)
}

// TxLookup resolves a transaction by ID for GetTransactions replies.
type TxLookup interface {
	LookupTx(id []byte) (*core.Transaction, bool, error)
}

// Daemon owns the listening socket and every live connection's dispatch
// loop. One Daemon exists per running node.
type Daemon struct {
	cfg   *config.Config
	ego   *ego.Ego
	arena *arena.Arena
	stage Stage
	txs   TxLookup

	mu       sync.Mutex
	listener net.Listener
}

// New constructs a Daemon. stage and txs are supplied by the caller to
// avoid a storage/stage import cycle.
func New(cfg *config.Config, localEgo *ego.Ego, a *arena.Arena, stage Stage, txs TxLookup) *Daemon {
	return &Daemon{cfg: cfg, ego: localEgo, arena: a, stage: stage, txs: txs}
}

// Serve accepts connections on the configured server port until ctx is
// cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("0.0.0.0:%d", d.cfg.Network.ServerPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	listener = netutil.LimitListener(listener, maxConnections)
	d.mu.Lock()
	d.listener = listener
	d.mu.Unlock()

	logger.Info("listening", "addr", addr)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Warn("accept failed", "error", err)
				return err
			}
		}
		go d.handleConn(conn, conn.RemoteAddr().String())
	}
}

// Dial opens an outbound connection to address and runs the same
// dispatcher loop a passively-accepted connection would get.
func (d *Daemon) Dial(address string) error {
	if d.arena.RecentDialFailure(address) {
		return fmt.Errorf("p2p: %s recently failed to dial, skipping", address)
	}
	conn, err := net.Dial("tcp", address)
	if err != nil {
		d.arena.RecordDialFailure(address)
		return err
	}
	d.arena.ClearDialFailure(address)
	go d.handleConn(conn, address)
	return nil
}

// handleConn owns one peer's lifecycle: registration, the handshake kick-
// off, the write loop draining the peer's sink, and the read loop decoding
// and dispatching inbound frames. It returns, and cleans up, once the
// connection drops.
func (d *Daemon) handleConn(conn net.Conn, addr string) {
	peerEgo := ego.NewPeerEgo()
	d.arena.NewPeer(addr, peerEgo)
	logger.Info("new connection", "addr", addr)

	peerEgo.SendMsg(&wire.Message{Tag: wire.TagStartHandshake, Secret: peerEgo.Secret()})

	done := make(chan struct{})
	go d.writeLoop(conn, peerEgo, done)

	d.readLoop(conn, addr, peerEgo)

	close(done)
	conn.Close()
	d.arena.RemovePeer(addr)
	logger.Info("connection closed", "addr", addr)
}

func (d *Daemon) writeLoop(conn net.Conn, peerEgo *ego.PeerEgo, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-peerEgo.Sink():
			if _, err := conn.Write(wire.Encode(msg)); err != nil {
				return
			}
		}
	}
}

func (d *Daemon) readLoop(conn net.Conn, addr string, peerEgo *ego.PeerEgo) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				msg, consumed, derr := wire.Decode(buf)
				if derr == wire.ErrIncompleteFrame {
					break
				}
				if derr != nil {
					logger.Warn("malformed frame, dropping connection", "addr", addr, "error", derr)
					return
				}
				buf = buf[consumed:]
				d.dispatch(addr, peerEgo, msg)
			}
		}
		if err != nil {
			return
		}
	}
}

// dispatch applies one inbound message to peerEgo's state machine, mirroring
// the reference dispatcher's per-tag match arm by arm.
func (d *Daemon) dispatch(addr string, peerEgo *ego.PeerEgo, msg *wire.Message) {
	switch msg.Tag {
	case wire.TagStartHandshake:
		logger.Debug("received handshake initialisation", "addr", addr)
		peerEgo.SendMsg(d.ego.GenerateEndHandshake(msg.Secret))

	case wire.TagEndHandshake:
		logger.Debug("received handshake finalisation", "addr", addr)
		peerEgo.CheckHandshake(msg.Sig, msg.Pubkey)

	case wire.TagWork:
		logger.Debug("received work", "addr", addr)
		if peerEgo.Status().Kind == core.StatusWorkPull {
			stack := core.NewWorkStack(msg.Root, msg.OddSketch, msg.Nonce)
			peerEgo.PullWork(stack)
		} else {
			logger.Warn("unsolicited work, ignoring", "addr", addr)
		}

	case wire.TagMiniSketch:
		d.handleMiniSketch(addr, peerEgo, msg)

	case wire.TagGetTransactions:
		d.handleGetTransactions(addr, peerEgo, msg)

	case wire.TagTransactions:
		d.handleTransactions(addr, peerEgo, msg)

	case wire.TagReconcile:
		logger.Debug("received reconcile", "addr", addr)
		if peerEgo.Status().Kind == core.StatusIdle {
			mini, ok := peerEgo.PerceivedMiniSketch()
			if !ok {
				return
			}
			peerEgo.SetStatus(core.StatePushStatus())
			peerEgo.SendMsg(&wire.Message{Tag: wire.TagMiniSketch, MiniSketchIDs: mini.PosIDs()})
		} else {
			peerEgo.SendMsg(&wire.Message{Tag: wire.TagReconcileNegAck})
		}

	case wire.TagGetWork:
		logger.Debug("received get work", "addr", addr)
		peerEgo.PushWork(d.ego.WorkStack(), d.ego.MiniSketch())

	case wire.TagReconcileNegAck:
		logger.Debug("received reconcile negack", "addr", addr)
		if peerEgo.Status().Kind == core.StatusStatePull {
			peerEgo.SetStatus(core.IdleStatus())
		} else {
			logger.Warn("unexpected reconcile negack", "addr", addr)
		}

	case wire.TagPeers:
		for _, p := range msg.Peers {
			target := fmt.Sprintf("%d.%d.%d.%d:%d", p.IP[0], p.IP[1], p.IP[2], p.IP[3], p.Port)
			if err := d.Dial(target); err != nil {
				logger.Warn("failed to dial announced peer", "addr", target, "error", err)
			}
		}
	}
}

func (d *Daemon) handleMiniSketch(addr string, peerEgo *ego.PeerEgo, msg *wire.Message) {
	logger.Debug("received minisketch", "addr", addr)

	perceivedOdd, oddOK := peerEgo.PerceivedOddSketch()
	perceivedMini, miniOK := peerEgo.PerceivedMiniSketch()
	status := peerEgo.Status()

	if status.Kind != core.StatusStatePull || !oddOK || !miniOK {
		logger.Warn("minisketch from non-pull target", "addr", addr)
		peerEgo.SetStatus(core.IdleStatus())
		return
	}

	peerMini := sketches.NewDifferenceSketch()
	for _, id := range msg.MiniSketchIDs {
		peerMini.InsertID(id)
	}

	diff := perceivedMini.Sub(peerMini)
	excess, missing := diff.Decode()

	lhs := sketches.FromIDs(excess).XOR(sketches.FromIDs(missing))
	rhs := perceivedOdd.XOR(status.Expectation.OddSketch)

	if !lhs.Equal(rhs) {
		logger.Warn("fraudulent minisketch", "addr", addr)
		peerEgo.SetStatus(core.IdleStatus())
		return
	}

	logger.Debug("minisketch passed validation", "addr", addr, "missing", len(missing))
	status.Expectation.UpdateIDs(missing)
	status.Expectation.MiniSketch = peerMini
	peerEgo.SendMsg(&wire.Message{Tag: wire.TagGetTransactions, IDs: missing})
}

func (d *Daemon) handleGetTransactions(addr string, peerEgo *ego.PeerEgo, msg *wire.Message) {
	logger.Debug("received transaction request", "addr", addr, "count", len(msg.IDs))

	txs := make([]*core.Transaction, 0, len(msg.IDs))
	for _, id := range msg.IDs {
		tx, ok, err := d.txs.LookupTx(id)
		if err != nil || !ok {
			logger.Warn("transaction not found", "addr", addr, "error", err)
			peerEgo.SetStatus(core.IdleStatus())
			return
		}
		txs = append(txs, tx)
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].Less(txs[j]) })

	peerEgo.SetStatus(core.IdleStatus())
	peerEgo.SendMsg(&wire.Message{Tag: wire.TagTransactions, Txs: txs})
}

func (d *Daemon) handleTransactions(addr string, peerEgo *ego.PeerEgo, msg *wire.Message) {
	logger.Debug("received transactions", "addr", addr, "count", len(msg.Txs))

	switch peerEgo.Status().Kind {
	case core.StatusStatePull:
		go d.stage.IngestPeer(peerEgo, msg.Txs)
	default:
		logger.Warn("unsolicited transactions outside state pull, dropping", "addr", addr, "state", peerEgo.Status().Kind)
	}
}
