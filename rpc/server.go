package rpc

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/netutil"

	"github.com/cauchynet/cauchy/config"
	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/log"
	"github.com/cauchynet/cauchy/storage/database"
)

var logger = log.NewModuleLogger(log.ModuleRPC)

// maxConnections bounds concurrent local control connections -- generous
// for a loopback-only protocol, but still a bound.
const maxConnections = 64

// Dialer is the slice of the dispatcher the RPC server drives for AddPeer:
// dial an address and register it with the arena.
type Dialer interface {
	Dial(address string) error
}

// Stage is the slice of the ingest pipeline the RPC server drives for
// NewTransaction.
type Stage interface {
	IngestRPC(txs []*core.Transaction) error
}

// Server accepts local control connections and dispatches each framed
// command to the daemon, the stage, or the state store.
type Server struct {
	cfg    *config.Config
	dialer Dialer
	stage  Stage
	store  database.Store

	listener net.Listener
}

// New constructs a Server.
func New(cfg *config.Config, dialer Dialer, stage Stage, store database.Store) *Server {
	return &Server{cfg: cfg, dialer: dialer, stage: stage, store: store}
}

// Serve accepts connections on the configured RPC port until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Network.RPCServerPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	listener = netutil.LimitListener(listener, maxConnections)
	s.listener = listener
	logger.Info("rpc server listening", "addr", addr)

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
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				msg, consumed, derr := Decode(buf)
				if derr == ErrIncompleteFrame {
					break
				}
				if derr != nil {
					logger.Warn("malformed rpc frame, dropping connection", "error", derr)
					return
				}
				buf = buf[consumed:]
				s.dispatch(conn, msg)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, msg *Message) {
	switch msg.Tag {
	case TagAddPeer:
		target := fmt.Sprintf("%d.%d.%d.%d:%d", msg.Peer.IP[0], msg.Peer.IP[1], msg.Peer.IP[2], msg.Peer.IP[3], msg.Peer.Port)
		if err := s.dialer.Dial(target); err != nil {
			logger.Warn("rpc add_peer failed", "addr", target, "error", err)
		}

	case TagNewTransaction:
		if err := s.stage.IngestRPC([]*core.Transaction{msg.Tx}); err != nil {
			logger.Warn("rpc new_transaction rejected", "error", err)
		}

	case TagFetchValue:
		key := scopedStateKey(msg.ActorID, msg.Key)
		value, ok, err := s.store.Get(database.TableState, key)
		if err != nil {
			logger.Warn("rpc fetch_value failed", "error", err)
			return
		}
		if !ok {
			value = nil
		}
		if _, err := conn.Write(value); err != nil {
			logger.Warn("rpc fetch_value reply failed", "error", err)
		}
	}
}

// scopedStateKey matches the actor_id||program_key convention the VM's
// Store/Lookup syscalls use, so an RPC FetchValue reads back exactly what
// a transaction wrote via the store syscall.
func scopedStateKey(actorID, key []byte) []byte {
	out := make([]byte, 0, len(actorID)+len(key))
	out = append(out, actorID...)
	out = append(out, key...)
	return out
}
