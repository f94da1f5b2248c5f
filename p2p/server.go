package p2p

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/engine"
)

const maxHeadersPerResponse = 2000

// TemplateProvider is the mining template dispatcher's view from the p2p
// server (§4.8). It is a local interface because mining imports p2p, so p2p
// cannot import mining; mining.Dispatcher satisfies it structurally.
type TemplateProvider interface {
	BuildTemplate(payout crypto.PublicKey) (consensus.Block, error)
	HandleSubmit(block consensus.Block) error
	Subscribe(session *Session, payout crypto.PublicKey)
	Unsubscribe(session *Session)
}

// Server owns the listener, outbound dials and the set of live sessions; it
// implements Handler by delegating to the consensus engine (§4.6, §4.7).
type Server struct {
	engine   *engine.Engine
	nodeID   [32]byte
	log      *zap.Logger
	template TemplateProvider

	mu       sync.Mutex
	sessions map[*Session]struct{}
	listener net.Listener
}

// NewServer constructs a Server bound to e. nodeID is generated randomly if
// left zero.
func NewServer(e *engine.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	var id [32]byte
	_, _ = rand.Read(id[:])
	return &Server{
		engine:   e,
		nodeID:   id,
		log:      log,
		sessions: make(map[*Session]struct{}),
	}
}

// SetTemplateProvider wires in the mining template dispatcher.
func (srv *Server) SetTemplateProvider(p TemplateProvider) { srv.template = p }

// Listen accepts inbound connections on addr until the listener is closed.
func (srv *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv.listener = ln
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn)
		}
	}()
	return nil
}

// Close stops accepting new connections and tears down every live session.
func (srv *Server) Close() error {
	if srv.listener != nil {
		_ = srv.listener.Close()
	}
	srv.mu.Lock()
	sessions := make([]*Session, 0, len(srv.sessions))
	for s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()
	for _, s := range sessions {
		s.Close(nil)
	}
	return nil
}

// Dial establishes an outbound session to addr.
func (srv *Server) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	go srv.serve(conn)
	return nil
}

func (srv *Server) serve(conn net.Conn) {
	s := NewSession(conn, srv, srv.log)
	srv.addSession(s)
	defer srv.removeSession(s)

	if err := s.Run(); err != nil {
		srv.log.Debug("peer session ended", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
	}
	if srv.template != nil {
		srv.template.Unsubscribe(s)
	}
}

func (srv *Server) addSession(s *Session) {
	srv.mu.Lock()
	srv.sessions[s] = struct{}{}
	srv.mu.Unlock()
}

func (srv *Server) removeSession(s *Session) {
	srv.mu.Lock()
	delete(srv.sessions, s)
	srv.mu.Unlock()
}

func (srv *Server) readySessions() []*Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]*Session, 0, len(srv.sessions))
	for s := range srv.sessions {
		if s.State() == StateReady {
			out = append(out, s)
		}
	}
	return out
}

// RunGossip subscribes to the engine's NewTip events and floods the new tip
// block to every Ready peer (§4.6, §4.7), until stop is closed.
func (srv *Server) RunGossip(stop <-chan struct{}) {
	sub := srv.engine.Subscribe()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			block, found := srv.engine.BlockByHash(ev.Hash)
			if !found {
				continue
			}
			srv.gossipBlock(block, nil)
		}
	}
}

func (srv *Server) gossipBlock(b consensus.Block, origin *Session) {
	hash := consensus.BlockHash(b)
	for _, s := range srv.readySessions() {
		if s == origin || s.HasBeenTold(hash) {
			continue
		}
		s.MarkToldAbout(hash)
		s.Send(blockEnvelope(b))
	}
}

func (srv *Server) gossipTx(tx consensus.Transaction, origin *Session) {
	hash := consensus.TxHash(tx)
	for _, s := range srv.readySessions() {
		if s == origin || s.HasBeenTold(hash) {
			continue
		}
		s.MarkToldAbout(hash)
		s.Send(txEnvelope(tx))
	}
}

// LocalHello implements Handler.
func (srv *Server) LocalHello() HelloPayload {
	hash, height, _ := srv.engine.Tip()
	return HelloPayload{
		ProtocolVersion: ProtocolVersion,
		NodeID:          srv.nodeID,
		TipHash:         hash,
		TipHeight:       height,
	}
}

// OnGetBlock implements Handler.
func (srv *Server) OnGetBlock(hash crypto.Hash) (consensus.Block, bool) {
	return srv.engine.BlockByHash(hash)
}

// OnBlock implements Handler: submits the block to consensus and, on
// acceptance, relays it onward (§4.7 gossip).
func (srv *Server) OnBlock(s *Session, b consensus.Block) error {
	hash := consensus.BlockHash(b)
	s.MarkToldAbout(hash)
	outcome, err := srv.engine.SubmitBlock(b, time.Now().Unix())
	if err != nil {
		if chainerr.Is(err, chainerr.AlreadyKnown) {
			return nil
		}
		if chainerr.Is(err, chainerr.UnknownParent) {
			s.RequestBlock(b.Header.PrevBlockHash)
			return nil
		}
		return err
	}
	if outcome == engine.Extended || outcome == engine.Reorged {
		srv.gossipBlock(b, s)
	}
	return nil
}

// OnGetHeaders implements Handler with a linear scan over the canonical
// chain starting at req.FromHash (§4.7 bulk sync).
func (srv *Server) OnGetHeaders(req GetHeadersPayload) []consensus.BlockHeader {
	_, tipHeight, _ := srv.engine.Tip()
	startHeight := uint64(0)
	found := false
	for h := uint64(0); h <= tipHeight; h++ {
		block, ok := srv.engine.BlockAt(h)
		if !ok {
			break
		}
		if consensus.BlockHash(block) == req.FromHash {
			startHeight = h + 1
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	max := req.Max
	if max == 0 || max > maxHeadersPerResponse {
		max = maxHeadersPerResponse
	}
	headers := make([]consensus.BlockHeader, 0, max)
	for h := startHeight; h <= tipHeight && uint64(len(headers)) < uint64(max); h++ {
		block, ok := srv.engine.BlockAt(h)
		if !ok {
			break
		}
		headers = append(headers, block.Header)
	}
	return headers
}

// OnHeaders implements Handler: validates the header chain (PoW + parent
// linkage) then requests the corresponding blocks in order (§4.7).
func (srv *Server) OnHeaders(s *Session, headers []consensus.BlockHeader) error {
	var prev crypto.Hash
	havePrev := false
	for _, h := range headers {
		if err := consensus.CheckPow(h); err != nil {
			return chainerr.New(chainerr.ProtocolViolation, "header chain failed PoW check")
		}
		if havePrev && h.PrevBlockHash != prev {
			return chainerr.New(chainerr.ProtocolViolation, "header chain has broken parent linkage")
		}
		prev = consensus.HeaderHash(h)
		havePrev = true
	}
	for _, h := range headers {
		hash := consensus.HeaderHash(h)
		if _, ok := srv.engine.BlockByHash(hash); ok {
			continue
		}
		s.RequestBlock(hash)
	}
	// A full window means the peer likely has more headers beyond it; keep
	// pulling windows until it responds with a short (or empty) one (§4.7).
	if len(headers) == maxHeadersPerResponse {
		s.RequestHeaders(consensus.HeaderHash(headers[len(headers)-1]), maxHeadersPerResponse)
	}
	return nil
}

// OnTx implements Handler: admits to the mempool and, on success, relays it.
func (srv *Server) OnTx(s *Session, tx consensus.Transaction) error {
	hash := consensus.TxHash(tx)
	s.MarkToldAbout(hash)
	_, err := srv.engine.SubmitTransaction(tx)
	if err != nil {
		if chainerr.Is(err, chainerr.AlreadyKnown) {
			return nil
		}
		return err
	}
	srv.gossipTx(tx, s)
	return nil
}

// OnGetMempool implements Handler.
func (srv *Server) OnGetMempool() []consensus.Transaction {
	return srv.engine.AllMempoolTransactions()
}

// OnTemplateReq implements Handler by delegating to the mining dispatcher
// and registering the session for future pushed templates (§4.8).
func (srv *Server) OnTemplateReq(s *Session, pub crypto.PublicKey) (consensus.Block, error) {
	if srv.template == nil {
		return consensus.Block{}, chainerr.New(chainerr.ProtocolViolation, "no template provider configured")
	}
	srv.template.Subscribe(s, pub)
	return srv.template.BuildTemplate(pub)
}

// OnTemplate implements Handler. A full node never subscribes for pushed
// templates itself, so an unsolicited TEMPLATE is simply ignored.
func (srv *Server) OnTemplate(s *Session, b consensus.Block) error {
	return nil
}

// OnSubmit implements Handler by delegating to the mining dispatcher.
func (srv *Server) OnSubmit(s *Session, b consensus.Block) error {
	if srv.template == nil {
		return fmt.Errorf("p2p: no template provider configured")
	}
	return srv.template.HandleSubmit(b)
}
