package p2p

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
)

// State is a peer session's position in the handshake lifecycle (§4.7).
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	handshakeTimeout = 10 * time.Second
	requestTimeout   = 30 * time.Second
	pingInterval     = 60 * time.Second
	pongTimeout      = 120 * time.Second

	// outboundQueueLen bounds per-peer outbound backpressure (§5): overflow
	// closes the peer rather than blocking the writer indefinitely.
	outboundQueueLen = 1024
)

// Handler reacts to decoded messages for a Ready session, keeping Session
// independent of what acts on them. Server in this package is the
// engine-backed implementation; the miner and wallet commands supply their
// own.
type Handler interface {
	OnGetBlock(hash crypto.Hash) (consensus.Block, bool)
	OnBlock(s *Session, b consensus.Block) error
	OnGetHeaders(req GetHeadersPayload) []consensus.BlockHeader
	OnHeaders(s *Session, headers []consensus.BlockHeader) error
	OnTx(s *Session, tx consensus.Transaction) error
	OnGetMempool() []consensus.Transaction
	OnTemplateReq(s *Session, pub crypto.PublicKey) (consensus.Block, error)
	OnTemplate(s *Session, b consensus.Block) error
	OnSubmit(s *Session, b consensus.Block) error
	// LocalHello returns this node's own HELLO payload for the handshake.
	LocalHello() HelloPayload
}

// Session is one peer connection: framed reader/writer plus the §4.7 state
// machine and ban-score policy.
type Session struct {
	conn    net.Conn
	handler Handler
	log     *zap.Logger

	mu    sync.Mutex
	state State
	ban   BanScore

	outbound chan []byte
	closed   chan struct{}
	closeErr error
	once     sync.Once

	toldPeer *inventory

	PeerHello HelloPayload

	pendingMu      sync.Mutex
	pendingRequest *time.Timer

	lastPong time.Time
}

// NewSession wraps conn in a session ready to run its handshake.
func NewSession(conn net.Conn, handler Handler, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		conn:     conn,
		handler:  handler,
		log:      log,
		state:    StateConnecting,
		outbound: make(chan []byte, outboundQueueLen),
		closed:   make(chan struct{}),
		toldPeer: newInventory(),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Close tears the session down, unblocking Run. Safe to call more than once
// and from any goroutine.
func (s *Session) Close(err error) {
	s.once.Do(func() {
		s.closeErr = err
		s.setState(StateClosed)
		_ = s.conn.Close()
		close(s.closed)
	})
}

// Send enqueues env for the writer goroutine. It never blocks: a full queue
// closes the session (§5 backpressure policy).
func (s *Session) Send(env Envelope) {
	payload := SerializeEnvelope(env)
	select {
	case s.outbound <- payload:
	default:
		s.log.Warn("peer outbound queue full, closing session")
		s.Close(chainerr.New(chainerr.ProtocolViolation, "outbound queue overflow"))
	}
}

// SendTemplate pushes a TEMPLATE message (§4.8).
func (s *Session) SendTemplate(b consensus.Block) { s.Send(templateEnvelope(b)) }

// SendBlock pushes a BLOCK message.
func (s *Session) SendBlock(b consensus.Block) { s.Send(blockEnvelope(b)) }

// SendTx pushes a TX message.
func (s *Session) SendTx(tx consensus.Transaction) { s.Send(txEnvelope(tx)) }

// SendSubmit sends a mined candidate block for acceptance (§4.8).
func (s *Session) SendSubmit(b consensus.Block) { s.Send(submitEnvelope(b)) }

// SendTemplateReq subscribes for mining templates paid to pub (§4.8).
func (s *Session) SendTemplateReq(pub crypto.PublicKey) { s.Send(templateReqEnvelope(pub)) }

// RequestBlock sends GET_BLOCK and arms the per-request timeout (§5).
func (s *Session) RequestBlock(hash crypto.Hash) {
	s.pendingRequestWatchdog()
	s.Send(getBlockEnvelope(hash))
}

// RequestHeaders sends GET_HEADERS and arms the per-request timeout (§5).
func (s *Session) RequestHeaders(from crypto.Hash, max uint32) {
	s.pendingRequestWatchdog()
	s.Send(getHeadersEnvelope(GetHeadersPayload{FromHash: from, Max: max}))
}

// startHeaderSyncIfBehind kicks off background header-sync when the peer's
// handshake tip exceeds the local tip by more than one block (§4.7): pull
// headers from the local tip forward, then OnHeaders requests the blocks and,
// on a full window, asks for the next one in turn.
func (s *Session) startHeaderSyncIfBehind() {
	local := s.handler.LocalHello()
	if s.PeerHello.TipHeight > local.TipHeight+1 {
		s.RequestHeaders(local.TipHash, maxHeadersPerResponse)
	}
}

// MarkToldAbout records that the peer has already been sent hash, so future
// gossip rounds skip it.
func (s *Session) MarkToldAbout(hash crypto.Hash) { s.toldPeer.Record(hash) }

// HasBeenTold reports whether the peer was already sent hash.
func (s *Session) HasBeenTold(hash crypto.Hash) bool { return s.toldPeer.Has(hash) }

// Run drives the handshake then the read/write loops until the connection
// closes or ctx-equivalent shutdown is requested via Close.
func (s *Session) Run() error {
	defer s.setState(StateClosed)

	if err := s.handshake(); err != nil {
		s.Close(err)
		return err
	}
	s.setState(StateReady)

	s.startHeaderSyncIfBehind()

	go s.writeLoop()
	go s.pingLoop()

	s.readLoop()
	<-s.closed
	return s.closeErr
}

func (s *Session) handshake() error {
	s.setState(StateHandshaking)
	_ = s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	// Our HELLO is written concurrently with reading the peer's, so both
	// sides can handshake over an unbuffered connection such as net.Pipe.
	local := s.handler.LocalHello()
	writeErr := make(chan error, 1)
	go func() { writeErr <- WriteFrame(s.conn, SerializeEnvelope(helloEnvelope(local))) }()

	payload, err := ReadFrame(s.conn)
	if err != nil {
		return err
	}
	if err := <-writeErr; err != nil {
		return err
	}
	env, err := ParseEnvelope(payload)
	if err != nil {
		return err
	}
	if env.Tag != TagHello || env.Hello == nil {
		return chainerr.New(chainerr.ProtocolViolation, "expected HELLO as first message")
	}
	if env.Hello.ProtocolVersion != ProtocolVersion {
		return chainerr.Newf(chainerr.VersionMismatch, "peer protocol version %d, want %d", env.Hello.ProtocolVersion, ProtocolVersion)
	}
	s.PeerHello = *env.Hello
	return nil
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.outbound:
			if err := WriteFrame(s.conn, payload); err != nil {
				s.Close(err)
				return
			}
		}
	}
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	s.lastPong = time.Now()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.mu.Lock()
			since := time.Since(s.lastPong)
			s.mu.Unlock()
			if since > pongTimeout {
				s.Close(chainerr.New(chainerr.IO, "peer missed PONG deadline"))
				return
			}
			s.Send(pingEnvelope(uint64(time.Now().UnixNano())))
		}
	}
}

func (s *Session) readLoop() {
	for {
		payload, err := ReadFrame(s.conn)
		if err != nil {
			s.Close(err)
			return
		}
		env, err := ParseEnvelope(payload)
		if err != nil {
			now := time.Now()
			s.ban.Add(now, 10)
			if s.ban.ShouldBan(now) {
				s.Close(fmt.Errorf("p2p: banned: %w", err))
				return
			}
			continue
		}
		if err := s.dispatch(env); err != nil {
			if chainerr.Is(err, chainerr.ProtocolViolation) {
				s.Close(err)
				return
			}
		}
	}
}

func (s *Session) dispatch(env Envelope) error {
	now := time.Now()
	if s.ban.ShouldThrottle(now) {
		time.Sleep(ThrottleDelay)
	}

	switch env.Tag {
	case TagHello:
		return chainerr.New(chainerr.ProtocolViolation, "unexpected second HELLO")

	case TagGetBlock:
		block, ok := s.handler.OnGetBlock(env.GetBlock.Hash)
		if ok {
			s.Send(blockEnvelope(block))
		}
		return nil

	case TagBlock:
		s.clearPendingRequestWatchdog()
		if err := s.handler.OnBlock(s, *env.Block); err != nil {
			s.ban.Add(now, 100)
			if s.ban.ShouldBan(now) {
				return chainerr.New(chainerr.ProtocolViolation, "banned after invalid block")
			}
		}
		return nil

	case TagGetHeaders:
		headers := s.handler.OnGetHeaders(*env.GetHeaders)
		s.Send(headersEnvelope(headers))
		return nil

	case TagHeaders:
		s.clearPendingRequestWatchdog()
		if err := s.handler.OnHeaders(s, env.Headers.Headers); err != nil {
			s.ban.Add(now, 10)
		}
		return nil

	case TagTx:
		if err := s.handler.OnTx(s, *env.Tx); err != nil {
			s.ban.Add(now, 5)
		}
		return nil

	case TagGetMempool:
		for _, tx := range s.handler.OnGetMempool() {
			s.Send(txEnvelope(tx))
		}
		return nil

	case TagTemplateReq:
		tmpl, err := s.handler.OnTemplateReq(s, *env.TemplateReq)
		if err != nil {
			return nil
		}
		s.Send(templateEnvelope(tmpl))
		return nil

	case TagTemplate:
		_ = s.handler.OnTemplate(s, *env.Template)
		return nil

	case TagSubmit:
		if err := s.handler.OnSubmit(s, *env.Submit); err != nil {
			s.ban.Add(now, 20)
		}
		return nil

	case TagPing:
		s.Send(pongEnvelope(env.Ping.Nonce))
		return nil

	case TagPong:
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()
		return nil

	default:
		return nil
	}
}

// pendingRequestWatchdog starts (or restarts) a 30s timer that closes the
// session if no response arrives, matching §5's per-request timeout for
// GET_BLOCK/GET_HEADERS exchanges.
func (s *Session) pendingRequestWatchdog() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pendingRequest != nil {
		s.pendingRequest.Stop()
	}
	s.pendingRequest = time.AfterFunc(requestTimeout, func() {
		s.Close(chainerr.New(chainerr.IO, "request timed out"))
	})
}

func (s *Session) clearPendingRequestWatchdog() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pendingRequest != nil {
		s.pendingRequest.Stop()
		s.pendingRequest = nil
	}
}
