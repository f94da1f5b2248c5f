// Command miner connects to a node, subscribes for mining templates paid to
// a fixed public key, and submits the first candidate block it successfully
// mines for each template (§4.8, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/keyfile"
	"tenet.dev/node/p2p"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("miner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	nodeAddr := fs.String("node", "127.0.0.1:9000", "node address to mine against")
	keyPath := fs.String("keyfile", "", "path to a file containing the payout public key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *keyPath == "" {
		fmt.Fprintln(stderr, "miner: -keyfile is required")
		return 2
	}

	_, pub, _, err := keyfile.Load(*keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "miner: key file load failed: %v\n", err)
		return 1
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	conn, err := net.Dial("tcp", *nodeAddr)
	if err != nil {
		fmt.Fprintf(stderr, "miner: dial %s failed: %v\n", *nodeAddr, err)
		return 1
	}

	h := &minerHandler{payout: pub, log: logger, stdout: stdout}
	session := p2p.NewSession(conn, h, logger)
	h.session = session

	done := make(chan error, 1)
	go func() { done <- session.Run() }()

	session.SendTemplateReq(pub)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		session.Close(nil)
		<-done
		return 0
	case err := <-done:
		if err != nil {
			fmt.Fprintf(stderr, "miner: session ended: %v\n", err)
			return 1
		}
		return 0
	}
}

// minerHandler implements p2p.Handler for a miner's single outbound
// session: it only reacts to pushed TEMPLATE messages, mining each
// candidate locally and submitting the first passing nonce it finds. Every
// other callback is unused by a miner and stubbed out.
type minerHandler struct {
	session *p2p.Session
	payout  crypto.PublicKey
	log     *zap.Logger
	stdout  io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (h *minerHandler) LocalHello() p2p.HelloPayload {
	return p2p.HelloPayload{ProtocolVersion: p2p.ProtocolVersion}
}

func (h *minerHandler) OnGetBlock(crypto.Hash) (consensus.Block, bool) { return consensus.Block{}, false }
func (h *minerHandler) OnBlock(*p2p.Session, consensus.Block) error    { return nil }
func (h *minerHandler) OnGetHeaders(p2p.GetHeadersPayload) []consensus.BlockHeader {
	return nil
}
func (h *minerHandler) OnHeaders(*p2p.Session, []consensus.BlockHeader) error { return nil }
func (h *minerHandler) OnTx(*p2p.Session, consensus.Transaction) error        { return nil }
func (h *minerHandler) OnGetMempool() []consensus.Transaction                 { return nil }
func (h *minerHandler) OnTemplateReq(*p2p.Session, crypto.PublicKey) (consensus.Block, error) {
	return consensus.Block{}, nil
}
func (h *minerHandler) OnSubmit(*p2p.Session, consensus.Block) error { return nil }

// OnTemplate starts mining b, abandoning any template search already in
// flight (the tip moved, so the old template is stale).
func (h *minerHandler) OnTemplate(s *p2p.Session, b consensus.Block) error {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.mu.Unlock()

	go h.mine(ctx, s, b)
	return nil
}

func (h *minerHandler) mine(ctx context.Context, s *p2p.Session, b consensus.Block) {
	header := b.Header
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		header.Nonce = nonce
		if consensus.CheckPow(header) == nil {
			b.Header = header
			fmt.Fprintf(h.stdout, "miner: found block at nonce=%d\n", nonce)
			s.SendSubmit(b)
			return
		}
	}
}
