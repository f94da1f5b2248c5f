// Command node runs a full node: it replays the blockchain file, serves
// peers over the wire protocol, gossips new blocks and transactions, and
// dispatches mining templates.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tenet.dev/node/addrmgr"
	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/engine"
	"tenet.dev/node/metrics"
	"tenet.dev/node/mining"
	"tenet.dev/node/p2p"
	"tenet.dev/node/persistence"
)

// defaultMempoolMaxBytes is the mempool's default byte budget (§5: "300MB").
const defaultMempoolMaxBytes = 300 * 1024 * 1024

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	port := fs.Int("port", 9000, "listen port override")
	bindHost := fs.String("bind-host", "0.0.0.0", "bind host")
	chainPath := fs.String("chain", "chain.dat", "path to the blockchain file")
	addrBookPath := fs.String("addrbook", "peers.db", "path to the peer address book")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on (disabled if empty)")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	dryRun := fs.Bool("dry-run", false, "initialize and bind, then exit immediately without serving")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	initialPeers := fs.Args()

	logger, err := buildLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer logger.Sync()

	chainFile := persistence.Open(*chainPath)
	blocks, err := chainFile.Load()
	if err != nil {
		fmt.Fprintf(stderr, "blockchain file corrupt: %v\n", err)
		return 2
	}

	var genesis consensus.Block
	if len(blocks) == 0 {
		genesis = consensus.Genesis()
		if err := chainFile.Append(genesis); err != nil {
			fmt.Fprintf(stderr, "failed to write genesis block: %v\n", err)
			return 1
		}
		blocks = []consensus.Block{genesis}
	} else {
		genesis = blocks[0]
	}

	eng, err := engine.New(genesis, defaultMempoolMaxBytes, logger)
	if err != nil {
		fmt.Fprintf(stderr, "engine init failed: %v\n", err)
		return 2
	}
	for _, b := range blocks[1:] {
		if _, err := eng.SubmitBlock(b, b.Header.Timestamp); err != nil {
			fmt.Fprintf(stderr, "blockchain file replay failed: %v\n", err)
			return 2
		}
	}

	book, err := addrmgr.Open(*addrBookPath)
	if err != nil {
		fmt.Fprintf(stderr, "address book open failed: %v\n", err)
		return 1
	}
	defer book.Close()

	srv := p2p.NewServer(eng, logger)
	dispatcher := mining.NewDispatcher(eng, logger)
	srv.SetTemplateProvider(dispatcher)

	listenAddr := fmt.Sprintf("%s:%d", *bindHost, *port)
	if err := srv.Listen(listenAddr); err != nil {
		fmt.Fprintf(stderr, "listen on %s failed: %v\n", listenAddr, err)
		return 1
	}
	defer srv.Close()

	for _, peer := range initialPeers {
		peer := strings.TrimSpace(peer)
		if peer == "" {
			continue
		}
		if err := srv.Dial(peer); err != nil {
			logger.Warn("failed to dial bootstrap peer", zap.String("peer", peer), zap.Error(err))
			continue
		}
		_ = book.Record(peer, time.Now().Unix())
	}

	stop := make(chan struct{})
	go srv.RunGossip(stop)
	go dispatcher.RunTemplatePushes(stop)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}
	go reportTipMetric(eng, stop)

	_, tipHeight, _ := eng.Tip()
	fmt.Fprintf(stdout, "node: listening on %s tip_height=%d\n", listenAddr, tipHeight)
	if *dryRun {
		close(stop)
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	close(stop)
	fmt.Fprintln(stdout, "node: shutting down")
	return 0
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, chainerr.Wrap(chainerr.Malformed, "invalid log level", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}

func reportTipMetric(eng *engine.Engine, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, height, _ := eng.Tip()
			metrics.TipHeight.Set(float64(height))
		}
	}
}
