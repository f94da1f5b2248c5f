// Command wallet composes and submits transactions (§4.7, §6): given a TOML
// configuration naming the wallet's own key files, its contacts and a node
// address, it builds a transaction from CLI-specified inputs/outputs, signs
// it with the wallet's private key, and sends it to the node as a TX
// message. Its generate-config subcommand writes a starter configuration.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/keyfile"
	"tenet.dev/node/p2p"
	"tenet.dev/node/walletcfg"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: wallet <config-path> [generate-config | -to ... -amount ... -input ...]")
		return 2
	}
	configPath := args[0]
	rest := args[1:]

	if len(rest) > 0 && rest[0] == "generate-config" {
		if err := walletcfg.GenerateDefault(configPath); err != nil {
			fmt.Fprintf(stderr, "wallet: generate-config failed: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wallet: wrote default configuration to %s\n", configPath)
		return 0
	}

	cfg, err := walletcfg.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "wallet: config load failed: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("wallet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	to := fs.String("to", "", "recipient: a contact label from the config, or a public key file path")
	amount := fs.Uint64("amount", 0, "amount to send")
	var inputs multiStringFlag
	fs.Var(&inputs, "input", "input to spend, as txhash_hex:output_index (repeatable)")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	if *to == "" || *amount == 0 || len(inputs) == 0 {
		fmt.Fprintln(stderr, "wallet: -to, -amount and at least one -input are required")
		return 2
	}

	recipient, err := resolveRecipient(cfg, *to)
	if err != nil {
		fmt.Fprintf(stderr, "wallet: %v\n", err)
		return 1
	}

	priv, _, ok, err := keyfile.Load(cfg.MyKeyFile)
	if err != nil {
		fmt.Fprintf(stderr, "wallet: key file load failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(stderr, "wallet: my_key_file does not contain a private key")
		return 1
	}

	tx, err := composeTransaction(priv, recipient, *amount, inputs)
	if err != nil {
		fmt.Fprintf(stderr, "wallet: %v\n", err)
		return 1
	}

	if err := sendTransaction(cfg.NodeAddress, tx); err != nil {
		fmt.Fprintf(stderr, "wallet: failed to submit transaction: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "wallet: transaction submitted")
	return 0
}

func resolveRecipient(cfg walletcfg.Config, to string) (crypto.PublicKey, error) {
	for _, c := range cfg.Contacts {
		if c.Label == to {
			_, pub, _, err := keyfile.Load(c.PublicKeyFile)
			if err != nil {
				return crypto.PublicKey{}, fmt.Errorf("contact %q: %w", to, err)
			}
			return pub, nil
		}
	}
	_, pub, _, err := keyfile.Load(to)
	if err != nil {
		return crypto.PublicKey{}, fmt.Errorf("unknown contact and unreadable key file %q: %w", to, err)
	}
	return pub, nil
}

func composeTransaction(priv crypto.PrivateKey, recipient crypto.PublicKey, amount uint64, inputSpecs []string) (consensus.Transaction, error) {
	var tx consensus.Transaction
	for _, spec := range inputSpecs {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return consensus.Transaction{}, fmt.Errorf("invalid -input %q, want txhash_hex:index", spec)
		}
		raw, err := hex.DecodeString(parts[0])
		if err != nil || len(raw) != 32 {
			return consensus.Transaction{}, fmt.Errorf("invalid -input txhash %q", parts[0])
		}
		idx, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return consensus.Transaction{}, fmt.Errorf("invalid -input index %q", parts[1])
		}
		var hash crypto.Hash
		copy(hash[:], raw)
		tx.Inputs = append(tx.Inputs, consensus.TxInput{PrevTxHash: hash, OutputIndex: uint32(idx)})
	}
	tx.Outputs = []consensus.TxOutput{{Amount: amount, Recipient: recipient}}

	digest := crypto.Digest(consensus.SigningDigestBytes(tx))
	sig, err := crypto.Sign(priv, digest)
	if err != nil {
		return consensus.Transaction{}, fmt.Errorf("sign: %w", err)
	}
	for i := range tx.Inputs {
		tx.Inputs[i].Signature = sig
	}
	return tx, nil
}

func sendTransaction(nodeAddr string, tx consensus.Transaction) error {
	conn, err := net.Dial("tcp", nodeAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	h := &txSendHandler{}
	session := p2p.NewSession(conn, h, nil)
	done := make(chan error, 1)
	go func() { done <- session.Run() }()

	// Give the handshake a moment to complete before sending; Session.Send
	// queues regardless of state, so this is a convenience, not a requirement.
	time.Sleep(50 * time.Millisecond)
	session.SendTx(tx)
	time.Sleep(50 * time.Millisecond)
	session.Close(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// txSendHandler implements p2p.Handler for a wallet's one-shot outbound
// session: it only ever sends, so every callback is a stub.
type txSendHandler struct{}

func (h *txSendHandler) LocalHello() p2p.HelloPayload {
	return p2p.HelloPayload{ProtocolVersion: p2p.ProtocolVersion}
}
func (h *txSendHandler) OnGetBlock(crypto.Hash) (consensus.Block, bool) { return consensus.Block{}, false }
func (h *txSendHandler) OnBlock(*p2p.Session, consensus.Block) error    { return nil }
func (h *txSendHandler) OnGetHeaders(p2p.GetHeadersPayload) []consensus.BlockHeader {
	return nil
}
func (h *txSendHandler) OnHeaders(*p2p.Session, []consensus.BlockHeader) error { return nil }
func (h *txSendHandler) OnTx(*p2p.Session, consensus.Transaction) error        { return nil }
func (h *txSendHandler) OnGetMempool() []consensus.Transaction                 { return nil }
func (h *txSendHandler) OnTemplateReq(*p2p.Session, crypto.PublicKey) (consensus.Block, error) {
	return consensus.Block{}, nil
}
func (h *txSendHandler) OnTemplate(*p2p.Session, consensus.Block) error { return nil }
func (h *txSendHandler) OnSubmit(*p2p.Session, consensus.Block) error   { return nil }
