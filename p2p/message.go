// Package p2p implements the peer session state machine and gossip protocol
// (C7, §4.7): a length-prefixed framed byte stream carrying a tagged message
// union, a Connecting->Handshaking->Ready->Closed session lifecycle, and
// flood relay of blocks and transactions to every Ready peer.
package p2p

import (
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
)

// Tag is the 1-byte discriminant prefixing every message payload (§4.2).
type Tag byte

const (
	TagHello Tag = iota + 1
	TagGetBlock
	TagBlock
	TagGetHeaders
	TagHeaders
	TagTx
	TagGetMempool
	TagTemplateReq
	TagTemplate
	TagSubmit
	TagPing
	TagPong
)

// ProtocolVersion is the single supported protocol version (§6). A HELLO
// carrying any other value is a VersionMismatch and closes the session.
const ProtocolVersion uint32 = 1

// HelloPayload is the initial handshake message (§4.7).
type HelloPayload struct {
	ProtocolVersion uint32
	NodeID          [32]byte
	TipHash         crypto.Hash
	TipHeight       uint64
}

// GetBlockPayload requests a specific block by hash.
type GetBlockPayload struct {
	Hash crypto.Hash
}

// GetHeadersPayload requests a bounded run of headers for bulk sync.
type GetHeadersPayload struct {
	FromHash crypto.Hash
	Max      uint32
}

// HeadersPayload answers a GET_HEADERS request.
type HeadersPayload struct {
	Headers []consensus.BlockHeader
}

// PingPayload / PongPayload carry a liveness nonce.
type PingPayload struct {
	Nonce uint64
}

// Envelope is a decoded message: exactly one of the typed fields below is
// populated, selected by Tag.
type Envelope struct {
	Tag Tag

	Hello       *HelloPayload
	GetBlock    *GetBlockPayload
	Block       *consensus.Block
	GetHeaders  *GetHeadersPayload
	Headers     *HeadersPayload
	Tx          *consensus.Transaction
	TemplateReq *crypto.PublicKey
	Template    *consensus.Block
	Submit      *consensus.Block
	Ping        *PingPayload
	Pong        *PingPayload
}

func helloEnvelope(p HelloPayload) Envelope        { return Envelope{Tag: TagHello, Hello: &p} }
func getBlockEnvelope(h crypto.Hash) Envelope       { return Envelope{Tag: TagGetBlock, GetBlock: &GetBlockPayload{Hash: h}} }
func blockEnvelope(b consensus.Block) Envelope      { return Envelope{Tag: TagBlock, Block: &b} }
func getHeadersEnvelope(p GetHeadersPayload) Envelope {
	return Envelope{Tag: TagGetHeaders, GetHeaders: &p}
}
func headersEnvelope(h []consensus.BlockHeader) Envelope {
	return Envelope{Tag: TagHeaders, Headers: &HeadersPayload{Headers: h}}
}
func txEnvelope(tx consensus.Transaction) Envelope { return Envelope{Tag: TagTx, Tx: &tx} }
func getMempoolEnvelope() Envelope                 { return Envelope{Tag: TagGetMempool} }
func templateReqEnvelope(pub crypto.PublicKey) Envelope {
	return Envelope{Tag: TagTemplateReq, TemplateReq: &pub}
}
func templateEnvelope(b consensus.Block) Envelope { return Envelope{Tag: TagTemplate, Template: &b} }
func submitEnvelope(b consensus.Block) Envelope   { return Envelope{Tag: TagSubmit, Submit: &b} }
func pingEnvelope(nonce uint64) Envelope          { return Envelope{Tag: TagPing, Ping: &PingPayload{Nonce: nonce}} }
func pongEnvelope(nonce uint64) Envelope          { return Envelope{Tag: TagPong, Pong: &PingPayload{Nonce: nonce}} }
