package p2p

import (
	"tenet.dev/node/chainerr"
	"tenet.dev/node/consensus"
	"tenet.dev/node/crypto"
	"tenet.dev/node/wire"
)

const maxHeadersPerMessage = 8192

// EncodeEnvelope writes env's canonical payload, including its leading
// discriminant byte, to w (§4.2).
func EncodeEnvelope(w *wire.Writer, env Envelope) {
	w.WriteU8(byte(env.Tag))
	switch env.Tag {
	case TagHello:
		w.WriteU32(env.Hello.ProtocolVersion)
		w.WriteFixed(env.Hello.NodeID[:])
		w.WriteFixed(env.Hello.TipHash[:])
		w.WriteU64(env.Hello.TipHeight)
	case TagGetBlock:
		w.WriteFixed(env.GetBlock.Hash[:])
	case TagBlock:
		consensus.EncodeBlock(w, *env.Block)
	case TagGetHeaders:
		w.WriteFixed(env.GetHeaders.FromHash[:])
		w.WriteU32(env.GetHeaders.Max)
	case TagHeaders:
		w.WriteSeqLen(len(env.Headers.Headers))
		for _, h := range env.Headers.Headers {
			consensus.EncodeBlockHeader(w, h)
		}
	case TagTx:
		consensus.EncodeTransaction(w, *env.Tx, false)
	case TagGetMempool:
		// no payload
	case TagTemplateReq:
		w.WriteFixed(env.TemplateReq[:])
	case TagTemplate:
		consensus.EncodeBlock(w, *env.Template)
	case TagSubmit:
		consensus.EncodeBlock(w, *env.Submit)
	case TagPing:
		w.WriteU64(env.Ping.Nonce)
	case TagPong:
		w.WriteU64(env.Pong.Nonce)
	}
}

// SerializeEnvelope returns env's canonical payload bytes.
func SerializeEnvelope(env Envelope) []byte {
	w := wire.NewWriter(256)
	EncodeEnvelope(w, env)
	return w.Bytes()
}

// DecodeEnvelope reads a tagged message from c (§4.2: unknown discriminant
// is Malformed).
func DecodeEnvelope(c *wire.Cursor) (Envelope, error) {
	tagByte, err := c.ReadU8()
	if err != nil {
		return Envelope{}, err
	}
	tag := Tag(tagByte)

	switch tag {
	case TagHello:
		version, err := c.ReadU32()
		if err != nil {
			return Envelope{}, err
		}
		nodeID, err := c.ReadFixed32()
		if err != nil {
			return Envelope{}, err
		}
		tipHashRaw, err := c.ReadFixed32()
		if err != nil {
			return Envelope{}, err
		}
		height, err := c.ReadU64()
		if err != nil {
			return Envelope{}, err
		}
		return helloEnvelope(HelloPayload{
			ProtocolVersion: version,
			NodeID:          nodeID,
			TipHash:         crypto.Hash(tipHashRaw),
			TipHeight:       height,
		}), nil

	case TagGetBlock:
		h, err := c.ReadFixed32()
		if err != nil {
			return Envelope{}, err
		}
		return getBlockEnvelope(crypto.Hash(h)), nil

	case TagBlock:
		b, err := consensus.DecodeBlock(c)
		if err != nil {
			return Envelope{}, err
		}
		return blockEnvelope(b), nil

	case TagGetHeaders:
		from, err := c.ReadFixed32()
		if err != nil {
			return Envelope{}, err
		}
		max, err := c.ReadU32()
		if err != nil {
			return Envelope{}, err
		}
		return getHeadersEnvelope(GetHeadersPayload{FromHash: crypto.Hash(from), Max: max}), nil

	case TagHeaders:
		n, err := c.ReadSeqLen(minHeaderSize)
		if err != nil {
			return Envelope{}, err
		}
		if n > maxHeadersPerMessage {
			return Envelope{}, chainerr.New(chainerr.Malformed, "too many headers in one message")
		}
		headers := make([]consensus.BlockHeader, 0, n)
		for i := uint32(0); i < n; i++ {
			h, err := consensus.DecodeBlockHeader(c)
			if err != nil {
				return Envelope{}, err
			}
			headers = append(headers, h)
		}
		return headersEnvelope(headers), nil

	case TagTx:
		tx, err := consensus.DecodeTransaction(c)
		if err != nil {
			return Envelope{}, err
		}
		return txEnvelope(tx), nil

	case TagGetMempool:
		return getMempoolEnvelope(), nil

	case TagTemplateReq:
		pubRaw, err := c.ReadFixed32()
		if err != nil {
			return Envelope{}, err
		}
		pub := crypto.PublicKey(pubRaw)
		return templateReqEnvelope(pub), nil

	case TagTemplate:
		b, err := consensus.DecodeBlock(c)
		if err != nil {
			return Envelope{}, err
		}
		return templateEnvelope(b), nil

	case TagSubmit:
		b, err := consensus.DecodeBlock(c)
		if err != nil {
			return Envelope{}, err
		}
		return submitEnvelope(b), nil

	case TagPing:
		nonce, err := c.ReadU64()
		if err != nil {
			return Envelope{}, err
		}
		return pingEnvelope(nonce), nil

	case TagPong:
		nonce, err := c.ReadU64()
		if err != nil {
			return Envelope{}, err
		}
		return pongEnvelope(nonce), nil

	default:
		return Envelope{}, chainerr.Newf(chainerr.Malformed, "unknown message tag %d", tagByte)
	}
}

// ParseEnvelope decodes a full frame payload, rejecting trailing garbage.
func ParseEnvelope(payload []byte) (Envelope, error) {
	c := wire.NewCursor(payload)
	env, err := DecodeEnvelope(c)
	if err != nil {
		return Envelope{}, err
	}
	if !c.Done() {
		return Envelope{}, chainerr.New(chainerr.Malformed, "trailing bytes after message")
	}
	return env, nil
}

// minHeaderSize bounds a ReadSeqLen guard for the HEADERS payload: a header
// is prev_hash(32) + merkle_root(32) + timestamp(8) + target(32) + nonce(8).
const minHeaderSize = 32 + 32 + 8 + 32 + 8
