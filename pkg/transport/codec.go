// Package transport implements C4: the JSON wire codec for PhaseMessage
// and a websocket-based peer transport satisfying agreement.Broadcaster.
//
// Grounded on the source's dual-endpoint websocket pattern (node.py's
// "/ws" client-facing and "/peer" peer-to-peer endpoints) and its
// reconnect-on-disconnect shape, transliterated onto gorilla/websocket.
package transport

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sfim/ledger/pkg/agreement"
)

// wireMessage is the on-wire JSON shape of a PhaseMessage. Unknown fields
// are ignored by encoding/json; missing required fields are caught by
// decode and reject the message.
type wireMessage struct {
	Phase       string `json:"phase"`
	Digest      string `json:"digest"`
	View        uint64 `json:"view"`
	Sequence    uint64 `json:"sequence"`
	NodeID      int    `json:"node_id"`
	Signature   string `json:"signature"`
	TimestampMs int64  `json:"timestamp"`
	PublicKey   string `json:"public_key"`
}

// encode marshals a PhaseMessage to its wire JSON form.
func encode(msg *agreement.PhaseMessage) ([]byte, error) {
	w := wireMessage{
		Phase:       string(msg.Phase),
		Digest:      hex.EncodeToString(msg.Digest),
		View:        uint64(msg.View),
		Sequence:    uint64(msg.Sequence),
		NodeID:      msg.SenderID,
		Signature:   hex.EncodeToString(msg.Signature),
		TimestampMs: msg.TimestampMs,
		PublicKey:   hex.EncodeToString(msg.PublicKey),
	}
	return json.Marshal(w)
}

// decode parses wire JSON into a PhaseMessage. A malformed payload or a
// missing required field rejects the message with an error; the caller
// is expected to drop and log rather than propagate to the agreement
// layer.
func decode(data []byte) (*agreement.PhaseMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch agreement.Phase(w.Phase) {
	case agreement.PrePrepare, agreement.Prepare, agreement.Commit:
	default:
		return nil, fmt.Errorf("unknown phase %q", w.Phase)
	}
	if w.Digest == "" {
		return nil, fmt.Errorf("missing digest")
	}
	if w.Signature == "" {
		return nil, fmt.Errorf("missing signature")
	}

	digest, err := hex.DecodeString(w.Digest)
	if err != nil {
		return nil, fmt.Errorf("digest is not hex: %w", err)
	}
	sig, err := hex.DecodeString(w.Signature)
	if err != nil {
		return nil, fmt.Errorf("signature is not hex: %w", err)
	}
	var pub []byte
	if w.PublicKey != "" {
		pub, err = hex.DecodeString(w.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("public_key is not hex: %w", err)
		}
	}

	return &agreement.PhaseMessage{
		Phase:       agreement.Phase(w.Phase),
		View:        agreement.ViewNumber(w.View),
		Sequence:    agreement.SequenceNumber(w.Sequence),
		Digest:      digest,
		SenderID:    w.NodeID,
		Signature:   sig,
		TimestampMs: w.TimestampMs,
		PublicKey:   pub,
	}, nil
}
