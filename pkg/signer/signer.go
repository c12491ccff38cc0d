package signer

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Phase names as used in the canonical signing input and on the wire.
const (
	PhasePrePrepare = "pre_prepare"
	PhasePrepare    = "prepare"
	PhaseCommit     = "commit"
)

var (
	ErrEmptyAggregation  = errors.New("cannot aggregate zero signatures")
	ErrMismatchedLengths = errors.New("aggregate verification requires one public key per signer")
)

// PhaseSigningInput builds the canonical byte string signed for a phase
// vote: "<phase>:<hex(digest)>:<view>", ASCII, no whitespace, lowercase hex.
// Signatures always bind the view — the source's view-omitting variant
// seen in some handlers is a latent mismatch and must never be produced.
func PhaseSigningInput(phase string, digest []byte, view uint64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", phase, hex.EncodeToString(digest), view))
}

// Signer is the per-node signing capability used by the agreement state
// machine. It is deliberately narrow: sign/verify/aggregate/verify_aggregate,
// nothing else, so the state machine can be polymorphic over it.
type Signer interface {
	// Scheme names the concrete implementation ("bls12-381" or "mac").
	Scheme() string

	// PublicKey returns this signer's public key bytes.
	PublicKey() []byte

	// Sign signs message and returns the signature bytes.
	Sign(message []byte) ([]byte, error)

	// Verify checks a signature against message under publicKey.
	Verify(publicKey, message, sig []byte) (bool, error)

	// Aggregate combines multiple signatures over the same message into
	// one. An empty input is invalid.
	Aggregate(sigs [][]byte) ([]byte, error)

	// VerifyAggregate verifies an aggregated signature against the set of
	// public keys of exactly the contributing signers, all over the same
	// message.
	VerifyAggregate(aggSig []byte, publicKeys [][]byte, message []byte) (bool, error)

	// SupportsMultiNode reports whether this scheme may be used when
	// TOTAL_NODES > 1. Only BLS does; the MAC degraded mode does not.
	SupportsMultiNode() bool
}
