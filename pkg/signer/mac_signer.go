package signer

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// MACSigner is the optional degraded mode permitted only for single-node
// configuration: a keyed hash in place of a real aggregatable signature.
// It must never be constructed when TOTAL_NODES > 1 — SupportsMultiNode
// reports false and the node supervisor (C7) refuses to wire it up when
// peers are configured, per §4.2.
//
// Grounded on the source's mock BLSManager (sha256(private_key+message));
// this implementation uses HMAC-SHA256 for the same shape with a proper
// keyed construction instead of naive concatenation.
type MACSigner struct {
	key []byte
	pub []byte // pub == key for the single local signer; there is no peer to distinguish it from
}

// NewMACSigner returns a MACSigner using key, or a freshly generated
// 32-byte key if key is nil.
func NewMACSigner(key []byte) *MACSigner {
	if key == nil {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &MACSigner{key: key, pub: key}
}

func (s *MACSigner) Scheme() string          { return "mac" }
func (s *MACSigner) PublicKey() []byte       { return s.pub }
func (s *MACSigner) SupportsMultiNode() bool { return false }

func (s *MACSigner) Sign(message []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(message)
	return mac.Sum(nil), nil
}

func (s *MACSigner) Verify(publicKey, message, sig []byte) (bool, error) {
	mac := hmac.New(sha256.New, publicKey)
	mac.Write(message)
	expected := mac.Sum(nil)
	return hmac.Equal(expected, sig), nil
}

// Aggregate concatenates the MAC values in input order; with N=1 there is never
// more than one contributor, but the operation is defined for any count so
// the Signer interface stays uniform across both implementations.
func (s *MACSigner) Aggregate(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, ErrEmptyAggregation
	}
	var buf bytes.Buffer
	for _, sig := range sigs {
		buf.Write(sig)
	}
	return buf.Bytes(), nil
}

func (s *MACSigner) VerifyAggregate(aggSig []byte, publicKeys [][]byte, message []byte) (bool, error) {
	if len(publicKeys) == 0 {
		return false, ErrMismatchedLengths
	}
	if len(aggSig) != len(publicKeys)*sha256.Size {
		return false, fmt.Errorf("aggregate signature length %d does not match %d contributors", len(aggSig), len(publicKeys))
	}
	for i, pk := range publicKeys {
		part := aggSig[i*sha256.Size : (i+1)*sha256.Size]
		ok, err := s.Verify(pk, message, part)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
