package signer

import (
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
)

// BLSSigner is the canonical signing scheme: pairing-based, aggregatable,
// usable for any TOTAL_NODES.
type BLSSigner struct {
	priv *BLSPrivateKey
	pub  *BLSPublicKey
}

// NewBLSSigner wraps a key pair as a Signer.
func NewBLSSigner(priv *BLSPrivateKey) *BLSSigner {
	return &BLSSigner{priv: priv, pub: priv.PublicKey()}
}

func (s *BLSSigner) Scheme() string      { return "bls12-381" }
func (s *BLSSigner) PublicKey() []byte   { return s.pub.Bytes() }
func (s *BLSSigner) SupportsMultiNode() bool { return true }

func (s *BLSSigner) Sign(message []byte) ([]byte, error) {
	return s.priv.sign(message).Bytes(), nil
}

func (s *BLSSigner) Verify(publicKey, message, sig []byte) (bool, error) {
	pk, err := BLSPublicKeyFromBytes(publicKey)
	if err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}
	signature, err := BLSSignatureFromBytes(sig)
	if err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}
	return pk.verify(signature, message), nil
}

func (s *BLSSigner) Aggregate(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, ErrEmptyAggregation
	}
	parsed := make([]*BLSSignature, len(sigs))
	for i, raw := range sigs {
		sig, err := BLSSignatureFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("parse signature %d: %w", i, err)
		}
		parsed[i] = sig
	}
	agg, err := aggregateBLSSignatures(parsed)
	if err != nil {
		return nil, err
	}
	return agg.Bytes(), nil
}

// VerifyAggregate checks an aggregate signature against the set of signers
// that contributed to it. Because each signer's share is over H(pk_i||message)
// rather than a shared H(message) (message augmentation, §4.2), the
// contributing public keys cannot be summed into one aggregate key first —
// that trick only holds when every signer hashed the same point. Instead
// this verifies the batched pairing equation directly:
//
//	e(aggSig, G2) == prod_i e(H(pk_i||message), pk_i)
//
// as a single multi-pairing check.
func (s *BLSSigner) VerifyAggregate(aggSig []byte, publicKeys [][]byte, message []byte) (bool, error) {
	if len(publicKeys) == 0 {
		return false, ErrMismatchedLengths
	}
	initBLS()
	sig, err := BLSSignatureFromBytes(aggSig)
	if err != nil {
		return false, fmt.Errorf("parse aggregate signature: %w", err)
	}

	g1Terms := make([]bls12381.G1Affine, 0, len(publicKeys)+1)
	g2Terms := make([]bls12381.G2Affine, 0, len(publicKeys)+1)
	g1Terms = append(g1Terms, sig.point)
	g2Terms = append(g2Terms, g2Gen)

	for i, raw := range publicKeys {
		pk, err := BLSPublicKeyFromBytes(raw)
		if err != nil {
			return false, fmt.Errorf("parse public key %d: %w", i, err)
		}
		h := hashToG1(augment(pk, message))
		var negPk bls12381.G2Affine
		negPk.Neg(&pk.point)
		g1Terms = append(g1Terms, h)
		g2Terms = append(g2Terms, negPk)
	}

	ok, err := bls12381.PairingCheck(g1Terms, g2Terms)
	return err == nil && ok, nil
}
