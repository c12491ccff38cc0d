// Package signer implements the signature capability (C2): signing,
// verification, and aggregation of phase-message votes. Two implementations
// are provided — BLSSigner (pairing-based, aggregatable) and MACSigner (a
// keyed-hash degraded mode for single-node configurations only) — selected
// at node construction time per the polymorphic-capability design note.
package signer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

const (
	PrivateKeySize = 32 // scalar in Fr
	PublicKeySize  = 96 // G2 point, compressed
	SignatureSize  = 48 // G1 point, compressed
)

var (
	initOnce sync.Once
	g1Gen    bls12381.G1Affine
	g2Gen    bls12381.G2Affine
)

// initBLS initializes curve generators. Safe to call repeatedly.
func initBLS() {
	initOnce.Do(func() {
		_, _, g1GenPoint, g2GenPoint := bls12381.Generators()
		g1Gen = g1GenPoint
		g2Gen = g2GenPoint
	})
}

// BLSPrivateKey is a BLS12-381 secret scalar.
type BLSPrivateKey struct {
	scalar fr.Element
}

// BLSPublicKey is a point on G2.
type BLSPublicKey struct {
	point bls12381.G2Affine
}

// BLSSignature is a point on G1.
type BLSSignature struct {
	point bls12381.G1Affine
}

// GenerateBLSKeyPair generates a new random BLS key pair.
func GenerateBLSKeyPair() (*BLSPrivateKey, *BLSPublicKey, error) {
	initBLS()
	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, nil, fmt.Errorf("generate random scalar: %w", err)
	}
	priv := &BLSPrivateKey{scalar: sk}
	return priv, priv.PublicKey(), nil
}

// BLSPrivateKeyFromBytes deserializes a 32-byte scalar.
func BLSPrivateKeyFromBytes(data []byte) (*BLSPrivateKey, error) {
	initBLS()
	if len(data) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(data), PrivateKeySize)
	}
	var sk fr.Element
	sk.SetBytes(data)
	return &BLSPrivateKey{scalar: sk}, nil
}

func (sk *BLSPrivateKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	return b[:]
}

func (sk *BLSPrivateKey) Hex() string { return hex.EncodeToString(sk.Bytes()) }

// PublicKey derives pk = sk * G2.
func (sk *BLSPrivateKey) PublicKey() *BLSPublicKey {
	var pk bls12381.G2Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	pk.ScalarMultiplication(&g2Gen, &skBig)
	return &BLSPublicKey{point: pk}
}

// sign computes sig = sk * H(pk||message) over G1. Binding the signer's own
// public key into the hashed message is the message-augmentation variant of
// BLS (per §4.2): it stops a rogue-key attacker from choosing a public key
// as a function of honest signers' keys to forge an aggregate.
func (sk *BLSPrivateKey) sign(message []byte) *BLSSignature {
	h := hashToG1(augment(sk.PublicKey(), message))
	var sig bls12381.G1Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	sig.ScalarMultiplication(&h, &skBig)
	return &BLSSignature{point: sig}
}

// augment prepends the signer's public key to the message before hashing,
// binding each signature to its signer (message augmentation).
func augment(pk *BLSPublicKey, message []byte) []byte {
	pkBytes := pk.Bytes()
	out := make([]byte, 0, len(pkBytes)+len(message))
	out = append(out, pkBytes...)
	out = append(out, message...)
	return out
}

func BLSPublicKeyFromBytes(data []byte) (*BLSPublicKey, error) {
	initBLS()
	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize public key: %w", err)
	}
	return &BLSPublicKey{point: pk}, nil
}

func (pk *BLSPublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

func (pk *BLSPublicKey) Hex() string { return hex.EncodeToString(pk.Bytes()) }

// verify checks e(sig, G2) == e(H(pk||msg), pk) via a single pairing check.
func (pk *BLSPublicKey) verify(sig *BLSSignature, message []byte) bool {
	h := hashToG1(augment(pk, message))

	var negPk bls12381.G2Affine
	negPk.Neg(&pk.point)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig.point, h},
		[]bls12381.G2Affine{g2Gen, negPk},
	)
	return err == nil && ok
}

func BLSSignatureFromBytes(data []byte) (*BLSSignature, error) {
	initBLS()
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize signature: %w", err)
	}
	return &BLSSignature{point: sig}, nil
}

func (sig *BLSSignature) Bytes() []byte {
	b := sig.point.Bytes()
	return b[:]
}

// aggregateBLSSignatures sums signature points on G1. An empty input is
// invalid per §4.2.
func aggregateBLSSignatures(sigs []*BLSSignature) (*BLSSignature, error) {
	initBLS()
	if len(sigs) == 0 {
		return nil, errors.New("empty aggregation is invalid")
	}
	var agg bls12381.G1Jac
	agg.FromAffine(&sigs[0].point)
	for i := 1; i < len(sigs); i++ {
		var jac bls12381.G1Jac
		jac.FromAffine(&sigs[i].point)
		agg.AddAssign(&jac)
	}
	var result bls12381.G1Affine
	result.FromJacobian(&agg)
	return &BLSSignature{point: result}, nil
}

// hashToG1 hashes an arbitrary message onto a point on the G1 curve.
func hashToG1(message []byte) bls12381.G1Affine {
	h := sha256.New()
	h.Write([]byte("SFIM_BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_"))
	h.Write(message)

	var counter uint64
	for {
		h2 := sha256.New()
		h2.Write(h.Sum(nil))
		binary.Write(h2, binary.BigEndian, counter)
		hash := h2.Sum(nil)

		var point bls12381.G1Affine
		if _, err := point.SetBytes(hash); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(hash)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)

		var result bls12381.G1Affine
		result.ScalarMultiplication(&g1Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}

		counter++
		if counter > 1000 {
			return g1Gen
		}
	}
}
