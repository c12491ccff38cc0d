package signer

import (
	"encoding/hex"
	"fmt"
	"os"
)

// KeyManager loads or generates a BLS key pair for a node from a file path.
// Grounded on the teacher's BLS key manager: the key file holds the
// hex-encoded private key; a missing file triggers generation and save.
type KeyManager struct {
	keyPath    string
	privateKey *BLSPrivateKey
	publicKey  *BLSPublicKey
}

func NewKeyManager(keyPath string) *KeyManager {
	return &KeyManager{keyPath: keyPath}
}

func (km *KeyManager) LoadOrGenerateKey() error {
	if km.keyPath != "" {
		if _, err := os.Stat(km.keyPath); err == nil {
			return km.loadKey()
		}
	}
	return km.generateAndMaybeSave()
}

func (km *KeyManager) loadKey() error {
	data, err := os.ReadFile(km.keyPath)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	keyBytes, err := hex.DecodeString(string(bytesTrimNewline(data)))
	if err != nil {
		return fmt.Errorf("decode key hex: %w", err)
	}
	km.privateKey, err = BLSPrivateKeyFromBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	km.publicKey = km.privateKey.PublicKey()
	return nil
}

func (km *KeyManager) generateAndMaybeSave() error {
	priv, pub, err := GenerateBLSKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	km.privateKey, km.publicKey = priv, pub

	if km.keyPath == "" {
		return nil
	}
	if err := os.WriteFile(km.keyPath, []byte(priv.Hex()), 0o600); err != nil {
		return fmt.Errorf("save key file: %w", err)
	}
	return nil
}

func (km *KeyManager) PrivateKey() *BLSPrivateKey { return km.privateKey }
func (km *KeyManager) PublicKey() *BLSPublicKey   { return km.publicKey }

func bytesTrimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}
