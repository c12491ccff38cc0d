package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BaselineEntry is one node's expected PCR values and, optionally, its
// signer public key, as listed in the attestation baseline registry
// file. The spec is silent on how peer BLS public keys reach a replica;
// since the baseline file is already the configured per-node trust
// input for C3, the same file carries the key material for C2 rather
// than inventing a second distribution mechanism.
type BaselineEntry struct {
	NodeID       string           `yaml:"node_id"`
	PCRValues    map[uint8]string `yaml:"pcr_values"` // hex-encoded 32-byte values
	PublicKeyHex string           `yaml:"public_key,omitempty"`
}

// LoadBaselineRegistry parses the YAML file at path into a node ID ->
// PCR index -> value map. An empty path is not an error: the caller
// falls back to the simulated deterministic baseline for the local node
// only, per §4.3.
func LoadBaselineRegistry(path string) (map[string]map[uint8][32]byte, error) {
	entries, err := readBaselineEntries(path)
	if err != nil {
		return nil, err
	}

	registry := make(map[string]map[uint8][32]byte, len(entries))
	for _, entry := range entries {
		pcrs := make(map[uint8][32]byte, len(entry.PCRValues))
		for pcr, hexVal := range entry.PCRValues {
			decoded, err := hex.DecodeString(hexVal)
			if err != nil || len(decoded) != 32 {
				return nil, fmt.Errorf("node %s pcr %d: invalid hex value %q", entry.NodeID, pcr, hexVal)
			}
			var val [32]byte
			copy(val[:], decoded)
			pcrs[pcr] = val
		}
		registry[entry.NodeID] = pcrs
	}
	return registry, nil
}

// LoadPeerPublicKeys parses the same registry file for each entry's
// public_key field, keyed by integer node id, for wiring into the
// agreement state machine's peer key table.
func LoadPeerPublicKeys(path string) (map[int][]byte, error) {
	entries, err := readBaselineEntries(path)
	if err != nil {
		return nil, err
	}

	keys := make(map[int][]byte, len(entries))
	for _, entry := range entries {
		if entry.PublicKeyHex == "" {
			continue
		}
		var nodeID int
		if _, err := fmt.Sscanf(entry.NodeID, "%d", &nodeID); err != nil {
			return nil, fmt.Errorf("node id %q is not an integer: %w", entry.NodeID, err)
		}
		decoded, err := hex.DecodeString(entry.PublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("node %s: invalid public_key hex: %w", entry.NodeID, err)
		}
		keys[nodeID] = decoded
	}
	return keys, nil
}

func readBaselineEntries(path string) ([]BaselineEntry, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baseline registry: %w", err)
	}

	var entries []BaselineEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse baseline registry: %w", err)
	}
	return entries, nil
}
