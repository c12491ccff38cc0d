// Package attestation implements C3: platform quote production and
// verification, and trust-level classification of local and peer nodes.
//
// Grounded on the source's TPMManager/AttestationVerifier
// (tpm_attest.py): deterministic simulated baseline PCRs, a keyed-hash
// quote signature, and a 5-minute timestamp skew window. The baseline
// registry resolves the source's unpopulated "attestation verifier" by
// treating per-node baselines as a configured input (§6/Open Questions).
package attestation

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// PCRIndex identifies a platform configuration register.
type PCRIndex uint8

// NonceSize matches the source's os.urandom(20) nonce.
const NonceSize = 20

// defaultPCRSet is the boot-measurement register range sampled when the
// caller does not specify one.
var defaultPCRSet = []PCRIndex{0, 1, 2, 3, 4, 5, 6, 7}

// maxTimestampSkew rejects quotes whose timestamp has drifted too far
// from the verifier's clock, independent of PCR match.
const maxTimestampSkew = 5 * time.Minute

// TrustLevel classifies a node's platform state.
type TrustLevel string

const (
	Trusted    TrustLevel = "trusted"
	Suspicious TrustLevel = "suspicious"
	Untrusted  TrustLevel = "untrusted"
)

// Quote is a signed snapshot of PCR values plus a verifier-supplied nonce.
type Quote struct {
	PCRValues   map[PCRIndex][32]byte `json:"pcr_values"`
	Nonce       [NonceSize]byte       `json:"nonce"`
	Signature   []byte                `json:"signature"`
	TimestampMs int64                 `json:"timestamp_ms"`
	IsValid     bool                  `json:"is_valid"`
}

// Config configures the attestation Service.
type Config struct {
	NodeID         string
	UseSimulated   bool
	Logger         *log.Logger
	BaselineSource BaselineSource
}

// BaselineSource supplies the baseline PCR map for a node ID, typically
// loaded once from the configured baseline registry (§4.8).
type BaselineSource func(nodeID string) (map[PCRIndex][32]byte, bool)

func DefaultConfig() *Config {
	return &Config{
		UseSimulated: true,
		Logger:       log.New(log.Writer(), "[Attestation] ", log.LstdFlags),
	}
}

// Service produces quotes for the local node and verifies quotes
// presented by peers against a baseline registry.
type Service struct {
	mu sync.RWMutex

	nodeID       string
	useSimulated bool
	logger       *log.Logger

	localBaseline map[PCRIndex][32]byte
	registry      map[string]map[PCRIndex][32]byte
}

// NewService builds a Service with a deterministic simulated baseline for
// the local node and an empty peer baseline registry.
func NewService(cfg *Config) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Attestation] ", log.LstdFlags)
	}

	s := &Service{
		nodeID:       cfg.NodeID,
		useSimulated: cfg.UseSimulated,
		logger:       cfg.Logger,
		registry:     make(map[string]map[PCRIndex][32]byte),
	}
	s.localBaseline = simulatedBaseline()
	s.registry[cfg.NodeID] = s.localBaseline

	if cfg.BaselineSource != nil {
		// Caller-supplied baselines win over the simulated default for
		// any node they cover, including the local one.
		if pcrs, ok := cfg.BaselineSource(cfg.NodeID); ok {
			s.localBaseline = pcrs
			s.registry[cfg.NodeID] = pcrs
		}
	}
	return s
}

// RegisterBaseline adds or replaces the baseline PCR map for a peer node,
// as populated by the configured baseline registry at startup (§4.8).
func (s *Service) RegisterBaseline(nodeID string, baseline map[PCRIndex][32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[nodeID] = baseline
}

// simulatedBaseline derives the 24 deterministic PCR seeds the source's
// simulated TPM uses: sha256("pcr_<n>_baseline").
func simulatedBaseline() map[PCRIndex][32]byte {
	baseline := make(map[PCRIndex][32]byte, 24)
	for pcr := 0; pcr < 24; pcr++ {
		seed := fmt.Sprintf("pcr_%d_baseline", pcr)
		baseline[PCRIndex(pcr)] = sha256.Sum256([]byte(seed))
	}
	return baseline
}

// CollectLocalQuote produces a Quote over the local node's current PCR
// values for the given PCR set (defaultPCRSet if nil). In simulated mode
// the sampled values are simply the baseline — there is no drift to
// model for the local node, only for peers being verified.
func (s *Service) CollectLocalQuote(pcrSet []PCRIndex) (*Quote, error) {
	s.mu.RLock()
	baseline := s.localBaseline
	s.mu.RUnlock()

	if pcrSet == nil {
		pcrSet = defaultPCRSet
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	values := make(map[PCRIndex][32]byte, len(pcrSet))
	for _, pcr := range pcrSet {
		v, ok := baseline[pcr]
		if !ok {
			continue
		}
		values[pcr] = v
	}

	sig := signQuote(nonce, values)
	return &Quote{
		PCRValues:   values,
		Nonce:       nonce,
		Signature:   sig,
		TimestampMs: nowMs(),
		IsValid:     true,
	}, nil
}

// signQuote computes the keyed-hash signature HMAC-SHA256 keyed with
// "tpm_key_" over nonce || ordered(pcr_values).
func signQuote(nonce [NonceSize]byte, pcrValues map[PCRIndex][32]byte) []byte {
	mac := hmac.New(sha256.New, []byte("tpm_key_"))
	mac.Write(nonce[:])
	for _, pcr := range orderedPCRs(pcrValues) {
		v := pcrValues[pcr]
		mac.Write(v[:])
	}
	return mac.Sum(nil)
}

func orderedPCRs(pcrValues map[PCRIndex][32]byte) []PCRIndex {
	ordered := make([]PCRIndex, 0, len(pcrValues))
	for pcr := range pcrValues {
		ordered = append(ordered, pcr)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	return ordered
}

// TrustLevelFor classifies a peer's quote: untrusted if the signature
// fails or the timestamp is skewed; suspicious if the signature verifies
// but a sampled PCR deviates from baseline; trusted otherwise.
func (s *Service) TrustLevelFor(nodeID string, q *Quote) TrustLevel {
	s.mu.RLock()
	baseline, known := s.registry[nodeID]
	s.mu.RUnlock()

	if !known {
		return Untrusted
	}

	if skew := nowMs() - q.TimestampMs; skew > maxTimestampSkew.Milliseconds() || skew < -maxTimestampSkew.Milliseconds() {
		return Untrusted
	}

	expectedSig := signQuote(q.Nonce, q.PCRValues)
	if subtle.ConstantTimeCompare(expectedSig, q.Signature) != 1 {
		return Untrusted
	}

	for pcr, got := range q.PCRValues {
		want, ok := baseline[pcr]
		if ok && got != want {
			return Suspicious
		}
	}
	return Trusted
}

// LocalTrustLevel produces a fresh local quote and classifies it —
// used by C7 at startup and on the periodic attestation interval.
func (s *Service) LocalTrustLevel() (TrustLevel, *Quote, error) {
	q, err := s.CollectLocalQuote(nil)
	if err != nil {
		return Untrusted, nil, err
	}
	level := s.TrustLevelFor(s.nodeID, q)
	if level != Trusted {
		s.logger.Printf("local attestation degraded: trust_level=%s", level)
	}
	return level, q, nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
