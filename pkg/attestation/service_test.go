package attestation

import "testing"

func TestLocalTrustLevel_TrustedByDefault(t *testing.T) {
	s := NewService(&Config{NodeID: "node-0", UseSimulated: true})
	level, q, err := s.LocalTrustLevel()
	if err != nil {
		t.Fatalf("local trust level: %v", err)
	}
	if level != Trusted {
		t.Fatalf("expected trusted, got %s", level)
	}
	if !q.IsValid {
		t.Fatal("expected quote to be marked valid")
	}
}

func TestTrustLevelFor_UnknownNodeIsUntrusted(t *testing.T) {
	s := NewService(&Config{NodeID: "node-0"})
	q, err := s.CollectLocalQuote(nil)
	if err != nil {
		t.Fatalf("collect quote: %v", err)
	}
	if level := s.TrustLevelFor("node-unknown", q); level != Untrusted {
		t.Fatalf("expected untrusted for node without baseline, got %s", level)
	}
}

func TestTrustLevelFor_DeviatedPCRIsSuspicious(t *testing.T) {
	s := NewService(&Config{NodeID: "node-0"})
	q, err := s.CollectLocalQuote(nil)
	if err != nil {
		t.Fatalf("collect quote: %v", err)
	}

	var tampered [32]byte
	copy(tampered[:], "tampered-pcr-value-aaaaaaaaaaaa!")
	for pcr := range q.PCRValues {
		q.PCRValues[pcr] = tampered
		break
	}
	// re-sign so the signature itself still verifies — only PCR content deviates
	q.Signature = signQuote(q.Nonce, q.PCRValues)

	if level := s.TrustLevelFor("node-0", q); level != Suspicious {
		t.Fatalf("expected suspicious for deviated PCR, got %s", level)
	}
}

func TestTrustLevelFor_BadSignatureIsUntrusted(t *testing.T) {
	s := NewService(&Config{NodeID: "node-0"})
	q, err := s.CollectLocalQuote(nil)
	if err != nil {
		t.Fatalf("collect quote: %v", err)
	}
	q.Signature = append([]byte(nil), q.Signature...)
	q.Signature[0] ^= 0xFF

	if level := s.TrustLevelFor("node-0", q); level != Untrusted {
		t.Fatalf("expected untrusted for bad signature, got %s", level)
	}
}

func TestTrustLevelFor_StaleTimestampIsUntrusted(t *testing.T) {
	s := NewService(&Config{NodeID: "node-0"})
	q, err := s.CollectLocalQuote(nil)
	if err != nil {
		t.Fatalf("collect quote: %v", err)
	}
	q.TimestampMs -= maxTimestampSkew.Milliseconds() * 2

	if level := s.TrustLevelFor("node-0", q); level != Untrusted {
		t.Fatalf("expected untrusted for stale timestamp, got %s", level)
	}
}

func TestRegisterBaseline_PeerVerifiable(t *testing.T) {
	s := NewService(&Config{NodeID: "node-0"})
	peerBaseline := simulatedBaseline()
	s.RegisterBaseline("node-1", peerBaseline)

	q, err := s.CollectLocalQuote(nil)
	if err != nil {
		t.Fatalf("collect quote: %v", err)
	}
	if level := s.TrustLevelFor("node-1", q); level != Trusted {
		t.Fatalf("expected trusted for matching peer baseline, got %s", level)
	}
}
