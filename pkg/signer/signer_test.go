package signer

import "testing"

func newBLS(t *testing.T) *BLSSigner {
	t.Helper()
	priv, _, err := GenerateBLSKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	return NewBLSSigner(priv)
}

func TestBLS_SignVerify(t *testing.T) {
	s := newBLS(t)
	msg := PhaseSigningInput(PhaseCommit, make([]byte, 64), 0)

	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := s.Verify(s.PublicKey(), msg, sig)
	if err != nil || !ok {
		t.Fatalf("verify failed: ok=%v err=%v", ok, err)
	}
}

// Testable property 5: verify_aggregate(aggregate(sigs), {(pk_i, m)}) = true
// for any set of signers over the same message.
func TestBLS_AggregateAndVerify(t *testing.T) {
	digest := make([]byte, 64)
	for i := range digest {
		digest[i] = byte(i)
	}
	msg := PhaseSigningInput(PhaseCommit, digest, 3)

	n := 4
	signers := make([]*BLSSigner, n)
	sigs := make([][]byte, n)
	pubs := make([][]byte, n)
	for i := 0; i < n; i++ {
		signers[i] = newBLS(t)
		sig, err := signers[i].Sign(msg)
		if err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
		sigs[i] = sig
		pubs[i] = signers[i].PublicKey()
	}

	agg, err := signers[0].Aggregate(sigs)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	ok, err := signers[0].VerifyAggregate(agg, pubs, msg)
	if err != nil || !ok {
		t.Fatalf("verify aggregate failed: ok=%v err=%v", ok, err)
	}
}

func TestBLS_EmptyAggregationInvalid(t *testing.T) {
	s := newBLS(t)
	if _, err := s.Aggregate(nil); err == nil {
		t.Fatal("expected error aggregating zero signatures")
	}
}

func TestMACSigner_SingleNodeOnly(t *testing.T) {
	s := NewMACSigner(nil)
	if s.SupportsMultiNode() {
		t.Fatal("MAC signer must not claim multi-node support")
	}

	msg := PhaseSigningInput(PhasePrepare, make([]byte, 64), 0)
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := s.Verify(s.PublicKey(), msg, sig)
	if err != nil || !ok {
		t.Fatalf("verify failed: ok=%v err=%v", ok, err)
	}
}

func TestPhaseSigningInput_BindsView(t *testing.T) {
	digest := make([]byte, 64)
	a := PhaseSigningInput(PhaseCommit, digest, 0)
	b := PhaseSigningInput(PhaseCommit, digest, 1)
	if string(a) == string(b) {
		t.Fatal("signing input must differ across views for the same digest")
	}
}
