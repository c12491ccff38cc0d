package transport

import (
	"testing"

	"github.com/sfim/ledger/pkg/agreement"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	msg := &agreement.PhaseMessage{
		Phase:       agreement.Prepare,
		View:        3,
		Sequence:    7,
		Digest:      []byte{0xde, 0xad},
		SenderID:    2,
		Signature:   []byte{0x01, 0x02, 0x03},
		TimestampMs: 1234,
		PublicKey:   []byte{0xaa},
	}

	data, err := encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Phase != msg.Phase || got.View != msg.View || got.Sequence != msg.Sequence ||
		got.SenderID != msg.SenderID || got.TimestampMs != msg.TimestampMs {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
	if string(got.Digest) != string(msg.Digest) || string(got.Signature) != string(msg.Signature) {
		t.Fatalf("round trip byte field mismatch")
	}
}

func TestDecode_UnknownFieldIgnored(t *testing.T) {
	raw := `{"phase":"commit","digest":"ab","view":1,"sequence":1,"node_id":0,"signature":"cd","timestamp":1,"extra_field":"whatever"}`
	msg, err := decode([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Phase != agreement.Commit {
		t.Fatalf("expected commit phase, got %s", msg.Phase)
	}
}

func TestDecode_MissingDigestRejected(t *testing.T) {
	raw := `{"phase":"prepare","view":1,"sequence":1,"node_id":0,"signature":"cd","timestamp":1}`
	if _, err := decode([]byte(raw)); err == nil {
		t.Fatal("expected rejection for missing digest")
	}
}

func TestDecode_UnknownPhaseRejected(t *testing.T) {
	raw := `{"phase":"view_change","digest":"ab","view":1,"sequence":1,"node_id":0,"signature":"cd","timestamp":1}`
	if _, err := decode([]byte(raw)); err == nil {
		t.Fatal("expected rejection for unknown phase")
	}
}

func TestDecode_MalformedJSONRejected(t *testing.T) {
	if _, err := decode([]byte("{not json")); err == nil {
		t.Fatal("expected rejection for malformed json")
	}
}

func TestToWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:7001":  "ws://localhost:7001",
		"https://node.example":   "wss://node.example",
		"ws://already-ws:7001":   "ws://already-ws:7001",
	}
	for in, want := range cases {
		if got := toWebsocketURL(in); got != want {
			t.Fatalf("toWebsocketURL(%q) = %q, want %q", in, got, want)
		}
	}
}
