package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sfim/ledger/pkg/agreement"
)

func TestBroadcast_TwoNodesExchangeMessage(t *testing.T) {
	var mu sync.Mutex
	var received []*agreement.PhaseMessage

	addrA := ":18801"
	addrB := ":18802"

	recvHandler := func(_ context.Context, msg *agreement.PhaseMessage) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	}
	noopHandler := func(context.Context, *agreement.PhaseMessage) error { return nil }

	tA := New(Config{
		NodeID:     0,
		ListenAddr: addrA,
		Peers:      map[int]string{1: "http://127.0.0.1:18802"},
		Handler:    noopHandler,
	})
	tB := New(Config{
		NodeID:     1,
		ListenAddr: addrB,
		Peers:      map[int]string{0: "http://127.0.0.1:18801"},
		Handler:    recvHandler,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tA.Start(ctx); err != nil {
		t.Fatalf("start A: %v", err)
	}
	if err := tB.Start(ctx); err != nil {
		t.Fatalf("start B: %v", err)
	}
	defer tA.Close()
	defer tB.Close()

	// Allow the dialer goroutines time to connect.
	deadline := time.Now().Add(5 * time.Second)
	for {
		tA.mu.RLock()
		n := len(tA.conns)
		tA.mu.RUnlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	msg := &agreement.PhaseMessage{
		Phase:     agreement.Prepare,
		View:      0,
		Sequence:  1,
		Digest:    []byte("d"),
		SenderID:  0,
		Signature: []byte("sig"),
	}
	if err := tA.Broadcast(ctx, msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	deadline = time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected node B to receive exactly one message, got %d", len(received))
	}
	if received[0].SenderID != 0 || received[0].Sequence != 1 {
		t.Fatalf("unexpected message: %+v", received[0])
	}
}
