package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/colonycore/colony/internal/testutil"
)

func TestChanTransport_SendAndReceive(t *testing.T) {
	ct := NewChanTransport()

	if err := ct.Send(taskEnvelope("coordinator", "worker-1", "build")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := ct.Receive("worker-1")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 1 || got[0].Task.Payload != "build" {
		t.Fatalf("Receive() = %+v, want one build envelope", got)
	}

	// Drained.
	got, err = ct.Receive("worker-1")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty inbox after drain, got %d", len(got))
	}
}

func TestChanTransport_SubscribeDeliversBacklogThenLive(t *testing.T) {
	ct := NewChanTransport()

	if err := ct.Send(taskEnvelope("coordinator", "worker-1", "backlog")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var mu sync.Mutex
	var payloads []string
	cancel, err := ct.Subscribe("worker-1", func(env Envelope) {
		mu.Lock()
		payloads = append(payloads, env.Task.Payload)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := ct.Send(taskEnvelope("coordinator", "worker-1", "live")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 2
	}, "subscriber did not see both envelopes")
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if payloads[0] != "backlog" || payloads[1] != "live" {
		t.Errorf("payloads = %v, want [backlog live]", payloads)
	}
}

func TestChanTransport_DuplicateSubscribe(t *testing.T) {
	ct := NewChanTransport()

	cancel, err := ct.Subscribe("worker-1", func(Envelope) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	if _, err := ct.Subscribe("worker-1", func(Envelope) {}); err == nil {
		t.Error("expected error for duplicate subscription")
	}
}

func TestChanTransport_BroadcastReachesAllParticipants(t *testing.T) {
	ct := NewChanTransport()

	// worker-1 subscribes; worker-2 is a pull reader the transport has seen.
	var mu sync.Mutex
	received := 0
	cancel, err := ct.Subscribe("worker-1", func(Envelope) {
		mu.Lock()
		received++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	if _, err := ct.Receive("worker-2"); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if err := ct.Broadcast(taskEnvelope("coordinator", BroadcastRecipient, "announce")); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == 1
	}, "subscriber did not see the broadcast")

	got, err := ct.Receive("worker-2")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(got) != 1 || got[0].Task.Payload != "announce" {
		t.Errorf("worker-2 broadcast = %+v, want one announce envelope", got)
	}
}

func TestChanTransport_ClosedRejectsSends(t *testing.T) {
	ct := NewChanTransport()
	if err := ct.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ct.Send(taskEnvelope("coordinator", "worker-1", "late")); err == nil {
		t.Error("Send() after Close expected error")
	}
	if _, err := ct.Subscribe("worker-1", func(Envelope) {}); err == nil {
		t.Error("Subscribe() after Close expected error")
	}
}

func TestChanTransport_FIFOPerDestination(t *testing.T) {
	ct := NewChanTransport()

	var mu sync.Mutex
	var payloads []string
	cancel, err := ct.Subscribe("worker-1", func(env Envelope) {
		mu.Lock()
		payloads = append(payloads, env.Task.Payload)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	want := []string{"a", "b", "c", "d"}
	for _, p := range want {
		if err := ct.Send(taskEnvelope("coordinator", "worker-1", p)); err != nil {
			t.Fatalf("Send(%s) error = %v", p, err)
		}
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == len(want)
	}, "subscriber did not see all envelopes")

	mu.Lock()
	defer mu.Unlock()
	for i, p := range want {
		if payloads[i] != p {
			t.Errorf("payloads[%d] = %q, want %q", i, payloads[i], p)
		}
	}
}
