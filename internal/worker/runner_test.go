package worker

import (
	"context"
	"testing"
	"time"

	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/retry"
	"github.com/colonycore/colony/internal/task"
	"github.com/colonycore/colony/internal/transport"
)

func taskEnvelope(to, payload string) transport.Envelope {
	return transport.NewTaskEnvelope("coordinator", to, task.New("coordinator", to, payload, 1))
}

func receiveResult(t *testing.T, tr transport.Transport, id string) task.Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		envs, err := tr.Receive(id)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		for _, env := range envs {
			if env.Kind == transport.KindResult && env.Result != nil {
				return *env.Result
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for result envelope")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleMessage_FirstMatchWins(t *testing.T) {
	tr := transport.NewChanTransport()
	r := New("w1", tr, WithPolicy(retry.NewNoRetry()))

	r.Register("build", PayloadContains("build"), func(_ context.Context, _ task.Task) (string, error) {
		return "built", nil
	})
	// Also matches "build" payloads, but registered later so it must lose.
	r.Register("catch-all", Any(), func(_ context.Context, _ task.Task) (string, error) {
		return "generic", nil
	})

	r.HandleMessage(context.Background(), taskEnvelope("w1", "build the thing"))

	res := receiveResult(t, tr, "coordinator")
	if !res.Success {
		t.Fatalf("result failed: %s", res.Error)
	}
	if res.Output != "built" {
		t.Errorf("output = %q, want built (first registered match)", res.Output)
	}
	if res.WorkerID != "w1" {
		t.Errorf("workerID = %q, want w1", res.WorkerID)
	}
}

func TestHandleMessage_CatchAll(t *testing.T) {
	tr := transport.NewChanTransport()
	r := New("w1", tr, WithPolicy(retry.NewNoRetry()))

	r.Register("build", PayloadContains("build"), func(_ context.Context, _ task.Task) (string, error) {
		return "built", nil
	})
	r.Register("catch-all", Any(), func(_ context.Context, _ task.Task) (string, error) {
		return "generic", nil
	})

	r.HandleMessage(context.Background(), taskEnvelope("w1", "something else"))

	res := receiveResult(t, tr, "coordinator")
	if res.Output != "generic" {
		t.Errorf("output = %q, want generic", res.Output)
	}
}

func TestHandleMessage_NoHandlerMatches(t *testing.T) {
	tr := transport.NewChanTransport()
	r := New("w1", tr, WithPolicy(retry.NewNoRetry()))

	r.Register("build", PayloadContains("build"), func(_ context.Context, _ task.Task) (string, error) {
		return "built", nil
	})

	r.HandleMessage(context.Background(), taskEnvelope("w1", "deploy"))

	res := receiveResult(t, tr, "coordinator")
	if res.Success {
		t.Error("expected failed result when no handler matches")
	}
	if res.Error == "" {
		t.Error("expected an error message on the result")
	}
}

func TestHandleMessage_RetriesTransientFailures(t *testing.T) {
	tr := transport.NewChanTransport()
	policy := retry.NewExponentialBackoff(
		retry.WithMaxRetries(2),
		retry.WithBaseDelay(time.Millisecond),
	)
	r := New("w1", tr, WithPolicy(policy))

	attempts := 0
	r.Register("flaky", Any(), func(_ context.Context, _ task.Task) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "eventually", nil
	})

	r.HandleMessage(context.Background(), taskEnvelope("w1", "work"))

	res := receiveResult(t, tr, "coordinator")
	if !res.Success {
		t.Fatalf("result failed after retries: %s", res.Error)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestHandleMessage_FatalErrorNotRetried(t *testing.T) {
	tr := transport.NewChanTransport()
	r := New("w1", tr) // default policy allows 3 retries

	attempts := 0
	r.Register("strict", Any(), func(_ context.Context, _ task.Task) (string, error) {
		attempts++
		return "", errors.Wrap(errors.ErrInvalidInput, "bad payload")
	})

	r.HandleMessage(context.Background(), taskEnvelope("w1", "work"))

	res := receiveResult(t, tr, "coordinator")
	if res.Success {
		t.Error("expected failed result for fatal error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (fatal errors skip retry)", attempts)
	}
}

func TestHandleMessage_IgnoresNonTaskEnvelopes(t *testing.T) {
	tr := transport.NewChanTransport()
	r := New("w1", tr)

	res := task.NewResult("t1", "other", "out")
	r.HandleMessage(context.Background(), transport.NewResultEnvelope("other", "w1", res))

	envs, err := tr.Receive("coordinator")
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(envs) != 0 {
		t.Errorf("expected no reply to a result envelope, got %d", len(envs))
	}
}

func TestStartStop(t *testing.T) {
	tr := transport.NewChanTransport()
	r := New("w1", tr, WithPolicy(retry.NewNoRetry()))
	r.Register("echo", Any(), func(_ context.Context, tk task.Task) (string, error) {
		return "echo:" + tk.Payload, nil
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error for double Start")
	}

	if err := tr.Send(taskEnvelope("w1", "ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	res := receiveResult(t, tr, "coordinator")
	if res.Output != "echo:ping" {
		t.Errorf("output = %q, want echo:ping", res.Output)
	}

	r.Stop()
	r.Stop() // idempotent
}
