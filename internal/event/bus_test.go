package event

import (
	"sync"
	"testing"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var received []Event
	bus.Subscribe(TypeTaskEnqueued, func(e Event) {
		received = append(received, e)
	})

	bus.Publish(NewTaskEnqueuedEvent("t1", 5, nil))
	bus.Publish(NewTaskCompletedEvent("t1", nil)) // different type, not delivered

	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	enq, ok := received[0].(TaskEnqueuedEvent)
	if !ok {
		t.Fatalf("received event of type %T, want TaskEnqueuedEvent", received[0])
	}
	if enq.TaskID != "t1" || enq.Priority != 5 {
		t.Errorf("event = %+v, want TaskID=t1 Priority=5", enq)
	}
	if enq.Timestamp().IsZero() {
		t.Error("event timestamp is zero")
	}
}

func TestBus_SubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})

	bus.Publish(NewWorkerRegisteredEvent("w1"))
	bus.Publish(NewWorkerBusyEvent("w1", "t1"))
	bus.Publish(NewResultRecordedEvent("t1", "w1", true))

	want := []string{TypeWorkerRegistered, TypeWorkerBusy, TypeResultRecorded}
	if len(types) != len(want) {
		t.Fatalf("received %d events, want %d", len(types), len(want))
	}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("types[%d] = %q, want %q", i, types[i], w)
		}
	}
}

func TestBus_SpecificHandlersBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "wildcard") })
	bus.Subscribe(TypeTaskReady, func(Event) { order = append(order, "specific") })

	bus.Publish(NewTaskReadyEvent("t1", "t0"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("dispatch order = %v, want [specific wildcard]", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(TypeTaskFailed, func(Event) { calls++ })

	bus.Publish(NewTaskFailedEvent("t1", "boom"))
	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for valid id")
	}
	bus.Publish(NewTaskFailedEvent("t2", "boom"))

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if bus.Unsubscribe("nonexistent") {
		t.Error("Unsubscribe returned true for unknown id")
	}
}

func TestBus_PanickingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(TypeTaskStarted, func(Event) { panic("handler bug") })
	bus.Subscribe(TypeTaskStarted, func(Event) { called = true })

	bus.Publish(NewTaskStartedEvent("t1", "w1"))

	if !called {
		t.Error("second handler not called after first panicked")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewWorkerIdleEvent("w1", 1.0))
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("handler called %d times, want 1000", count)
	}
}

func TestBus_ClearAndCount(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeTaskEnqueued, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if got := bus.SubscriptionCount(); got != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", got)
	}

	bus.Clear()
	if got := bus.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() after Clear = %d, want 0", got)
	}
}
