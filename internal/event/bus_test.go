package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prismrun/prism/pkg/types"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	var received types.Event
	var wg sync.WaitGroup
	wg.Add(1)

	unsub := bus.Subscribe(types.EventThinking, func(e types.Event) {
		received = e
		wg.Done()
	})
	defer unsub()

	bus.Publish(types.Event{Kind: types.EventThinking, Data: "test-session"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Kind != types.EventThinking {
			t.Errorf("Expected EventThinking, got %v", received.Kind)
		}
		if received.Data != "test-session" {
			t.Errorf("Expected 'test-session', got %v", received.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub := bus.SubscribeAll(func(e types.Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.Publish(types.Event{Kind: types.EventThinking})
	bus.Publish(types.Event{Kind: types.EventResponse})
	bus.Publish(types.Event{Kind: types.EventComplete})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("Expected 3 events, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	var count int32
	unsub := bus.Subscribe(types.EventThinking, func(e types.Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.PublishSync(types.Event{Kind: types.EventThinking})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 event before unsub, got %d", count)
	}

	unsub()

	bus.PublishSync(types.Event{Kind: types.EventThinking})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected still 1 event after unsub, got %d", count)
	}
}

func TestBus_UnsubscribeGlobal(t *testing.T) {
	bus := NewBus()

	var count int32
	unsub := bus.SubscribeAll(func(e types.Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.PublishSync(types.Event{Kind: types.EventThinking})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 event before unsub, got %d", count)
	}

	unsub()

	bus.PublishSync(types.Event{Kind: types.EventResponse})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected still 1 event after unsub, got %d", count)
	}
}

func TestBus_PublishSync(t *testing.T) {
	bus := NewBus()

	var received []types.EventKind
	var mu sync.Mutex

	bus.Subscribe(types.EventThinking, func(e types.Event) {
		mu.Lock()
		received = append(received, e.Kind)
		mu.Unlock()
	})
	bus.Subscribe(types.EventResponse, func(e types.Event) {
		mu.Lock()
		received = append(received, e.Kind)
		mu.Unlock()
	})

	bus.PublishSync(types.Event{Kind: types.EventThinking})
	bus.PublishSync(types.Event{Kind: types.EventResponse})

	mu.Lock()
	if len(received) != 2 {
		t.Errorf("Expected 2 events, got %d", len(received))
	}
	mu.Unlock()
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		bus.Subscribe(types.EventThinking, func(e types.Event) {
			atomic.AddInt32(&count, 1)
			wg.Done()
		})
	}

	bus.Publish(types.Event{Kind: types.EventThinking})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("Expected 3 subscribers to receive event, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()

	bus.Publish(types.Event{Kind: types.EventThinking})
	bus.PublishSync(types.Event{Kind: types.EventThinking})
}

func TestBus_EventKindFiltering(t *testing.T) {
	bus := NewBus()

	var thinkingCount, responseCount int32

	bus.Subscribe(types.EventThinking, func(e types.Event) {
		atomic.AddInt32(&thinkingCount, 1)
	})
	bus.Subscribe(types.EventResponse, func(e types.Event) {
		atomic.AddInt32(&responseCount, 1)
	})

	bus.PublishSync(types.Event{Kind: types.EventThinking})
	bus.PublishSync(types.Event{Kind: types.EventThinking})
	bus.PublishSync(types.Event{Kind: types.EventResponse})

	if atomic.LoadInt32(&thinkingCount) != 2 {
		t.Errorf("Expected 2 thinking events, got %d", thinkingCount)
	}
	if atomic.LoadInt32(&responseCount) != 1 {
		t.Errorf("Expected 1 response event, got %d", responseCount)
	}
}

func TestGlobalBus_Reset(t *testing.T) {
	var count int32
	Subscribe(types.EventThinking, func(e types.Event) {
		atomic.AddInt32(&count, 1)
	})

	PublishSync(types.Event{Kind: types.EventThinking})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 event before reset, got %d", count)
	}

	Reset()

	PublishSync(types.Event{Kind: types.EventThinking})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected still 1 event after reset, got %d", count)
	}
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus()

	var count int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(types.EventThinking, func(e types.Event) {
				atomic.AddInt32(&count, 1)
			})
			defer unsub()

			for j := 0; j < 10; j++ {
				bus.Publish(types.Event{Kind: types.EventThinking})
			}
		}()
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&count) == 0 {
		t.Log("Warning: no events received, but no panic occurred")
	}
}
