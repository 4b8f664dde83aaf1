package realtime

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(slog.Default())

	s1 := bus.Subscribe()
	s2 := bus.Subscribe(TopicAllocationProcess)

	if got := bus.SubscriberCount(); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}

	s1.Close()
	if got := bus.SubscriberCount(); got != 1 {
		t.Fatalf("expected 1 subscriber after close, got %d", got)
	}

	s2.Close()
	// Should not panic
	s2.Close()
	if got := bus.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestPublishFiltersByTopic(t *testing.T) {
	bus := NewBus(slog.Default())
	all := bus.Subscribe()
	process := bus.Subscribe(TopicAllocationProcess)
	family := bus.Subscribe(TopicAcceptRejectFamily)
	defer all.Close()
	defer process.Close()
	defer family.Close()

	if n := bus.Publish(AllocationProcess("started")); n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}

	select {
	case ev := <-process.C():
		if ev.Topic != TopicAllocationProcess || ev.Message != "started" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case <-all.C():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("catch-all subscriber missed event")
	}
	select {
	case ev := <-family.C():
		t.Fatalf("family subscriber got unexpected %+v", ev)
	default:
	}
}

func TestPublishFullBufferCoalesces(t *testing.T) {
	bus := NewBus(slog.Default())
	s := bus.Subscribe()
	defer s.Close()

	for i := 0; i < subscriberBufferSize; i++ {
		bus.Publish(AcceptRejectFamily())
	}
	if n := bus.Publish(AcceptRejectFamily()); n != 0 {
		t.Errorf("expected drop on full buffer, delivered to %d", n)
	}

	count := 0
	for {
		select {
		case <-s.C():
			count++
			continue
		default:
		}
		break
	}
	if count != subscriberBufferSize {
		t.Errorf("expected %d events, got %d", subscriberBufferSize, count)
	}
}

func TestSameEventTwiceIsDeliveredTwice(t *testing.T) {
	bus := NewBus(slog.Default())
	s := bus.Subscribe()
	defer s.Close()

	bus.Publish(AcceptRejectFamily())
	bus.Publish(AcceptRejectFamily())

	for i := 0; i < 2; i++ {
		select {
		case <-s.C():
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("missing delivery %d", i+1)
		}
	}
}

func TestBusConcurrentAccess(t *testing.T) {
	bus := NewBus(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := bus.Subscribe()
			bus.Publish(AllocationProcess("concurrent"))
			for {
				select {
				case <-s.C():
				default:
					s.Close()
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("expected 0 subscribers after concurrent test, got %d", got)
	}
}
