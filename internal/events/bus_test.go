package events

import "testing"

func TestPublishPreservesOrder(t *testing.T) {
	bus := NewBus(8)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Kind: KindQuizInitialized})
	bus.Publish(Event{Kind: KindQuestionStarted})
	bus.Publish(Event{Kind: KindQuestionEnded})

	want := []Kind{KindQuizInitialized, KindQuestionStarted, KindQuestionEnded}
	for i, k := range want {
		ev := <-ch
		if ev.Kind != k {
			t.Fatalf("event %d: expected %s, got %s", i, k, ev.Kind)
		}
	}
}

func TestFanOut(t *testing.T) {
	bus := NewBus(8)
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(Event{Kind: KindParticipantJoined})

	if ev := <-a; ev.Kind != KindParticipantJoined {
		t.Fatalf("subscriber a got %s", ev.Kind)
	}
	if ev := <-b; ev.Kind != KindParticipantJoined {
		t.Fatalf("subscriber b got %s", ev.Kind)
	}
}

// TestOverflowShedsOldest overfills a two-slot buffer and checks the survivors
// are the newest events, still in order.
func TestOverflowShedsOldest(t *testing.T) {
	bus := NewBus(2)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Kind: KindQuizInitialized})
	bus.Publish(Event{Kind: KindQuestionStarted})
	bus.Publish(Event{Kind: KindQuestionEnded})

	if ev := <-ch; ev.Kind != KindQuestionStarted {
		t.Fatalf("expected oldest event shed, got %s first", ev.Kind)
	}
	if ev := <-ch; ev.Kind != KindQuestionEnded {
		t.Fatalf("expected question-ended second, got %s", ev.Kind)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %s", ev.Kind)
	default:
	}
}

func TestCancelIsIdempotentAndStopsDelivery(t *testing.T) {
	bus := NewBus(4)
	ch, cancel := bus.Subscribe()

	cancel()
	cancel() // second cancel must be harmless

	// Publishing after cancel must not panic on the closed channel.
	bus.Publish(Event{Kind: KindQuizEnded})

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}
}
