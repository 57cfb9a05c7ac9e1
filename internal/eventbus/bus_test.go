package eventbus

import (
	"testing"

	"github.com/pyros-projects/clawde/internal/event"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	bus.PublishNew(event.TypeRefresh, map[string]string{"category": "beads"})

	ev := <-ch
	if ev.Type != event.TypeRefresh || ev.Payload["category"] != "beads" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	// Double unsubscribe is safe.
	bus.Unsubscribe(id)
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	bus.PublishNew(event.TypeRefresh, nil)
	bus.PublishNew(event.TypeRefresh, nil) // dropped, must not block

	<-ch
	select {
	case ev := <-ch:
		t.Errorf("expected second event dropped, got %+v", ev)
	default:
	}
}

func TestPublishFansOut(t *testing.T) {
	bus := New()
	id1, ch1 := bus.Subscribe(1)
	id2, ch2 := bus.Subscribe(1)
	defer bus.Unsubscribe(id1)
	defer bus.Unsubscribe(id2)

	bus.PublishNew(event.TypeCommit, nil)
	if ev := <-ch1; ev.Type != event.TypeCommit {
		t.Errorf("subscriber 1 missed event")
	}
	if ev := <-ch2; ev.Type != event.TypeCommit {
		t.Errorf("subscriber 2 missed event")
	}
}
