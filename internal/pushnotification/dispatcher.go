package pushnotification

import (
	"context"
	"log/slog"

	"github.com/pyros-projects/clawde/internal/event"
	"github.com/pyros-projects/clawde/internal/eventbus"
)

// Dispatcher turns selected project events into push notifications.
// Only events a user would want to act on get pushed; refreshes and
// routine task churn stay on the SSE stream.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

// Start blocks until ctx is canceled, draining the event bus.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if payload := notificationFor(ev); payload != nil {
				d.sender.SendToAll(ctx, payload)
			}
		}
	}
}

// notificationFor maps an event to a push payload, or nil for events
// that do not need the user's attention.
func notificationFor(ev *event.Event) *NotificationPayload {
	switch ev.Type {
	case event.TypeTaskUpdated:
		switch ev.Payload["status"] {
		case "blocked":
			return &NotificationPayload{
				Title: "Task Blocked",
				Body:  ev.Payload["title"],
				URL:   "/tasks/" + ev.TaskID,
				Tag:   ev.ID,
			}
		case "in-review":
			return &NotificationPayload{
				Title: "Review Requested",
				Body:  ev.Payload["title"],
				URL:   "/tasks/" + ev.TaskID,
				Tag:   ev.ID,
			}
		}
		return nil
	case event.TypeAgentDisconnected:
		return &NotificationPayload{
			Title: "Agent Disconnected",
			Body:  ev.Payload["name"],
			Tag:   ev.ID,
		}
	default:
		return nil
	}
}
