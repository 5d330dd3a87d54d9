package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfman30/radiology-ops/internal/events"
)

// Handle implements events.DeliveryHandler: every appointment event becomes
// a toast on the next snapshot. Unknown types and undecodable payloads are
// acknowledged and dropped so they do not block the outbox.
func (h *Hub) Handle(ctx context.Context, entry events.OutboxEntry) error {
	toast, err := ToastFor(entry)
	if err != nil {
		h.logger.Warn("live: dropping malformed event", "event_id", entry.ID, "type", entry.Type, "error", err)
		return nil
	}
	if toast == nil {
		return nil
	}
	h.announce(ctx, toast)
	return nil
}

// ToastFor renders the desk notification for an outbox entry. It returns nil
// for event types the desk does not announce.
func ToastFor(entry events.OutboxEntry) (*Toast, error) {
	switch entry.Type {
	case events.TypeIngested:
		var evt events.IngestedV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return nil, fmt.Errorf("live: decode %s: %w", entry.Type, err)
		}
		if evt.Count == 0 {
			return nil, nil
		}
		return &Toast{
			Level:      "info",
			Message:    fmt.Sprintf("Synced %d appointment(s) from the hospital system", evt.Count),
			Sound:      true,
			SwitchView: "pending",
		}, nil

	case events.TypeAccepted, events.TypeBooked, events.TypeUndone, events.TypeRemoved, events.TypeCreated:
		var evt events.TransitionV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return nil, fmt.Errorf("live: decode %s: %w", entry.Type, err)
		}
		who := evt.ActorName
		if who == "" {
			who = evt.ActorID
		}
		patient := evt.PatientName
		if patient == "" {
			patient = evt.AppointmentID
		}
		var msg string
		switch entry.Type {
		case events.TypeAccepted:
			msg = fmt.Sprintf("%s started %s for %s", who, evt.ExamType, patient)
		case events.TypeBooked:
			msg = fmt.Sprintf("%s booked %s for %s", who, evt.ExamType, patient)
		case events.TypeUndone:
			msg = fmt.Sprintf("%s returned %s to the queue", who, patient)
		case events.TypeRemoved:
			msg = fmt.Sprintf("%s removed %s", who, patient)
		default:
			msg = fmt.Sprintf("%s added %s", who, patient)
		}
		return &Toast{Level: "success", Message: msg}, nil

	case events.TypePurged:
		var evt events.PurgedV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			return nil, fmt.Errorf("live: decode %s: %w", entry.Type, err)
		}
		if evt.Failed {
			return &Toast{
				Level:   "error",
				Message: fmt.Sprintf("Purge stopped after %d of %d records", evt.Deleted, evt.Requested),
			}, nil
		}
		return &Toast{Level: "success", Message: fmt.Sprintf("Purged %d archived records", evt.Deleted)}, nil
	}
	return nil, nil
}
