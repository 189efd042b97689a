package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/docpilot/internal/domain"
)

func newEvent(sessionID, runID string, eventType domain.EventType, payload any) domain.Event {
	data, err := json.Marshal(payload)
	if err != nil {
		data = domain.ErrorResult("failed to marshal payload: " + err.Error())
	}
	return domain.Event{
		EventID:   "evt_" + uuid.New().String(),
		SessionID: sessionID,
		RunID:     runID,
		Ts:        time.Now().UnixMilli(),
		Type:      eventType,
		Payload:   data,
	}
}

// publish records an event in the journal and fans it out to the session
// subscribers. A journal failure is logged; subscribers still get the event.
func (s *Service) publish(sess *Session, runID string, eventType domain.EventType, payload any) {
	var record func(domain.Event)
	if runID != "" {
		record = func(ev domain.Event) {
			if err := s.store.CreateEvent(context.Background(), &ev); err != nil {
				s.logger.Error("failed to record event", "session_id", sess.ID, "run_id", runID, "type", eventType, "error", err)
			}
		}
	}
	sess.bus.Publish(newEvent(sess.ID, runID, eventType, payload), record)
}
