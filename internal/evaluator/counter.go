package evaluator

import (
	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/progress"
)

// counterEventPayload is the shape CounterEvaluator expects in
// EventRecord.EventData: a named field and an amount to add to it. field
// lets one event type drive several differently-keyed counters (e.g.
// "messages_sent" vs "reactions_given").
type counterEventPayload struct {
	Field  string  `json:"field"`
	Amount float64 `json:"amount"`
}

// CounterEvaluator tracks a monotonically increasing count against a target,
// e.g. "send 100 messages".
type CounterEvaluator struct {
	eventTypes []string
}

// NewCounterEvaluator builds a CounterEvaluator that reacts to eventTypes.
func NewCounterEvaluator(eventTypes []string) *CounterEvaluator {
	return &CounterEvaluator{eventTypes: eventTypes}
}

func (e *CounterEvaluator) CandidateEventTypes() []string {
	return e.eventTypes
}

func (e *CounterEvaluator) ApplyEvent(criteria catalog.Criteria, current *progress.AchievementProgress, event *events.EventRecord) (progress.Delta, bool, error) {
	var payload counterEventPayload
	if err := decodeEventData(event.EventData, &payload); err != nil {
		return progress.Delta{}, false, err
	}
	if criteria.CounterField != "" && payload.Field != "" && payload.Field != criteria.CounterField {
		return progress.Delta{}, false, nil
	}
	amount := payload.Amount
	if amount == 0 {
		amount = 1
	}
	return progress.Inc(amount), true, nil
}

func (e *CounterEvaluator) IsSatisfied(criteria catalog.Criteria, current *progress.AchievementProgress) bool {
	return current.IsSatisfied()
}
