package evaluator

import (
	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/progress"
)

// milestoneEventPayload carries the absolute measured value at the time of
// the event, e.g. account_age_days or total_points.
type milestoneEventPayload struct {
	MilestoneType string  `json:"milestone_type"`
	Value         float64 `json:"value"`
}

// MilestoneEvaluator tracks a single numeric threshold on a named measure,
// e.g. "reach level 10". Unlike CounterEvaluator it Sets rather than
// increments: the event carries the measure's current absolute value.
type MilestoneEvaluator struct {
	eventTypes []string
}

// NewMilestoneEvaluator builds a MilestoneEvaluator that reacts to eventTypes.
func NewMilestoneEvaluator(eventTypes []string) *MilestoneEvaluator {
	return &MilestoneEvaluator{eventTypes: eventTypes}
}

func (e *MilestoneEvaluator) CandidateEventTypes() []string {
	return e.eventTypes
}

func (e *MilestoneEvaluator) ApplyEvent(criteria catalog.Criteria, current *progress.AchievementProgress, event *events.EventRecord) (progress.Delta, bool, error) {
	var payload milestoneEventPayload
	if err := decodeEventData(event.EventData, &payload); err != nil {
		return progress.Delta{}, false, err
	}
	if criteria.MilestoneType != "" && payload.MilestoneType != "" && payload.MilestoneType != criteria.MilestoneType {
		return progress.Delta{}, false, nil
	}
	if payload.Value <= current.CurrentValue.Float64() {
		return progress.Delta{}, false, nil
	}
	return progress.Set(payload.Value), true, nil
}

func (e *MilestoneEvaluator) IsSatisfied(criteria catalog.Criteria, current *progress.AchievementProgress) bool {
	return current.IsSatisfied()
}
