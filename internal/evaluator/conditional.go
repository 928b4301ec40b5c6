package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/progress"
)

// Predicate evaluates a structured CONDITIONAL expression against an
// event's decoded payload, returning whether the condition holds. Registered
// predicates are looked up by the expr's "op" field.
type Predicate func(expr map[string]interface{}, payload map[string]interface{}) (bool, error)

// ConditionalEvaluator evaluates a registered structured predicate, e.g.
// "reacted with :tada: to an announcement message". Satisfaction is boolean,
// not progress-bearing: a single matching event sets CurrentValue to 1.
type ConditionalEvaluator struct {
	eventTypes []string
	predicates map[string]Predicate
}

// NewConditionalEvaluator builds a ConditionalEvaluator that reacts to
// eventTypes, dispatching to predicates keyed by expr["op"].
func NewConditionalEvaluator(eventTypes []string, predicates map[string]Predicate) *ConditionalEvaluator {
	return &ConditionalEvaluator{eventTypes: eventTypes, predicates: predicates}
}

func (e *ConditionalEvaluator) CandidateEventTypes() []string {
	return e.eventTypes
}

func (e *ConditionalEvaluator) ApplyEvent(criteria catalog.Criteria, current *progress.AchievementProgress, event *events.EventRecord) (progress.Delta, bool, error) {
	op, _ := criteria.Expr["op"].(string)
	predicate, ok := e.predicates[op]
	if !ok {
		return progress.Delta{}, false, fmt.Errorf("evaluator: no predicate registered for conditional op %q", op)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(event.EventData, &payload); err != nil {
		return progress.Delta{}, false, err
	}

	matched, err := predicate(criteria.Expr, payload)
	if err != nil {
		return progress.Delta{}, false, err
	}
	if !matched {
		return progress.Delta{}, false, nil
	}
	return progress.Set(1), true, nil
}

func (e *ConditionalEvaluator) IsSatisfied(criteria catalog.Criteria, current *progress.AchievementProgress) bool {
	return current.IsSatisfied()
}
