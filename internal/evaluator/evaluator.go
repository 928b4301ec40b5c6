// Package evaluator implements the per-achievement-type criterion evaluation
// registry. Rather than a base-class hierarchy of achievement types, each
// type registers an Evaluator at startup exposing a fixed capability set; the
// progress tracker and trigger engine depend only on the registry, never on
// concrete types.
package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/progress"
)

// Evaluator interprets one achievement type's criteria against an incoming
// event to produce a progress mutation, and decides when progress is
// satisfied.
type Evaluator interface {
	// CandidateEventTypes lists the dotted event_type strings this evaluator
	// reacts to. The registry uses this to build the candidate-resolution
	// mapping table at startup.
	CandidateEventTypes() []string

	// ApplyEvent computes the Delta an event should apply to a progress row.
	// ok is false if the event does not actually affect this achievement
	// instance's criteria (e.g. a counter_field mismatch), in which case the
	// caller skips the apply entirely.
	ApplyEvent(criteria catalog.Criteria, current *progress.AchievementProgress, event *events.EventRecord) (delta progress.Delta, ok bool, err error)

	// IsSatisfied reports whether progress has met its criteria. Most types
	// defer entirely to AchievementProgress.IsSatisfied; TIME_BASED and
	// CONDITIONAL may additionally inspect ProgressData.
	IsSatisfied(criteria catalog.Criteria, current *progress.AchievementProgress) bool
}

// Registry maps achievement type to its Evaluator and exposes the combined
// candidate_event_types → achievement type routing table.
type Registry struct {
	evaluators map[catalog.AchievementType]Evaluator
}

// NewRegistry builds an empty registry. Evaluators register themselves via
// Register, typically from an init-time wiring function in cmd/engine.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[catalog.AchievementType]Evaluator)}
}

// Register associates an achievement type with its evaluator. Registering
// the same type twice replaces the previous evaluator; this is primarily
// useful for tests that need to stub one type.
func (r *Registry) Register(achType catalog.AchievementType, eval Evaluator) {
	r.evaluators[achType] = eval
}

// For returns the evaluator registered for achType, or an error if none is
// registered. An unregistered type is an operator configuration error, not a
// normal runtime condition.
func (r *Registry) For(achType catalog.AchievementType) (Evaluator, error) {
	eval, ok := r.evaluators[achType]
	if !ok {
		return nil, fmt.Errorf("evaluator: no evaluator registered for achievement type %q", achType)
	}
	return eval, nil
}

// EventTypesFor returns the union of CandidateEventTypes across every
// registered evaluator whose type matches achType.
func (r *Registry) EventTypesFor(achType catalog.AchievementType) []string {
	eval, ok := r.evaluators[achType]
	if !ok {
		return nil
	}
	return eval.CandidateEventTypes()
}

// decodeEventData is a small helper shared by evaluators that read typed
// fields out of an event's opaque JSON payload.
func decodeEventData(data []byte, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
