// Package engine implements the trigger engine of §4.F: the orchestrator
// that takes ingested events (live or replayed), resolves candidate
// achievements, applies progress deltas, and invokes the award service on
// every crossed_threshold edge.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/achievement-engine/engine/internal/application/award"
	progressapp "github.com/achievement-engine/engine/internal/application/progress"
	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/events"
	progressdomain "github.com/achievement-engine/engine/internal/domain/progress"
	"github.com/achievement-engine/engine/internal/domain/shared"
	"github.com/achievement-engine/engine/internal/evaluator"
)

// ErrBusy is returned by Dispatch when the input queue is full and the
// configured backpressure policy is shed rather than block.
var ErrBusy = errors.New("engine: busy, input queue full")

// BackpressurePolicy controls what Dispatch does when the input queue is full.
type BackpressurePolicy int

const (
	// PolicyBlock blocks the caller until queue space frees up or ctx is done.
	PolicyBlock BackpressurePolicy = iota
	// PolicyShed returns ErrBusy immediately instead of blocking.
	PolicyShed
)

// Config configures a TriggerEngine.
type Config struct {
	QueueSize   int
	WorkerCount int
	Policy      BackpressurePolicy
	Logger      *slog.Logger
}

// DefaultConfig returns sensible defaults: a moderate queue, parallelism
// bounded to a small worker pool, and block-on-full backpressure.
func DefaultConfig() Config {
	return Config{
		QueueSize:   1024,
		WorkerCount: 16,
		Policy:      PolicyBlock,
	}
}

// TriggerEngine is the orchestrator described in §4.F. Per (user_id,
// achievement_id) evaluation is serialized by the progress tracker's
// repository; across users, the worker pool processes events concurrently.
type TriggerEngine struct {
	events       events.Repository
	achievements catalogdomain.AchievementRepository
	registry     *evaluator.Registry
	tracker      *progressapp.Tracker
	awards       *award.Service

	cfg    Config
	logger *slog.Logger

	queue   chan *events.EventRecord
	index   *candidateIndex
	indexMu sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// candidateIndex maps a dotted event_type to the achievement types whose
// evaluators claim it, built once at startup from the registry.
type candidateIndex struct {
	byEventType map[string][]catalogdomain.AchievementType
}

// NewTriggerEngine wires a TriggerEngine and starts its worker pool. Callers
// must call Shutdown to drain in-flight work before process exit.
func NewTriggerEngine(
	eventRepo events.Repository,
	achievements catalogdomain.AchievementRepository,
	registry *evaluator.Registry,
	tracker *progressapp.Tracker,
	awards *award.Service,
	cfg Config,
) *TriggerEngine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &TriggerEngine{
		events:       eventRepo,
		achievements: achievements,
		registry:     registry,
		tracker:      tracker,
		awards:       awards,
		cfg:          cfg,
		logger:       cfg.Logger,
		queue:        make(chan *events.EventRecord, cfg.QueueSize),
		cancel:       cancel,
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	return e
}

// BuildCandidateIndex registers every (event_type → achievement type) route
// known to the registry for the given set of achievement types. Called once
// at startup after evaluators are registered.
func (e *TriggerEngine) BuildCandidateIndex(achTypes []catalogdomain.AchievementType) {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	byEventType := make(map[string][]catalogdomain.AchievementType)
	for _, achType := range achTypes {
		for _, eventType := range e.registry.EventTypesFor(achType) {
			byEventType[eventType] = append(byEventType[eventType], achType)
		}
	}
	e.index = &candidateIndex{byEventType: byEventType}
}

// Dispatch enqueues an already-persisted event for evaluation. The caller is
// responsible for having called events.Repository.RecordEvent first; the
// log write happens before dispatch, per ingestion discipline.
func (e *TriggerEngine) Dispatch(ctx context.Context, record *events.EventRecord) error {
	switch e.cfg.Policy {
	case PolicyShed:
		select {
		case e.queue <- record:
			return nil
		default:
			return ErrBusy
		}
	default:
		select {
		case e.queue <- record:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReplayBatch fetches up to limit unprocessed events and dispatches them
// concurrently via errgroup, waiting for every one to reach a terminal
// state (processed or logged-failure) before returning. Used on startup to
// recover events that were persisted but never reached a terminal state
// before a prior shutdown.
func (e *TriggerEngine) ReplayBatch(ctx context.Context, limit int) (int, error) {
	batch, err := e.events.FetchUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("fetching unprocessed events for replay: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.WorkerCount)
	for _, record := range batch {
		record := record
		group.Go(func() error {
			e.process(groupCtx, record)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// Shutdown stops accepting new work, drains the queue, and waits for workers
// to finish in-flight events before returning.
func (e *TriggerEngine) Shutdown() {
	close(e.queue)
	e.wg.Wait()
	e.cancel()
}

func (e *TriggerEngine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case record, ok := <-e.queue:
			if !ok {
				return
			}
			e.process(ctx, record)
		case <-ctx.Done():
			return
		}
	}
}

// process evaluates every candidate achievement for one event and marks it
// processed once every candidate has reached a terminal state, whether that
// terminal state is a successful apply, a no-op, or a recorded evaluator
// failure. A poison-pill event (an evaluator that always errors) is still
// marked processed so it cannot loop forever. A storage error while fetching
// or applying progress is the one outcome that leaves the event unprocessed, so
// replay can retry it once the storage problem clears.
func (e *TriggerEngine) process(ctx context.Context, record *events.EventRecord) {
	candidates := e.resolveCandidates(record)

	var wg sync.WaitGroup
	var mu sync.Mutex
	storageFailed := false
	for _, achType := range candidates {
		achType := achType
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.evaluateType(ctx, record, achType) {
				mu.Lock()
				storageFailed = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if storageFailed {
		e.logger.Warn("event left unprocessed after storage error, will retry on replay", "event_id", record.ID)
		return
	}

	if err := e.events.MarkProcessed(ctx, record.ID); err != nil {
		e.logger.Error("failed to mark event processed; will be retried on next replay", "event_id", record.ID, "error", err)
	}
}

func (e *TriggerEngine) resolveCandidates(record *events.EventRecord) []catalogdomain.AchievementType {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()
	if e.index == nil {
		return nil
	}
	return e.index.byEventType[record.EventType]
}

// evaluateType evaluates every active achievement of achType against record,
// returning true if any candidate hit a storage error (as opposed to an
// evaluator error, which is absorbed as a skipped candidate).
func (e *TriggerEngine) evaluateType(ctx context.Context, record *events.EventRecord, achType catalogdomain.AchievementType) bool {
	eval, err := e.registry.For(achType)
	if err != nil {
		e.logger.Error("no evaluator for candidate achievement type", "type", achType, "error", err)
		return false
	}

	active := true
	achievements, err := e.achievements.List(ctx, catalogdomain.AchievementFilter{Type: &achType, ActiveOnly: active})
	if err != nil {
		e.logger.Error("failed listing candidate achievements", "type", achType, "error", err)
		return false
	}

	storageFailed := false
	for _, achievement := range achievements {
		if e.evaluateOne(ctx, record, eval, achievement, record.UserID) {
			storageFailed = true
		}
	}
	return storageFailed
}

// evaluateOne evaluates one achievement against record, returning true only
// when a storage call (progress fetch or apply) failed — the one case where
// the caller must leave the event unprocessed for retry. A panic, an
// evaluator error, or an award-attempt failure is logged and absorbed so the
// event still reaches MarkProcessed.
func (e *TriggerEngine) evaluateOne(ctx context.Context, record *events.EventRecord, eval evaluator.Evaluator, achievement *catalogdomain.Achievement, userID shared.UserID) (storageFailed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluator panicked on candidate, skipping", "achievement_id", achievement.ID, "event_id", record.ID, "panic", r)
		}
	}()

	current, err := e.tracker.Get(ctx, userID, achievement.ID)
	if err != nil && !shared.IsNotFound(err) {
		e.logger.Error("storage error fetching progress for evaluation; event remains unprocessed for retry", "achievement_id", achievement.ID, "error", err)
		return true
	}
	if current == nil {
		current = &progressdomain.AchievementProgress{UserID: userID, AchievementID: achievement.ID}
	}

	delta, ok, err := eval.ApplyEvent(achievement.Criteria, current, record)
	if err != nil {
		e.logger.Error("evaluator error applying event, marking candidate skipped", "achievement_id", achievement.ID, "event_id", record.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	report, err := e.tracker.Apply(ctx, userID, achievement.ID, delta)
	if err != nil {
		e.logger.Error("storage error applying progress delta; event remains unprocessed for retry", "achievement_id", achievement.ID, "error", err)
		return true
	}

	if !report.CrossedThreshold() {
		return false
	}

	if _, _, err := e.awards.MaybeAward(ctx, userID, achievement.ID, record.GuildID); err != nil {
		e.logger.Error("award attempt failed after threshold crossing", "user_id", userID, "achievement_id", achievement.ID, "error", err)
	}
	return false
}
