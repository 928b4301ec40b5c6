package events

import (
	"context"
	"time"

	"github.com/achievement-engine/engine/internal/domain/shared"
)

// Repository persists the append-only event log and serves it back to the
// trigger engine and replay tooling.
type Repository interface {
	// RecordEvent appends a single event record and returns it with its
	// assigned ID.
	RecordEvent(ctx context.Context, record *EventRecord) (*EventRecord, error)

	// RecordEventsBatch appends several records in one round trip, returning
	// them in the same order with assigned IDs. Used by the ingestion
	// batcher to amortize write cost under load.
	RecordEventsBatch(ctx context.Context, records []*EventRecord) ([]*EventRecord, error)

	// FetchUnprocessed returns up to limit unprocessed records ordered by
	// timestamp ascending, for the trigger engine to consume.
	FetchUnprocessed(ctx context.Context, limit int) ([]*EventRecord, error)

	// MarkProcessed flips processed false→true for one record. Implementations
	// must guard this with a WHERE processed = false clause so the transition
	// happens at most once even under concurrent callers.
	MarkProcessed(ctx context.Context, id int64) error

	// MarkProcessedBatch flips processed for many records in one round trip.
	MarkProcessedBatch(ctx context.Context, ids []int64) error

	// GetByUserGuild returns a user's event history within a guild, newest
	// first, for audit and replay-by-user tooling.
	GetByUserGuild(ctx context.Context, userID shared.UserID, guildID shared.GuildID, page shared.Pagination) ([]*EventRecord, error)

	// CleanupOldEvents deletes records older than before. When keepProcessed
	// is true (the default), every record older than the cutoff is deleted
	// regardless of its processed flag. When false, only unprocessed records
	// older than the cutoff are deleted; processed records are left alone
	// because ArchiveOldEvents is expected to have moved them already.
	CleanupOldEvents(ctx context.Context, before time.Time, keepProcessed bool) (affected int64, err error)

	// ArchiveOldEvents moves processed records older than before into cold
	// storage, returning the number archived.
	ArchiveOldEvents(ctx context.Context, before time.Time) (archived int64, err error)
}
