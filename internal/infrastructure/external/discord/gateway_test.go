package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

type fakeEventRepo struct {
	recorded []*events.EventRecord
	err      error
}

func (r *fakeEventRepo) RecordEvent(ctx context.Context, record *events.EventRecord) (*events.EventRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	record.ID = int64(len(r.recorded) + 1)
	r.recorded = append(r.recorded, record)
	return record, nil
}
func (r *fakeEventRepo) RecordEventsBatch(ctx context.Context, records []*events.EventRecord) ([]*events.EventRecord, error) {
	return records, nil
}
func (r *fakeEventRepo) FetchUnprocessed(ctx context.Context, limit int) ([]*events.EventRecord, error) {
	return nil, nil
}
func (r *fakeEventRepo) MarkProcessed(ctx context.Context, id int64) error { return nil }
func (r *fakeEventRepo) MarkProcessedBatch(ctx context.Context, ids []int64) error {
	return nil
}
func (r *fakeEventRepo) GetByUserGuild(ctx context.Context, userID shared.UserID, guildID shared.GuildID, page shared.Pagination) ([]*events.EventRecord, error) {
	return nil, nil
}
func (r *fakeEventRepo) CleanupOldEvents(ctx context.Context, before time.Time, keepProcessed bool) (int64, error) {
	return 0, nil
}
func (r *fakeEventRepo) ArchiveOldEvents(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeSink struct {
	dispatched []*events.EventRecord
	err        error
}

func (s *fakeSink) Dispatch(ctx context.Context, record *events.EventRecord) error {
	if s.err != nil {
		return s.err
	}
	s.dispatched = append(s.dispatched, record)
	return nil
}

func TestGateway_Ingest_RecordsAndDispatches(t *testing.T) {
	repo := &fakeEventRepo{}
	sink := &fakeSink{}
	gw := NewGateway(nil, repo, sink, nil)

	require.NoError(t, gw.IngestCommand(context.Background(), "u1", "g1", "c1", "ping"))

	require.Len(t, repo.recorded, 1)
	assert.Equal(t, EventCommandInvoked, repo.recorded[0].EventType)
	require.Len(t, sink.dispatched, 1)
	assert.Equal(t, repo.recorded[0], sink.dispatched[0])
}

func TestGateway_Ingest_PropagatesRepoError(t *testing.T) {
	repo := &fakeEventRepo{err: errors.New("db down")}
	sink := &fakeSink{}
	gw := NewGateway(nil, repo, sink, nil)

	err := gw.IngestCommand(context.Background(), "u1", "g1", "c1", "ping")
	assert.Error(t, err)
	assert.Empty(t, sink.dispatched, "must not dispatch an event that failed to persist")
}

func TestGateway_Ingest_PropagatesSinkError(t *testing.T) {
	repo := &fakeEventRepo{}
	sink := &fakeSink{err: errors.New("queue full")}
	gw := NewGateway(nil, repo, sink, nil)

	err := gw.IngestCommand(context.Background(), "u1", "g1", "c1", "ping")
	assert.Error(t, err)
	assert.Len(t, repo.recorded, 1, "the event is still persisted even if dispatch fails")
}

func TestGateway_Register_AttachesHandlersWithoutPanicking(t *testing.T) {
	client, err := NewClient(DefaultClientConfig("fake-token"), notification.ChannelTypeDirectMessage)
	require.NoError(t, err)

	gw := NewGateway(client, &fakeEventRepo{}, &fakeSink{}, nil)
	assert.NotPanics(t, gw.Register)
}
