package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

type fakeEventRepo struct {
	archiveCutoff time.Time
	archived      int64
	archiveErr    error

	cleanupCutoff        time.Time
	cleanupKeepProcessed bool
	cleanupAffected      int64
	cleanupErr           error
}

func (r *fakeEventRepo) RecordEvent(ctx context.Context, record *events.EventRecord) (*events.EventRecord, error) {
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
	r.cleanupCutoff = before
	r.cleanupKeepProcessed = keepProcessed
	return r.cleanupAffected, r.cleanupErr
}
func (r *fakeEventRepo) ArchiveOldEvents(ctx context.Context, before time.Time) (int64, error) {
	r.archiveCutoff = before
	return r.archived, r.archiveErr
}

func TestArchiveEventsJob_Run_UsesRetentionCutoff(t *testing.T) {
	repo := &fakeEventRepo{archived: 7}
	job := NewArchiveEventsJob(repo, nil, ArchiveEventsConfig{RetentionPeriod: time.Hour})

	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, time.Now().UTC().Add(-time.Hour), repo.archiveCutoff, time.Second)
	assert.Equal(t, "archive_events", job.Name())
}

func TestArchiveEventsJob_Run_PropagatesError(t *testing.T) {
	repo := &fakeEventRepo{archiveErr: errors.New("db down")}
	job := NewArchiveEventsJob(repo, nil, ArchiveEventsConfig{RetentionPeriod: time.Hour})

	err := job.Run(context.Background())
	assert.Error(t, err)
}

func TestNewArchiveEventsJob_DefaultsInvalidRetention(t *testing.T) {
	job := NewArchiveEventsJob(&fakeEventRepo{}, nil, ArchiveEventsConfig{})
	assert.Equal(t, DefaultArchiveEventsConfig().RetentionPeriod, job.config.RetentionPeriod)
}

func TestCleanupEventsJob_Run_UsesConfiguredCutoffAndFlag(t *testing.T) {
	repo := &fakeEventRepo{cleanupAffected: 3}
	job := NewCleanupEventsJob(repo, nil, CleanupEventsConfig{ArchiveAfter: 2 * time.Hour, KeepProcessed: false})

	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, time.Now().UTC().Add(-2*time.Hour), repo.cleanupCutoff, time.Second)
	assert.False(t, repo.cleanupKeepProcessed)
}

func TestCleanupEventsJob_Run_PropagatesError(t *testing.T) {
	repo := &fakeEventRepo{cleanupErr: errors.New("db down")}
	job := NewCleanupEventsJob(repo, nil, CleanupEventsConfig{ArchiveAfter: time.Hour})

	assert.Error(t, job.Run(context.Background()))
}

type fakeRetrier struct {
	maxRetries, batchSize int
	retried               int
	err                   error
}

func (r *fakeRetrier) RetryFailed(ctx context.Context, maxRetries, batchSize int) (int, error) {
	r.maxRetries = maxRetries
	r.batchSize = batchSize
	return r.retried, r.err
}

func TestRetryNotificationsJob_Run_PassesConfigThrough(t *testing.T) {
	retrier := &fakeRetrier{retried: 5}
	job := NewRetryNotificationsJob(retrier, nil, RetryNotificationsConfig{MaxRetries: 2, BatchSize: 50})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, retrier.maxRetries)
	assert.Equal(t, 50, retrier.batchSize)
}

func TestRetryNotificationsJob_Run_PropagatesError(t *testing.T) {
	retrier := &fakeRetrier{err: errors.New("router down")}
	job := NewRetryNotificationsJob(retrier, nil, RetryNotificationsConfig{MaxRetries: 2, BatchSize: 50})

	assert.Error(t, job.Run(context.Background()))
}

func TestNewRetryNotificationsJob_DefaultsInvalidBatchSize(t *testing.T) {
	job := NewRetryNotificationsJob(&fakeRetrier{}, nil, RetryNotificationsConfig{})
	assert.Equal(t, DefaultRetryNotificationsConfig(), job.config)
}
