package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// EventRepository implements events.Repository for PostgreSQL.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

func (r *EventRepository) RecordEvent(ctx context.Context, record *events.EventRecord) (*events.EventRecord, error) {
	query := `
		INSERT INTO event_records (user_id, guild_id, event_type, event_data, event_ts, channel_id, processed, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.conn.QueryRow(ctx, query,
		string(record.UserID), string(record.GuildID), record.EventType, []byte(record.EventData),
		record.Timestamp, record.ChannelID, record.Processed, record.CorrelationID,
	).Scan(&record.ID)
	if err != nil {
		return nil, shared.WrapError("events", "RecordEvent", shared.ErrStorage, "inserting event record", err)
	}
	return record, nil
}

func (r *EventRepository) RecordEventsBatch(ctx context.Context, records []*events.EventRecord) ([]*events.EventRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, record := range records {
			batch.Queue(`
				INSERT INTO event_records (user_id, guild_id, event_type, event_data, event_ts, channel_id, processed, correlation_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id
			`,
				string(record.UserID), string(record.GuildID), record.EventType, []byte(record.EventData),
				record.Timestamp, record.ChannelID, record.Processed, record.CorrelationID,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, record := range records {
			if err := br.QueryRow().Scan(&record.ID); err != nil {
				return fmt.Errorf("inserting batched event record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, shared.WrapError("events", "RecordEventsBatch", shared.ErrStorage, "batch inserting event records", err)
	}
	return records, nil
}

func (r *EventRepository) FetchUnprocessed(ctx context.Context, limit int) ([]*events.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, user_id, guild_id, event_type, event_data, event_ts, channel_id, processed, correlation_id
		FROM event_records WHERE NOT processed
		ORDER BY event_ts ASC
		LIMIT $1
	`
	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, shared.WrapError("events", "FetchUnprocessed", shared.ErrStorage, "fetching unprocessed events", err)
	}
	defer rows.Close()

	var out []*events.EventRecord
	for rows.Next() {
		rec, err := r.scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *EventRepository) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx, `UPDATE event_records SET processed = TRUE WHERE id = $1 AND NOT processed`, id)
	if err != nil {
		return shared.WrapError("events", "MarkProcessed", shared.ErrStorage, "marking event processed", err)
	}
	return nil
}

func (r *EventRepository) MarkProcessedBatch(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn.Exec(ctx, `UPDATE event_records SET processed = TRUE WHERE id = ANY($1) AND NOT processed`, ids)
	if err != nil {
		return shared.WrapError("events", "MarkProcessedBatch", shared.ErrStorage, "marking events processed", err)
	}
	return nil
}

func (r *EventRepository) GetByUserGuild(ctx context.Context, userID shared.UserID, guildID shared.GuildID, page shared.Pagination) ([]*events.EventRecord, error) {
	query := `
		SELECT id, user_id, guild_id, event_type, event_data, event_ts, channel_id, processed, correlation_id
		FROM event_records WHERE user_id = $1 AND guild_id = $2
		ORDER BY event_ts DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.conn.Query(ctx, query, string(userID), string(guildID), page.Limit(), page.Offset())
	if err != nil {
		return nil, shared.WrapError("events", "GetByUserGuild", shared.ErrStorage, "listing user events", err)
	}
	defer rows.Close()

	var out []*events.EventRecord
	for rows.Next() {
		rec, err := r.scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *EventRepository) CleanupOldEvents(ctx context.Context, before time.Time, keepProcessed bool) (int64, error) {
	query := `DELETE FROM event_records WHERE event_ts < $1`
	if keepProcessed {
		// keepProcessed here means "don't require processed=true to delete",
		// i.e. delete regardless of the flag -- matches the Repository doc.
	} else {
		query += ` AND NOT processed`
	}
	tag, err := r.conn.Exec(ctx, query, before)
	if err != nil {
		return 0, shared.WrapError("events", "CleanupOldEvents", shared.ErrStorage, "deleting old events", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EventRepository) ArchiveOldEvents(ctx context.Context, before time.Time) (int64, error) {
	var archived int64
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		insertQuery := `
			INSERT INTO archived_event_records
			(id, user_id, guild_id, event_type, event_data, event_ts, channel_id, processed, correlation_id, archived_at)
			SELECT id, user_id, guild_id, event_type, event_data, event_ts, channel_id, processed, correlation_id, NOW()
			FROM event_records WHERE processed AND event_ts < $1
		`
		tag, err := tx.Exec(ctx, insertQuery, before)
		if err != nil {
			return fmt.Errorf("copying events to archive: %w", err)
		}
		archived = tag.RowsAffected()

		if _, err := tx.Exec(ctx, `DELETE FROM event_records WHERE processed AND event_ts < $1`, before); err != nil {
			return fmt.Errorf("deleting archived events: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, shared.WrapError("events", "ArchiveOldEvents", shared.ErrStorage, "archiving old events", err)
	}
	return archived, nil
}

func (r *EventRepository) scanEventRow(rows pgx.Rows) (*events.EventRecord, error) {
	var rec events.EventRecord
	var userID, guildID string
	var eventData []byte
	if err := rows.Scan(&rec.ID, &userID, &guildID, &rec.EventType, &eventData, &rec.Timestamp, &rec.ChannelID, &rec.Processed, &rec.CorrelationID); err != nil {
		return nil, shared.WrapError("events", "scanEventRow", shared.ErrStorage, "scanning event row", err)
	}
	rec.UserID = shared.UserID(userID)
	rec.GuildID = shared.GuildID(guildID)
	rec.EventData = eventData
	return &rec, nil
}
