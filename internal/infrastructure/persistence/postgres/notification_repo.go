package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// NotificationRepository implements notification.NotificationRepository for
// PostgreSQL.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	dataJSON, err := json.Marshal(n.Data)
	if err != nil {
		return shared.WrapError("notification", "Save", shared.ErrValidation, "marshaling notification data", err)
	}
	metadataJSON, err := json.Marshal(n.Metadata)
	if err != nil {
		return shared.WrapError("notification", "Save", shared.ErrValidation, "marshaling notification metadata", err)
	}

	query := `
		INSERT INTO notifications
			(id, type, recipient_id, guild_id, priority, status, title, message, data,
			 scheduled_at, sent_at, delivered_at, expires_at, retry_count, max_retries,
			 last_error, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			delivered_at = EXCLUDED.delivered_at,
			retry_count = EXCLUDED.retry_count,
			last_error = EXCLUDED.last_error,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.conn.Exec(ctx, query,
		string(n.ID), string(n.Type), string(n.RecipientID), n.GuildID, int(n.Priority), string(n.Status),
		n.Title, n.Message, dataJSON, n.ScheduledAt, n.SentAt, n.DeliveredAt, n.ExpiresAt,
		n.RetryCount, n.MaxRetries, n.LastError, metadataJSON, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return shared.WrapError("notification", "Save", shared.ErrStorage, "saving notification", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id notification.NotificationID) (*notification.Notification, error) {
	query := notificationSelectColumns + ` FROM notifications WHERE id = $1`
	return r.scanNotification(r.conn.QueryRow(ctx, query, string(id)))
}

func (r *NotificationRepository) GetPending(ctx context.Context, limit int) ([]*notification.Notification, error) {
	query := notificationSelectColumns + `
		FROM notifications
		WHERE status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= NOW())
		ORDER BY priority DESC, created_at ASC
		LIMIT $1
	`
	return r.queryNotifications(ctx, query, limit)
}

func (r *NotificationRepository) GetByRecipient(ctx context.Context, recipientID notification.RecipientID, limit int) ([]*notification.Notification, error) {
	query := notificationSelectColumns + `
		FROM notifications WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryNotifications(ctx, query, string(recipientID), limit)
}

func (r *NotificationRepository) GetByStatus(ctx context.Context, status notification.NotificationStatus, limit int) ([]*notification.Notification, error) {
	query := notificationSelectColumns + `
		FROM notifications WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.queryNotifications(ctx, query, string(status), limit)
}

func (r *NotificationRepository) GetFailedForRetry(ctx context.Context, maxRetries int, limit int) ([]*notification.Notification, error) {
	query := notificationSelectColumns + `
		FROM notifications WHERE status = 'failed' AND retry_count < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.queryNotifications(ctx, query, maxRetries, limit)
}

func (r *NotificationRepository) GetExpired(ctx context.Context, limit int) ([]*notification.Notification, error) {
	query := notificationSelectColumns + `
		FROM notifications WHERE expires_at IS NOT NULL AND expires_at < NOW() AND status NOT IN ('delivered', 'expired', 'cancelled')
		ORDER BY expires_at ASC
		LIMIT $1
	`
	return r.queryNotifications(ctx, query, limit)
}

func (r *NotificationRepository) UpdateStatus(ctx context.Context, id notification.NotificationID, status notification.NotificationStatus) error {
	tag, err := r.conn.Exec(ctx, `UPDATE notifications SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), string(id))
	if err != nil {
		return shared.WrapError("notification", "UpdateStatus", shared.ErrStorage, "updating notification status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewDomainError("notification", "UpdateStatus", shared.ErrNotFound, "notification not found")
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id notification.NotificationID) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, string(id))
	if err != nil {
		return shared.WrapError("notification", "Delete", shared.ErrStorage, "deleting notification", err)
	}
	return nil
}

func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, before)
	if err != nil {
		return 0, shared.WrapError("notification", "DeleteOlderThan", shared.ErrStorage, "deleting old notifications", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) CountByRecipient(ctx context.Context, recipientID notification.RecipientID, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE recipient_id = $1 AND created_at >= $2`, string(recipientID), since).Scan(&count)
	if err != nil {
		return 0, shared.WrapError("notification", "CountByRecipient", shared.ErrStorage, "counting notifications", err)
	}
	return count, nil
}

func (r *NotificationRepository) CountByType(ctx context.Context, notificationType notification.NotificationType, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE type = $1 AND created_at >= $2`, string(notificationType), since).Scan(&count)
	if err != nil {
		return 0, shared.WrapError("notification", "CountByType", shared.ErrStorage, "counting notifications", err)
	}
	return count, nil
}

const notificationSelectColumns = `
	SELECT id, type, recipient_id, guild_id, priority, status, title, message, data,
	       scheduled_at, sent_at, delivered_at, expires_at, retry_count, max_retries,
	       last_error, metadata, created_at, updated_at
`

func (r *NotificationRepository) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]*notification.Notification, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("notification", "queryNotifications", shared.ErrStorage, "listing notifications", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := r.scanNotificationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) scanNotification(row pgx.Row) (*notification.Notification, error) {
	n, err := scanNotificationInto(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("notification", "scanNotification", shared.ErrNotFound, "notification not found")
		}
		return nil, shared.WrapError("notification", "scanNotification", shared.ErrStorage, "scanning notification row", err)
	}
	return n, nil
}

func (r *NotificationRepository) scanNotificationRow(rows pgx.Rows) (*notification.Notification, error) {
	n, err := scanNotificationInto(rows)
	if err != nil {
		return nil, shared.WrapError("notification", "scanNotificationRow", shared.ErrStorage, "scanning notification row", err)
	}
	return n, nil
}

// scanRow abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type scanRow interface {
	Scan(dest ...interface{}) error
}

func scanNotificationInto(row scanRow) (*notification.Notification, error) {
	var n notification.Notification
	var id, recipientID, notificationType, status string
	var priority int
	var dataJSON, metadataJSON []byte

	if err := row.Scan(
		&id, &notificationType, &recipientID, &n.GuildID, &priority, &status, &n.Title, &n.Message, &dataJSON,
		&n.ScheduledAt, &n.SentAt, &n.DeliveredAt, &n.ExpiresAt, &n.RetryCount, &n.MaxRetries,
		&n.LastError, &metadataJSON, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	n.ID = notification.NotificationID(id)
	n.Type = notification.NotificationType(notificationType)
	n.RecipientID = notification.RecipientID(recipientID)
	n.Priority = notification.Priority(priority)
	n.Status = notification.NotificationStatus(status)

	if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
			return nil, err
		}
	}
	return &n, nil
}
