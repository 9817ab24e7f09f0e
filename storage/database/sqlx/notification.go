package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core/notification"
)

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
	ReadAt    null.Time `db:"read_at"`
}

func (r notificationRow) toNotification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      notification.Type(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
		ReadAt:    r.ReadAt,
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, is_read, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.IsRead, n.CreatedAt, n.ReadAt,
	)
	return n, errors.Wrap(err, "inserting notification")
}

func (repo *notificationRepository) QueryUserNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	var rows []notificationRow
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT * FROM notifications WHERE user_id = $1 AND (NOT is_read OR NOT $2) ORDER BY created_at DESC", userID, unreadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.toNotification())
	}
	return ns, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (notification.Notification, error) {
	var row notificationRow
	err := repo.db.GetContext(ctx, &row, `
		UPDATE notifications SET is_read = true, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING *`, id, userID, at)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "marking notification read")
	}
	return row.toNotification(), nil
}
