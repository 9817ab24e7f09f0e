package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n.ID = newID()
	repo.db.notifications = append(repo.db.notifications, n)
	return n, nil
}

func (repo *notificationRepository) QueryUserNotifications(_ context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ns := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.UserID == userID && !(unreadOnly && n.IsRead) {
			ns = append(ns, n)
		}
	}
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].CreatedAt.After(ns[j].CreatedAt) })
	return ns, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, id, userID string, at time.Time) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for i := range repo.db.notifications {
		if n := &repo.db.notifications[i]; n.ID == id && n.UserID == userID {
			if !n.IsRead {
				n.IsRead = true
				n.ReadAt = null.TimeFrom(at)
			}
			return *n, nil
		}
	}
	return notification.Notification{}, notification.ErrNotFound
}
