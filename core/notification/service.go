package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		QueryUserNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
		// MarkRead fails with ErrNotFound unless notification id belongs to userID.
		MarkRead(ctx context.Context, id, userID string, at time.Time) (Notification, error)
	}

	Service struct {
		repo Repository
	}

	// DurableSink writes a Notification row per payload.
	DurableSink struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	return svc.repo.QueryUserNotifications(ctx, userID, unreadOnly)
}

func (svc *Service) MarkRead(ctx context.Context, id, userID string) (Notification, error) {
	return svc.repo.MarkRead(ctx, id, userID, core.NowFunc())
}

var _ Sink = (*DurableSink)(nil) // interface compliance check

func NewDurableSink(repo Repository) *DurableSink {
	return &DurableSink{repo: repo}
}

func (s *DurableSink) Name() string { return "durable" }

func (s *DurableSink) Deliver(ctx context.Context, p Payload) error {
	_, err := s.repo.CreateNotification(ctx, Notification{
		UserID:    p.UserID,
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		CreatedAt: p.Timestamp,
	})
	return errors.Wrap(err, "creating notification")
}
