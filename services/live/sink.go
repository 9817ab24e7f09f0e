package livesvc

import (
	"context"
	"fmt"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/notification"
)

// Publisher pushes a payload to the live clients of its user.
type Publisher interface {
	Publish(ctx context.Context, p notification.Payload) error
}

var (
	_ Publisher = (*Hub)(nil)         // interface compliance check
	_ Publisher = (*RedisBridge)(nil) // interface compliance check
)

// Sink hands payloads to its publisher in the background; Deliver never waits for it.
type Sink struct {
	pub    Publisher
	logger core.Logger
}

var _ notification.Sink = (*Sink)(nil) // interface compliance check

func NewSink(pub Publisher, logger core.Logger) *Sink {
	return &Sink{pub: pub, logger: logger}
}

func (s *Sink) Name() string { return "live" }

func (s *Sink) Deliver(_ context.Context, p notification.Payload) error {
	go func() {
		if err := s.pub.Publish(context.Background(), p); err != nil {
			s.logger.Warn(fmt.Sprintf("live notification not published: %v", err), err, map[string]interface{}{
				"userId": p.UserID,
				"type":   p.Type,
			})
		}
	}()
	return nil
}
