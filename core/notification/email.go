package notification

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

type (
	// UserFinder resolves the recipient of a payload.
	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// EmailSink mails each payload to its recipient through a core.EmailService.
	EmailSink struct {
		mailSvc core.EmailService
		users   UserFinder
	}

	emailData struct {
		Name    string
		Title   string
		Message string
	}
)

var _ Sink = (*EmailSink)(nil) // interface compliance check

func NewEmailSink(mailSvc core.EmailService, users UserFinder) *EmailSink {
	return &EmailSink{mailSvc: mailSvc, users: users}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, p Payload) error {
	usr, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return errors.Wrap(err, "finding recipient")
	}
	s.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      p.Title,
		TemplateName: "notification",
		TemplateData: emailData{Name: usr.FirstName, Title: p.Title, Message: p.Message},
	})
	return nil
}
