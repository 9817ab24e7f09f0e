package notification_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
	emailsvc "github.com/trezcool/chuo/services/email"
	inmemdb "github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

type fakeSink struct {
	name  string
	err   error
	calls *[]string
}

func (s fakeSink) Name() string { return s.name }

func (s fakeSink) Deliver(_ context.Context, p notification.Payload) error {
	*s.calls = append(*s.calls, s.name+":"+p.Title)
	return s.err
}

func TestDispatcher_Notify(t *testing.T) {
	logger := testutil.NewLogger(testutil.NewConfig())
	var calls []string
	errBroken := errors.New("broken")

	d := notification.NewDispatcher(logger,
		fakeSink{name: "first", calls: &calls},
		fakeSink{name: "broken", err: errBroken, calls: &calls},
	)
	d.AddSink(fakeSink{name: "last", calls: &calls})
	assert.Equal(t, []string{"first", "broken", "last"}, d.SinkNames())

	results := d.Notify(context.Background(), notification.Payload{UserID: "u1", Type: notification.TypeGeneral, Title: "Hi"})

	assert.Equal(t, []string{"first:Hi", "broken:Hi", "last:Hi"}, calls)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, errBroken, errors.Cause(results[1].Err))
	assert.Equal(t, "broken", results[1].Sink)
	assert.NoError(t, results[2].Err)
}

func TestDispatcher_defaultsTimestamp(t *testing.T) {
	now := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	testutil.MockNow(t, now)

	repo := inmemdb.NewNotificationRepository(inmemdb.Open())
	d := notification.NewDispatcher(testutil.NewLogger(testutil.NewConfig()), notification.NewDurableSink(repo))
	d.Notify(context.Background(), notification.Payload{UserID: "u1", Type: notification.TypeGeneral, Title: "Hi", Message: "Hello"})

	ns, err := repo.QueryUserNotifications(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, now, ns[0].CreatedAt)
	assert.Equal(t, "Hello", ns[0].Message)
	assert.False(t, ns[0].IsRead)
}

func TestService(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewNotificationRepository(inmemdb.Open())
	svc := notification.NewService(repo)
	sink := notification.NewDurableSink(repo)

	now := time.Now().UTC()
	require.NoError(t, sink.Deliver(ctx, notification.Payload{UserID: "u1", Title: "old", Timestamp: now.Add(-time.Hour)}))
	require.NoError(t, sink.Deliver(ctx, notification.Payload{UserID: "u1", Title: "new", Timestamp: now}))
	require.NoError(t, sink.Deliver(ctx, notification.Payload{UserID: "u2", Title: "other", Timestamp: now}))

	ns, err := svc.List(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "new", ns[0].Title)
	assert.Equal(t, "old", ns[1].Title)

	_, err = svc.MarkRead(ctx, ns[0].ID, "u2")
	assert.Equal(t, notification.ErrNotFound, err)

	read, err := svc.MarkRead(ctx, ns[0].ID, "u1")
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	assert.True(t, read.ReadAt.Valid)

	unread, err := svc.List(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "old", unread[0].Title)
}

func TestEmailSink(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(logger)
	emailsvc.ResetSentMessages()
	t.Cleanup(emailsvc.ResetSentMessages)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	validate, _ := testutil.NewValidator()
	usrSvc := user.NewService(usrRepo, validate)
	usr := testutil.CreateUser(t, usrRepo, user.RoleStudent, "jane@test.cd", "")

	sink := notification.NewEmailSink(emailsvc.NewConsoleServiceMock(conf, logger), usrSvc)
	err := sink.Deliver(context.Background(), notification.Payload{
		UserID: usr.ID, Type: notification.TypeGradePublished, Title: "New Grade Published", Message: "Your grade is out",
	})
	require.NoError(t, err)

	sent := emailsvc.SentMessagesCopy()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@test.cd", sent[0].To[0].Address)
	assert.Equal(t, "New Grade Published", sent[0].Subject)
	assert.True(t, strings.Contains(sent[0].TextContent, "Hello Jane,"))
	assert.True(t, strings.Contains(sent[0].TextContent, "Your grade is out"))
	assert.True(t, strings.Contains(sent[0].HTMLContent, "<h3>New Grade Published</h3>"))

	err = sink.Deliver(context.Background(), notification.Payload{UserID: "unknown"})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}
