package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/tests"
)

func Test_notificationApi_query(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	older, err := notifRepo.CreateNotification(ctx, notification.Notification{
		UserID: fx.student.ID, Type: notification.TypeGeneral, Title: "Welcome", Message: "Hello", CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	newer, err := notifRepo.CreateNotification(ctx, notification.Notification{
		UserID: fx.student.ID, Type: notification.TypeGeneral, Title: "Reminder", Message: "Class at 9", CreatedAt: now,
	})
	require.NoError(t, err)
	others, err := notifRepo.CreateNotification(ctx, notification.Notification{
		UserID: fx.other.ID, Type: notification.TypeGeneral, Title: "Other", Message: "Not yours", CreatedAt: now,
	})
	require.NoError(t, err)

	token := getToken(t, fx.student)

	runHTTPTests(t, []httpTest{
		{name: "Auth required", path: "/api/notifications", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "Own only", path: "/api/notifications", token: token, wantCode: http.StatusOK, wantData: marshalList(t, newer, older)},
		{name: "None", path: "/api/notifications", token: getToken(t, fx.teacher), wantCode: http.StatusOK, wantData: marshalList(t)},
		{
			name: "Not owner", method: http.MethodPatch, path: "/api/notifications/" + others.ID + "/read", token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Notification not found"}),
		},
	})

	t.Run("Mark read", func(t *testing.T) {
		rec := serve(httpTest{method: http.MethodPatch, path: "/api/notifications/" + older.ID + "/read", token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got notification.Notification
		decode(t, rec, &got)
		assert.True(t, got.IsRead)
		assert.True(t, got.ReadAt.Valid)

		tt := httpTest{path: "/api/notifications?unread=true", token: token, wantCode: http.StatusOK, wantData: marshalList(t, newer)}
		checkCodeAndData(t, tt, serve(tt))
	})
}

func Test_notificationApi_live(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)

	srv := httptest.NewServer(app)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/live"

	t.Run("Auth required", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Invalid token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=not.a.token", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Receives own notifications", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+getToken(t, fx.student), nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool {
			return hub.Clients(context.Background(), fx.student.ID) == 1
		}, time.Second, 10*time.Millisecond)

		rec := serve(httpTest{
			method: http.MethodPost, path: "/api/enrollments", token: getToken(t, fx.registrar),
			body: []byte(fmt.Sprintf(`{"studentId":%q,"classId":%q}`, testutil.StudentID(t, fx.student), class.ID)),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var evt struct {
			Event string `json:"event"`
			Data  struct {
				Type      notification.Type `json:"type"`
				Title     string            `json:"title"`
				Message   string            `json:"message"`
				Timestamp time.Time         `json:"timestamp"`
			} `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&evt))
		assert.Equal(t, "notification", evt.Event)
		assert.Equal(t, notification.TypeEnrollmentConfirmed, evt.Data.Type)
		assert.Equal(t, "Enrollment Confirmed", evt.Data.Title)
		assert.Equal(t, "You have been enrolled in Subject CS101", evt.Data.Message)
		assert.False(t, evt.Data.Timestamp.IsZero())
	})
}
