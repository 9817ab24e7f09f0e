package attendance_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
	inmemdb "github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notification.Payload
}

func (n *recordingNotifier) Notify(_ context.Context, p notification.Payload) []notification.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
	return nil
}

type env struct {
	svc      attendance.Service
	attRepo  attendance.Repository
	notifier *recordingNotifier

	teacher, student, other user.User
	class                   academic.Class
	sess                    attendance.ClassSession
	enr, otherEnr           academic.Enrollment
}

func setup(t *testing.T) env {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	acadRepo := inmemdb.NewAcademicRepository(db)
	attRepo := inmemdb.NewAttendanceRepository(db)
	validate, _ := testutil.NewValidator()
	notifier := new(recordingNotifier)

	e := env{
		svc:      attendance.NewService(attRepo, acadRepo, notifier, validate, attendance.Config{CodeExpiry: 15 * time.Minute}),
		attRepo:  attRepo,
		notifier: notifier,
		teacher:  testutil.CreateUser(t, usrRepo, user.RoleTeachingStaff, "teacher@test.cd", ""),
		student:  testutil.CreateUser(t, usrRepo, user.RoleStudent, "student@test.cd", ""),
		other:    testutil.CreateUser(t, usrRepo, user.RoleStudent, "other@test.cd", ""),
	}
	e.class = testutil.CreateClass(t, acadRepo, testutil.CreateSubject(t, acadRepo, "CS101", 3), e.teacher, 30)
	e.sess = testutil.CreateSession(t, attRepo, e.class)
	e.enr = testutil.Enroll(t, acadRepo, e.student, e.class)
	e.otherEnr = testutil.Enroll(t, acadRepo, e.other, e.class)
	return e
}

func (e env) generate(t *testing.T) attendance.QRCode {
	got, err := e.svc.GenerateCode(context.Background(), attendance.NewCode{ClassSessionID: e.sess.ID}, e.teacher.ID)
	require.NoError(t, err)
	return got.QRCode
}

func TestService_CreateSession(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	start := time.Date(2024, 9, 2, 9, 0, 0, 0, time.FixedZone("WAT", 3600))

	sess, err := e.svc.CreateSession(ctx, attendance.NewClassSession{
		ClassID:     e.class.ID,
		SessionDate: start,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Room:        " Lab 2 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lab 2", sess.Room)
	assert.Equal(t, time.UTC, sess.StartTime.Location())
	assert.True(t, sess.StartTime.Equal(start))

	sessions, err := e.svc.ListSessions(ctx, e.class.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	_, err = e.svc.ListSessions(ctx, "6f1f9f4e-6c5a-4f55-9a8b-5d4b3c2a1e0f")
	assert.Equal(t, academic.ErrClassNotFound, errors.Cause(err))
}

func TestService_MarkAttendance(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	qr := e.generate(t)
	studentMarker := attendance.Marker{UserID: e.student.ID, IsStudent: true}

	req := func(code string, enr academic.Enrollment) attendance.MarkRequest {
		return attendance.MarkRequest{QRCode: code, EnrollmentID: enr.ID, ClassSessionID: e.sess.ID}
	}

	tests := []struct {
		name    string
		data    attendance.MarkRequest
		by      attendance.Marker
		wantErr error
	}{
		{name: "unknown code", data: req("nope", e.enr), by: studentMarker, wantErr: attendance.ErrInvalidCode},
		{
			name: "code of another session", by: studentMarker, wantErr: attendance.ErrInvalidCode,
			data: attendance.MarkRequest{QRCode: qr.Code, EnrollmentID: e.enr.ID, ClassSessionID: e.class.ID},
		},
		{name: "unknown enrollment", data: req(qr.Code, academic.Enrollment{ID: "6f1f9f4e-6c5a-4f55-9a8b-5d4b3c2a1e0f"}), by: studentMarker, wantErr: academic.ErrEnrollmentNotFound},
		{name: "enrollment of another student", data: req(qr.Code, e.otherEnr), by: studentMarker, wantErr: core.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.svc.MarkAttendance(ctx, tt.data, tt.by); errors.Cause(err) != tt.wantErr {
				t.Errorf("MarkAttendance() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("Success", func(t *testing.T) {
		data := req(qr.Code, e.enr)
		data.LocationData = json.RawMessage(`null`)
		rec, err := e.svc.MarkAttendance(ctx, data, studentMarker)
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusPresent, rec.Status)
		assert.False(t, rec.LocationData.Valid)
		require.NotNil(t, rec.ClassSession)
		assert.Equal(t, e.sess.ID, rec.ClassSession.ID)

		e.notifier.mu.Lock()
		defer e.notifier.mu.Unlock()
		require.Len(t, e.notifier.payloads, 1)
		assert.Equal(t, e.student.ID, e.notifier.payloads[0].UserID)
		assert.Equal(t, "Your attendance for Subject CS101 has been recorded", e.notifier.payloads[0].Message)
	})

	t.Run("Already marked", func(t *testing.T) {
		_, err := e.svc.MarkAttendance(ctx, req(qr.Code, e.enr), studentMarker)
		assert.Equal(t, attendance.ErrAlreadyMarked, errors.Cause(err))
	})

	t.Run("Staff marks any enrollment", func(t *testing.T) {
		rec, err := e.svc.MarkAttendance(ctx, req(qr.Code, e.otherEnr), attendance.Marker{UserID: e.teacher.ID})
		require.NoError(t, err)
		assert.Equal(t, e.teacher.ID, rec.MarkedBy)
	})
}

func TestService_MarkAttendance_window(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	qr := e.generate(t)
	data := attendance.MarkRequest{QRCode: qr.Code, EnrollmentID: e.enr.ID, ClassSessionID: e.sess.ID}
	by := attendance.Marker{UserID: e.student.ID, IsStudent: true}

	t.Run("Expired", func(t *testing.T) {
		testutil.MockNow(t, qr.ValidUntil.Add(time.Nanosecond))
		_, err := e.svc.MarkAttendance(ctx, data, by)
		assert.Equal(t, attendance.ErrCodeExpired, errors.Cause(err))
	})

	t.Run("Deactivated", func(t *testing.T) {
		n, err := e.svc.DeactivateExpired(ctx, qr.ValidUntil.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = e.svc.MarkAttendance(ctx, data, by)
		assert.Equal(t, attendance.ErrInvalidCode, errors.Cause(err))
	})
}

func TestSweep(t *testing.T) {
	e := setup(t)
	qr := e.generate(t)
	testutil.MockNow(t, qr.ValidUntil.Add(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		attendance.Sweep(ctx, e.svc, 5*time.Millisecond, testutil.NewLogger(testutil.NewConfig()))
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := e.attRepo.GetActiveQRCode(context.Background(), qr.Code)
		return errors.Cause(err) == attendance.ErrInvalidCode
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestQRCode_ValidAt(t *testing.T) {
	from := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	qr := attendance.QRCode{ValidFrom: from, ValidUntil: from.Add(15 * time.Minute)}

	tests := []struct {
		at   time.Time
		want bool
	}{
		{from.Add(-time.Nanosecond), false},
		{from, true},
		{from.Add(15 * time.Minute), true},
		{from.Add(15*time.Minute + time.Nanosecond), false},
	}
	for _, tt := range tests {
		if got := qr.ValidAt(tt.at); got != tt.want {
			t.Errorf("ValidAt(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}
