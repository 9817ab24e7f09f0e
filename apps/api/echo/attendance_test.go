package echoapi_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/tests"
)

func Test_attendanceApi_createSession(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)

	start := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	body := func(classID string, end time.Time) []byte {
		return []byte(fmt.Sprintf(
			`{"classId":%q,"sessionDate":%q,"startTime":%q,"endTime":%q,"topic":"Intro"}`,
			classID, start.Format(time.RFC3339), start.Format(time.RFC3339), end.Format(time.RFC3339),
		))
	}
	token := getToken(t, fx.teacher)

	runHTTPTests(t, []httpTest{
		{
			name: "Student forbidden", method: http.MethodPost, path: "/api/attendance/sessions", body: body(class.ID, start.Add(time.Hour)),
			token: getToken(t, fx.student), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Ends before start", method: http.MethodPost, path: "/api/attendance/sessions", body: body(class.ID, start.Add(-time.Hour)),
			token: token, wantCode: http.StatusBadRequest, wantData: []byte(`{"endTime":"endTime must be greater than StartTime"}`),
		},
		{
			name: "Unknown class", method: http.MethodPost, path: "/api/attendance/sessions",
			body: body("6f1f9f4e-6c5a-4f55-9a8b-5d4b3c2a1e0f", start.Add(time.Hour)), token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Class not found"}),
		},
	})

	t.Run("Success", func(t *testing.T) {
		rec := serve(httpTest{method: http.MethodPost, path: "/api/attendance/sessions", body: body(class.ID, start.Add(90*time.Minute)), token: token})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var sess attendance.ClassSession
		decode(t, rec, &sess)
		assert.Equal(t, class.ID, sess.ClassID)
		assert.Equal(t, class.Room, sess.Room) // defaults to the class room
		assert.Equal(t, "Intro", sess.Topic)

		tt := httpTest{path: "/api/attendance/class/" + class.ID + "/sessions", token: token, wantCode: http.StatusOK, wantData: marshalList(t, sess)}
		checkCodeAndData(t, tt, serve(tt))
	})
}

func Test_attendanceApi_generateCode(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	sess := testutil.CreateSession(t, attRepo, class)

	body := func(sessionID string) []byte { return []byte(fmt.Sprintf(`{"classSessionId":%q}`, sessionID)) }

	runHTTPTests(t, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/api/attendance/qr-code", body: body(sess.ID),
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken),
		},
		{
			name: "Student forbidden", method: http.MethodPost, path: "/api/attendance/qr-code", body: body(sess.ID),
			token: getToken(t, fx.student), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Missing session", method: http.MethodPost, path: "/api/attendance/qr-code", body: []byte(`{}`),
			token: getToken(t, fx.teacher), wantCode: http.StatusBadRequest, wantData: []byte(`{"classSessionId":"this field is required"}`),
		},
		{
			name: "Unknown session", method: http.MethodPost, path: "/api/attendance/qr-code", body: body("6f1f9f4e-6c5a-4f55-9a8b-5d4b3c2a1e0f"),
			token: getToken(t, fx.teacher), wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Class session not found"}),
		},
	})

	t.Run("Success", func(t *testing.T) {
		rec := serve(httpTest{method: http.MethodPost, path: "/api/attendance/qr-code", body: body(sess.ID), token: getToken(t, fx.admin)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got attendance.GeneratedCode
		decode(t, rec, &got)
		raw, err := hex.DecodeString(got.QRCode.Code)
		require.NoError(t, err)
		assert.Len(t, raw, 32)
		assert.Equal(t, sess.ID, got.QRCode.ClassSessionID)
		assert.Equal(t, fx.admin.ID, got.QRCode.GeneratedBy)
		assert.True(t, got.QRCode.IsActive)
		assert.Equal(t, 15*time.Minute, got.QRCode.ValidUntil.Sub(got.QRCode.ValidFrom))
		assert.True(t, strings.HasPrefix(got.Image, "data:image/png;base64,"))
	})
}

func Test_attendanceApi_mark(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	sess := testutil.CreateSession(t, attRepo, class)
	otherSess := testutil.CreateSession(t, attRepo, class)
	enr := testutil.Enroll(t, acadRepo, fx.student, class)
	otherEnr := testutil.Enroll(t, acadRepo, fx.other, class)

	rec := serve(httpTest{
		method: http.MethodPost, path: "/api/attendance/qr-code",
		body: []byte(fmt.Sprintf(`{"classSessionId":%q}`, sess.ID)), token: getToken(t, fx.teacher),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var generated attendance.GeneratedCode
	decode(t, rec, &generated)
	code := generated.QRCode.Code

	body := func(code string, enr academic.Enrollment, sessionID string) []byte {
		return []byte(fmt.Sprintf(
			`{"qrCode":%q,"enrollmentId":%q,"classSessionId":%q,"locationData":{"lat":-4.32,"lng":15.31}}`,
			code, enr.ID, sessionID,
		))
	}
	token := getToken(t, fx.student)

	runHTTPTests(t, []httpTest{
		{
			name: "Teacher forbidden", method: http.MethodPost, path: "/api/attendance/mark", body: body(code, enr, sess.ID),
			token: getToken(t, fx.teacher), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Unknown code", method: http.MethodPost, path: "/api/attendance/mark", body: body("deadbeef", enr, sess.ID),
			token: token, wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Invalid QR code"}),
		},
		{
			name: "Code of another session", method: http.MethodPost, path: "/api/attendance/mark", body: body(code, enr, otherSess.ID),
			token: token, wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Invalid QR code"}),
		},
		{
			name: "Enrollment of another student", method: http.MethodPost, path: "/api/attendance/mark", body: body(code, otherEnr, sess.ID),
			token: token, wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "Forbidden"}),
		},
	})

	t.Run("Success", func(t *testing.T) {
		rec := serve(httpTest{method: http.MethodPost, path: "/api/attendance/mark", body: body(code, enr, sess.ID), token: token})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got attendance.Record
		decode(t, rec, &got)
		assert.Equal(t, enr.ID, got.EnrollmentID)
		assert.Equal(t, sess.ID, got.ClassSessionID)
		assert.Equal(t, attendance.StatusPresent, got.Status)
		assert.Equal(t, code, got.QRCodeUsed.String)
		assert.Equal(t, fx.student.ID, got.MarkedBy)
		assert.JSONEq(t, `{"lat":-4.32,"lng":15.31}`, string(got.LocationData.JSON))

		notifs, err := notifRepo.QueryUserNotifications(context.Background(), fx.student.ID, false)
		require.NoError(t, err)
		require.NotEmpty(t, notifs)
		assert.Equal(t, notification.TypeAttendanceMarked, notifs[0].Type)
		assert.Equal(t, "Attendance Marked", notifs[0].Title)
	})

	runHTTPTests(t, []httpTest{
		{
			name: "Already marked", method: http.MethodPost, path: "/api/attendance/mark", body: body(code, enr, sess.ID),
			token: token, wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "Attendance already marked"}),
		},
	})

	t.Run("Expired code", func(t *testing.T) {
		otherToken := getToken(t, fx.other) // issued before the clock moves
		testutil.MockNow(t, generated.QRCode.ValidUntil.Add(time.Second))
		tt := httpTest{
			method: http.MethodPost, path: "/api/attendance/mark", body: body(code, otherEnr, sess.ID),
			token: otherToken, wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "QR code expired"}),
		}
		checkCodeAndData(t, tt, serve(tt))
	})
}

func Test_attendanceApi_query(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	sess := testutil.CreateSession(t, attRepo, class)
	enr := testutil.Enroll(t, acadRepo, fx.student, class)
	otherEnr := testutil.Enroll(t, acadRepo, fx.other, class)

	now := enr.CreatedAt
	_, err := attRepo.CreateRecord(ctx, attendance.Record{
		EnrollmentID:   enr.ID,
		ClassSessionID: sess.ID,
		Date:           now,
		Status:         attendance.StatusLate,
		MarkedAt:       now,
		MarkedBy:       fx.teacher.ID,
	})
	require.NoError(t, err)

	records, err := attRepo.QueryRecords(ctx, enr.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	enr.Class.CurrentEnrollment = 2
	studentWant := marshalList(t, attendance.EnrollmentAttendance{Enrollment: enr, AttendanceRecords: records})
	classWant := marshalList(t,
		attendance.EnrollmentAttendance{Enrollment: enr, AttendanceRecords: records},
		attendance.EnrollmentAttendance{Enrollment: otherEnr, AttendanceRecords: []attendance.Record{}},
	)

	runHTTPTests(t, []httpTest{
		{
			name: "Other student", path: "/api/attendance/student/" + fx.student.ID, token: getToken(t, fx.other),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Own", path: "/api/attendance/student/" + fx.student.ID, token: getToken(t, fx.student),
			wantCode: http.StatusOK, wantData: studentWant,
		},
		{
			name: "Class: student forbidden", path: "/api/attendance/class/" + class.ID, token: getToken(t, fx.student),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Class", path: "/api/attendance/class/" + class.ID, token: getToken(t, fx.teacher),
			wantCode: http.StatusOK, wantData: classWant,
		},
	})
}
