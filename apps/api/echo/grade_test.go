package echoapi_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
	exportsvc "github.com/trezcool/chuo/services/export"
	"github.com/trezcool/chuo/tests"
)

func Test_gradeApi_create(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	enr := testutil.Enroll(t, acadRepo, fx.student, class)
	token := getToken(t, fx.teacher)

	body := func(enrollmentID string, score, maxScore, weight float64) []byte {
		return []byte(fmt.Sprintf(
			`{"enrollmentId":%q,"assessmentType":"QUIZ","assessmentName":" Quiz 1 ","score":%v,"maxScore":%v,"weight":%v}`,
			enrollmentID, score, maxScore, weight,
		))
	}

	runHTTPTests(t, []httpTest{
		{
			name: "Student forbidden", method: http.MethodPost, path: "/api/grades", body: body(enr.ID, 9, 10, 0.1),
			token: getToken(t, fx.student), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Registrar forbidden", method: http.MethodPost, path: "/api/grades", body: body(enr.ID, 9, 10, 0.1),
			token: getToken(t, fx.registrar), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Weight out of range", method: http.MethodPost, path: "/api/grades", body: body(enr.ID, 9, 10, 1.5), token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"weight":"weight must be 1 or less"}`),
		},
		{
			name: "Zero max score", method: http.MethodPost, path: "/api/grades", body: body(enr.ID, 0, 0, 0.5), token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"maxScore":"maxScore must be greater than 0"}`),
		},
		{
			name: "Unknown enrollment", method: http.MethodPost, path: "/api/grades",
			body: body("6f1f9f4e-6c5a-4f55-9a8b-5d4b3c2a1e0f", 9, 10, 0.1), token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Enrollment not found"}),
		},
	})

	t.Run("Success", func(t *testing.T) {
		rec := serve(httpTest{method: http.MethodPost, path: "/api/grades", body: body(enr.ID, 9.3, 10, 0.1), token: token})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var grade academic.Grade
		decode(t, rec, &grade)
		assert.Equal(t, enr.ID, grade.EnrollmentID)
		assert.Equal(t, fx.teacher.ID, grade.GradedBy)
		assert.Equal(t, "Quiz 1", grade.AssessmentName)
		assert.Equal(t, "A", grade.LetterGrade)
		assert.False(t, grade.IsPublished)
		assert.False(t, grade.PublishedAt.Valid)
	})
}

func Test_gradeApi_publish(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	enr := testutil.Enroll(t, acadRepo, fx.student, class)
	grade := testutil.CreateGrade(t, acadRepo, enr, fx.teacher.ID, 45, 50, 0.5, false)

	path := "/api/grades/" + grade.ID + "/publish"

	runHTTPTests(t, []httpTest{
		{
			name: "Student forbidden", method: http.MethodPatch, path: path, token: getToken(t, fx.student),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "Unknown grade", method: http.MethodPatch, path: "/api/grades/6f1f9f4e-6c5a-4f55-9a8b-5d4b3c2a1e0f/publish",
			token: getToken(t, fx.teacher), wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Grade not found"}),
		},
	})

	t.Run("Success", func(t *testing.T) {
		rec := serve(httpTest{method: http.MethodPatch, path: path, token: getToken(t, fx.admin)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got academic.Grade
		decode(t, rec, &got)
		assert.True(t, got.IsPublished)
		assert.True(t, got.PublishedAt.Valid)

		notifs, err := notifRepo.QueryUserNotifications(context.Background(), fx.student.ID, false)
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, notification.TypeGradePublished, notifs[0].Type)
		assert.Equal(t, "New Grade Published", notifs[0].Title)
		assert.Equal(t, "Your grade for Exam in Subject CS101 has been published", notifs[0].Message)
	})
}

func Test_gradeApi_queryStudent(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	enr := testutil.Enroll(t, acadRepo, fx.student, class)
	testutil.CreateGrade(t, acadRepo, enr, fx.teacher.ID, 0, 100, 0.5, false)
	published := testutil.CreateGrade(t, acadRepo, enr, fx.teacher.ID, 80, 100, 0.5, true)

	path := func(usr user.User) string { return "/api/grades/student/" + usr.ID }
	enr.Grades = []academic.Grade{published}
	want := marshalList(t, enr)

	runHTTPTests(t, []httpTest{
		{name: "Auth required", path: path(fx.student), wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "Other student", path: path(fx.student), token: getToken(t, fx.other), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "Published only", path: path(fx.student), token: getToken(t, fx.student), wantCode: http.StatusOK, wantData: want},
		{name: "Teacher", path: path(fx.student), token: getToken(t, fx.teacher), wantCode: http.StatusOK, wantData: want},
	})
}

func Test_gradeApi_calculateGPA(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	cs101 := testutil.CreateSubject(t, acadRepo, "CS101", 4)
	cs201 := testutil.CreateSubject(t, acadRepo, "CS201", 3)

	// A in a 4 credits subject, B in a 3 credits one
	for _, c := range []struct {
		subj   academic.Subject
		letter string
	}{{cs101, "A"}, {cs201, "B"}} {
		class := testutil.CreateClass(t, acadRepo, c.subj, fx.teacher, 30)
		enr := testutil.Enroll(t, acadRepo, fx.student, class)
		require.NoError(t, acadRepo.SetFinalGrade(ctx, enr.ID, 90, c.letter, enr.CreatedAt))
		require.NoError(t, acadRepo.SetEnrollmentStatus(ctx, enr.ID, academic.StatusCompleted, enr.CreatedAt))
	}
	studentID := testutil.StudentID(t, fx.student)

	path := func(usr user.User) string { return "/api/grades/student/" + usr.ID + "/gpa" }

	runHTTPTests(t, []httpTest{
		{
			name: "Other student", method: http.MethodPost, path: path(fx.student), token: getToken(t, fx.other),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "No completed enrollments", method: http.MethodPost, path: path(fx.other), token: getToken(t, fx.other),
			wantCode: http.StatusOK, wantData: []byte(fmt.Sprintf(`{"studentId":%q,"gpa":0}`, testutil.StudentID(t, fx.other))),
		},
	})

	t.Run("Credit weighted", func(t *testing.T) {
		rec := serve(httpTest{method: http.MethodPost, path: path(fx.student), token: getToken(t, fx.student)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			StudentID string  `json:"studentId"`
			GPA       float64 `json:"gpa"`
		}
		decode(t, rec, &body)
		assert.Equal(t, studentID, body.StudentID)
		assert.InDelta(t, (4*4.0+3*3.0)/7, body.GPA, 1e-9)

		student, err := acadRepo.GetStudent(ctx, studentID)
		require.NoError(t, err)
		assert.InDelta(t, body.GPA, student.CurrentGPA, 1e-9)
	})
}

func Test_gradeApi_queryClass(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	enr := testutil.Enroll(t, acadRepo, fx.student, class)
	grade := testutil.CreateGrade(t, acadRepo, enr, fx.teacher.ID, 0, 100, 0.5, false)
	other := testutil.Enroll(t, acadRepo, fx.other, class)

	path := "/api/grades/class/" + class.ID
	enr.Grades = []academic.Grade{grade}

	// enrollments hold the class as it was when they were created
	enr.Class.CurrentEnrollment = 2
	want := marshalList(t, enr, other)

	runHTTPTests(t, []httpTest{
		{name: "Student forbidden", path: path, token: getToken(t, fx.student), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "All grades", path: path, token: getToken(t, fx.teacher), wantCode: http.StatusOK, wantData: want},
		{
			name: "Not a UUID", path: "/api/grades/class/CS101", token: getToken(t, fx.teacher),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"classId":"a valid classId is required"}`),
		},
	})
}

func Test_gradeApi_exportClass(t *testing.T) {
	fx := newFixture(t)
	subj := testutil.CreateSubject(t, acadRepo, "CS101", 3)
	class := testutil.CreateClass(t, acadRepo, subj, fx.teacher, 30)
	enr := testutil.Enroll(t, acadRepo, fx.student, class)
	testutil.CreateGrade(t, acadRepo, enr, fx.teacher.ID, 70, 100, 0.5, true)
	testutil.CreateGrade(t, acadRepo, enr, fx.teacher.ID, 90, 100, 0.5, false)
	testutil.Enroll(t, acadRepo, fx.other, class)

	path := "/api/grades/class/" + class.ID + "/export"

	runHTTPTests(t, []httpTest{
		{name: "Student forbidden", path: path, token: getToken(t, fx.student), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{
			name: "Unknown class", path: "/api/grades/class/6f1f9f4e-6c5a-4f55-9a8b-5d4b3c2a1e0f/export", token: getToken(t, fx.teacher),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "Class not found"}),
		},
	})

	t.Run("Workbook", func(t *testing.T) {
		rec := serve(httpTest{path: path, token: getToken(t, fx.teacher)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, exportsvc.ContentTypeXLSX, rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="grades_CS101-A.xlsx"`, rec.Header().Get("Content-Disposition"))

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
		require.NoError(t, err)
		assert.Len(t, rows, 1+2+1) // header, 2 grades, 1 enrollment without grades
	})
}
