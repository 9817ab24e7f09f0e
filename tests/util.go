// Package testutil holds the fixtures shared by the test suites.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/user"
	logsvc "github.com/trezcool/chuo/services/logger"
)

// NewConfig returns the default config in test mode.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Server.DisableReqLogs = true
	return conf
}

// NewLogger returns a logger that neither prints nor reports.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with all the custom validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// MockNow freezes core.NowFunc at now until the test ends.
func MockNow(t *testing.T, now time.Time) {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
}

// CreateUser stores an active user of role, with a profile numbered after its email.
func CreateUser(t *testing.T, repo user.Repository, role user.Role, email, pwd string, isActive ...bool) user.User {
	now := core.NowFunc()
	name := strings.SplitN(email, "@", 2)[0]
	number := strings.ToUpper(name)

	usr := user.User{
		Email:     email,
		FirstName: strings.ToUpper(name[:1]) + name[1:],
		LastName:  "Test",
		Role:      role,
		IsActive:  len(isActive) == 0 || isActive[0],
		CreatedAt: now,
		UpdatedAt: now,
	}
	staff := user.Staff{EmployeeID: number, Department: "Computer Science", HireDate: now, Position: "Lecturer"}
	switch role {
	case user.RoleStudent:
		usr.Profile = &user.Student{StudentNumber: number, EnrollmentDate: now, Status: user.StudentActive}
	case user.RoleTeachingStaff:
		usr.Profile = &user.TeachingStaff{Staff: staff}
	case user.RoleNonTeachingStaff:
		usr.Profile = &user.NonTeachingStaff{Staff: staff}
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}

	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// StudentID is the profile ID of a student user.
func StudentID(t *testing.T, usr user.User) string {
	s, ok := usr.StudentProfile()
	if !ok {
		t.Fatalf("StudentID(): %s is not a student", usr.Email)
	}
	return s.ID
}

// TeacherID is the profile ID of a teaching staff user.
func TeacherID(t *testing.T, usr user.User) string {
	s, ok := usr.TeachingStaffProfile()
	if !ok {
		t.Fatalf("TeacherID(): %s is not teaching staff", usr.Email)
	}
	return s.ID
}

func CreateSubject(t *testing.T, repo academic.Repository, code string, credits int) academic.Subject {
	subj, err := repo.CreateSubject(context.Background(), academic.Subject{
		Code:     code,
		Name:     "Subject " + code,
		Credits:  credits,
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return subj
}

func CreateClass(t *testing.T, repo academic.Repository, subj academic.Subject, teacher user.User, maxStudents int) academic.Class {
	class, err := repo.CreateClass(context.Background(), academic.Class{
		SubjectID:    subj.ID,
		TeacherID:    TeacherID(t, teacher),
		ClassCode:    fmt.Sprintf("%s-A", subj.Code),
		Semester:     "Fall",
		AcademicYear: "2024-2025",
		MaxStudents:  maxStudents,
		Room:         "Room 101",
		Schedule:     "Mon/Wed 09:00-10:30",
		CreatedAt:    core.NowFunc(),
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return class
}

func Enroll(t *testing.T, repo academic.Repository, student user.User, class academic.Class) academic.Enrollment {
	now := core.NowFunc()
	enr, err := repo.CreateEnrollment(context.Background(), academic.Enrollment{
		StudentID:      StudentID(t, student),
		ClassID:        class.ID,
		Status:         academic.StatusEnrolled,
		EnrollmentDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return enr
}

func CreateGrade(
	t *testing.T,
	repo academic.Repository,
	enr academic.Enrollment,
	gradedBy string,
	score, maxScore, weight float64,
	published bool,
) academic.Grade {
	now := core.NowFunc()
	grade, err := repo.CreateGrade(context.Background(), academic.Grade{
		EnrollmentID:   enr.ID,
		GradedBy:       gradedBy,
		AssessmentType: "EXAM",
		AssessmentName: "Exam",
		Score:          score,
		MaxScore:       maxScore,
		Weight:         weight,
		LetterGrade:    academic.LetterGrade(academic.Percentage(score, maxScore)),
		GradedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateGrade() failed: %v", err)
	}
	if published {
		if grade, err = repo.PublishGrade(context.Background(), grade.ID, now); err != nil {
			t.Fatalf("CreateGrade() failed: %v", err)
		}
	}
	return grade
}

func CreateSession(t *testing.T, repo attendance.Repository, class academic.Class) attendance.ClassSession {
	now := core.NowFunc()
	sess, err := repo.CreateSession(context.Background(), attendance.ClassSession{
		ClassID:     class.ID,
		SessionDate: now,
		StartTime:   now,
		EndTime:     now.Add(90 * time.Minute),
		Room:        class.Room,
		Topic:       "Introduction",
		CreatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}
