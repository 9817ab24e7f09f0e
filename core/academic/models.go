package academic

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
)

type EnrollmentStatus string

const (
	StatusEnrolled  EnrollmentStatus = "ENROLLED"
	StatusCompleted EnrollmentStatus = "COMPLETED"
	StatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	StatusDropped   EnrollmentStatus = "DROPPED"
)

// HoldsSeat tells whether an enrollment in this status counts towards Class.CurrentEnrollment.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == StatusEnrolled || s == StatusCompleted
}

var (
	// errors
	ErrClassNotFound      = core.NewError(core.KindNotFound, "Class not found")
	ErrEnrollmentNotFound = core.NewError(core.KindNotFound, "Enrollment not found")
	ErrGradeNotFound      = core.NewError(core.KindNotFound, "Grade not found")
	ErrNoGrades           = core.NewError(core.KindNotFound, "No published grades found")
	ErrClassFull          = core.NewError(core.KindConflict, "Class is full")
	ErrAlreadyEnrolled    = core.NewError(core.KindConflict, "Already enrolled in this class")
)

type (
	Subject struct {
		ID          string `json:"id"`
		Code        string `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Credits     int    `json:"credits"`
		IsActive    bool   `json:"isActive"`
	}

	// Person is the public identity of a student or teacher attached to read projections.
	Person struct {
		ID        string `json:"id"` // profile ID
		UserID    string `json:"userId"`
		Number    string `json:"number"` // student number or employee ID
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	}

	Class struct {
		ID                string    `json:"id"`
		SubjectID         string    `json:"subjectId"`
		TeacherID         string    `json:"teacherId"`
		ClassCode         string    `json:"classCode"`
		Semester          string    `json:"semester"`
		AcademicYear      string    `json:"academicYear"`
		MaxStudents       int       `json:"maxStudents"`
		CurrentEnrollment int       `json:"currentEnrollment"`
		Room              string    `json:"room"`
		Schedule          string    `json:"schedule"`
		CreatedAt         time.Time `json:"createdAt"`

		Subject *Subject `json:"subject,omitempty"`
		Teacher *Person  `json:"teacher,omitempty"`
	}

	Enrollment struct {
		ID             string           `json:"id"`
		StudentID      string           `json:"studentId"`
		ClassID        string           `json:"classId"`
		Status         EnrollmentStatus `json:"status"`
		EnrollmentDate time.Time        `json:"enrollmentDate"`
		FinalScore     null.Float64     `json:"finalScore"`
		FinalGrade     null.String      `json:"finalGrade"`
		CreatedAt      time.Time        `json:"createdAt"`
		UpdatedAt      time.Time        `json:"updatedAt"`

		Class   *Class  `json:"class,omitempty"`
		Student *Person `json:"student,omitempty"`
		Grades  []Grade `json:"grades,omitempty"`
	}

	Grade struct {
		ID             string    `json:"id"`
		EnrollmentID   string    `json:"enrollmentId"`
		GradedBy       string    `json:"gradedBy"`
		AssessmentType string    `json:"assessmentType"`
		AssessmentName string    `json:"assessmentName"`
		Score          float64   `json:"score"`
		MaxScore       float64   `json:"maxScore"`
		Weight         float64   `json:"weight"`
		LetterGrade    string    `json:"letterGrade"`
		Remarks        string    `json:"remarks"`
		GradedAt       time.Time `json:"gradedAt"`
		IsPublished    bool      `json:"isPublished"`
		PublishedAt    null.Time `json:"publishedAt"`
	}

	FinalGrade struct {
		FinalScore  float64 `json:"finalScore"`
		LetterGrade string  `json:"letterGrade"`
		GPA         float64 `json:"gpa"`
	}
)

// SubjectName is empty unless the class and its subject are loaded.
func (e Enrollment) SubjectName() string {
	if e.Class != nil && e.Class.Subject != nil {
		return e.Class.Subject.Name
	}
	return ""
}

type NewEnrollment struct {
	StudentID string `json:"studentId" validate:"required,uuid"`
	ClassID   string `json:"classId" validate:"required,uuid"`
}

type UpdateEnrollmentStatus struct {
	Status EnrollmentStatus `json:"status" validate:"required,oneof=ENROLLED COMPLETED WITHDRAWN DROPPED"`
}

type NewGrade struct {
	EnrollmentID   string  `json:"enrollmentId" validate:"required,uuid"`
	AssessmentType string  `json:"assessmentType" validate:"required,notblank"`
	AssessmentName string  `json:"assessmentName" validate:"required,notblank"`
	Score          float64 `json:"score" validate:"gte=0,ltefield=MaxScore"`
	MaxScore       float64 `json:"maxScore" validate:"gt=0"`
	Weight         float64 `json:"weight" validate:"gte=0,lte=1"`
	Remarks        string  `json:"remarks"`
}

func (ng *NewGrade) Clean() {
	ng.EnrollmentID = core.CleanString(ng.EnrollmentID, true /* lower */)
	ng.AssessmentType = core.CleanString(ng.AssessmentType)
	ng.AssessmentName = core.CleanString(ng.AssessmentName)
	ng.Remarks = core.CleanString(ng.Remarks)
}
