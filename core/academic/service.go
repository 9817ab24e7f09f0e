package academic

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
)

type (
	// EnrollmentFilter selects enrollments by student and/or class.
	// Class (with subject and teacher) and Student are always loaded; grades only on request, gradedAt desc.
	EnrollmentFilter struct {
		StudentID           string
		ClassID             string
		WithGrades          bool
		PublishedGradesOnly bool
	}

	Repository interface {
		GetStudent(ctx context.Context, id string) (user.Student, error)
		GetStudentByUserID(ctx context.Context, userID string) (user.Student, error)
		SetStudentGPA(ctx context.Context, studentID string, gpa float64) error

		CreateSubject(ctx context.Context, s Subject) (Subject, error)
		CreateClass(ctx context.Context, c Class) (Class, error)
		// GetClass loads the class with its subject and teacher.
		GetClass(ctx context.Context, id string) (Class, error)
		QueryAvailableClasses(ctx context.Context) ([]Class, error)

		EnrollmentExists(ctx context.Context, studentID, classID string) (bool, error)
		// CreateEnrollment takes a seat in the class and inserts e in one transaction.
		// It fails with ErrClassFull when no seat is left and ErrAlreadyEnrolled on a duplicate.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		// GetEnrollment loads the enrollment with its class, subject and student.
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter EnrollmentFilter) ([]Enrollment, error)
		// SetEnrollmentStatus releases or takes a seat when the status change requires it.
		SetEnrollmentStatus(ctx context.Context, id string, status EnrollmentStatus, at time.Time) error
		SetFinalGrade(ctx context.Context, id string, score float64, letter string, at time.Time) error
		// QueryCompletedGrades returns the COMPLETED enrollments of the student that have a final grade.
		QueryCompletedGrades(ctx context.Context, studentID string) ([]CreditedGrade, error)

		CreateGrade(ctx context.Context, g Grade) (Grade, error)
		GetGrade(ctx context.Context, id string) (Grade, error)
		PublishGrade(ctx context.Context, id string, at time.Time) (Grade, error)
		QueryEnrollmentGrades(ctx context.Context, enrollmentID string) ([]Grade, error)
	}

	Service interface {
		StudentByUserID(ctx context.Context, userID string) (user.Student, error)
		GetClass(ctx context.Context, id string) (Class, error)
		AvailableClasses(ctx context.Context) ([]Class, error)
		ProcessEnrollment(ctx context.Context, data NewEnrollment) (Enrollment, error)
		UpdateEnrollmentStatus(ctx context.Context, id string, data UpdateEnrollmentStatus) (Enrollment, error)
		StudentEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		CreateGrade(ctx context.Context, data NewGrade, gradedBy string) (Grade, error)
		PublishGrade(ctx context.Context, id string) (Grade, error)
		StudentGrades(ctx context.Context, userID string) ([]Enrollment, error)
		ClassGrades(ctx context.Context, classID string) ([]Enrollment, error)
		CalculateFinalGrade(ctx context.Context, enrollmentID string) (FinalGrade, error)
		CalculateStudentGPA(ctx context.Context, studentID string) (float64, error)
	}

	service struct {
		repo     Repository
		notifier notification.Notifier
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, notifier notification.Notifier, validate *validator.Validate) Service {
	return &service{repo: repo, notifier: notifier, validate: validate}
}

func (svc *service) StudentByUserID(ctx context.Context, userID string) (user.Student, error) {
	return svc.repo.GetStudentByUserID(ctx, userID)
}

func (svc *service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) AvailableClasses(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryAvailableClasses(ctx)
}

// ProcessEnrollment checks, in order: the class exists, the student exists, a seat is left, the student
// is not enrolled yet. The final checks are repeated atomically by the repository.
func (svc *service) ProcessEnrollment(ctx context.Context, data NewEnrollment) (Enrollment, error) {
	data.StudentID = core.CleanString(data.StudentID, true /* lower */)
	data.ClassID = core.CleanString(data.ClassID, true /* lower */)
	if err := svc.validate.Struct(data); err != nil {
		return Enrollment{}, err
	}

	class, err := svc.repo.GetClass(ctx, data.ClassID)
	if err != nil {
		return Enrollment{}, err
	}
	student, err := svc.repo.GetStudent(ctx, data.StudentID)
	if err != nil {
		return Enrollment{}, err
	}
	if class.CurrentEnrollment >= class.MaxStudents {
		return Enrollment{}, ErrClassFull
	}
	exists, err := svc.repo.EnrollmentExists(ctx, student.ID, class.ID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "checking existing enrollment")
	}
	if exists {
		return Enrollment{}, ErrAlreadyEnrolled
	}

	now := core.NowFunc()
	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:      student.ID,
		ClassID:        class.ID,
		Status:         StatusEnrolled,
		EnrollmentDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	class.CurrentEnrollment++
	enr.Class = &class

	svc.notifier.Notify(ctx, notification.Payload{
		UserID:  student.UserID,
		Type:    notification.TypeEnrollmentConfirmed,
		Title:   "Enrollment Confirmed",
		Message: fmt.Sprintf("You have been enrolled in %s", enr.SubjectName()),
	})
	return enr, nil
}

func (svc *service) UpdateEnrollmentStatus(ctx context.Context, id string, data UpdateEnrollmentStatus) (Enrollment, error) {
	if err := svc.validate.Struct(data); err != nil {
		return Enrollment{}, err
	}
	enr, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if enr.Status == data.Status {
		return enr, nil
	}

	now := core.NowFunc()
	if err = svc.repo.SetEnrollmentStatus(ctx, enr.ID, data.Status, now); err != nil {
		return Enrollment{}, errors.Wrap(err, "setting enrollment status")
	}
	return svc.repo.GetEnrollment(ctx, enr.ID)
}

func (svc *service) StudentEnrollments(ctx context.Context, userID string) ([]Enrollment, error) {
	student, err := svc.repo.GetStudentByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryEnrollments(ctx, EnrollmentFilter{StudentID: student.ID})
}

// CreateGrade records an unpublished grade; its letter grade is computed from the percentage.
func (svc *service) CreateGrade(ctx context.Context, data NewGrade, gradedBy string) (Grade, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Grade{}, err
	}
	enr, err := svc.repo.GetEnrollment(ctx, data.EnrollmentID)
	if err != nil {
		return Grade{}, err
	}

	grade, err := svc.repo.CreateGrade(ctx, Grade{
		EnrollmentID:   enr.ID,
		GradedBy:       gradedBy,
		AssessmentType: data.AssessmentType,
		AssessmentName: data.AssessmentName,
		Score:          data.Score,
		MaxScore:       data.MaxScore,
		Weight:         data.Weight,
		LetterGrade:    LetterGrade(Percentage(data.Score, data.MaxScore)),
		Remarks:        data.Remarks,
		GradedAt:       core.NowFunc(),
	})
	return grade, errors.Wrap(err, "creating grade")
}

func (svc *service) PublishGrade(ctx context.Context, id string) (Grade, error) {
	grade, err := svc.repo.GetGrade(ctx, id)
	if err != nil {
		return Grade{}, err
	}
	enr, err := svc.repo.GetEnrollment(ctx, grade.EnrollmentID)
	if err != nil {
		return Grade{}, errors.Wrap(err, "finding grade enrollment")
	}

	grade, err = svc.repo.PublishGrade(ctx, grade.ID, core.NowFunc())
	if err != nil {
		return Grade{}, errors.Wrap(err, "publishing grade")
	}

	if enr.Student != nil {
		svc.notifier.Notify(ctx, notification.Payload{
			UserID:  enr.Student.UserID,
			Type:    notification.TypeGradePublished,
			Title:   "New Grade Published",
			Message: fmt.Sprintf("Your grade for %s in %s has been published", grade.AssessmentName, enr.SubjectName()),
		})
	}
	return grade, nil
}

// StudentGrades lists the enrollments of the student with their published grades only.
func (svc *service) StudentGrades(ctx context.Context, userID string) ([]Enrollment, error) {
	student, err := svc.repo.GetStudentByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryEnrollments(ctx, EnrollmentFilter{
		StudentID:           student.ID,
		WithGrades:          true,
		PublishedGradesOnly: true,
	})
}

// ClassGrades lists the enrollments of the class with all their grades.
func (svc *service) ClassGrades(ctx context.Context, classID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, EnrollmentFilter{ClassID: classID, WithGrades: true})
}

// CalculateFinalGrade computes and stores the final score and letter of the enrollment from its published grades.
func (svc *service) CalculateFinalGrade(ctx context.Context, enrollmentID string) (FinalGrade, error) {
	enr, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return FinalGrade{}, err
	}
	grades, err := svc.repo.QueryEnrollmentGrades(ctx, enr.ID)
	if err != nil {
		return FinalGrade{}, errors.Wrap(err, "querying enrollment grades")
	}

	score, ok := FinalScore(grades)
	if !ok {
		return FinalGrade{}, ErrNoGrades
	}
	letter := LetterGrade(score)
	if err = svc.repo.SetFinalGrade(ctx, enr.ID, score, letter, core.NowFunc()); err != nil {
		return FinalGrade{}, errors.Wrap(err, "setting final grade")
	}
	return FinalGrade{FinalScore: score, LetterGrade: letter, GPA: GPAPoints(letter)}, nil
}

// CalculateStudentGPA computes and stores the credit weighted GPA of the student's completed enrollments.
func (svc *service) CalculateStudentGPA(ctx context.Context, studentID string) (float64, error) {
	student, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return 0, err
	}
	grades, err := svc.repo.QueryCompletedGrades(ctx, student.ID)
	if err != nil {
		return 0, errors.Wrap(err, "querying completed grades")
	}

	gpa := WeightedGPA(grades)
	if err = svc.repo.SetStudentGPA(ctx, student.ID, gpa); err != nil {
		return 0, errors.Wrap(err, "setting student GPA")
	}
	return gpa, nil
}
