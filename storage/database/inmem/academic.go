package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/user"
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) GetStudent(_ context.Context, id string) (user.Student, error) {
	return repo.student(func(s *user.Student) bool { return s.ID == id })
}

func (repo *academicRepository) GetStudentByUserID(_ context.Context, userID string) (user.Student, error) {
	return repo.student(func(s *user.Student) bool { return s.UserID == userID })
}

func (repo *academicRepository) student(match func(s *user.Student) bool) (user.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if _, s, ok := repo.db.studentIndex(match); ok {
		return *s, nil
	}
	return user.Student{}, user.ErrStudentNotFound
}

func (repo *academicRepository) SetStudentGPA(_ context.Context, studentID string, gpa float64) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	_, s, ok := repo.db.studentIndex(func(s *user.Student) bool { return s.ID == studentID })
	if !ok {
		return user.ErrStudentNotFound
	}
	s.CurrentGPA = gpa
	return nil
}

func (repo *academicRepository) CreateSubject(_ context.Context, s academic.Subject) (academic.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.subjects = append(repo.db.subjects, s)
	return s, nil
}

func (repo *academicRepository) CreateClass(_ context.Context, c academic.Class) (academic.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c.ID = newID()
	c.Subject, c.Teacher = nil, nil
	repo.db.classes = append(repo.db.classes, c)
	return repo.db.loadClass(c), nil
}

func (repo *academicRepository) GetClass(_ context.Context, id string) (academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	i, ok := repo.db.classIndex(id)
	if !ok {
		return academic.Class{}, academic.ErrClassNotFound
	}
	return repo.db.loadClass(repo.db.classes[i]), nil
}

func (repo *academicRepository) QueryAvailableClasses(_ context.Context) ([]academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]academic.Class, 0, len(repo.db.classes))
	for _, c := range repo.db.classes {
		if c.CurrentEnrollment < c.MaxStudents {
			classes = append(classes, repo.db.loadClass(c))
		}
	}
	return classes, nil
}

func (repo *academicRepository) EnrollmentExists(_ context.Context, studentID, classID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.db.enrollmentIndex(func(e *academic.Enrollment) bool {
		return e.StudentID == studentID && e.ClassID == classID
	})
	return ok, nil
}

func (repo *academicRepository) CreateEnrollment(_ context.Context, e academic.Enrollment) (academic.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ci, ok := repo.db.classIndex(e.ClassID)
	if !ok {
		return academic.Enrollment{}, academic.ErrClassNotFound
	}
	class := &repo.db.classes[ci]
	if class.CurrentEnrollment >= class.MaxStudents {
		return academic.Enrollment{}, academic.ErrClassFull
	}
	if _, dup := repo.db.enrollmentIndex(func(o *academic.Enrollment) bool {
		return o.StudentID == e.StudentID && o.ClassID == e.ClassID
	}); dup {
		return academic.Enrollment{}, academic.ErrAlreadyEnrolled
	}

	class.CurrentEnrollment++
	e.ID = newID()
	e.Class, e.Student, e.Grades = nil, nil, nil
	repo.db.enrollments = append(repo.db.enrollments, e)
	return repo.db.loadEnrollment(e), nil
}

func (repo *academicRepository) GetEnrollment(_ context.Context, id string) (academic.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	i, ok := repo.db.enrollmentIndex(func(e *academic.Enrollment) bool { return e.ID == id })
	if !ok {
		return academic.Enrollment{}, academic.ErrEnrollmentNotFound
	}
	return repo.db.loadEnrollment(repo.db.enrollments[i]), nil
}

func (repo *academicRepository) QueryEnrollments(_ context.Context, filter academic.EnrollmentFilter) ([]academic.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	enrs := make([]academic.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if (filter.StudentID != "" && e.StudentID != filter.StudentID) ||
			(filter.ClassID != "" && e.ClassID != filter.ClassID) {
			continue
		}
		e = repo.db.loadEnrollment(e)
		if filter.WithGrades {
			e.Grades = repo.db.enrollmentGrades(e.ID, filter.PublishedGradesOnly)
		}
		enrs = append(enrs, e)
	}
	return enrs, nil
}

func (repo *academicRepository) SetEnrollmentStatus(_ context.Context, id string, status academic.EnrollmentStatus, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	i, ok := repo.db.enrollmentIndex(func(e *academic.Enrollment) bool { return e.ID == id })
	if !ok {
		return academic.ErrEnrollmentNotFound
	}
	enr := &repo.db.enrollments[i]
	ci, ok := repo.db.classIndex(enr.ClassID)
	if !ok {
		return academic.ErrClassNotFound
	}
	class := &repo.db.classes[ci]

	switch held, holds := enr.Status.HoldsSeat(), status.HoldsSeat(); {
	case held && !holds:
		class.CurrentEnrollment--
	case !held && holds:
		if class.CurrentEnrollment >= class.MaxStudents {
			return academic.ErrClassFull
		}
		class.CurrentEnrollment++
	}
	enr.Status = status
	enr.UpdatedAt = at
	return nil
}

func (repo *academicRepository) SetFinalGrade(_ context.Context, id string, score float64, letter string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	i, ok := repo.db.enrollmentIndex(func(e *academic.Enrollment) bool { return e.ID == id })
	if !ok {
		return academic.ErrEnrollmentNotFound
	}
	enr := &repo.db.enrollments[i]
	enr.FinalScore = null.Float64From(score)
	enr.FinalGrade = null.StringFrom(letter)
	enr.UpdatedAt = at
	return nil
}

func (repo *academicRepository) QueryCompletedGrades(_ context.Context, studentID string) ([]academic.CreditedGrade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var grades []academic.CreditedGrade
	for _, e := range repo.db.enrollments {
		if e.StudentID != studentID || e.Status != academic.StatusCompleted || !e.FinalGrade.Valid {
			continue
		}
		e = repo.db.loadEnrollment(e)
		var credits int
		if e.Class != nil && e.Class.Subject != nil {
			credits = e.Class.Subject.Credits
		}
		grades = append(grades, academic.CreditedGrade{Letter: e.FinalGrade.String, Credits: credits})
	}
	return grades, nil
}

func (repo *academicRepository) CreateGrade(_ context.Context, g academic.Grade) (academic.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.enrollmentIndex(func(e *academic.Enrollment) bool { return e.ID == g.EnrollmentID }); !ok {
		return academic.Grade{}, academic.ErrEnrollmentNotFound
	}
	g.ID = newID()
	repo.db.grades = append(repo.db.grades, g)
	return g, nil
}

func (repo *academicRepository) GetGrade(_ context.Context, id string) (academic.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if i, ok := repo.db.gradeIndex(id); ok {
		return repo.db.grades[i], nil
	}
	return academic.Grade{}, academic.ErrGradeNotFound
}

func (repo *academicRepository) PublishGrade(_ context.Context, id string, at time.Time) (academic.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	i, ok := repo.db.gradeIndex(id)
	if !ok {
		return academic.Grade{}, academic.ErrGradeNotFound
	}
	g := &repo.db.grades[i]
	g.IsPublished = true
	g.PublishedAt = null.TimeFrom(at)
	return *g, nil
}

func (repo *academicRepository) QueryEnrollmentGrades(_ context.Context, enrollmentID string) ([]academic.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.enrollmentGrades(enrollmentID, false), nil
}

// The helpers below must be called with the lock held.

func (db *DB) classIndex(id string) (int, bool) {
	for i := range db.classes {
		if db.classes[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (db *DB) enrollmentIndex(match func(e *academic.Enrollment) bool) (int, bool) {
	for i := range db.enrollments {
		if match(&db.enrollments[i]) {
			return i, true
		}
	}
	return 0, false
}

func (db *DB) gradeIndex(id string) (int, bool) {
	for i := range db.grades {
		if db.grades[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (db *DB) loadClass(c academic.Class) academic.Class {
	for i := range db.subjects {
		if db.subjects[i].ID == c.SubjectID {
			s := db.subjects[i]
			c.Subject = &s
			break
		}
	}
	for i := range db.users {
		if t, ok := db.users[i].TeachingStaffProfile(); ok && t.ID == c.TeacherID {
			u := db.users[i]
			c.Teacher = &academic.Person{
				ID: t.ID, UserID: u.ID, Number: t.EmployeeID,
				FirstName: u.FirstName, LastName: u.LastName, Email: u.Email,
			}
			break
		}
	}
	return c
}

func (db *DB) loadEnrollment(e academic.Enrollment) academic.Enrollment {
	if i, ok := db.classIndex(e.ClassID); ok {
		c := db.loadClass(db.classes[i])
		e.Class = &c
	}
	if i, s, ok := db.studentIndex(func(s *user.Student) bool { return s.ID == e.StudentID }); ok {
		u := db.users[i]
		e.Student = &academic.Person{
			ID: s.ID, UserID: u.ID, Number: s.StudentNumber,
			FirstName: u.FirstName, LastName: u.LastName, Email: u.Email,
		}
	}
	return e
}

func (db *DB) enrollmentGrades(enrollmentID string, publishedOnly bool) []academic.Grade {
	grades := make([]academic.Grade, 0)
	for _, g := range db.grades {
		if g.EnrollmentID == enrollmentID && (g.IsPublished || !publishedOnly) {
			grades = append(grades, g)
		}
	}
	sort.SliceStable(grades, func(i, j int) bool { return grades[i].GradedAt.After(grades[j].GradedAt) })
	return grades
}
