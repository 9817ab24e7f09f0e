package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/user"
)

const classSelect = `
	SELECT c.id, c.subject_id, c.teacher_id, c.class_code, c.semester, c.academic_year, c.max_students,
	       c.current_enrollment, c.room, c.schedule, c.created_at,
	       s.code AS subject_code, s.name AS subject_name, s.description AS subject_description,
	       s.credits AS subject_credits, s.is_active AS subject_is_active,
	       t.user_id AS teacher_user_id, t.employee_id AS teacher_employee_id,
	       tu.first_name AS teacher_first_name, tu.last_name AS teacher_last_name, tu.email AS teacher_email
	FROM classes c
	JOIN subjects s ON s.id = c.subject_id
	JOIN staff t ON t.id = c.teacher_id
	JOIN users tu ON tu.id = t.user_id`

const personSelect = `
	SELECT st.id, st.user_id, st.student_number AS number, u.first_name, u.last_name, u.email
	FROM students st
	JOIN users u ON u.id = st.user_id`

type (
	classRow struct {
		ID                string    `db:"id"`
		SubjectID         string    `db:"subject_id"`
		TeacherID         string    `db:"teacher_id"`
		ClassCode         string    `db:"class_code"`
		Semester          string    `db:"semester"`
		AcademicYear      string    `db:"academic_year"`
		MaxStudents       int       `db:"max_students"`
		CurrentEnrollment int       `db:"current_enrollment"`
		Room              string    `db:"room"`
		Schedule          string    `db:"schedule"`
		CreatedAt         time.Time `db:"created_at"`

		SubjectCode        string `db:"subject_code"`
		SubjectName        string `db:"subject_name"`
		SubjectDescription string `db:"subject_description"`
		SubjectCredits     int    `db:"subject_credits"`
		SubjectIsActive    bool   `db:"subject_is_active"`

		TeacherUserID     string `db:"teacher_user_id"`
		TeacherEmployeeID string `db:"teacher_employee_id"`
		TeacherFirstName  string `db:"teacher_first_name"`
		TeacherLastName   string `db:"teacher_last_name"`
		TeacherEmail      string `db:"teacher_email"`
	}

	personRow struct {
		ID        string `db:"id"`
		UserID    string `db:"user_id"`
		Number    string `db:"number"`
		FirstName string `db:"first_name"`
		LastName  string `db:"last_name"`
		Email     string `db:"email"`
	}

	enrollmentRow struct {
		ID             string       `db:"id"`
		StudentID      string       `db:"student_id"`
		ClassID        string       `db:"class_id"`
		Status         string       `db:"status"`
		EnrollmentDate time.Time    `db:"enrollment_date"`
		FinalScore     null.Float64 `db:"final_score"`
		FinalGrade     null.String  `db:"final_grade"`
		CreatedAt      time.Time    `db:"created_at"`
		UpdatedAt      time.Time    `db:"updated_at"`
	}

	gradeRow struct {
		ID             string    `db:"id"`
		EnrollmentID   string    `db:"enrollment_id"`
		GradedBy       string    `db:"graded_by"`
		AssessmentType string    `db:"assessment_type"`
		AssessmentName string    `db:"assessment_name"`
		Score          float64   `db:"score"`
		MaxScore       float64   `db:"max_score"`
		Weight         float64   `db:"weight"`
		LetterGrade    string    `db:"letter_grade"`
		Remarks        string    `db:"remarks"`
		GradedAt       time.Time `db:"graded_at"`
		IsPublished    bool      `db:"is_published"`
		PublishedAt    null.Time `db:"published_at"`
	}

	creditedGradeRow struct {
		Letter  string `db:"letter"`
		Credits int    `db:"credits"`
	}
)

func (r classRow) toClass() academic.Class {
	return academic.Class{
		ID:                r.ID,
		SubjectID:         r.SubjectID,
		TeacherID:         r.TeacherID,
		ClassCode:         r.ClassCode,
		Semester:          r.Semester,
		AcademicYear:      r.AcademicYear,
		MaxStudents:       r.MaxStudents,
		CurrentEnrollment: r.CurrentEnrollment,
		Room:              r.Room,
		Schedule:          r.Schedule,
		CreatedAt:         r.CreatedAt,
		Subject: &academic.Subject{
			ID:          r.SubjectID,
			Code:        r.SubjectCode,
			Name:        r.SubjectName,
			Description: r.SubjectDescription,
			Credits:     r.SubjectCredits,
			IsActive:    r.SubjectIsActive,
		},
		Teacher: &academic.Person{
			ID:        r.TeacherID,
			UserID:    r.TeacherUserID,
			Number:    r.TeacherEmployeeID,
			FirstName: r.TeacherFirstName,
			LastName:  r.TeacherLastName,
			Email:     r.TeacherEmail,
		},
	}
}

func (r enrollmentRow) toEnrollment() academic.Enrollment {
	return academic.Enrollment{
		ID:             r.ID,
		StudentID:      r.StudentID,
		ClassID:        r.ClassID,
		Status:         academic.EnrollmentStatus(r.Status),
		EnrollmentDate: r.EnrollmentDate,
		FinalScore:     r.FinalScore,
		FinalGrade:     r.FinalGrade,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r gradeRow) toGrade() academic.Grade {
	return academic.Grade(r)
}

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *sqlx.DB) academic.Repository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) GetStudent(ctx context.Context, id string) (user.Student, error) {
	return repo.student(ctx, "SELECT * FROM students WHERE id = $1", id)
}

func (repo *academicRepository) GetStudentByUserID(ctx context.Context, userID string) (user.Student, error) {
	return repo.student(ctx, "SELECT * FROM students WHERE user_id = $1", userID)
}

func (repo *academicRepository) student(ctx context.Context, q string, arg string) (user.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.Student{}, user.ErrStudentNotFound
		}
		return user.Student{}, errors.Wrap(err, "selecting student")
	}
	return row.toStudent(), nil
}

func (repo *academicRepository) SetStudentGPA(ctx context.Context, studentID string, gpa float64) error {
	res, err := repo.db.ExecContext(ctx, "UPDATE students SET current_gpa = $2 WHERE id = $1", studentID, gpa)
	if err != nil {
		return errors.Wrap(err, "updating student GPA")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrStudentNotFound
	}
	return nil
}

func (repo *academicRepository) CreateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	s.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO subjects (id, code, name, description, credits, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Code, s.Name, s.Description, s.Credits, s.IsActive,
	)
	return s, errors.Wrap(err, "inserting subject")
}

func (repo *academicRepository) CreateClass(ctx context.Context, c academic.Class) (academic.Class, error) {
	c.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO classes (id, subject_id, teacher_id, class_code, semester, academic_year, max_students,
		                     current_enrollment, room, schedule, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.SubjectID, c.TeacherID, c.ClassCode, c.Semester, c.AcademicYear, c.MaxStudents,
		c.CurrentEnrollment, c.Room, c.Schedule, c.CreatedAt,
	)
	if err != nil {
		return academic.Class{}, errors.Wrap(err, "inserting class")
	}
	return repo.GetClass(ctx, c.ID)
}

func (repo *academicRepository) GetClass(ctx context.Context, id string) (academic.Class, error) {
	var row classRow
	if err := repo.db.GetContext(ctx, &row, classSelect+" WHERE c.id = $1", id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return academic.Class{}, academic.ErrClassNotFound
		}
		return academic.Class{}, errors.Wrap(err, "selecting class")
	}
	return row.toClass(), nil
}

func (repo *academicRepository) QueryAvailableClasses(ctx context.Context) ([]academic.Class, error) {
	var rows []classRow
	q := classSelect + " WHERE c.current_enrollment < c.max_students ORDER BY c.class_code"
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting available classes")
	}
	classes := make([]academic.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.toClass())
	}
	return classes, nil
}

func (repo *academicRepository) EnrollmentExists(ctx context.Context, studentID, classID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2)", studentID, classID)
	return exists, errors.Wrap(err, "checking enrollment")
}

func (repo *academicRepository) CreateEnrollment(ctx context.Context, e academic.Enrollment) (academic.Enrollment, error) {
	e.ID = newID()
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := takeSeat(ctx, tx, e.ClassID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO enrollments (id, student_id, class_id, status, enrollment_date, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.StudentID, e.ClassID, string(e.Status), e.EnrollmentDate, e.CreatedAt, e.UpdatedAt,
		)
		if isUniqueViolation(err, "enrollments_student_class_key") {
			return academic.ErrAlreadyEnrolled
		}
		return errors.Wrap(err, "inserting enrollment")
	})
	if err != nil {
		return academic.Enrollment{}, err
	}
	return repo.GetEnrollment(ctx, e.ID)
}

// takeSeat increments the enrollment count of the class unless it is full.
func takeSeat(ctx context.Context, tx *sqlx.Tx, classID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE classes SET current_enrollment = current_enrollment + 1
		WHERE id = $1 AND current_enrollment < max_students`, classID)
	if err != nil {
		return errors.Wrap(err, "taking seat")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "taking seat")
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err = tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1)", classID); err != nil {
		return errors.Wrap(err, "checking class")
	}
	if !exists {
		return academic.ErrClassNotFound
	}
	return academic.ErrClassFull
}

func releaseSeat(ctx context.Context, tx *sqlx.Tx, classID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE classes SET current_enrollment = current_enrollment - 1
		WHERE id = $1 AND current_enrollment > 0`, classID)
	return errors.Wrap(err, "releasing seat")
}

func (repo *academicRepository) GetEnrollment(ctx context.Context, id string) (academic.Enrollment, error) {
	var row enrollmentRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM enrollments WHERE id = $1", id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return academic.Enrollment{}, academic.ErrEnrollmentNotFound
		}
		return academic.Enrollment{}, errors.Wrap(err, "selecting enrollment")
	}
	enrs, err := repo.load(ctx, []enrollmentRow{row}, academic.EnrollmentFilter{})
	if err != nil {
		return academic.Enrollment{}, err
	}
	return enrs[0], nil
}

func (repo *academicRepository) QueryEnrollments(ctx context.Context, filter academic.EnrollmentFilter) ([]academic.Enrollment, error) {
	q := "SELECT * FROM enrollments WHERE ($1 = '' OR student_id::text = $1) AND ($2 = '' OR class_id::text = $2) ORDER BY enrollment_date, id"
	var rows []enrollmentRow
	if err := repo.db.SelectContext(ctx, &rows, q, filter.StudentID, filter.ClassID); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	return repo.load(ctx, rows, filter)
}

// load attaches the classes, students and (if requested) grades to the enrollment rows.
func (repo *academicRepository) load(ctx context.Context, rows []enrollmentRow, filter academic.EnrollmentFilter) ([]academic.Enrollment, error) {
	enrs := make([]academic.Enrollment, 0, len(rows))
	if len(rows) == 0 {
		return enrs, nil
	}
	ids, classIDs, studentIDs := make([]string, 0, len(rows)), make([]string, 0, len(rows)), make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
		classIDs = append(classIDs, r.ClassID)
		studentIDs = append(studentIDs, r.StudentID)
	}

	var classRows []classRow
	if err := repo.db.SelectContext(ctx, &classRows, classSelect+" WHERE c.id = ANY($1)", pq.Array(classIDs)); err != nil {
		return nil, errors.Wrap(err, "selecting enrollment classes")
	}
	classes := make(map[string]academic.Class, len(classRows))
	for _, r := range classRows {
		classes[r.ID] = r.toClass()
	}

	var personRows []personRow
	if err := repo.db.SelectContext(ctx, &personRows, personSelect+" WHERE st.id = ANY($1)", pq.Array(studentIDs)); err != nil {
		return nil, errors.Wrap(err, "selecting enrollment students")
	}
	students := make(map[string]academic.Person, len(personRows))
	for _, r := range personRows {
		students[r.ID] = academic.Person(r)
	}

	grades := make(map[string][]academic.Grade)
	if filter.WithGrades {
		q := "SELECT * FROM grades WHERE enrollment_id = ANY($1) AND (is_published OR NOT $2) ORDER BY graded_at DESC"
		var gradeRows []gradeRow
		if err := repo.db.SelectContext(ctx, &gradeRows, q, pq.Array(ids), filter.PublishedGradesOnly); err != nil {
			return nil, errors.Wrap(err, "selecting enrollment grades")
		}
		for _, r := range gradeRows {
			grades[r.EnrollmentID] = append(grades[r.EnrollmentID], r.toGrade())
		}
	}

	for _, r := range rows {
		e := r.toEnrollment()
		if c, ok := classes[e.ClassID]; ok {
			e.Class = &c
		}
		if s, ok := students[e.StudentID]; ok {
			e.Student = &s
		}
		if filter.WithGrades {
			e.Grades = grades[e.ID]
			if e.Grades == nil {
				e.Grades = []academic.Grade{}
			}
		}
		enrs = append(enrs, e)
	}
	return enrs, nil
}

func (repo *academicRepository) SetEnrollmentStatus(ctx context.Context, id string, status academic.EnrollmentStatus, at time.Time) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var row enrollmentRow
		if err := tx.GetContext(ctx, &row, "SELECT * FROM enrollments WHERE id = $1 FOR UPDATE", id); err != nil {
			if errors.Cause(err) == sql.ErrNoRows {
				return academic.ErrEnrollmentNotFound
			}
			return errors.Wrap(err, "selecting enrollment")
		}

		var err error
		switch held, holds := academic.EnrollmentStatus(row.Status).HoldsSeat(), status.HoldsSeat(); {
		case held && !holds:
			err = releaseSeat(ctx, tx, row.ClassID)
		case !held && holds:
			err = takeSeat(ctx, tx, row.ClassID)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1", id, string(status), at)
		return errors.Wrap(err, "updating enrollment status")
	})
}

func (repo *academicRepository) SetFinalGrade(ctx context.Context, id string, score float64, letter string, at time.Time) error {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE enrollments SET final_score = $2, final_grade = $3, updated_at = $4 WHERE id = $1", id, score, letter, at)
	if err != nil {
		return errors.Wrap(err, "updating final grade")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academic.ErrEnrollmentNotFound
	}
	return nil
}

func (repo *academicRepository) QueryCompletedGrades(ctx context.Context, studentID string) ([]academic.CreditedGrade, error) {
	var rows []creditedGradeRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT e.final_grade AS letter, s.credits
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		JOIN subjects s ON s.id = c.subject_id
		WHERE e.student_id = $1 AND e.status = $2 AND e.final_grade IS NOT NULL`,
		studentID, string(academic.StatusCompleted),
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting completed grades")
	}
	grades := make([]academic.CreditedGrade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, academic.CreditedGrade(r))
	}
	return grades, nil
}

func (repo *academicRepository) CreateGrade(ctx context.Context, g academic.Grade) (academic.Grade, error) {
	g.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO grades (id, enrollment_id, graded_by, assessment_type, assessment_name, score, max_score, weight,
		                    letter_grade, remarks, graded_at, is_published, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		g.ID, g.EnrollmentID, g.GradedBy, g.AssessmentType, g.AssessmentName, g.Score, g.MaxScore, g.Weight,
		g.LetterGrade, g.Remarks, g.GradedAt, g.IsPublished, g.PublishedAt,
	)
	return g, errors.Wrap(err, "inserting grade")
}

func (repo *academicRepository) GetGrade(ctx context.Context, id string) (academic.Grade, error) {
	var row gradeRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM grades WHERE id = $1", id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return academic.Grade{}, academic.ErrGradeNotFound
		}
		return academic.Grade{}, errors.Wrap(err, "selecting grade")
	}
	return row.toGrade(), nil
}

func (repo *academicRepository) PublishGrade(ctx context.Context, id string, at time.Time) (academic.Grade, error) {
	var row gradeRow
	err := repo.db.GetContext(ctx, &row,
		"UPDATE grades SET is_published = true, published_at = $2 WHERE id = $1 RETURNING *", id, at)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return academic.Grade{}, academic.ErrGradeNotFound
		}
		return academic.Grade{}, errors.Wrap(err, "publishing grade")
	}
	return row.toGrade(), nil
}

func (repo *academicRepository) QueryEnrollmentGrades(ctx context.Context, enrollmentID string) ([]academic.Grade, error) {
	var rows []gradeRow
	if err := repo.db.SelectContext(ctx, &rows,
		"SELECT * FROM grades WHERE enrollment_id = $1 ORDER BY graded_at DESC", enrollmentID); err != nil {
		return nil, errors.Wrap(err, "selecting grades")
	}
	grades := make([]academic.Grade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, r.toGrade())
	}
	return grades, nil
}
