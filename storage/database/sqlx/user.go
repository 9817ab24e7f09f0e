package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

type (
	userRow struct {
		ID           string    `db:"id"`
		Email        string    `db:"email"`
		FirstName    string    `db:"first_name"`
		LastName     string    `db:"last_name"`
		Role         string    `db:"role"`
		IsActive     bool      `db:"is_active"`
		PasswordHash []byte    `db:"password_hash"`
		CreatedAt    time.Time `db:"created_at"`
		UpdatedAt    time.Time `db:"updated_at"`
	}

	studentRow struct {
		ID             string    `db:"id"`
		UserID         string    `db:"user_id"`
		StudentNumber  string    `db:"student_number"`
		EnrollmentDate time.Time `db:"enrollment_date"`
		Status         string    `db:"status"`
		CurrentGPA     float64   `db:"current_gpa"`
	}

	staffRow struct {
		ID         string    `db:"id"`
		UserID     string    `db:"user_id"`
		Teaching   bool      `db:"teaching"`
		EmployeeID string    `db:"employee_id"`
		Department string    `db:"department"`
		HireDate   time.Time `db:"hire_date"`
		Position   string    `db:"position"`
	}
)

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Role:         user.Role(r.Role),
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r studentRow) toStudent() user.Student {
	return user.Student{
		ID:             r.ID,
		UserID:         r.UserID,
		StudentNumber:  r.StudentNumber,
		EnrollmentDate: r.EnrollmentDate,
		Status:         user.StudentStatus(r.Status),
		CurrentGPA:     r.CurrentGPA,
	}
}

func (r staffRow) toProfile() user.Profile {
	s := user.Staff{
		ID:         r.ID,
		UserID:     r.UserID,
		EmployeeID: r.EmployeeID,
		Department: r.Department,
		HireDate:   r.HireDate,
		Position:   r.Position,
	}
	if r.Teaching {
		return &user.TeachingStaff{Staff: s}
	}
	return &user.NonTeachingStaff{Staff: s}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)", email)
	return exists, errors.Wrap(err, "checking email")
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, first_name, last_name, role, is_active, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			usr.ID, usr.Email, usr.FirstName, usr.LastName, string(usr.Role), usr.IsActive, usr.PasswordHash,
			usr.CreatedAt, usr.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "users_email_key") {
				return user.ErrEmailExists
			}
			return errors.Wrap(err, "inserting user")
		}

		switch p := usr.Profile.(type) {
		case *user.Student:
			p.ID, p.UserID = newID(), usr.ID
			_, err = tx.ExecContext(ctx, `
				INSERT INTO students (id, user_id, student_number, enrollment_date, status, current_gpa)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.ID, p.UserID, p.StudentNumber, p.EnrollmentDate, string(p.Status), p.CurrentGPA,
			)
		case *user.TeachingStaff:
			p.ID, p.UserID = newID(), usr.ID
			err = insertStaff(ctx, tx, p.Staff, true)
		case *user.NonTeachingStaff:
			p.ID, p.UserID = newID(), usr.ID
			err = insertStaff(ctx, tx, p.Staff, false)
		}
		return errors.Wrap(err, "inserting profile")
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func insertStaff(ctx context.Context, tx *sqlx.Tx, s user.Staff, teaching bool) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO staff (id, user_id, teaching, employee_id, department, hire_date, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, teaching, s.EmployeeID, s.Department, s.HireDate, s.Position,
	)
	return err
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.get(ctx, "SELECT * FROM users WHERE id = $1", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.get(ctx, "SELECT * FROM users WHERE email = $1", email)
}

func (repo *userRepository) get(ctx context.Context, q string, arg interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	usr := row.toUser()

	var err error
	switch usr.Role {
	case user.RoleStudent:
		var sr studentRow
		if err = repo.db.GetContext(ctx, &sr, "SELECT * FROM students WHERE user_id = $1", usr.ID); err == nil {
			s := sr.toStudent()
			usr.Profile = &s
		}
	case user.RoleTeachingStaff, user.RoleNonTeachingStaff:
		var sr staffRow
		if err = repo.db.GetContext(ctx, &sr, "SELECT * FROM staff WHERE user_id = $1", usr.ID); err == nil {
			usr.Profile = sr.toProfile()
		}
	}
	if err != nil && errors.Cause(err) != sql.ErrNoRows {
		return user.User{}, errors.Wrap(err, "selecting profile")
	}
	return usr, nil
}

func (repo *userRepository) SetPassword(ctx context.Context, id string, hash []byte) error {
	return repo.update(ctx, "UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1", id, hash, core.NowFunc())
}

func (repo *userRepository) SetActive(ctx context.Context, id string, active bool) error {
	return repo.update(ctx, "UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1", id, active, core.NowFunc())
}

func (repo *userRepository) update(ctx context.Context, q string, args ...interface{}) error {
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}
