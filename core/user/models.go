package user

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/chuo/core"
)

type Role string

// Roles
const (
	RoleAdmin            Role = "ADMIN"
	RoleTeachingStaff    Role = "TEACHING_STAFF"
	RoleNonTeachingStaff Role = "NON_TEACHING_STAFF"
	RoleStudent          Role = "STUDENT"
)

var AllRoles = []Role{RoleAdmin, RoleTeachingStaff, RoleNonTeachingStaff, RoleStudent}

func (r Role) IsValid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole accepts any case and dashes in place of underscores.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ReplaceAll(strings.ToUpper(core.CleanString(s)), "-", "_"))
	return r, r.IsValid()
}

type StudentStatus string

const (
	StudentActive    StudentStatus = "ACTIVE"
	StudentInactive  StudentStatus = "INACTIVE"
	StudentGraduated StudentStatus = "GRADUATED"
	StudentSuspended StudentStatus = "SUSPENDED"
)

type (
	// Profile is the role specific part of a User.
	// The variants are Student, TeachingStaff and NonTeachingStaff; admins have none.
	Profile interface {
		Role() Role
		profile()
	}

	Student struct {
		ID             string        `json:"id"`
		UserID         string        `json:"userId"`
		StudentNumber  string        `json:"studentNumber"`
		EnrollmentDate time.Time     `json:"enrollmentDate"`
		Status         StudentStatus `json:"status"`
		CurrentGPA     float64       `json:"currentGPA"`
	}

	Staff struct {
		ID         string    `json:"id"`
		UserID     string    `json:"userId"`
		EmployeeID string    `json:"employeeId"`
		Department string    `json:"department"`
		HireDate   time.Time `json:"hireDate"`
		Position   string    `json:"position"`
	}

	TeachingStaff struct {
		Staff
	}

	NonTeachingStaff struct {
		Staff
	}
)

func (*Student) Role() Role          { return RoleStudent }
func (*TeachingStaff) Role() Role    { return RoleTeachingStaff }
func (*NonTeachingStaff) Role() Role { return RoleNonTeachingStaff }

func (*Student) profile()          {}
func (*TeachingStaff) profile()    {}
func (*NonTeachingStaff) profile() {}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
	Profile      Profile   `json:"-"`
}

// MarshalJSON nests the profile under the key of its variant.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	out := struct {
		plain
		Student          *Student          `json:"student,omitempty"`
		TeachingStaff    *TeachingStaff    `json:"teachingStaff,omitempty"`
		NonTeachingStaff *NonTeachingStaff `json:"nonTeachingStaff,omitempty"`
	}{plain: plain(u)}

	switch p := u.Profile.(type) {
	case *Student:
		out.Student = p
	case *TeachingStaff:
		out.TeachingStaff = p
	case *NonTeachingStaff:
		out.NonTeachingStaff = p
	}
	return json.Marshal(out)
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// CheckProfile ensures the attached profile variant matches the role tag.
func (u *User) CheckProfile() error {
	if u.Role == RoleAdmin {
		if u.Profile != nil {
			return ErrProfileMismatch
		}
		return nil
	}
	if u.Profile == nil || u.Profile.Role() != u.Role {
		return ErrProfileMismatch
	}
	return nil
}

func (u *User) StudentProfile() (*Student, bool) {
	s, ok := u.Profile.(*Student)
	return s, ok
}

func (u *User) TeachingStaffProfile() (*TeachingStaff, bool) {
	s, ok := u.Profile.(*TeachingStaff)
	return s, ok
}

// NewUser contains information needed to create a new User.
// Student fields apply to RoleStudent, staff fields to both staff roles; the matching number is required.
type NewUser struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"required,notblank"`
	LastName  string `json:"lastName" validate:"required,notblank"`
	Role      Role   `json:"role" validate:"required,role"`

	StudentNumber  string    `json:"studentNumber"`
	EnrollmentDate time.Time `json:"enrollmentDate"`

	EmployeeID string    `json:"employeeId"`
	Department string    `json:"department"`
	HireDate   time.Time `json:"hireDate"`
	Position   string    `json:"position"`
}

func (nu *NewUser) Clean() {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.StudentNumber = core.CleanString(nu.StudentNumber)
	nu.EmployeeID = core.CleanString(nu.EmployeeID)
	nu.Department = core.CleanString(nu.Department)
	nu.Position = core.CleanString(nu.Position)
}

// newProfile builds the profile variant matching nu.Role.
func (nu *NewUser) newProfile(now time.Time) (Profile, error) {
	staff := func() Staff {
		hired := nu.HireDate
		if hired.IsZero() {
			hired = now
		}
		return Staff{EmployeeID: nu.EmployeeID, Department: nu.Department, HireDate: hired.UTC(), Position: nu.Position}
	}

	switch nu.Role {
	case RoleStudent:
		enrolled := nu.EnrollmentDate
		if enrolled.IsZero() {
			enrolled = now
		}
		return &Student{StudentNumber: nu.StudentNumber, EnrollmentDate: enrolled.UTC(), Status: StudentActive}, nil
	case RoleTeachingStaff:
		return &TeachingStaff{Staff: staff()}, nil
	case RoleNonTeachingStaff:
		return &NonTeachingStaff{Staff: staff()}, nil
	case RoleAdmin:
		return nil, nil
	}
	return nil, ErrInvalidRole
}

type LoginCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (lc *LoginCredentials) Clean() {
	lc.Email = core.CleanString(lc.Email, true /* lower */)
}

// ChangePassword is checked against the attributes of the user changing it.
type ChangePassword struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`

	email string
	name  string
}
