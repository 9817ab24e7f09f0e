package user

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

var (
	// errors
	ErrNotFound           = core.NewError(core.KindNotFound, "User not found")
	ErrStudentNotFound    = core.NewError(core.KindNotFound, "Student not found")
	ErrStaffNotFound      = core.NewError(core.KindNotFound, "Teaching staff not found")
	ErrInvalidCredentials = core.NewError(core.KindInvalidCredentials, "Invalid credentials")
	ErrInvalidToken       = core.NewError(core.KindInvalidToken, "Invalid or expired token")
	ErrIncorrectPassword  = core.NewError(core.KindInvalid, "Current password is incorrect")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrProfileMismatch    = errors.New("user profile does not match role")
	ErrInvalidRole        = errors.New("invalid user role")
)

type (
	// Repository is the credential store.
	Repository interface {
		EmailExists(ctx context.Context, email string) (bool, error)
		// CreateUser persists the user together with its profile, assigning all IDs.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		SetPassword(ctx context.Context, id string, hash []byte) error
		SetActive(ctx context.Context, id string, active bool) error
	}

	Service interface {
		Create(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, creds LoginCredentials) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		ChangePassword(ctx context.Context, id string, data ChangePassword) error
		ResetPassword(ctx context.Context, email, pwd string) (User, error)
		SetActive(ctx context.Context, id string, active bool) error
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{repo: repo, validate: validate}
}

// Create validates nu and creates the user with the profile matching its role.
func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}

	exists, err := svc.repo.EmailExists(ctx, nu.Email)
	if err != nil {
		return User{}, errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}

	now := core.NowFunc()
	profile, err := nu.newProfile(now)
	if err != nil {
		return User{}, err
	}
	usr := User{
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		Profile:   profile,
	}
	if err := usr.CheckProfile(); err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err = svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

// Authenticate fails with ErrInvalidCredentials for unknown or inactive users and wrong passwords alike.
func (svc *service) Authenticate(ctx context.Context, creds LoginCredentials) (User, error) {
	creds.Clean()
	if err := svc.validate.Struct(creds); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if !usr.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if err = usr.CheckPassword(creds.Password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) ChangePassword(ctx context.Context, id string, data ChangePassword) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	data.email = usr.Email
	data.name = usr.FullName()
	if err = svc.validate.Struct(data); err != nil {
		return err
	}
	if err = usr.CheckPassword(data.CurrentPassword); err != nil {
		return ErrIncorrectPassword
	}

	if err = usr.SetPassword(data.NewPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return errors.Wrap(svc.repo.SetPassword(ctx, usr.ID, usr.PasswordHash), "updating password")
}

// ResetPassword sets pwd without checking the current one. Used by the admin CLI.
func (svc *service) ResetPassword(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	if err = svc.repo.SetPassword(ctx, usr.ID, usr.PasswordHash); err != nil {
		return User{}, errors.Wrap(err, "updating password")
	}
	return usr, nil
}

func (svc *service) SetActive(ctx context.Context, id string, active bool) error {
	return svc.repo.SetActive(ctx, id, active)
}
