package inmemdb

import (
	"context"

	"github.com/trezcool/chuo/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) EmailExists(_ context.Context, email string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.db.userIndex(func(u *user.User) bool { return u.Email == email })
	return ok, nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.userIndex(func(u *user.User) bool { return u.Email == usr.Email }); ok {
		return user.User{}, user.ErrEmailExists
	}
	usr.ID = newID()
	switch p := usr.Profile.(type) {
	case *user.Student:
		p.ID, p.UserID = newID(), usr.ID
	case *user.TeachingStaff:
		p.ID, p.UserID = newID(), usr.ID
	case *user.NonTeachingStaff:
		p.ID, p.UserID = newID(), usr.ID
	}
	usr.Profile = cloneProfile(usr.Profile)
	repo.db.users = append(repo.db.users, usr)
	return cloneUser(usr), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	return repo.get(func(u *user.User) bool { return u.ID == id })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return repo.get(func(u *user.User) bool { return u.Email == email })
}

func (repo *userRepository) get(match func(u *user.User) bool) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if i, ok := repo.db.userIndex(match); ok {
		return cloneUser(repo.db.users[i]), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) SetPassword(_ context.Context, id string, hash []byte) error {
	return repo.update(id, func(u *user.User) { u.PasswordHash = hash })
}

func (repo *userRepository) SetActive(_ context.Context, id string, active bool) error {
	return repo.update(id, func(u *user.User) { u.IsActive = active })
}

func (repo *userRepository) update(id string, set func(u *user.User)) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	i, ok := repo.db.userIndex(func(u *user.User) bool { return u.ID == id })
	if !ok {
		return user.ErrNotFound
	}
	set(&repo.db.users[i])
	return nil
}

// userIndex must be called with the lock held.
func (db *DB) userIndex(match func(u *user.User) bool) (int, bool) {
	for i := range db.users {
		if match(&db.users[i]) {
			return i, true
		}
	}
	return 0, false
}

// studentIndex must be called with the lock held.
func (db *DB) studentIndex(match func(s *user.Student) bool) (int, *user.Student, bool) {
	for i := range db.users {
		if s, ok := db.users[i].StudentProfile(); ok && match(s) {
			return i, s, true
		}
	}
	return 0, nil, false
}

func cloneUser(u user.User) user.User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	u.Profile = cloneProfile(u.Profile)
	return u
}

func cloneProfile(p user.Profile) user.Profile {
	switch v := p.(type) {
	case *user.Student:
		c := *v
		return &c
	case *user.TeachingStaff:
		c := *v
		return &c
	case *user.NonTeachingStaff:
		c := *v
		return &c
	}
	return nil
}
