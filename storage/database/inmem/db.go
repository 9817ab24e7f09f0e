// Package inmemdb is an in-memory implementation of the repositories, used by tests.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
)

// DB holds every table behind a single lock, so multi-table writes are atomic.
type DB struct {
	mu sync.RWMutex

	users         []user.User
	subjects      []academic.Subject
	classes       []academic.Class
	enrollments   []academic.Enrollment
	grades        []academic.Grade
	sessions      []attendance.ClassSession
	qrCodes       []attendance.QRCode
	records       []attendance.Record
	notifications []notification.Notification
}

func Open() *DB {
	return &DB{}
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.users = nil
	db.subjects = nil
	db.classes = nil
	db.enrollments = nil
	db.grades = nil
	db.sessions = nil
	db.qrCodes = nil
	db.records = nil
	db.notifications = nil
}

func newID() string {
	return uuid.New().String()
}
