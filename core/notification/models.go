package notification

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
)

type Type string

const (
	TypeEnrollmentConfirmed Type = "ENROLLMENT_CONFIRMED"
	TypeGradePublished      Type = "GRADE_PUBLISHED"
	TypeAttendanceMarked    Type = "ATTENDANCE_MARKED"
	TypeGeneral             Type = "GENERAL"
)

var ErrNotFound = core.NewError(core.KindNotFound, "Notification not found")

// Payload is what gets dispatched to every sink.
type Payload struct {
	UserID    string    `json:"-"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification is the persisted form of a Payload.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
	ReadAt    null.Time `json:"readAt"`
}
