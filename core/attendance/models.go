package attendance

import (
	"encoding/json"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/academic"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusExcused Status = "EXCUSED"
)

var (
	// errors
	ErrSessionNotFound = core.NewError(core.KindNotFound, "Class session not found")
	ErrInvalidCode     = core.NewError(core.KindInvalid, "Invalid QR code")
	ErrCodeExpired     = core.NewError(core.KindInvalid, "QR code expired")
	ErrAlreadyMarked   = core.NewError(core.KindConflict, "Attendance already marked")
)

type (
	ClassSession struct {
		ID          string    `json:"id"`
		ClassID     string    `json:"classId"`
		SessionDate time.Time `json:"sessionDate"`
		StartTime   time.Time `json:"startTime"`
		EndTime     time.Time `json:"endTime"`
		Room        string    `json:"room"`
		Topic       string    `json:"topic"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	QRCode struct {
		ID             string    `json:"id"`
		ClassSessionID string    `json:"classSessionId"`
		GeneratedBy    string    `json:"generatedBy"`
		Code           string    `json:"code"`
		ValidFrom      time.Time `json:"validFrom"`
		ValidUntil     time.Time `json:"validUntil"`
		IsActive       bool      `json:"isActive"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	Record struct {
		ID             string      `json:"id"`
		EnrollmentID   string      `json:"enrollmentId"`
		ClassSessionID string      `json:"classSessionId"`
		Date           time.Time   `json:"date"`
		Status         Status      `json:"status"`
		QRCodeUsed     null.String `json:"qrCodeUsed"`
		MarkedAt       time.Time   `json:"markedAt"`
		MarkedBy       string      `json:"markedBy"`
		LocationData   null.JSON   `json:"locationData"`

		ClassSession *ClassSession `json:"classSession,omitempty"`
	}

	// EnrollmentAttendance is an enrollment with its attendance records, date desc.
	EnrollmentAttendance struct {
		academic.Enrollment
		AttendanceRecords []Record `json:"attendanceRecords"`
	}

	// GeneratedCode is a new QR code with its PNG image as a data URL.
	GeneratedCode struct {
		QRCode QRCode `json:"qrCode"`
		Image  string `json:"qrCodeImage"`
	}
)

// ValidAt reports whether the validity window of the code contains t.
func (qr QRCode) ValidAt(t time.Time) bool {
	return !(t.Before(qr.ValidFrom) || t.After(qr.ValidUntil))
}

type NewClassSession struct {
	ClassID     string    `json:"classId" validate:"required,uuid"`
	SessionDate time.Time `json:"sessionDate" validate:"required"`
	StartTime   time.Time `json:"startTime" validate:"required"`
	EndTime     time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	Room        string    `json:"room"`
	Topic       string    `json:"topic"`
}

func (ns *NewClassSession) Clean() {
	ns.ClassID = core.CleanString(ns.ClassID, true /* lower */)
	ns.Room = core.CleanString(ns.Room)
	ns.Topic = core.CleanString(ns.Topic)
}

type NewCode struct {
	ClassSessionID string `json:"classSessionId" validate:"required,uuid"`
}

type MarkRequest struct {
	QRCode         string          `json:"qrCode" validate:"required"`
	EnrollmentID   string          `json:"enrollmentId" validate:"required,uuid"`
	ClassSessionID string          `json:"classSessionId" validate:"required,uuid"`
	LocationData   json.RawMessage `json:"locationData"`
}

func (mr *MarkRequest) Clean() {
	mr.QRCode = core.CleanString(mr.QRCode, true /* lower */)
	mr.EnrollmentID = core.CleanString(mr.EnrollmentID, true /* lower */)
	mr.ClassSessionID = core.CleanString(mr.ClassSessionID, true /* lower */)
}

// Marker is the user marking attendance.
type Marker struct {
	UserID    string
	IsStudent bool
}
