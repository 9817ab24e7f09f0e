package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core/attendance"
)

type (
	sessionRow struct {
		ID          string    `db:"id"`
		ClassID     string    `db:"class_id"`
		SessionDate time.Time `db:"session_date"`
		StartTime   time.Time `db:"start_time"`
		EndTime     time.Time `db:"end_time"`
		Room        string    `db:"room"`
		Topic       string    `db:"topic"`
		CreatedAt   time.Time `db:"created_at"`
	}

	qrCodeRow struct {
		ID             string    `db:"id"`
		ClassSessionID string    `db:"class_session_id"`
		GeneratedBy    string    `db:"generated_by"`
		Code           string    `db:"code"`
		ValidFrom      time.Time `db:"valid_from"`
		ValidUntil     time.Time `db:"valid_until"`
		IsActive       bool      `db:"is_active"`
		CreatedAt      time.Time `db:"created_at"`
	}

	recordRow struct {
		ID             string      `db:"id"`
		EnrollmentID   string      `db:"enrollment_id"`
		ClassSessionID string      `db:"class_session_id"`
		Date           time.Time   `db:"date"`
		Status         string      `db:"status"`
		QRCodeUsed     null.String `db:"qr_code_used"`
		MarkedAt       time.Time   `db:"marked_at"`
		MarkedBy       string      `db:"marked_by"`
		LocationData   null.JSON   `db:"location_data"`
	}
)

func (r recordRow) toRecord() attendance.Record {
	return attendance.Record{
		ID:             r.ID,
		EnrollmentID:   r.EnrollmentID,
		ClassSessionID: r.ClassSessionID,
		Date:           r.Date,
		Status:         attendance.Status(r.Status),
		QRCodeUsed:     r.QRCodeUsed,
		MarkedAt:       r.MarkedAt,
		MarkedBy:       r.MarkedBy,
		LocationData:   r.LocationData,
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateSession(ctx context.Context, s attendance.ClassSession) (attendance.ClassSession, error) {
	s.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, class_id, session_date, start_time, end_time, room, topic, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.ClassID, s.SessionDate, s.StartTime, s.EndTime, s.Room, s.Topic, s.CreatedAt,
	)
	return s, errors.Wrap(err, "inserting class session")
}

func (repo *attendanceRepository) GetSession(ctx context.Context, id string) (attendance.ClassSession, error) {
	var row sessionRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM class_sessions WHERE id = $1", id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return attendance.ClassSession{}, attendance.ErrSessionNotFound
		}
		return attendance.ClassSession{}, errors.Wrap(err, "selecting class session")
	}
	return attendance.ClassSession(row), nil
}

func (repo *attendanceRepository) QuerySessions(ctx context.Context, classID string) ([]attendance.ClassSession, error) {
	var rows []sessionRow
	if err := repo.db.SelectContext(ctx, &rows,
		"SELECT * FROM class_sessions WHERE class_id = $1 ORDER BY session_date, start_time", classID); err != nil {
		return nil, errors.Wrap(err, "selecting class sessions")
	}
	sessions := make([]attendance.ClassSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, attendance.ClassSession(r))
	}
	return sessions, nil
}

func (repo *attendanceRepository) CreateQRCode(ctx context.Context, qr attendance.QRCode) (attendance.QRCode, error) {
	qr.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO qr_codes (id, class_session_id, generated_by, code, valid_from, valid_until, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		qr.ID, qr.ClassSessionID, qr.GeneratedBy, qr.Code, qr.ValidFrom, qr.ValidUntil, qr.IsActive, qr.CreatedAt,
	)
	return qr, errors.Wrap(err, "inserting QR code")
}

func (repo *attendanceRepository) GetActiveQRCode(ctx context.Context, code string) (attendance.QRCode, error) {
	var row qrCodeRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM qr_codes WHERE code = $1 AND is_active", code); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return attendance.QRCode{}, attendance.ErrInvalidCode
		}
		return attendance.QRCode{}, errors.Wrap(err, "selecting QR code")
	}
	return attendance.QRCode(row), nil
}

func (repo *attendanceRepository) DeactivateExpiredQRCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx, "UPDATE qr_codes SET is_active = false WHERE is_active AND valid_until < $1", now)
	if err != nil {
		return 0, errors.Wrap(err, "deactivating QR codes")
	}
	return res.RowsAffected()
}

func (repo *attendanceRepository) RecordExists(ctx context.Context, enrollmentID, sessionID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM attendance_records WHERE enrollment_id = $1 AND class_session_id = $2)`,
		enrollmentID, sessionID,
	)
	return exists, errors.Wrap(err, "checking attendance record")
}

func (repo *attendanceRepository) CreateRecord(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	r.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, enrollment_id, class_session_id, date, status, qr_code_used, marked_at,
		                                marked_by, location_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.EnrollmentID, r.ClassSessionID, r.Date, string(r.Status), r.QRCodeUsed, r.MarkedAt,
		r.MarkedBy, r.LocationData,
	)
	if err != nil {
		if isUniqueViolation(err, "attendance_records_enrollment_session_key") {
			return attendance.Record{}, attendance.ErrAlreadyMarked
		}
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	if sess, err := repo.GetSession(ctx, r.ClassSessionID); err == nil {
		r.ClassSession = &sess
	}
	return r, nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, enrollmentIDs ...string) ([]attendance.Record, error) {
	recs := make([]attendance.Record, 0)
	if len(enrollmentIDs) == 0 {
		return recs, nil
	}

	var rows []recordRow
	if err := repo.db.SelectContext(ctx, &rows,
		"SELECT * FROM attendance_records WHERE enrollment_id = ANY($1) ORDER BY date DESC", pq.Array(enrollmentIDs)); err != nil {
		return nil, errors.Wrap(err, "selecting attendance records")
	}
	sessionIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		sessionIDs = append(sessionIDs, r.ClassSessionID)
	}

	var sessionRows []sessionRow
	if err := repo.db.SelectContext(ctx, &sessionRows,
		"SELECT * FROM class_sessions WHERE id = ANY($1)", pq.Array(sessionIDs)); err != nil {
		return nil, errors.Wrap(err, "selecting record sessions")
	}
	sessions := make(map[string]attendance.ClassSession, len(sessionRows))
	for _, s := range sessionRows {
		sessions[s.ID] = attendance.ClassSession(s)
	}

	for _, r := range rows {
		rec := r.toRecord()
		if s, ok := sessions[rec.ClassSessionID]; ok {
			rec.ClassSession = &s
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
