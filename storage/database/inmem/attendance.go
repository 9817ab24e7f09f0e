package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/chuo/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateSession(_ context.Context, s attendance.ClassSession) (attendance.ClassSession, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.sessions = append(repo.db.sessions, s)
	return s, nil
}

func (repo *attendanceRepository) GetSession(_ context.Context, id string) (attendance.ClassSession, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.session(id); ok {
		return s, nil
	}
	return attendance.ClassSession{}, attendance.ErrSessionNotFound
}

func (repo *attendanceRepository) QuerySessions(_ context.Context, classID string) ([]attendance.ClassSession, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sessions := make([]attendance.ClassSession, 0)
	for _, s := range repo.db.sessions {
		if s.ClassID == classID {
			sessions = append(sessions, s)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].SessionDate.Equal(sessions[j].SessionDate) {
			return sessions[i].SessionDate.Before(sessions[j].SessionDate)
		}
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}

func (repo *attendanceRepository) CreateQRCode(_ context.Context, qr attendance.QRCode) (attendance.QRCode, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	qr.ID = newID()
	repo.db.qrCodes = append(repo.db.qrCodes, qr)
	return qr, nil
}

func (repo *attendanceRepository) GetActiveQRCode(_ context.Context, code string) (attendance.QRCode, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, qr := range repo.db.qrCodes {
		if qr.Code == code && qr.IsActive {
			return qr, nil
		}
	}
	return attendance.QRCode{}, attendance.ErrInvalidCode
}

func (repo *attendanceRepository) DeactivateExpiredQRCodes(_ context.Context, now time.Time) (int64, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int64
	for i := range repo.db.qrCodes {
		if qr := &repo.db.qrCodes[i]; qr.IsActive && qr.ValidUntil.Before(now) {
			qr.IsActive = false
			n++
		}
	}
	return n, nil
}

func (repo *attendanceRepository) RecordExists(_ context.Context, enrollmentID, sessionID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.recordExists(enrollmentID, sessionID), nil
}

func (repo *attendanceRepository) CreateRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.db.recordExists(r.EnrollmentID, r.ClassSessionID) {
		return attendance.Record{}, attendance.ErrAlreadyMarked
	}
	r.ID = newID()
	r.ClassSession = nil
	repo.db.records = append(repo.db.records, r)
	return repo.db.loadRecord(r), nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, enrollmentIDs ...string) ([]attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]struct{}, len(enrollmentIDs))
	for _, id := range enrollmentIDs {
		wanted[id] = struct{}{}
	}
	recs := make([]attendance.Record, 0)
	for _, r := range repo.db.records {
		if _, ok := wanted[r.EnrollmentID]; ok {
			recs = append(recs, repo.db.loadRecord(r))
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date.After(recs[j].Date) })
	return recs, nil
}

// The helpers below must be called with the lock held.

func (db *DB) session(id string) (attendance.ClassSession, bool) {
	for _, s := range db.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return attendance.ClassSession{}, false
}

func (db *DB) recordExists(enrollmentID, sessionID string) bool {
	for _, r := range db.records {
		if r.EnrollmentID == enrollmentID && r.ClassSessionID == sessionID {
			return true
		}
	}
	return false
}

func (db *DB) loadRecord(r attendance.Record) attendance.Record {
	if s, ok := db.session(r.ClassSessionID); ok {
		r.ClassSession = &s
	}
	return r
}
