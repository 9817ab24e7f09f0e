package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s ClassSession) (ClassSession, error)
		GetSession(ctx context.Context, id string) (ClassSession, error)
		// QuerySessions returns the sessions of the class by date and start time.
		QuerySessions(ctx context.Context, classID string) ([]ClassSession, error)

		CreateQRCode(ctx context.Context, qr QRCode) (QRCode, error)
		// GetActiveQRCode fails with ErrInvalidCode unless an active QR code has this value.
		GetActiveQRCode(ctx context.Context, code string) (QRCode, error)
		// DeactivateExpiredQRCodes deactivates the active codes whose window ended before now.
		DeactivateExpiredQRCodes(ctx context.Context, now time.Time) (int64, error)

		RecordExists(ctx context.Context, enrollmentID, sessionID string) (bool, error)
		// CreateRecord fails with ErrAlreadyMarked if the enrollment was already marked for the session.
		CreateRecord(ctx context.Context, r Record) (Record, error)
		// QueryRecords returns the records of the enrollments with their session, date desc.
		QueryRecords(ctx context.Context, enrollmentIDs ...string) ([]Record, error)
	}

	// Enrollments is the part of the academic store attendance depends on.
	Enrollments interface {
		GetClass(ctx context.Context, id string) (academic.Class, error)
		GetEnrollment(ctx context.Context, id string) (academic.Enrollment, error)
		GetStudentByUserID(ctx context.Context, userID string) (user.Student, error)
		QueryEnrollments(ctx context.Context, filter academic.EnrollmentFilter) ([]academic.Enrollment, error)
	}

	Service interface {
		CreateSession(ctx context.Context, data NewClassSession) (ClassSession, error)
		ListSessions(ctx context.Context, classID string) ([]ClassSession, error)
		GenerateCode(ctx context.Context, data NewCode, generatedBy string) (GeneratedCode, error)
		MarkAttendance(ctx context.Context, data MarkRequest, by Marker) (Record, error)
		ListForStudent(ctx context.Context, userID string) ([]EnrollmentAttendance, error)
		ListForClass(ctx context.Context, classID string) ([]EnrollmentAttendance, error)
		DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	}

	Config struct {
		CodeExpiry time.Duration
	}

	service struct {
		repo        Repository
		enrollments Enrollments
		notifier    notification.Notifier
		validate    *validator.Validate
		conf        Config
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(
	repo Repository,
	enrollments Enrollments,
	notifier notification.Notifier,
	validate *validator.Validate,
	conf Config,
) Service {
	return &service{
		repo:        repo,
		enrollments: enrollments,
		notifier:    notifier,
		validate:    validate,
		conf:        conf,
	}
}

func (svc *service) CreateSession(ctx context.Context, data NewClassSession) (ClassSession, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return ClassSession{}, err
	}
	class, err := svc.enrollments.GetClass(ctx, data.ClassID)
	if err != nil {
		return ClassSession{}, err
	}

	room := data.Room
	if room == "" {
		room = class.Room
	}
	sess, err := svc.repo.CreateSession(ctx, ClassSession{
		ClassID:     class.ID,
		SessionDate: data.SessionDate.UTC(),
		StartTime:   data.StartTime.UTC(),
		EndTime:     data.EndTime.UTC(),
		Room:        room,
		Topic:       data.Topic,
		CreatedAt:   core.NowFunc(),
	})
	return sess, errors.Wrap(err, "creating class session")
}

func (svc *service) ListSessions(ctx context.Context, classID string) ([]ClassSession, error) {
	if _, err := svc.enrollments.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySessions(ctx, classID)
}

// GenerateCode issues a QR code for the session, valid from now for the configured expiry.
func (svc *service) GenerateCode(ctx context.Context, data NewCode, generatedBy string) (GeneratedCode, error) {
	data.ClassSessionID = core.CleanString(data.ClassSessionID, true /* lower */)
	if err := svc.validate.Struct(data); err != nil {
		return GeneratedCode{}, err
	}
	sess, err := svc.repo.GetSession(ctx, data.ClassSessionID)
	if err != nil {
		return GeneratedCode{}, err
	}

	code, err := newCodeFunc()
	if err != nil {
		return GeneratedCode{}, errors.Wrap(err, "generating code")
	}
	now := core.NowFunc()
	qr, err := svc.repo.CreateQRCode(ctx, QRCode{
		ClassSessionID: sess.ID,
		GeneratedBy:    generatedBy,
		Code:           code,
		ValidFrom:      now,
		ValidUntil:     now.Add(svc.conf.CodeExpiry),
		IsActive:       true,
		CreatedAt:      now,
	})
	if err != nil {
		return GeneratedCode{}, errors.Wrap(err, "creating QR code")
	}

	img, err := CodeImage(qr.Code)
	if err != nil {
		return GeneratedCode{}, err
	}
	return GeneratedCode{QRCode: qr, Image: img}, nil
}

// MarkAttendance records the enrollment as present for the session the code was generated for.
// Checks run in order: the code is active and belongs to the session, the code is within its window,
// the enrollment is not marked yet, the enrollment exists and belongs to the marking student.
func (svc *service) MarkAttendance(ctx context.Context, data MarkRequest, by Marker) (Record, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return Record{}, err
	}

	qr, err := svc.repo.GetActiveQRCode(ctx, data.QRCode)
	if err != nil {
		return Record{}, err
	}
	if qr.ClassSessionID != data.ClassSessionID {
		return Record{}, ErrInvalidCode
	}
	now := core.NowFunc()
	if !qr.ValidAt(now) {
		return Record{}, ErrCodeExpired
	}

	marked, err := svc.repo.RecordExists(ctx, data.EnrollmentID, data.ClassSessionID)
	if err != nil {
		return Record{}, errors.Wrap(err, "checking existing record")
	}
	if marked {
		return Record{}, ErrAlreadyMarked
	}

	enr, err := svc.enrollments.GetEnrollment(ctx, data.EnrollmentID)
	if err != nil {
		return Record{}, err
	}
	if by.IsStudent && (enr.Student == nil || enr.Student.UserID != by.UserID) {
		return Record{}, core.ErrForbidden
	}

	rec := Record{
		EnrollmentID:   enr.ID,
		ClassSessionID: qr.ClassSessionID,
		Date:           now,
		Status:         StatusPresent,
		QRCodeUsed:     null.StringFrom(qr.Code),
		MarkedAt:       now,
		MarkedBy:       by.UserID,
	}
	if loc := data.LocationData; len(loc) > 0 && string(loc) != "null" {
		rec.LocationData = null.JSONFrom(loc)
	}
	rec, err = svc.repo.CreateRecord(ctx, rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "creating attendance record")
	}

	if enr.Student != nil {
		svc.notifier.Notify(ctx, notification.Payload{
			UserID:  enr.Student.UserID,
			Type:    notification.TypeAttendanceMarked,
			Title:   "Attendance Marked",
			Message: fmt.Sprintf("Your attendance for %s has been recorded", enr.SubjectName()),
		})
	}
	return rec, nil
}

func (svc *service) ListForStudent(ctx context.Context, userID string) ([]EnrollmentAttendance, error) {
	student, err := svc.enrollments.GetStudentByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return svc.list(ctx, academic.EnrollmentFilter{StudentID: student.ID})
}

func (svc *service) ListForClass(ctx context.Context, classID string) ([]EnrollmentAttendance, error) {
	return svc.list(ctx, academic.EnrollmentFilter{ClassID: classID})
}

func (svc *service) list(ctx context.Context, filter academic.EnrollmentFilter) ([]EnrollmentAttendance, error) {
	enrs, err := svc.enrollments.QueryEnrollments(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	ids := make([]string, 0, len(enrs))
	for _, e := range enrs {
		ids = append(ids, e.ID)
	}
	recs, err := svc.repo.QueryRecords(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}

	byEnrollment := make(map[string][]Record, len(enrs))
	for _, r := range recs {
		byEnrollment[r.EnrollmentID] = append(byEnrollment[r.EnrollmentID], r)
	}
	out := make([]EnrollmentAttendance, 0, len(enrs))
	for _, e := range enrs {
		records := byEnrollment[e.ID]
		if records == nil {
			records = []Record{}
		}
		out = append(out, EnrollmentAttendance{Enrollment: e, AttendanceRecords: records})
	}
	return out, nil
}

func (svc *service) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := svc.repo.DeactivateExpiredQRCodes(ctx, now)
	return n, errors.Wrap(err, "deactivating expired QR codes")
}
