package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/user"
)

type attendanceApi struct {
	svc attendance.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc attendance.Service) {
	api := attendanceApi{svc: svc}

	ag := g.Group("/attendance", jwt)
	ag.POST("/sessions", api.createSession, roleMiddleware(staffRoles...))
	ag.POST("/qr-code", api.generateCode, roleMiddleware(staffRoles...))
	ag.POST("/mark", api.mark, roleMiddleware(studentRoles...))
	ag.GET("/student/:studentId", api.queryStudent, selfOrRoleMiddleware(allStaffRoles...))
	ag.GET("/class/:classId", api.queryClass, roleMiddleware(staffRoles...))
	ag.GET("/class/:classId/sessions", api.querySessions, roleMiddleware(staffRoles...))
}

// Handlers

func (api *attendanceApi) createSession(ctx echo.Context) error {
	var data attendance.NewClassSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassSession")
	}

	sess, err := api.svc.CreateSession(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *attendanceApi) generateCode(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	var data attendance.NewCode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCode")
	}

	code, err := api.svc.GenerateCode(ctx.Request().Context(), data, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "generating QR code")
	}
	return ctx.JSON(http.StatusOK, code)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	var data attendance.MarkRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRequest")
	}

	rec, err := api.svc.MarkAttendance(ctx.Request().Context(), data, attendance.Marker{
		UserID:    sess.UserID,
		IsStudent: sess.Role == user.RoleStudent,
	})
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *attendanceApi) queryStudent(ctx echo.Context) error {
	userID, err := pathID(ctx, "studentId")
	if err != nil {
		return err
	}

	enrollments, err := api.svc.ListForStudent(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying student attendance")
	}
	if enrollments == nil {
		enrollments = []attendance.EnrollmentAttendance{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *attendanceApi) queryClass(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}

	enrollments, err := api.svc.ListForClass(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "querying class attendance")
	}
	if enrollments == nil {
		enrollments = []attendance.EnrollmentAttendance{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *attendanceApi) querySessions(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}

	sessions, err := api.svc.ListSessions(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "querying class sessions")
	}
	if sessions == nil {
		sessions = []attendance.ClassSession{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}
