package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/academic"
	exportsvc "github.com/trezcool/chuo/services/export"
)

type gradeApi struct {
	svc academic.Service
}

func registerGradeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc academic.Service) {
	api := gradeApi{svc: svc}

	gg := g.Group("/grades", jwt)
	gg.POST("", api.create, roleMiddleware(staffRoles...))
	gg.PATCH("/:id/publish", api.publish, roleMiddleware(staffRoles...))
	gg.GET("/student/:studentId", api.queryStudent, selfOrRoleMiddleware(allStaffRoles...))
	gg.POST("/student/:studentId/gpa", api.calculateGPA, selfOrRoleMiddleware(allStaffRoles...))
	gg.GET("/class/:classId", api.queryClass, roleMiddleware(staffRoles...))
	gg.GET("/class/:classId/export", api.exportClass, roleMiddleware(staffRoles...))
}

// Handlers

func (api *gradeApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	var data academic.NewGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}

	grade, err := api.svc.CreateGrade(ctx.Request().Context(), data, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "creating grade")
	}
	return ctx.JSON(http.StatusCreated, grade)
}

func (api *gradeApi) publish(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	grade, err := api.svc.PublishGrade(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "publishing grade")
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *gradeApi) queryStudent(ctx echo.Context) error {
	userID, err := pathID(ctx, "studentId")
	if err != nil {
		return err
	}

	enrollments, err := api.svc.StudentGrades(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying student grades")
	}
	if enrollments == nil {
		enrollments = []academic.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *gradeApi) calculateGPA(ctx echo.Context) error {
	userID, err := pathID(ctx, "studentId")
	if err != nil {
		return err
	}

	student, err := api.svc.StudentByUserID(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "finding student by user ID")
	}
	gpa, err := api.svc.CalculateStudentGPA(ctx.Request().Context(), student.ID)
	if err != nil {
		return errors.Wrap(err, "calculating student GPA")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"studentId": student.ID, "gpa": gpa})
}

func (api *gradeApi) queryClass(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}

	enrollments, err := api.svc.ClassGrades(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "querying class grades")
	}
	if enrollments == nil {
		enrollments = []academic.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *gradeApi) exportClass(ctx echo.Context) error {
	classID, err := pathID(ctx, "classId")
	if err != nil {
		return err
	}

	class, err := api.svc.GetClass(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	enrollments, err := api.svc.ClassGrades(ctx.Request().Context(), class.ID)
	if err != nil {
		return errors.Wrap(err, "querying class grades")
	}
	buf, err := exportsvc.ClassGrades(enrollments)
	if err != nil {
		return errors.Wrap(err, "exporting class grades")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportsvc.GradesFileName(class)))
	return ctx.Blob(http.StatusOK, exportsvc.ContentTypeXLSX, buf.Bytes())
}
