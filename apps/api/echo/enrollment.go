package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/academic"
)

type enrollmentApi struct {
	svc academic.Service
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc academic.Service) {
	api := enrollmentApi{svc: svc}

	eg := g.Group("/enrollments", jwt)
	eg.POST("", api.create, roleMiddleware(registryRoles...))
	eg.GET("/available-classes", api.queryAvailableClasses)
	eg.GET("/student/:studentId", api.queryStudent, selfOrRoleMiddleware(allStaffRoles...))
	eg.PATCH("/:id/status", api.updateStatus, roleMiddleware(registryRoles...))
	eg.POST("/:id/final-grade", api.calculateFinalGrade, roleMiddleware(staffRoles...))
}

// Handlers

func (api *enrollmentApi) create(ctx echo.Context) error {
	var data academic.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}

	enr, err := api.svc.ProcessEnrollment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "processing enrollment")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) queryAvailableClasses(ctx echo.Context) error {
	classes, err := api.svc.AvailableClasses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying available classes")
	}
	if classes == nil {
		classes = []academic.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *enrollmentApi) queryStudent(ctx echo.Context) error {
	userID, err := pathID(ctx, "studentId")
	if err != nil {
		return err
	}

	enrollments, err := api.svc.StudentEnrollments(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying student enrollments")
	}
	if enrollments == nil {
		enrollments = []academic.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *enrollmentApi) updateStatus(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data academic.UpdateEnrollmentStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEnrollmentStatus")
	}

	enr, err := api.svc.UpdateEnrollmentStatus(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating enrollment status")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) calculateFinalGrade(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	final, err := api.svc.CalculateFinalGrade(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "calculating final grade")
	}
	return ctx.JSON(http.StatusOK, final)
}
