package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/user"
)

var (
	staffRoles    = []user.Role{user.RoleTeachingStaff, user.RoleAdmin}
	registryRoles = []user.Role{user.RoleNonTeachingStaff, user.RoleAdmin}
	studentRoles  = []user.Role{user.RoleStudent}
	allStaffRoles = []user.Role{user.RoleTeachingStaff, user.RoleNonTeachingStaff, user.RoleAdmin}
)

// roleMiddleware lets the request through when the session role is one of roles.
func roleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}
			if hasAnyRole(sess, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func hasAnyRole(sess user.Session, roles []user.Role) bool {
	for _, role := range roles {
		if sess.Role == role {
			return true
		}
	}
	return false
}

// selfOrRoleMiddleware lets students through only for their own `:studentId`; other roles must be in roles.
func selfOrRoleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}
			if sess.Role == user.RoleStudent {
				if ctx.Param("studentId") != sess.UserID {
					return errHttpForbidden
				}
				return next(ctx)
			}
			if hasAnyRole(sess, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
