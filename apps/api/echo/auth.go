package echoapi

import (
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

var (
	contextTokenKey = "userToken"
	contextUserKey  = "user"

	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// jwtMiddleware verifies the bearer token with the key and algorithm of iss.
func jwtMiddleware(iss *user.Issuer) echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    iss.SigningKey(),
		SigningMethod: iss.SigningMethod(),
		ContextKey:    contextTokenKey,
		Claims:        new(user.Claims),
		ErrorHandler: func(err error) error {
			if err == middleware.ErrJWTMissing {
				return err
			}
			return user.ErrInvalidToken
		},
	})
}

func getContextSession(ctx echo.Context) (user.Session, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*user.Claims); ok {
			return claims.Session(), nil
		}
	}
	return user.Session{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context session")
	}
	usr, err := svc.GetByID(ctx.Request().Context(), sess.UserID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// bearerToken reads the token from the Authorization header, then from the `token` query param.
func bearerToken(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if l := len(middleware.DefaultJWTConfig.AuthScheme); len(auth) > l+1 && strings.EqualFold(auth[:l], middleware.DefaultJWTConfig.AuthScheme) {
		return auth[l+1:]
	}
	return ctx.QueryParam("token")
}

// pathID returns the path param `name`, rejecting anything that is not a UUID.
func pathID(ctx echo.Context, name string) (string, error) {
	id := ctx.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		return "", core.NewValidationError(nil, core.FieldError{Field: name, Error: "a valid " + name + " is required"})
	}
	return id, nil
}

// Handlers

type (
	authApi struct {
		svc    user.Service
		issuer *user.Issuer
	}

	loginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}
)

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc user.Service, issuer *user.Issuer) {
	api := authApi{svc: svc, issuer: issuer}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.GET("/profile", api.profile, jwt)
	ag.POST("/change-password", api.changePassword, jwt)
}

func (api *authApi) login(ctx echo.Context) error {
	var data user.LoginCredentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginCredentials")
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.issuer.Issue(usr.ID, usr.Email, usr.Role)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	return ctx.JSON(http.StatusOK, loginResponse{Token: token, User: usr})
}

func (api *authApi) profile(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *authApi) changePassword(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = api.svc.ChangePassword(ctx.Request().Context(), sess.UserID, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully"})
}
