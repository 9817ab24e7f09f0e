package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
	livesvc "github.com/trezcool/chuo/services/live"
)

type notificationApi struct {
	svc    *notification.Service
	hub    *livesvc.Hub
	issuer *user.Issuer
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *notification.Service, hub *livesvc.Hub, issuer *user.Issuer) {
	api := notificationApi{svc: svc, hub: hub, issuer: issuer}

	ng := g.Group("/notifications")
	// browsers cannot set headers on websocket handshakes: the token may travel as a query param
	ng.GET("/live", api.live)

	ag := ng.Group("", jwt)
	ag.GET("", api.query)
	ag.PATCH("/:id/read", api.markRead)
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	unreadOnly, _ := strconv.ParseBool(ctx.QueryParam("unread"))

	notifs, err := api.svc.List(ctx.Request().Context(), sess.UserID, unreadOnly)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	notif, err := api.svc.MarkRead(ctx.Request().Context(), id, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, notif)
}

func (api *notificationApi) live(ctx echo.Context) error {
	token := bearerToken(ctx)
	if token == "" {
		return errUnauthorized
	}
	sess, err := api.issuer.Verify(token)
	if err != nil {
		return err
	}

	if err = api.hub.Serve(ctx.Response(), ctx.Request(), sess.UserID); err != nil {
		// the upgrader has already replied to the client
		ctx.Logger().Warnf("live channel of user %s: %v", sess.UserID, err)
	}
	return nil
}
