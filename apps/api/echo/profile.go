package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
)

type profileApi struct {
	svc        profile.ServiceInterface
	userSvc    user.ServiceInterface
	settingSvc setting.ServiceInterface
}

func registerProfileAPI(authed *echo.Group, deps ServerDeps) {
	api := profileApi{
		svc:        deps.ProfileSvc,
		userSvc:    deps.UserSvc,
		settingSvc: deps.SettingSvc,
	}

	pg := authed.Group("/profile")
	pg.GET("", api.retrieve)
	pg.PATCH("", api.saveDraft)
	pg.POST("/submit", api.submit)
	pg.POST("/retract", api.retract)
}

// deadline reads the deadline once for the current request.
func (api *profileApi) deadline(ctx echo.Context) (core.Deadline, error) {
	dl, err := api.settingSvc.Deadline(ctx.Request().Context())
	return dl, errors.Wrap(err, "reading deadline")
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	view, err := api.svc.Get(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *profileApi) saveDraft(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	dl, err := api.deadline(ctx)
	if err != nil {
		return err
	}
	// a passed deadline wins over malformed payloads
	if err := dl.Check(time.Now()); err != nil {
		return err
	}

	d, err := bindDraft(ctx)
	if err != nil {
		return err
	}

	view, err := api.svc.SaveDraft(ctx.Request().Context(), usr, dl, d)
	if err != nil {
		return errors.Wrap(err, "saving draft")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *profileApi) submit(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	dl, err := api.deadline(ctx)
	if err != nil {
		return err
	}

	view, err := api.svc.Submit(ctx.Request().Context(), usr, dl)
	if err != nil {
		return errors.Wrap(err, "submitting profile")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *profileApi) retract(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	dl, err := api.deadline(ctx)
	if err != nil {
		return err
	}

	view, err := api.svc.Retract(ctx.Request().Context(), usr, dl)
	if err != nil {
		return errors.Wrap(err, "retracting profile")
	}
	return ctx.JSON(http.StatusOK, view)
}
