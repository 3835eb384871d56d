package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
)

type settingApi struct {
	svc     setting.ServiceInterface
	userSvc user.ServiceInterface
}

func registerSettingAPI(authed, admin *echo.Group, deps ServerDeps) {
	api := settingApi{svc: deps.SettingSvc, userSvc: deps.UserSvc}

	authed.GET("/settings", api.retrieve)
	admin.PUT("/settings", api.update)
}

func (api *settingApi) retrieve(ctx echo.Context) error {
	settings, err := api.svc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting settings")
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *settingApi) update(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data setting.UpdateSettings
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}

	settings, err := api.svc.SetDeadline(ctx.Request().Context(), data.DeadlineAt, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "setting deadline")
	}
	return ctx.JSON(http.StatusOK, settings)
}
