package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/user"
)

type fieldApi struct {
	svc      field.ServiceInterface
	userSvc  user.ServiceInterface
	validate *validator.Validate
}

func registerFieldAPI(authed, admin *echo.Group, deps ServerDeps) {
	api := fieldApi{
		svc:      deps.FieldSvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
	}

	authed.GET("/profile-fields", api.queryActive)

	ag := admin.Group("/profile-fields")
	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.PATCH("/reorder", api.reorder)
	ag.GET("/:id", api.retrieve)
	ag.PATCH("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
}

func (api *fieldApi) queryActive(ctx echo.Context) error {
	flds, err := api.svc.Active(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying active fields")
	}
	return ctx.JSON(http.StatusOK, flds)
}

func (api *fieldApi) query(ctx echo.Context) error {
	flds, err := api.svc.Query(ctx.Request().Context(), field.QueryFilter{})
	if err != nil {
		return errors.Wrap(err, "querying fields")
	}
	return ctx.JSON(http.StatusOK, flds)
}

func (api *fieldApi) create(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data field.NewField
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fld, err := api.svc.Create(ctx.Request().Context(), data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "creating field")
	}
	return ctx.JSON(http.StatusCreated, fld)
}

func (api *fieldApi) retrieve(ctx echo.Context) error {
	fld, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding field")
	}
	return ctx.JSON(http.StatusOK, fld)
}

func (api *fieldApi) update(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	fld, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding field")
	}

	var data field.UpdateField
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(fld, api.validate); err != nil {
		return err
	}

	fld, err = api.svc.Update(ctx.Request().Context(), fld.ID, data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "updating field")
	}
	return ctx.JSON(http.StatusOK, fld)
}

func (api *fieldApi) reorder(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data field.Reorder
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	flds, err := api.svc.Reorder(ctx.Request().Context(), data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "reordering fields")
	}
	return ctx.JSON(http.StatusOK, flds)
}

// destroy always fails: fields are deactivated, never deleted.
func (api *fieldApi) destroy(ctx echo.Context) error {
	return api.svc.Delete(ctx.Request().Context(), ctx.Param("id"))
}
