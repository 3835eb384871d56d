package echoapi

import (
	"bufio"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

type mediaApi struct {
	store core.ImageStore
}

func registerMediaAPI(authed *echo.Group, deps ServerDeps) {
	api := mediaApi{store: deps.Store}
	authed.GET("/media/*", api.serve)
}

func (api *mediaApi) serve(ctx echo.Context) error {
	rc, err := api.store.OpenImageFile(ctx.Request().Context(), ctx.Param("*"))
	if err != nil {
		return errors.Wrap(err, "opening image")
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 512)
	head, _ := br.Peek(512)
	ctx.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return ctx.Stream(http.StatusOK, http.DetectContentType(head), br)
}
