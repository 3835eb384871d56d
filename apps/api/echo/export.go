package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/export"
)

const mimeTSV = "text/tab-separated-values; charset=UTF-8"

type exportApi struct {
	svc    export.ServiceInterface
	logger core.Logger
}

func registerExportAPI(admin *echo.Group, deps ServerDeps) {
	api := exportApi{svc: deps.ExportSvc, logger: deps.Logger}

	admin.GET("/profiles", api.summaries)
	admin.GET("/export/profiles.tsv", api.tsv)
	admin.GET("/export/profiles.zip", api.zip)
}

func (api *exportApi) summaries(ctx echo.Context) error {
	sums, err := api.svc.Summaries(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing profiles")
	}
	return ctx.JSON(http.StatusOK, sums)
}

func attachmentName(ext string) string {
	return fmt.Sprintf("steckbriefe-%s.%s", time.Now().UTC().Format("20060102"), ext)
}

func (api *exportApi) tsv(ctx echo.Context) error {
	var buf bytes.Buffer
	if err := api.svc.WriteTSV(ctx.Request().Context(), &buf); err != nil {
		return errors.Wrap(err, "exporting TSV")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", attachmentName("tsv")))
	return ctx.Blob(http.StatusOK, mimeTSV, buf.Bytes())
}

// zip streams the archive: once started, errors can only be logged.
func (api *exportApi) zip(ctx echo.Context) error {
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "application/zip")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", attachmentName("zip")))
	resp.WriteHeader(http.StatusOK)

	if err := api.svc.WriteZIP(ctx.Request().Context(), resp); err != nil {
		api.logger.Error("exporting ZIP", errors.Wrap(err, "exporting ZIP"))
	}
	return nil
}
