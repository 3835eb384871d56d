package echoapi

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/profile"
)

var orderingParam = "ordering"

// draft multipart form fields; file parts are named after field keys.
const (
	formValues   = "values"
	formNickname = "nickname"
	formMotto    = "motto"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindDraft reads a draft from a JSON body or a multipart form.
func bindDraft(ctx echo.Context) (profile.Draft, error) {
	var d profile.Draft
	req := ctx.Request()

	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if req.ContentLength == 0 {
			return d, nil
		}
		if err := json.NewDecoder(req.Body).Decode(&d); err != nil {
			return d, echo.NewHTTPError(http.StatusBadRequest, "Ungültige Anfrage.").SetInternal(err)
		}
		return d, nil
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return d, echo.NewHTTPError(http.StatusBadRequest, "Ungültige Anfrage.").SetInternal(err)
	}
	if vals := form.Value[formValues]; len(vals) > 0 && vals[0] != "" {
		if err := json.Unmarshal([]byte(vals[0]), &d.Values); err != nil {
			return d, core.NewFieldValidationError(formValues, "Ungültiges JSON.")
		}
	}
	if vals, ok := form.Value[formNickname]; ok && len(vals) > 0 {
		d.Nickname = &vals[0]
	}
	if vals, ok := form.Value[formMotto]; ok && len(vals) > 0 {
		d.Motto = &vals[0]
	}
	d.Uploads = uploadsFromForm(form)
	return d, nil
}

func uploadsFromForm(form *multipart.Form) map[string][]core.Upload {
	if len(form.File) == 0 {
		return nil
	}
	uploads := make(map[string][]core.Upload, len(form.File))
	for key, fhs := range form.File {
		for _, fh := range fhs {
			uploads[key] = append(uploads[key], core.UploadFromFileHeader(fh))
		}
	}
	return uploads
}

// bindJSON decodes the JSON body of ctx into dst.
func bindJSON(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		return errors.Wrapf(err, "binding to %T", dst)
	}
	return nil
}
