package echoapi

import (
	"net/http"
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
)

const rosterFormFile = "file"

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

type userApi struct {
	conf       *core.Config
	svc        user.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func registerUserAPI(v1, authed *echo.Group, deps ServerDeps) {
	api := userApi{
		conf:       deps.Conf,
		svc:        deps.UserSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
	}

	// un-authed endpoints
	ug := v1.Group("/users")
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := authed.Group("/users")
	admin := adminMiddleware(api.svc)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.POST("/register", api.create, admin)
	ag.POST("/import", api.importRoster, admin)
	ag.GET("", api.query, admin)
	ag.DELETE("", api.destroyMultiple, admin)
	ag.GET("/roles", api.queryRoles, admin)

	// detail endpoints
	dg := ag.Group("/:id", ctxUserOrAdminMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, admin)
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) importRoster(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile(rosterFormFile)
	if err != nil {
		return core.NewFieldValidationError(rosterFormFile, "Bitte eine CSV-Datei hochladen.")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening roster")
	}
	defer f.Close()

	entries, err := user.ParseRoster(f, api.validate, api.translator)
	if err != nil {
		return err
	}
	res, err := api.svc.ImportRoster(ctx.Request().Context(), entries, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "importing roster")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := authenticate(ctx.Request().Context(), api.conf, data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || core.IsNotFound(err)) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "Falls die angegebene E-Mail-Adresse zu einem aktiven Konto gehört, " +
			"erhältst du in Kürze eine E-Mail mit einem Link zum Zurücksetzen deines Passworts.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Dein Passwort wurde zurückgesetzt."})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := bindJSON(ctx, &data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if !ctxUsr.IsAdmin() {
		// `IsActive` and `Role` can only be changed by admin
		// `Username` and `Email` can only be changed by admin for now
		if data.IsActive != nil || data.Role != "" || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(ctx.Request().Context(), usr, api.validate, api.svc); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	if usr.ID == ctxUsr.ID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, ctxUsr.ID); i < len(query.IDs) {
		if match := query.IDs[i]; ctxUsr.ID == match {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func ctxUserOrAdminMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set("object", usr)
					return next(ctx)
				} else if !core.IsNotFound(err) {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
