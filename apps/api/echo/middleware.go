package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/abiboard/core/user"
)

// userMiddleware loads the authenticated user into the context.
func userMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextUser(ctx, svc); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func adminMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
