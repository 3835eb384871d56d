package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	jwtAudience     = "AbiBoard"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	IsStudent    bool   `json:"is_student,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func GetUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  jwtAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsAdmin:      usr.IsAdmin(),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	jwtConf := newJWTConfig(conf)
	method := jwt.GetSigningMethod(jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func authenticate(ctx context.Context, conf *core.Config, uname, pwd string, svc user.ServiceInterface) (*Claims, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.Active() {
		return nil, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return GetUserClaims(conf, usr), nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the authenticated user, loading it once per request.
func getContextUser(ctx echo.Context, svc user.ServiceInterface) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.Active() {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func refreshToken(ctx echo.Context, conf *core.Config, svc user.ServiceInterface) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	// fails if the user is no longer active
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(conf, GetUserClaims(conf, usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
