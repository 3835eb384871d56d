package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/user"
	logsvc "github.com/trezcool/abiboard/services/logger"
)

// NewConfig returns a configuration suited for tests, independent of the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:                   "AbiBoard",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          "AbiBoard <noreply@localhost>",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			DisableReqLogs:            true,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			MaxUploadSize:             "8M",
		},
		Media: core.MediaConfig{
			MaxFileSize:  1 << 20,
			MaxDimension: 200,
			JPEGQuality:  80,
		},
	}
}

// NewLogger returns a logger that discards everything.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zap.NewNop(), "TEST", conf)
}

// NewValidator returns a validator with every application validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	field.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateField stores an active field; opts may adjust it before it is stored.
func CreateField(
	t *testing.T,
	repo field.Repository,
	key string,
	typ field.Type,
	label string,
	order int,
	required bool,
	opts ...func(*field.Field),
) field.Field {
	t.Helper()

	now := time.Now().UTC()
	fld := field.Field{
		Key:       key,
		Type:      typ,
		Label:     label,
		Required:  required,
		Order:     order,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&fld)
	}
	fld, err := repo.CreateField(context.Background(), fld)
	if err != nil {
		t.Fatalf("CreateField() failed: %v", err)
	}
	return fld
}

func WithMaxLength(n int) func(*field.Field) {
	return func(fld *field.Field) { fld.MaxLength = &n }
}

func WithMaxFiles(n int) func(*field.Field) {
	return func(fld *field.Field) { fld.MaxFiles = &n }
}

func Inactive(fld *field.Field) {
	fld.Active = false
}

// PNG returns the bytes of a w x h PNG image.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("PNG() failed: %v", err)
	}
	return buf.Bytes()
}
