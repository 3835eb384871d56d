package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		DisableReqLogs            bool
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
		MaxUploadSize             string // echo BodyLimit format, e.g. "32M"
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MediaConfig struct {
		Root         string
		MaxFileSize  int64
		MaxDimension int
		JPEGQuality  int
	}

	YearbookConfig struct {
		// InitialDeadline is stored as the submission deadline when none has been set yet.
		InitialDeadline time.Time
	}

	Config struct {
		AppName                   string
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          string
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration
		WorkDir                   string

		Server   ServerConfig
		Database DatabaseConfig
		Media    MediaConfig
		Yearbook YearbookConfig
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// DefaultFromAddress parses DefaultFromEmail, falling back to a bare address.
func (c *Config) DefaultFromAddress() mail.Address {
	if addr, err := mail.ParseAddress(c.DefaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
}

// NewConfig loads the configuration of the current environment (ENV).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "AbiBoard")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "kz7#n!2u@x0wq+f9-b4lm$e1r^y8c&t3s6p_d5g(ah)vjo")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "AbiBoard <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.maxUploadSize", "32M")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "abiboard")
	v.SetDefault("database.user", "abiboard")
	v.SetDefault("database.password", "abiboard")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("media.root", "media")
	v.SetDefault("media.maxFileSize", int64(8<<20))
	v.SetDefault("media.maxDimension", 2400)
	v.SetDefault("media.jpegQuality", 85)

	v.SetDefault("yearbook.initialDeadline", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:                   v.GetString("appName"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		DefaultFromEmail:          v.GetString("defaultFromEmail"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		WorkDir:                   workDir,
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			MaxUploadSize:             v.GetString("server.maxUploadSize"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Media: MediaConfig{
			Root:         v.GetString("media.root"),
			MaxFileSize:  v.GetInt64("media.maxFileSize"),
			MaxDimension: v.GetInt("media.maxDimension"),
			JPEGQuality:  v.GetInt("media.jpegQuality"),
		},
	}

	if raw := v.GetString("yearbook.initialDeadline"); raw != "" {
		dl, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			log.Fatalf("config.yearbook.initialDeadline(%s): %v", raw, err)
		}
		conf.Yearbook.InitialDeadline = dl.UTC()
	}
	if !filepath.IsAbs(conf.Media.Root) {
		conf.Media.Root = filepath.Join(workDir, conf.Media.Root)
	}
	return conf
}
