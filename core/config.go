package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var build = "develop" // set by the linker at build time

type (
	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	QRCodeConfig struct {
		ExpiryMinutes int
		SweepInterval time.Duration
	}

	RedisConfig struct {
		URL     string // empty disables the cross-instance bridge
		Channel string
	}

	NotificationConfig struct {
		Email bool // also deliver notifications by email
	}

	Config struct {
		Debug              bool
		TestMode           bool
		Env                string
		Build              string
		AppName            string
		SecretKey          string
		JWTExpirationDelta time.Duration
		FrontendBaseURL    string
		RollbarToken       string
		SendgridApiKey     string
		WorkDir            string
		defaultFromEmail   string

		Server       ServerConfig
		Database     DatabaseConfig
		QRCode       QRCodeConfig
		Redis        RedisConfig
		Notification NotificationConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

// QRCodeExpiry is the length of a QR code validity window.
func (c *Config) QRCodeExpiry() time.Duration {
	return time.Duration(c.QRCode.ExpiryMinutes) * time.Minute
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and `<ENV>_*` environment variables.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Chuo")
	conf.SetDefault("secretKey", "w9$k2+hq7)zv!m3c&x8(a#n4p^e6r0tu=l1d@bfj5yg*o_s")
	conf.SetDefault("defaultFromEmail", "Chuo <noreply@localhost>")
	conf.SetDefault("frontendBaseURL", "http://localhost:5173")
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")

	conf.SetDefault("server.host", ":3000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 10*time.Second)
	conf.SetDefault("server.disableReqLogs", false)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "chuo")
	conf.SetDefault("database.user", "chuo")
	conf.SetDefault("database.password", "chuo")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("qrCode.expiryMinutes", 15)
	conf.SetDefault("qrCode.sweepInterval", time.Minute)

	conf.SetDefault("redis.url", "")
	conf.SetDefault("redis.channel", "chuo:notifications")

	conf.SetDefault("notification.email", false)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := ProjectRoot()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:              conf.GetBool("debug"),
		TestMode:           conf.GetBool("testMode"),
		Env:                env,
		Build:              build,
		AppName:            conf.GetString("appName"),
		SecretKey:          conf.GetString("secretKey"),
		JWTExpirationDelta: conf.GetDuration("jwtExpirationDelta"),
		FrontendBaseURL:    conf.GetString("frontendBaseURL"),
		RollbarToken:       conf.GetString("rollbarToken"),
		SendgridApiKey:     conf.GetString("sendgridApiKey"),
		WorkDir:            wd,
		defaultFromEmail:   conf.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			DebugHost:       conf.GetString("server.debugHost"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  conf.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		QRCode: QRCodeConfig{
			ExpiryMinutes: conf.GetInt("qrCode.expiryMinutes"),
			SweepInterval: conf.GetDuration("qrCode.sweepInterval"),
		},
		Redis: RedisConfig{
			URL:     conf.GetString("redis.url"),
			Channel: conf.GetString("redis.channel"),
		},
		Notification: NotificationConfig{
			Email: conf.GetBool("notification.email"),
		},
	}
}
