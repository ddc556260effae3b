package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

// Conf is the application-wide configuration. It is loaded once at startup
// from defaults, an optional config/.env.<env> file and environment variables.
var Conf *Config

type (
	Config struct {
		AppName   string
		Env       string // DEV (local; default), TEST, QA, PROD
		Debug     bool
		TestMode  bool
		Build     string
		SecretKey string

		FrontendBaseURL  string
		FrontendLoginURL string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server   ServerConfig
		Auth     AuthConfig
		Database DatabaseConfig
		Redis    RedisConfig
	}

	ServerConfig struct {
		Host string
		Port string
	}

	AuthConfig struct {
		Issuer   string
		Audience string

		StudentSessionTTL time.Duration
		AdminSessionTTL   time.Duration

		OTPTTL         time.Duration
		OTPMaxAttempts int

		// AdminEmails is the fixed allow-list of administrator-eligible emails.
		AdminEmails []string

		CookieName   string
		CookieSecure bool

		RateLimitWindow      time.Duration
		RateLimitMaxAttempts int
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	RedisConfig struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}
)

func (c DatabaseConfig) Address() string { return c.Host + ":" + c.Port }

func (c ServerConfig) Address() string { return c.Host + ":" + c.Port }

// IsAdminEmail checks email against the administrator allow-list.
func (c AuthConfig) IsAdminEmail(email string) bool {
	email = CleanString(email, true /* lower */)
	for _, adm := range c.AdminEmails {
		if email == CleanString(adm, true /* lower */) {
			return true
		}
	}
	return false
}

// SessionTTL returns the role-dependent session lifetime.
func (c AuthConfig) SessionTTL(isAdmin bool) time.Duration {
	if isAdmin {
		return c.AdminSessionTTL
	}
	return c.StudentSessionTTL
}

func init() {
	Conf = NewConfig()
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Shule")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "w3lp-kaa)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("frontendLoginUrl", "/login")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverPort", "8000")

	v.SetDefault("authIssuer", "Shule")
	v.SetDefault("authAudience", "Academia")
	v.SetDefault("studentSessionTtl", 7*24*time.Hour)
	v.SetDefault("adminSessionTtl", 24*time.Hour)
	v.SetDefault("otpTtl", 15*time.Minute)
	v.SetDefault("otpMaxAttempts", 3)
	v.SetDefault("adminEmails", []string{})
	v.SetDefault("authCookieName", "shule_auth")
	v.SetDefault("rateLimitWindow", 5*time.Minute)
	v.SetDefault("rateLimitMaxAttempts", 10)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbName", "shule")
	v.SetDefault("dbUser", "shule")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbDisableTls", true)

	v.SetDefault("redisEnabled", false)
	v.SetDefault("redisAddr", "localhost:6379")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDb", 0)

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load config/.env.<env> if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	debug := v.GetBool("debug")
	if env == "QA" || env == "PROD" {
		debug = false
	}

	return &Config{
		AppName:   v.GetString("appName"),
		Env:       env,
		Debug:     debug,
		TestMode:  env == "TEST",
		Build:     v.GetString("build"),
		SecretKey: v.GetString("secretKey"),

		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		FrontendLoginURL: v.GetString("frontendLoginUrl"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),

		Server: ServerConfig{
			Host: v.GetString("serverHost"),
			Port: v.GetString("serverPort"),
		},
		Auth: AuthConfig{
			Issuer:               v.GetString("authIssuer"),
			Audience:             v.GetString("authAudience"),
			StudentSessionTTL:    v.GetDuration("studentSessionTtl"),
			AdminSessionTTL:      v.GetDuration("adminSessionTtl"),
			OTPTTL:               v.GetDuration("otpTtl"),
			OTPMaxAttempts:       v.GetInt("otpMaxAttempts"),
			AdminEmails:          v.GetStringSlice("adminEmails"),
			CookieName:           v.GetString("authCookieName"),
			CookieSecure:         !debug,
			RateLimitWindow:      v.GetDuration("rateLimitWindow"),
			RateLimitMaxAttempts: v.GetInt("rateLimitMaxAttempts"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			DisableTLS:    v.GetBool("dbDisableTls"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redisEnabled"),
			Addr:     v.GetString("redisAddr"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDb"),
		},
	}
}

// Validate checks that the loaded configuration is sane enough to boot with.
func (c *Config) Validate() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.AppName, "AppName"),
		vala.StringNotEmpty(c.SecretKey, "SecretKey"),
		vala.StringNotEmpty(c.Auth.Issuer, "Auth.Issuer"),
		vala.StringNotEmpty(c.Auth.CookieName, "Auth.CookieName"),
		vala.GreaterThan(int(c.Auth.StudentSessionTTL), 0, "Auth.StudentSessionTTL"),
		vala.GreaterThan(int(c.Auth.AdminSessionTTL), 0, "Auth.AdminSessionTTL"),
		vala.GreaterThan(int(c.Auth.OTPTTL), 0, "Auth.OTPTTL"),
		vala.GreaterThan(c.Auth.OTPMaxAttempts, 0, "Auth.OTPMaxAttempts"),
	).Check()
}
