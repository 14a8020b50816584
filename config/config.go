// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"encoding/base64"
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// environment variables
const (
	DBUSER = "DBUSER"
	DBPASS = "DBPASS"
	DBHOST = "DBHOST"
	DBNAME = "DBNAME"

	SESSION_SECRET_KEY = "SESSION_SECRET_KEY"

	SMTP_HOST = "SMTP_HOST"
	SMTP_PORT = "SMTP_PORT"
	SMTP_USER = "SMTP_USER"
	SMTP_PASS = "SMTP_PASS"
	SMTP_FROM = "SMTP_FROM"

	GOOGLE_CLIENT_ID     = "GOOGLE_CLIENT_ID"
	GOOGLE_CLIENT_SECRET = "GOOGLE_CLIENT_SECRET"
	GITHUB_CLIENT_ID     = "GITHUB_CLIENT_ID"
	GITHUB_CLIENT_SECRET = "GITHUB_CLIENT_SECRET"

	ADMIN_EMAILS = "ADMIN_EMAILS"
	APP_URL      = "APP_URL"
	LOGIN_URL    = "LOGIN_URL"
	APP_ENV      = "APP_ENV"
	PORT         = "PORT"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Config struct {
	DBUser string
	DBPass string
	DBHost string
	DBName string

	// SessionSecret signs session tokens; configured as base64.
	SessionSecret []byte

	SMTP SMTPConfig

	Google OAuthClientConfig
	GitHub OAuthClientConfig

	// AdminEmails escalate a federated signup to super_admin.
	AdminEmails []string

	AppURL   string
	LoginURL string
	Port     string

	// Production toggles Secure cookies and the release logger.
	Production bool
}

// Load reads a .env file if present, then assembles the Config from the
// environment. A missing .env is not an error outside development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	secret, err := base64.StdEncoding.DecodeString(os.Getenv(SESSION_SECRET_KEY))
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errors.New("config: " + SESSION_SECRET_KEY + " is required")
	}

	cfg := &Config{
		DBUser:        os.Getenv(DBUSER),
		DBPass:        os.Getenv(DBPASS),
		DBHost:        getenvDefault(DBHOST, "127.0.0.1:3306"),
		DBName:        os.Getenv(DBNAME),
		SessionSecret: secret,
		SMTP: SMTPConfig{
			Host:     os.Getenv(SMTP_HOST),
			Port:     getenvDefault(SMTP_PORT, "587"),
			Username: os.Getenv(SMTP_USER),
			Password: os.Getenv(SMTP_PASS),
			From:     os.Getenv(SMTP_FROM),
		},
		AppURL:     getenvDefault(APP_URL, "http://localhost:3000"),
		LoginURL:   getenvDefault(LOGIN_URL, "http://localhost:3000/login"),
		Port:       getenvDefault(PORT, "5005"),
		Production: os.Getenv(APP_ENV) == "production",
	}

	cfg.Google = OAuthClientConfig{
		ClientID:     os.Getenv(GOOGLE_CLIENT_ID),
		ClientSecret: os.Getenv(GOOGLE_CLIENT_SECRET),
		RedirectURL:  cfg.AppURL + "/api/auth/oauth/google/callback",
	}
	cfg.GitHub = OAuthClientConfig{
		ClientID:     os.Getenv(GITHUB_CLIENT_ID),
		ClientSecret: os.Getenv(GITHUB_CLIENT_SECRET),
		RedirectURL:  cfg.AppURL + "/api/auth/oauth/github/callback",
	}

	for _, email := range strings.Split(os.Getenv(ADMIN_EMAILS), ",") {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			cfg.AdminEmails = append(cfg.AdminEmails, email)
		}
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
