package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret  string
	CronSecret string
	SiteURL    string

	LogLevel  string
	LogFormat string

	EmailProvider string // resend | log
	ResendAPIKey  string
	ResendBaseURL string
	EmailFrom     string

	// OutreachTemplates[i] is the template used for drip step i+1.
	OutreachTemplates [5]string
	OutreachInterval  time.Duration

	RedisURL      string
	WorkerEnabled bool
}

var defaultTemplates = [5]string{
	"producer-claim-outreach-1",
	"producer-claim-outreach-2",
	"producer-claim-outreach-3",
	"producer-claim-outreach-4",
	"producer-claim-outreach-5",
}

// Load reads the process environment, after merging an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	required := func(key string) string {
		v := getenv(key, "")
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          required("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		JWTSecret:            required("JWT_SECRET"),
		CronSecret:           required("CRON_SECRET"),
		SiteURL:              strings.TrimRight(required("SITE_URL"), "/"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "json"),
		EmailProvider:        strings.ToLower(getenv("EMAIL_PROVIDER", "log")),
		ResendAPIKey:         getenv("RESEND_API_KEY", ""),
		ResendBaseURL:        getenv("RESEND_BASE_URL", "https://api.resend.com"),
		EmailFrom:            getenv("EMAIL_FROM", "EatAuthentically <hello@eatauthentically.app>"),
		RedisURL:             getenv("REDIS_URL", ""),
		WorkerEnabled:        getenv("WORKER_ENABLED", "false") == "true",
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	for i := range cfg.OutreachTemplates {
		cfg.OutreachTemplates[i] = getenv("OUTREACH_TEMPLATE_STEP"+strconv.Itoa(i+1), defaultTemplates[i])
	}

	interval, err := time.ParseDuration(getenv("OUTREACH_INTERVAL", "24h"))
	if err != nil {
		return cfg, fmt.Errorf("OUTREACH_INTERVAL: %w", err)
	}
	cfg.OutreachInterval = interval

	switch cfg.EmailProvider {
	case "log":
	case "resend":
		if cfg.ResendAPIKey == "" {
			missing = append(missing, "RESEND_API_KEY")
		}
	default:
		return cfg, fmt.Errorf("EMAIL_PROVIDER: unknown provider %q", cfg.EmailProvider)
	}

	if len(missing) > 0 {
		return cfg, errors.New("missing env: " + strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
