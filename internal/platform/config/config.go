package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	Environment       string
	DatabaseURL       string
	SessionSigningKey string
	SessionIssuer     string
	SessionTTL        time.Duration
	AuditBuffer       int
	ShutdownTimeout   time.Duration
}

var defaultSessionTTL = 15 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("HEALTHPASS_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	environment := os.Getenv("HEALTHPASS_ENV")
	if environment == "" {
		environment = "development"
	}

	sessionTTL := defaultSessionTTL
	if raw := os.Getenv("SESSION_TTL"); raw != "" {
		if duration, err := time.ParseDuration(raw); err == nil && duration > 0 {
			sessionTTL = duration
		}
	}

	signingKey := os.Getenv("SESSION_SIGNING_KEY")
	if signingKey == "" {
		// Use a default for development - should be overridden in production
		signingKey = "dev-secret-key-change-in-production"
	}

	issuer := os.Getenv("SESSION_ISSUER")
	if issuer == "" {
		issuer = "healthpass"
	}

	auditBuffer := 0
	if raw := os.Getenv("AUDIT_BUFFER"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			auditBuffer = n
		}
	}

	return Server{
		Addr:              addr,
		Environment:       environment,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SessionSigningKey: signingKey,
		SessionIssuer:     issuer,
		SessionTTL:        sessionTTL,
		AuditBuffer:       auditBuffer,
		ShutdownTimeout:   10 * time.Second,
	}
}
