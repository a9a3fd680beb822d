package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultRPDisplayName is the relying party name shown by authenticators
// when no override is configured.
const DefaultRPDisplayName = "Passgate"

// SessionKind describes the WebAuthn ceremony a stored challenge belongs to.
type SessionKind string

const (
	SessionKindRegistration SessionKind = "registration"
	SessionKindLogin        SessionKind = "login"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"PASSGATE_WEBAUTHN_RP_DISPLAY_NAME"`
	RPID          string        `env:"PASSGATE_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"PASSGATE_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	SessionTTL    time.Duration `env:"PASSGATE_WEBAUTHN_SESSION_TTL"     envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults. Fields that
// fail to parse fall back individually so one bad variable does not discard
// the rest of the environment.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = DefaultRPDisplayName
	}
	if cfg.RPID == "" {
		cfg.RPID = "localhost"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8086"}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 5 * time.Minute
	}
	return cfg
}
