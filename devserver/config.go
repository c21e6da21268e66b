package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config configures cmd/devgateway. Either a shared secret or an Auth0
// domain must be set.
type Config struct {
	Addr          string        `env:"DEVGATEWAY_ADDR" env-default:":8080"`
	SharedSecret  string        `env:"LOCAL_AUTH_SHARED_SECRET"`
	Auth0Domain   string        `env:"AUTH0_DOMAIN"`
	Auth0Audience string        `env:"AUTH0_AUDIENCE"`
	JWKSCacheTTL  time.Duration `env:"JWKS_CACHE_TTL" env-default:"15m"`
	Debug         bool          `env:"DEBUG"`
}

// LoadConfig reads the dev gateway config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports missing or contradictory auth settings.
func (c Config) Validate() error {
	switch {
	case c.SharedSecret == "" && c.Auth0Domain == "":
		return errors.New("set LOCAL_AUTH_SHARED_SECRET or AUTH0_DOMAIN")
	case c.SharedSecret != "" && c.Auth0Domain != "":
		return errors.New("LOCAL_AUTH_SHARED_SECRET and AUTH0_DOMAIN are mutually exclusive")
	case c.Auth0Domain != "" && c.Auth0Audience == "":
		return errors.New("AUTH0_AUDIENCE is required with AUTH0_DOMAIN")
	case c.JWKSCacheTTL <= 0:
		return errors.New("invalid JWKS_CACHE_TTL")
	}
	return nil
}

// Authenticator builds the token verifier the config asks for. jwks is only
// used, and then required, when AUTH0_DOMAIN is set.
func (c Config) Authenticator(jwks *keyfunc.JWKS) (*Auth, error) {
	if c.SharedSecret != "" {
		return NewSharedSecretAuth(c.SharedSecret)
	}
	if jwks == nil {
		return nil, errors.New("AUTH0_DOMAIN is set but no key set was loaded")
	}
	return NewJWKSAuth(jwks, c.Auth0Audience, "https://"+c.Auth0Domain+"/", c.JWKSCacheTTL), nil
}
