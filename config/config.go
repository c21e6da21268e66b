package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Config is the client configuration, read from an optional YAML file and
// the environment.
type Config struct {
	GatewayURL  string        `yaml:"gateway_url" env:"PRISM_GATEWAY_URL" env-default:"http://localhost:8080"`
	Token       string        `yaml:"token" env:"PRISM_TOKEN"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"PRISM_HTTP_TIMEOUT" env-default:"0s"`
	RedisURL    string        `yaml:"redis_url" env:"PRISM_REDIS_URL"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env:"PRISM_CACHE_TTL" env-default:"30s"`
	Timezone    string        `yaml:"timezone" env:"PRISM_TIMEZONE"`
	LogLevel    string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Debug       bool          `yaml:"debug" env:"DEBUG"`
}

// Load reads the config file at path, falling back to the environment alone
// when path is empty or the file does not exist.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
		return cfg, cfg.Validate()
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks values cleanenv cannot.
func (c Config) Validate() error {
	u, err := url.Parse(c.GatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid PRISM_GATEWAY_URL %q", c.GatewayURL)
	}
	if c.HTTPTimeout < 0 {
		return errors.New("PRISM_HTTP_TIMEOUT must not be negative")
	}
	if c.CacheTTL < 0 {
		return errors.New("PRISM_CACHE_TTL must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the time zone calendar views use.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid PRISM_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level is the log level; DEBUG wins over LOG_LEVEL.
func (c Config) Level() log.Level {
	if c.Debug {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// RedisOptions parses PRISM_REDIS_URL. Both redis:// URLs and the
// "host:port,password=...,ssl=true" form are accepted. An empty URL yields nil.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if opts, err := redis.ParseURL(c.RedisURL); err == nil {
		return opts, nil
	}
	parts := strings.Split(c.RedisURL, ",")
	if strings.Contains(parts[0], "://") || parts[0] == "" {
		return nil, fmt.Errorf("invalid PRISM_REDIS_URL %q", c.RedisURL)
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
