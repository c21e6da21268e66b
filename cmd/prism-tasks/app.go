package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-tasks/auth"
	"prism-tasks/cache"
	"prism-tasks/config"
	"prism-tasks/coordinator"
	"prism-tasks/detail"
	"prism-tasks/domain"
	"prism-tasks/gateway"
	"prism-tasks/views"
)

// app wires the task engine for one CLI invocation.
type app struct {
	cfg     config.Config
	logger  *log.Logger
	session *auth.Session
	gateway domain.Gateway
	cache   *cache.TaskCache
	co      *coordinator.Coordinator
	details *detail.Manager
	board   *views.Board
	loc     *time.Location
	redis   *redis.Client
}

func newApp(cfg config.Config) (*app, error) {
	logger := log.New()
	logger.SetLevel(cfg.Level())

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	session := auth.NewSession(cfg.Token)
	client := gateway.NewClient(cfg.GatewayURL, session,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		gateway.WithLogger(logger),
	)

	a := &app{cfg: cfg, logger: logger, session: session, loc: loc}

	var gw domain.Gateway = client
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	if redisOpts != nil {
		a.redis = redis.NewClient(redisOpts)
		gw = gateway.NewCached(client, a.redis, cfg.CacheTTL, session, gateway.WithCacheLogger(logger))
	}
	a.gateway = gw

	a.cache = cache.New()
	a.co = coordinator.New(gw, a.cache, logger)
	a.details = detail.NewManager(a.co, a.cache)
	a.co.SetSessions(a.details.Tracker())
	a.board = views.NewBoard(a.cache, a.co, views.WithLocation(loc), views.WithLogger(logger))
	return a, nil
}

func (a *app) Close() {
	a.details.Close()
	a.board.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) load(ctx context.Context) error {
	if err := a.co.Load(ctx); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	return nil
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

// parseTime reads a timestamp in the configured zone. "none" and "" clear.
func (a *app) parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, a.loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse time %q", s)
}

// parseValue converts a command line value into the type of field.
func (a *app) parseValue(field domain.Field, raw string) (any, error) {
	switch field {
	case domain.FieldComplete, domain.FieldPriority:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%s expects true or false", field)
	case domain.FieldDueDate, domain.FieldRemindMe:
		return a.parseTime(raw)
	}
	return raw, nil
}
