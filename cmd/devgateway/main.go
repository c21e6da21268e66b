package main

import (
	"github.com/MicahParks/keyfunc"
	log "github.com/sirupsen/logrus"

	"prism-tasks/devserver"
)

func main() {
	cfg, err := devserver.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	var jwks *keyfunc.JWKS
	if cfg.SharedSecret == "" {
		jwks, err = keyfunc.Get(devserver.JWKSURL(cfg.Auth0Domain), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
	}
	auth, err := cfg.Authenticator(jwks)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	logger := log.New()
	logger.SetLevel(log.GetLevel())
	e := devserver.New(devserver.NewStore(), auth, logger)

	log.WithField("addr", cfg.Addr).Info("dev gateway listening")
	e.Logger.Fatal(e.Start(cfg.Addr))
}
