// Package main implements the opstoken CLI, which mints service tokens for
// the SkyAware operational endpoints.
//
// Usage:
//
//	go run ./cmd/opstoken --subject=oncall
//	go run ./cmd/opstoken --subject=grafana --ttl=720h --json
//
// The signing key, issuer and audience are read from the same environment
// variables the API uses (or a .env file), so a minted token validates
// against any API instance sharing that configuration.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/skyaware/skyaware/internal/auth"
	"github.com/skyaware/skyaware/internal/config"
)

type output struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	subject := flag.String("subject", "", "caller the token is issued to (required)")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "token lifetime, at most 2160h")
	asJSON := flag.Bool("json", false, "print the token as a JSON document")
	flag.Parse()

	if err := run(*subject, *ttl, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "opstoken: %v\n", err)
		os.Exit(1)
	}
}

func run(subject string, ttl time.Duration, asJSON bool) error {
	if subject == "" {
		return errors.New("--subject is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	token, expiresAt, err := tokens.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	if !asJSON {
		fmt.Println(token)
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output{Token: token, Subject: subject, ExpiresAt: expiresAt.UTC()})
}
