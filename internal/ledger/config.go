// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package ledger

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v11"
)

var (
	errParsingConfig       = errors.New("error parsing ledger configuration from environment variables")
	errMissingEndpoint     = errors.New("LEDGER_ENDPOINT is required")
	errMissingClientID     = errors.New("LEDGER_CLIENT_ID is required when LEDGER_CLIENT_SECRET is set")
	errMissingClientSecret = errors.New("LEDGER_CLIENT_SECRET is required when LEDGER_CLIENT_ID is set")
)

// config holds the environment-driven ledger settings.
type config struct {
	Endpoint     string `env:"LEDGER_ENDPOINT"`
	ClientID     string `env:"LEDGER_CLIENT_ID"`
	ClientSecret string `env:"LEDGER_CLIENT_SECRET"`
	AuthEndpoint string `env:"LEDGER_AUTH_ENDPOINT"`
}

func loadConfigFromEnv() (*config, error) {
	config, err := env.ParseAs[config]()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errParsingConfig, err.Error())
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *config) validate() error {
	if c.Endpoint == "" {
		return errMissingEndpoint
	}
	endpointURL, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid LEDGER_ENDPOINT: %w", err)
	}

	switch {
	case len(c.ClientID) > 0 && len(c.ClientSecret) == 0:
		return errMissingClientSecret
	case len(c.ClientSecret) > 0 && len(c.ClientID) == 0:
		return errMissingClientID
	}

	if len(c.AuthEndpoint) == 0 {
		endpointURL.Path = "/oauth/token"
		c.AuthEndpoint = endpointURL.String()
	} else if _, err := url.Parse(c.AuthEndpoint); err != nil {
		return fmt.Errorf("invalid LEDGER_AUTH_ENDPOINT: %w", err)
	}
	return nil
}
