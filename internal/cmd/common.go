// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/mia-platform/ledgersync/internal/config"
	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/pager"
)

var (
	errNoArguments      = errors.New("no account provided")
	errInvalidAccount   = errors.New("invalid account, expected LEDGER/ACCOUNT")
	errNoAccounts       = errors.New("no accounts configured, use --" + accountsPathFlagName)
	errInvalidSyncValue = errors.New("invalid synchronization configuration")

	// clientGetter returns the ledger client used by the commands.
	// It can be overridden for testing purposes.
	clientGetter = func() (ledger.Client, error) {
		client, err := ledger.NewClient()
		if err != nil {
			return nil, err
		}
		return client, nil
	}
)

// handleError will do custom print error handling based on the type of error received.
// it will return nil if the command must return 0 exit code, otherwise it will return
// the original error.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errNoArguments):
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return nil
	case errors.Is(err, errInvalidAccount), errors.Is(err, errNoAccounts):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

// unwrappedError returns the unwrapped error if available, otherwise it returns the original error.
func unwrappedError(err error) error {
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		return unwrapped
	}

	return err
}

// syncConfig holds the environment driven tuning of the synchronization.
type syncConfig struct {
	Interval      time.Duration `env:"SYNC_INTERVAL" envDefault:"30s"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	PageSize      int           `env:"HISTORY_PAGE_SIZE" envDefault:"100"`
	MaxIterations int           `env:"HISTORY_MAX_ITERATIONS" envDefault:"20"`
}

func loadSyncConfig() (*syncConfig, error) {
	cfg, err := env.ParseAs[syncConfig]()
	if err != nil {
		var parseErr env.AggregateError
		if errors.As(err, &parseErr) {
			err = parseErr.Errors[0]
		}
		return nil, fmt.Errorf("%w: %w", errInvalidSyncValue, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *syncConfig) validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: SYNC_INTERVAL must be positive", errInvalidSyncValue)
	case c.CacheTTL <= 0:
		return fmt.Errorf("%w: CACHE_TTL must be positive", errInvalidSyncValue)
	case c.PageSize < 0:
		return fmt.Errorf("%w: HISTORY_PAGE_SIZE cannot be negative", errInvalidSyncValue)
	case c.MaxIterations < 0:
		return fmt.Errorf("%w: HISTORY_MAX_ITERATIONS cannot be negative", errInvalidSyncValue)
	}
	return nil
}

func (c *syncConfig) historyOptions() pager.Options {
	return pager.Options{
		PageSize:      c.PageSize,
		MaxIterations: c.MaxIterations,
	}
}

// parseAccount parses an account in the LEDGER/ACCOUNT form.
func parseAccount(value string) (ledger.AccountKey, error) {
	ledgerName, account, found := strings.Cut(value, "/")
	if !found || ledgerName == "" || account == "" || strings.Contains(account, "/") {
		return ledger.AccountKey{}, fmt.Errorf("%w: %q", errInvalidAccount, value)
	}

	return ledger.AccountKey{Ledger: ledgerName, Account: account}, nil
}

func collectPaths(paths []string) ([]string, error) {
	collected := make([]string, 0)
	for _, p := range paths {
		cleanedPath := filepath.Clean(p)
		err := filepath.Walk(cleanedPath, func(walkedPath string, info fs.FileInfo, err error) error {
			if err != nil {
				return fmt.Errorf("accounts file %q: %w", walkedPath, unwrappedError(err))
			}

			switch {
			case !info.IsDir(): // it's a file add to the collection
				collected = append(collected, walkedPath)
			case info.IsDir() && cleanedPath != walkedPath: // skip directories if is not the root path
				return filepath.SkipDir
			}

			return nil
		})

		if err != nil {
			return nil, err
		}
	}

	return collected, nil
}

// loadAccounts reads all the accounts files at paths and returns the configured accounts.
func loadAccounts(paths []string) ([]ledger.AccountKey, error) {
	configs := make([]*config.AccountsConfig, 0)
	for _, path := range paths {
		fileConfigs, err := config.NewAccountsConfigsFromPath(path)
		if err != nil {
			return nil, err
		}

		configs = append(configs, fileConfigs...)
	}

	return config.AccountKeys(configs), nil
}
