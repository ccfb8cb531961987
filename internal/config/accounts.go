// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mia-platform/ledgersync/internal/ledger"
)

const (
	LedgerField   = "ledger"
	AccountsField = "accounts"
)

var (
	// ErrParsing reports failures that occur while decoding accounts files.
	ErrParsing = errors.New("error parsing")
)

// AccountsConfig lists the accounts to synchronize on a single ledger.
type AccountsConfig struct {
	Ledger   string   `json:"ledger" yaml:"ledger"`
	Accounts []string `json:"accounts" yaml:"accounts"`
}

// Keys returns the account keys described by the configuration.
func (c *AccountsConfig) Keys() []ledger.AccountKey {
	keys := make([]ledger.AccountKey, 0, len(c.Accounts))
	for _, account := range c.Accounts {
		keys = append(keys, ledger.AccountKey{Ledger: c.Ledger, Account: account})
	}
	return keys
}

func (c *AccountsConfig) validate() error {
	missingFields := []string{}
	if c.Ledger == "" {
		missingFields = append(missingFields, LedgerField)
	}
	if len(c.Accounts) == 0 {
		missingFields = append(missingFields, AccountsField)
	}
	if len(missingFields) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missingFields, ", "))
	}

	if slices.Contains(c.Accounts, "") {
		return fmt.Errorf("empty account in ledger %q", c.Ledger)
	}
	return nil
}

// NewAccountsConfigsFromPath parses the file at path and returns any accounts configurations
// it contains. It reports failures encountered while reading or decoding the data.
func NewAccountsConfigsFromPath(path string) ([]*AccountsConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	configs := make([]*AccountsConfig, 0)
	for {
		config := new(AccountsConfig)
		err := decoder.Decode(&config)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("%w %q: %w", ErrParsing, path, err)
		}

		// empty documents
		if config == nil {
			continue
		}

		if err := config.validate(); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrParsing, path, err)
		}

		configs = append(configs, config)
	}

	return configs, nil
}

// AccountKeys merges the keys of every configuration, dropping duplicates while keeping the
// order of first appearance.
func AccountKeys(configs []*AccountsConfig) []ledger.AccountKey {
	seen := make(map[ledger.AccountKey]struct{})
	keys := make([]ledger.AccountKey, 0)
	for _, config := range configs {
		for _, key := range config.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}
