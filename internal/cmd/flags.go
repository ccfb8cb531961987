// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"github.com/spf13/cobra"
)

const (
	accountsPathFlagName      = "accounts-file"
	accountsPathShortFlagName = "f"
	accountsPathFlagUsage     = "file or directory containing the accounts to synchronize, can be repeated"

	localOutputFlagName  = "local-output"
	localOutputFlagUsage = "print every update on the standard output instead of publishing it"

	pageSizeFlagName  = "page-size"
	pageSizeFlagUsage = "number of transactions requested for every page, 0 for the default value"

	maxIterationsFlagName  = "max-iterations"
	maxIterationsFlagUsage = "maximum number of pages requested before giving up, 0 for the default value"
)

// runFlags holds the flag values of the run command.
type runFlags struct {
	accountsPaths []string
	localOutput   bool
}

func (f *runFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&f.accountsPaths, accountsPathFlagName, accountsPathShortFlagName, nil, accountsPathFlagUsage)
	flags.BoolVar(&f.localOutput, localOutputFlagName, false, localOutputFlagUsage)

	if err := cmd.MarkFlagFilename(accountsPathFlagName, "yaml", "yml", "json"); err != nil {
		panic(err)
	}
}

func (f *runFlags) toOptions(cmd *cobra.Command) (*runOptions, error) {
	paths, err := collectPaths(f.accountsPaths)
	if err != nil {
		return nil, err
	}

	accounts, err := loadAccounts(paths)
	if err != nil {
		return nil, err
	}

	syncConfig, err := loadSyncConfig()
	if err != nil {
		return nil, err
	}

	return &runOptions{
		accounts:    accounts,
		localOutput: f.localOutput,
		syncConfig:  syncConfig,
		writer:      cmd.OutOrStdout(),

		clientGetter: clientGetter,
	}, nil
}

// historyFlags holds the flag values of the history command.
type historyFlags struct {
	pageSize      int
	maxIterations int
}

func (f *historyFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.pageSize, pageSizeFlagName, 0, pageSizeFlagUsage)
	flags.IntVar(&f.maxIterations, maxIterationsFlagName, 0, maxIterationsFlagUsage)
}

func (f *historyFlags) toOptions(cmd *cobra.Command, args []string) (*historyOptions, error) {
	if len(args) == 0 {
		return nil, errNoArguments
	}

	account, err := parseAccount(args[0])
	if err != nil {
		return nil, err
	}

	return &historyOptions{
		account:       account,
		pageSize:      f.pageSize,
		maxIterations: f.maxIterations,
		writer:        cmd.OutOrStdout(),

		clientGetter: clientGetter,
	}, nil
}
