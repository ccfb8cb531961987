// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

const (
	runCmdUsage = "run"
	runCmdShort = "keep the configured accounts synchronized with the ledger"
	runCmdLong  = `Keep the configured accounts synchronized with the ledger.
	Balances and transaction histories are polled in background through both the
	query and the update channels of the ledger, exposed by the status server and,
	when configured, published on a Google Cloud Pub/Sub topic.

	The ledger, the polling interval and the publisher are configured through
	environment variables, please refer to the documentation for more details.`

	runCmdExample = `# Synchronize the accounts listed in a file
	ledgersync run --accounts-file accounts.yaml

	# Print every update on stdout instead of publishing it
	ledgersync run -f accounts/ --local-output`

	historyCmdUsage = "history LEDGER/ACCOUNT"
	historyCmdShort = "print the full transaction history of an account"
	historyCmdLong  = `Print the full transaction history of an account.
	The history is walked backward from the newest transaction through the update
	channel of the ledger, until the oldest transaction or the iteration cap is
	reached. The output reports whether the history is complete.`

	historyCmdExample = `# Print the history of an account
	ledgersync history icp/alice

	# Walk at most 5 pages of 50 transactions
	ledgersync history icp/alice --page-size 50 --max-iterations 5`
)

// RunCmd returns the "run" cli command that starts the background synchronization.
func RunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     runCmdUsage,
		Short:   heredoc.Doc(runCmdShort),
		Long:    heredoc.Doc(runCmdLong),
		Example: heredoc.Doc(runCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.toOptions(cmd)
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// HistoryCmd returns the "history" cli command that prints the history of one account.
func HistoryCmd() *cobra.Command {
	flags := &historyFlags{}
	cmd := &cobra.Command{
		Use:     historyCmdUsage,
		Short:   heredoc.Doc(historyCmdShort),
		Long:    heredoc.Doc(historyCmdLong),
		Example: heredoc.Doc(historyCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.toOptions(cmd, args)
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}
