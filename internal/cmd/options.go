// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mia-platform/ledgersync/internal/accounts"
	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/logger"
	"github.com/mia-platform/ledgersync/internal/publisher"
	"github.com/mia-platform/ledgersync/internal/server"
)

const (
	loggerName = "ledgersync:cmd"
)

// runOptions holds the options set for the current run function.
type runOptions struct {
	accounts    []ledger.AccountKey
	localOutput bool
	syncConfig  *syncConfig
	writer      io.Writer

	clientGetter func() (ledger.Client, error)
	lock         sync.Mutex
}

// validate validates the run options and returns an error if something is wrong.
func (o *runOptions) validate() error {
	if len(o.accounts) == 0 {
		return errNoAccounts
	}

	return nil
}

// execute starts the background synchronization and blocks until ctx is done or a termination
// signal is received.
func (o *runOptions) execute(ctx context.Context) error {
	if !o.lock.TryLock() {
		return nil
	}
	defer o.lock.Unlock()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.FromContext(ctx).WithName(loggerName)

	client, err := o.clientGetter()
	if err != nil {
		return err
	}

	synchronizer, err := accounts.New(client, accounts.Options{
		CacheTTL: o.syncConfig.CacheTTL,
		History:  o.syncConfig.historyOptions(),
		OnFailure: func(account ledger.AccountKey, err error) {
			log.Error("certified balance failed", "account", account.String(), "error", err)
		},
	})
	if err != nil {
		return err
	}

	sender, err := o.sender()
	if err != nil {
		return err
	}

	srv, err := server.NewServer(ctx, synchronizer)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if sender != nil {
		forwarder := publisher.NewForwarder(sender, 0)
		unsubscribe := forwarder.Subscribe(synchronizer.Balances(), synchronizer.Transactions())
		defer unsubscribe()
		group.Go(func() error {
			return forwarder.Run(groupCtx)
		})
	}

	if err := synchronizer.StartWorkers(groupCtx, o.syncConfig.Interval, o.accounts); err != nil {
		stop()
		_ = group.Wait()
		return err
	}

	group.Go(srv.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		return srv.Stop()
	})

	err = group.Wait()
	log.Info("background synchronization terminated")
	return err
}

// sender returns where the sink updates are forwarded, nil when they are kept in memory only.
func (o *runOptions) sender() (publisher.Sender, error) {
	if o.localOutput {
		return publisher.NewWriterSender(o.writer), nil
	}

	config, err := publisher.LoadPubSubConfig()
	if err != nil {
		return nil, err
	}

	if !config.Enabled() {
		return nil, nil
	}

	return publisher.NewPubSubSender(config)
}
