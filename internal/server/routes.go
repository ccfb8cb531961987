// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/status"
	"github.com/mia-platform/ledgersync/internal/trust"
)

type healthResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type syncStatusResponse struct {
	Status   status.Status            `json:"status"`
	Channels map[string]status.Status `json:"channels"`
}

type balanceResponse struct {
	Ledger     string      `json:"ledger"`
	Account    string      `json:"account"`
	Amount     uint64      `json:"amount"`
	TrustLevel trust.Level `json:"trustLevel"`
}

type transactionsResponse struct {
	Ledger       string               `json:"ledger"`
	Account      string               `json:"account"`
	Transactions []ledger.Transaction `json:"transactions"`
	TrustLevel   trust.Level          `json:"trustLevel"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func statusRoutes(app *fiber.App, name, version string, accounts Accounts) {
	app.Get("/-/healthz", func(c *fiber.Ctx) error {
		return c.JSON(healthResponse{Status: "OK", Name: name, Version: version})
	})

	app.Get("/-/ready", func(c *fiber.Ctx) error {
		overall, _ := accounts.SyncStatus()
		if overall == status.Error {
			return c.Status(http.StatusServiceUnavailable).JSON(healthResponse{Status: "KO", Name: name, Version: version})
		}
		return c.JSON(healthResponse{Status: "OK", Name: name, Version: version})
	})

	app.Get("/sync/status", func(c *fiber.Ctx) error {
		overall, channels := accounts.SyncStatus()
		return c.JSON(syncStatusResponse{Status: overall, Channels: channels})
	})
}

func accountRoutes(app *fiber.App, accounts Accounts) {
	group := app.Group("/accounts/:ledger/:account")

	group.Get("/balance", func(c *fiber.Ctx) error {
		key := accountKey(c)
		entry, found, err := accounts.Balance(c.UserContext(), key)
		if err != nil {
			return err
		}
		if !found {
			return fiber.NewError(http.StatusNotFound, "balance not available for "+key.String())
		}

		return c.JSON(balanceResponse{
			Ledger:     key.Ledger,
			Account:    key.Account,
			Amount:     entry.Value.Amount,
			TrustLevel: entry.Level,
		})
	})

	group.Get("/transactions", func(c *fiber.Ctx) error {
		key := accountKey(c)
		entry, found, err := accounts.History(c.UserContext(), key)
		if err != nil {
			return err
		}
		if !found {
			return fiber.NewError(http.StatusNotFound, "transactions not available for "+key.String())
		}

		transactions := entry.Value
		if transactions == nil {
			transactions = []ledger.Transaction{}
		}
		return c.JSON(transactionsResponse{
			Ledger:       key.Ledger,
			Account:      key.Account,
			Transactions: transactions,
			TrustLevel:   entry.Level,
		})
	})
}

func accountKey(c *fiber.Ctx) ledger.AccountKey {
	return ledger.AccountKey{
		Ledger:  c.Params("ledger"),
		Account: c.Params("account"),
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	message := err.Error()

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(errorResponse{
		StatusCode: code,
		Error:      http.StatusText(code),
		Message:    message,
	})
}
