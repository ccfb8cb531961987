// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/ledgersync/internal/ledger"
	"github.com/mia-platform/ledgersync/internal/sink"
	"github.com/mia-platform/ledgersync/internal/status"
	"github.com/mia-platform/ledgersync/internal/trust"
)

type fakeAccounts struct {
	balances     map[ledger.AccountKey]sink.Entry[ledger.Balance]
	transactions map[ledger.AccountKey]sink.Entry[[]ledger.Transaction]
	channels     map[string]status.Status
	err          error
}

func (f *fakeAccounts) Balance(_ context.Context, account ledger.AccountKey) (sink.Entry[ledger.Balance], bool, error) {
	entry, ok := f.balances[account]
	return entry, ok, f.err
}

func (f *fakeAccounts) History(_ context.Context, account ledger.AccountKey) (sink.Entry[[]ledger.Transaction], bool, error) {
	entry, ok := f.transactions[account]
	return entry, ok, f.err
}

func (f *fakeAccounts) SyncStatus() (status.Status, map[string]status.Status) {
	return status.Aggregate(f.channels), f.channels
}

func TestRoutes(t *testing.T) {
	alice := ledger.AccountKey{Ledger: "icp", Account: "alice"}
	accounts := &fakeAccounts{
		balances: map[ledger.AccountKey]sink.Entry[ledger.Balance]{
			alice: {Value: ledger.Balance{Amount: 42}, Level: trust.Certified},
		},
		transactions: map[ledger.AccountKey]sink.Entry[[]ledger.Transaction]{
			alice: {Value: []ledger.Transaction{{ID: 2, Kind: "mint", Amount: 5, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}, Level: trust.Unverified},
			{Ledger: "icp", Account: "empty"}: {Level: trust.Certified},
		},
		channels: map[string]status.Status{"balances": status.Idle, "transactions": status.InProgress},
	}

	srv, err := NewServer(t.Context(), accounts)
	require.NoError(t, err)

	testCases := map[string]struct {
		path         string
		expectedCode int
		expectedBody string
	}{
		"healthz": {
			path:         "/-/healthz",
			expectedCode: http.StatusOK,
			expectedBody: `{"status":"OK","name":"ledgersync","version":"DEV"}`,
		},
		"ready": {
			path:         "/-/ready",
			expectedCode: http.StatusOK,
			expectedBody: `{"status":"OK","name":"ledgersync","version":"DEV"}`,
		},
		"sync status": {
			path:         "/sync/status",
			expectedCode: http.StatusOK,
			expectedBody: `{"status":"in_progress","channels":{"balances":"idle","transactions":"in_progress"}}`,
		},
		"balance": {
			path:         "/accounts/icp/alice/balance",
			expectedCode: http.StatusOK,
			expectedBody: `{"ledger":"icp","account":"alice","amount":42,"trustLevel":"certified"}`,
		},
		"missing balance": {
			path:         "/accounts/icp/bob/balance",
			expectedCode: http.StatusNotFound,
			expectedBody: `{"statusCode":404,"error":"Not Found","message":"balance not available for icp/bob"}`,
		},
		"transactions": {
			path:         "/accounts/icp/alice/transactions",
			expectedCode: http.StatusOK,
			expectedBody: `{"ledger":"icp","account":"alice","trustLevel":"unverified","transactions":[{"id":2,"kind":"mint","amount":5,"timestamp":"2024-01-01T00:00:00Z"}]}`,
		},
		"empty transactions": {
			path:         "/accounts/icp/empty/transactions",
			expectedCode: http.StatusOK,
			expectedBody: `{"ledger":"icp","account":"empty","trustLevel":"certified","transactions":[]}`,
		},
		"missing transactions": {
			path:         "/accounts/icp/bob/transactions",
			expectedCode: http.StatusNotFound,
			expectedBody: `{"statusCode":404,"error":"Not Found","message":"transactions not available for icp/bob"}`,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, test.path, nil)
			response, err := srv.app.Test(request)
			require.NoError(t, err)
			defer response.Body.Close()

			body, err := io.ReadAll(response.Body)
			require.NoError(t, err)
			assert.Equal(t, test.expectedCode, response.StatusCode)
			assert.JSONEq(t, test.expectedBody, string(body))
		})
	}
}

func TestReadyReportsSyncErrors(t *testing.T) {
	accounts := &fakeAccounts{
		channels: map[string]status.Status{"balances": status.Error, "transactions": status.Idle},
	}

	srv, err := NewServer(t.Context(), accounts)
	require.NoError(t, err)

	response, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)

	response, err = srv.app.Test(httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	require.NoError(t, err)
	defer response.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(response.Body).Decode(&body))
	assert.Equal(t, "error", body["status"])
}

func TestAccountErrors(t *testing.T) {
	accounts := &fakeAccounts{err: context.DeadlineExceeded}

	srv, err := NewServer(t.Context(), accounts)
	require.NoError(t, err)

	response, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/accounts/icp/alice/balance", nil))
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)
}

func TestStartServer(t *testing.T) {
	t.Setenv("HTTP_HOST", "127.0.0.1")
	t.Setenv("HTTP_PORT", "3001")

	srv, err := NewServer(t.Context(), &fakeAccounts{})
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	require.Eventually(t, func() bool {
		response, err := http.Get("http://127.0.0.1:3001/-/healthz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, srv.Stop())
	require.NoError(t, <-errChan)
}

func TestStartAsyncServer(t *testing.T) {
	t.Setenv("HTTP_HOST", "127.0.0.1")
	t.Setenv("HTTP_PORT", "3002")

	ctx, cancel := context.WithCancel(t.Context())
	srv, err := NewServer(ctx, &fakeAccounts{})
	require.NoError(t, err)

	srv.StartAsync(ctx)
	require.Eventually(t, func() bool {
		response, err := http.Get("http://127.0.0.1:3002/-/healthz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		_, err := http.Get("http://127.0.0.1:3002/-/healthz")
		return err != nil
	}, 5*time.Second, 50*time.Millisecond)
}
