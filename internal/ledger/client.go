// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/mia-platform/ledgersync/internal/info"
	"github.com/mia-platform/ledgersync/internal/trust"
)

const (
	apiBasePath = "api/v1"

	balanceResource      = "balance"
	transactionsResource = "transactions"
)

var _ Client = &HTTPClient{}

// envelope is the body returned by both channels. Certificate is set only by the update one.
type envelope struct {
	Data        json.RawMessage `json:"data"`
	Certificate string          `json:"certificate,omitempty"`
}

// HTTPClient implements Client against the ledger HTTP gateway.
type HTTPClient struct {
	config

	client atomic.Pointer[http.Client]
}

// NewClient returns an HTTPClient configured from the environment.
func NewClient() (*HTTPClient, error) {
	config, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		config: *config,
	}, nil
}

// Balance implements Client.
func (c *HTTPClient) Balance(ctx context.Context, account AccountKey, level trust.Level) (Balance, error) {
	var balance Balance
	err := c.call(ctx, level, balanceResource, map[string]AccountKey{"account": account}, &balance)
	return balance, err
}

// Transactions implements Client.
func (c *HTTPClient) Transactions(ctx context.Context, req TransactionsRequest, level trust.Level) (TransactionsPage, error) {
	var page TransactionsPage
	err := c.call(ctx, level, transactionsResource, req, &page)
	return page, err
}

// call posts params to the channel selected by level and decodes the response data into out.
func (c *HTTPClient) call(ctx context.Context, level trust.Level, resource string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return handleError(err)
	}

	endpoint, err := c.resourceURL(level, resource)
	if err != nil {
		return handleError(err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return handleError(err)
	}

	request.Header.Set("User-Agent", userAgentString())
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Type", "application/json")

	//nolint:contextcheck // need a new context because it will be used in token requests
	resp, err := c.getClient(context.Background()).Do(request)
	if err != nil {
		return handleError(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var respBody map[string]any
		if err := decoder.Decode(&respBody); err == nil {
			if message, ok := respBody["message"].(string); ok {
				return handleError(fmt.Errorf("%s %s: %s", resource, channelName(level), message))
			}
		}

		return handleError(fmt.Errorf("%s %s: unexpected status code %d", resource, channelName(level), resp.StatusCode))
	}

	var result envelope
	if err := decoder.Decode(&result); err != nil {
		return handleError(err)
	}

	if level == trust.Certified {
		if err := verifyCertificate(resource, result.Certificate); err != nil {
			return handleError(err)
		}
	}

	if err := json.Unmarshal(result.Data, out); err != nil {
		return handleError(err)
	}
	return nil
}

func (c *HTTPClient) resourceURL(level trust.Level, resource string) (string, error) {
	base, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", err
	}

	return base.JoinPath(apiBasePath, channelName(level), resource).String(), nil
}

func (c *HTTPClient) getClient(ctx context.Context) *http.Client {
	client := c.client.Load()
	if client != nil {
		return client
	}

	client = &http.Client{
		Transport: newTransport(ctx, c.AuthEndpoint, c.ClientID, c.ClientSecret),
	}
	c.client.Store(client)
	return client
}

// verifyCertificate rejects certified responses without a well formed certificate.
func verifyCertificate(resource, certificate string) error {
	if certificate == "" {
		return &CertificationError{Resource: resource, err: errors.New("missing certificate")}
	}

	if _, err := base64.StdEncoding.DecodeString(certificate); err != nil {
		return &CertificationError{Resource: resource, err: fmt.Errorf("malformed certificate: %w", err)}
	}
	return nil
}

// channelName maps a trust level to the gateway channel serving it.
func channelName(level trust.Level) string {
	if level == trust.Certified {
		return "update"
	}
	return "query"
}

// userAgentString builds the User-Agent header sent to the ledger gateway.
func userAgentString() string {
	return info.AppName + "/" + info.Version
}
