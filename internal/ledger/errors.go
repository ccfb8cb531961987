// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package ledger

import (
	"context"
	"errors"

	"github.com/caarlos0/env/v11"
)

var (
	// ErrTransport is matched by every network or RPC failure.
	ErrTransport = errors.New("ledger transport error")
	// ErrCertification is matched when the update channel fails to return verifiable data.
	ErrCertification = errors.New("ledger certification failure")
)

// TransportError wraps network and application errors returned by the ledger.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string {
	return "ledger: " + e.err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.err
}

func (e *TransportError) Is(target error) bool {
	if target == ErrTransport {
		return true
	}

	te, ok := target.(*TransportError)
	if !ok {
		return false
	}

	return e.err.Error() == te.err.Error()
}

// CertificationError reports a certified response that cannot be trusted.
type CertificationError struct {
	Resource string
	err      error
}

func (e *CertificationError) Error() string {
	return "ledger certification of " + e.Resource + ": " + e.err.Error()
}

func (e *CertificationError) Unwrap() error {
	return e.err
}

func (e *CertificationError) Is(target error) bool {
	return target == ErrCertification
}

// handleError normalizes the errors returned by the ledger client.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var certErr *CertificationError
	if errors.As(err, &certErr) {
		return certErr
	}

	return &TransportError{
		err: err,
	}
}
