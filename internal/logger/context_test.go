// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	t.Parallel()

	log := NewLogger(io.Discard)

	testCases := map[string]struct {
		ctx      func(t *testing.T) context.Context
		expected Logger
	}{
		"nil context": {
			ctx:      func(*testing.T) context.Context { return nil },
			expected: nullLogger,
		},
		"context without logger": {
			ctx:      func(t *testing.T) context.Context { return t.Context() },
			expected: nullLogger,
		},
		"nil logger is not stored": {
			ctx:      func(t *testing.T) context.Context { return WithContext(t.Context(), nil) },
			expected: nullLogger,
		},
		"stored logger": {
			ctx:      func(t *testing.T) context.Context { return WithContext(t.Context(), log) },
			expected: log,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, FromContext(test.ctx(t)))
		})
	}
}
