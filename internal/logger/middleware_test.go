// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"bytes"
	"encoding/json"
	netHTTP "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMiddlewareLogger(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		path          string
		requestID     string
		expectedLines int
	}{
		"logged request": {
			path:          "/sync/status",
			expectedLines: 2,
		},
		"request id is propagated": {
			path:          "/sync/status",
			requestID:     "custom-id",
			expectedLines: 2,
		},
		"excluded prefix is not logged": {
			path:          "/-/healthz",
			expectedLines: 0,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			buffer := new(bytes.Buffer)
			log := NewLogger(buffer)
			log.SetLevel(TRACE)

			app := fiber.New(fiber.Config{})
			app.Use(RequestMiddlewareLogger(log, []string{"/-/"}))
			app.Get("/*", func(c *fiber.Ctx) error {
				assert.NotNil(t, FromContext(c.UserContext()))
				return c.SendStatus(netHTTP.StatusNoContent)
			})

			req := httptest.NewRequest(netHTTP.MethodGet, "http://example.com"+test.path, nil)
			if test.requestID != "" {
				req.Header.Set(requestIDHeaderName, test.requestID)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, netHTTP.StatusNoContent, resp.StatusCode)

			lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
			if test.expectedLines == 0 {
				assert.Empty(t, buffer.String())
				return
			}

			require.Len(t, lines, test.expectedLines)
			completed := make(map[string]any)
			require.NoError(t, json.Unmarshal([]byte(lines[1]), &completed))
			assert.Equal(t, RequestCompletedMessage, completed["@message"])
			assert.InDelta(t, netHTTP.StatusNoContent, completed["statusCode"], 0)
			if test.requestID != "" {
				assert.Equal(t, test.requestID, completed["requestId"])
				assert.Equal(t, test.requestID, resp.Header.Get(requestIDHeaderName))
			}
		})
	}
}
