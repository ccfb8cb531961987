// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeaderName = "x-request-id"

	IncomingRequestMessage  = "incoming request"
	RequestCompletedMessage = "request completed"
)

// requestID returns the caller supplied request id or a freshly generated one.
func requestID(c *fiber.Ctx) string {
	if id := c.Get(requestIDHeaderName, ""); id != "" {
		return id
	}

	id, err := uuid.NewRandom()
	if err != nil {
		panic(fmt.Errorf("error generating request id: %w", err))
	}
	return id.String()
}

// statusCode resolves the response status, giving precedence to fiber errors returned by handlers.
func statusCode(c *fiber.Ctx, handlerErr error) int {
	if fiberErr, ok := handlerErr.(*fiber.Error); ok {
		return fiberErr.Code
	}

	return c.Response().StatusCode()
}

// RequestMiddlewareLogger is a fiber middleware that logs every request not matching
// excludedPrefix. The request scoped logger is stored in the fiber user context so handlers
// can retrieve it with FromContext.
func RequestMiddlewareLogger(logger Logger, excludedPrefix []string) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range excludedPrefix {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		id := requestID(c)
		reqLogger := logger.WithName("request").With("requestId", id)
		c.SetUserContext(WithContext(c.UserContext(), reqLogger))
		c.Set(requestIDHeaderName, id)

		reqLogger.Trace(IncomingRequestMessage,
			"method", c.Method(),
			"path", path,
			"userAgent", c.Get("user-agent", ""),
		)

		err := c.Next()

		reqLogger.Info(RequestCompletedMessage,
			"method", c.Method(),
			"path", path,
			"statusCode", statusCode(c, err),
			"responseTime", float64(time.Since(start).Milliseconds()),
		)
		return err
	}
}
