// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package logger wraps the underlying logging stack behind a consistent interface.
// Loggers travel through the synchronization engine inside a context, every
// component derives its own named logger from the one it receives.
package logger
