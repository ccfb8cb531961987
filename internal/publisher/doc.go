// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package publisher forwards the changes of the synchronized sinks to an external consumer.
// Updates are queued by a Forwarder and delivered by a Sender, either a Google Cloud Pub/Sub
// topic or an io.Writer useful for local debugging.
package publisher
