// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package cache implements the in-memory response cache of the synchronization engine.
// Every key owns one slot per trust level and each slot expires on its own clock, so an
// optimistic query answer never overwrites nor extends the life of a certified one.
package cache
