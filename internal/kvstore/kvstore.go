// Package kvstore is the durable key-value layer backing snapshot and
// allowlist persistence. Values are JSON documents; backends are a local
// file tree, Redis, or an in-memory map for tests.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store reads and writes JSON values by key. Set marshals value; Get
// unmarshals into dest.
type Store interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Close() error
}

// Well-known keys shared across the daemon.
const (
	KeyLastSnapshot = "volspike:lastSnapshot"
	KeyExchangeInfo = "volspike:exchangeInfo:perpUsdt"
)
