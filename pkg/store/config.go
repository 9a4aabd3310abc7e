package store

import (
	"time"

	"storecache/pkg/lock"
)

// defaultCacheCapacity is used when WithCacheCapacity is not supplied.
// Implementation-defined per spec §6.
const defaultCacheCapacity = 1024

// Config holds the recognized options from spec §6: cache capacity, the
// deadlock-resolution policy, and the lock acquisition timeout.
type Config struct {
	CacheCapacity  int
	DeadlockPolicy lock.Policy
	AcquireTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		CacheCapacity:  defaultCacheCapacity,
		DeadlockPolicy: lock.RequesterVictim,
		AcquireTimeout: 0,
	}
}

// Option configures a Store at construction time.
type Option func(*Config)

// WithCacheCapacity sets the Shared Cache's maximum entry count. A value of
// 0 disables retention entirely (spec §8 boundary behavior) while
// preserving all functional behavior.
func WithCacheCapacity(n int) Option {
	return func(c *Config) { c.CacheCapacity = n }
}

// WithDeadlockPolicy selects which transaction is aborted when acquiring a
// lock would close a cycle in the wait-for graph. Default is
// lock.RequesterVictim.
func WithDeadlockPolicy(p lock.Policy) Option {
	return func(c *Config) { c.DeadlockPolicy = p }
}

// WithAcquireTimeout bounds how long Transaction.Lock will block before
// failing with DEADLOCK by timeout. Zero (the default) waits indefinitely,
// subject only to context cancellation.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Config) { c.AcquireTimeout = d }
}
