/*
Package cache provides the result-cache implementations for the
metrics engine.

PURPOSE:
  The engine's cache contract is get/set with NO explicit delete:
  invalidation happens by key construction (generation counters embed
  into keys, old entries become unreachable garbage). Any eviction
  policy at this layer is therefore sufficient and requires no
  cooperation from the engine.

IMPLEMENTATIONS:
  - Memory: plain map, no eviction. For tests and small deployments.
  - LRU:    size-bounded with TTL sweep. For production processes that
            would otherwise accumulate unreachable entries forever.

A nil Cache is valid everywhere: the engine treats it as always-miss
and recomputes. A cache must never fail a read.
*/
package cache

// Cache is the process-wide key/value contract consumed by the engine.
// No Delete on purpose: old keys become unreachable, not "invalid".
type Cache[T any] interface {
	// Get retrieves a value. A miss is (zero, false), never an error.
	Get(key string) (T, bool)

	// Set stores a value. Duplicate concurrent sets for the same key
	// are harmless: results are idempotent.
	Set(key string, value T)

	// Size returns the current number of entries.
	Size() int
}
