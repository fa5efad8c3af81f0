/*
errors.go - Centralized error types for the metrics engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The engine's error surface is deliberately small: almost every
  "error" in the aggregate algorithms is a zero denominator, and those
  resolve to fixed fallback values (see types.go), not to errors.

ERROR CATEGORIES:
  1. Lookup errors - Missing entities and time buckets
  2. Store errors  - Persistence-level failures (wrapped by stores)

NOTE:
  A missing TimeBucket for a requested (year, week) is a hard lookup
  failure surfaced to the caller; the engine never synthesizes buckets.
  An unavailable result cache is NOT an error: the engine degrades to
  always-miss and recomputes.

SEE ALSO:
  - engine.go: Returns these from the two query operations
  - store/: Implementations wrap these with driver context
*/
package metrics

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPersonNotFound is returned when a referenced person doesn't exist.
	ErrPersonNotFound = errors.New("person not found")

	// ErrProjectNotFound is returned when a referenced project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrBucketNotFound is returned when no time bucket exists for a
	// requested (year, week) or date. Buckets are created by a maintenance
	// routine covering the full operating range; a miss means that routine
	// has not run far enough.
	ErrBucketNotFound = errors.New("time bucket not found")

	// ErrAssignmentNotFound is returned when no work assignment exists for
	// a (project, person) pair.
	ErrAssignmentNotFound = errors.New("work assignment not found")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity or bucket.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPersonNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrBucketNotFound) ||
		errors.Is(err, ErrAssignmentNotFound)
}
