/*
timebucket.go - Calendar weeks as stable, ordered bucket identifiers

PURPOSE:
  Maps calendar weeks to time buckets, the atomic unit of booking and a
  cache-freshness dimension. Buckets are ordered by their (year, week)
  tuple, not by date, so "N weeks before/after" windowing is exact.

PARTIAL WEEKS:
  A calendar week that spans a year boundary is split into two buckets,
  one per year, so the (year, week) pair stays unique within a year.
  Both halves carry DaysMissing > 0, used by callers to pro-rate weekly
  hour targets.

CURRENT BUCKET:
  Registry.Current caches the "bucket for today" pointer with a short
  TTL instead of resolving it per request: "now" rarely changes
  mid-session, but must eventually roll over even with zero writes.
  This TTL is the only expiry in the whole cache design.

LIFECYCLE:
  GenerateBuckets is a maintenance routine that must cover the full
  operating date range. Buckets are never deleted; DaysMissing may be
  backfilled. A lookup for a missing (year, week) is a hard error.

SEE ALSO:
  - store.go: BucketStore persistence interface
  - cachekey.go: Bucket ID as a cache key component
*/
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// BUCKET REF - The (year, week) tuple buckets are ordered by
// =============================================================================

// BucketID is the stable string identifier, e.g. "2026-W35".
type BucketID string

// BucketRef identifies a bucket by its (year, week) tuple.
type BucketRef struct {
	Year int
	Week int
}

func (r BucketRef) ID() BucketID {
	return BucketID(fmt.Sprintf("%04d-W%02d", r.Year, r.Week))
}

// Comparison is by (year, week) tuple, never by date.
func (r BucketRef) Before(o BucketRef) bool {
	return r.Year < o.Year || (r.Year == o.Year && r.Week < o.Week)
}
func (r BucketRef) After(o BucketRef) bool { return o.Before(r) }
func (r BucketRef) Equal(o BucketRef) bool { return r.Year == o.Year && r.Week == o.Week }
func (r BucketRef) String() string { return string(r.ID()) }

// =============================================================================
// TIME BUCKET
// =============================================================================

// TimeBucket is one calendar week (or the partial first/last week of a
// year). Never mutated after creation except for DaysMissing backfills.
type TimeBucket struct {
	BucketRef
	FirstDay    time.Time
	DaysMissing int
}

// Days returns the number of calendar days the bucket actually covers.
func (b TimeBucket) Days() int { return 7 - b.DaysMissing }

// =============================================================================
// BUCKET GENERATION - Maintenance routine
// =============================================================================

// GenerateBuckets produces the buckets covering [from, to], splitting
// weeks at year boundaries. Week numbers are stable: they depend only on
// the year's layout, so extending the range later never renumbers
// existing buckets.
//
// Weeks run Monday through Sunday.
func GenerateBuckets(from, to time.Time) []TimeBucket {
	from = midnight(from)
	to = midnight(to)

	var buckets []TimeBucket
	cur := mondayOnOrBefore(from)
	for !cur.After(to) {
		weekEnd := cur.AddDate(0, 0, 6)

		if weekEnd.Year() == cur.Year() {
			buckets = append(buckets, newBucket(cur, 7))
		} else {
			// Year boundary: split into two partial buckets.
			lastOfYear := time.Date(cur.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
			headDays := daysBetween(cur, lastOfYear) + 1
			buckets = append(buckets, newBucket(cur, headDays))
			buckets = append(buckets, newBucket(lastOfYear.AddDate(0, 0, 1), 7-headDays))
		}
		cur = cur.AddDate(0, 0, 7)
	}
	return buckets
}

func newBucket(firstDay time.Time, days int) TimeBucket {
	return TimeBucket{
		BucketRef:   BucketRef{Year: firstDay.Year(), Week: weekOfYear(firstDay)},
		FirstDay:    firstDay,
		DaysMissing: 7 - days,
	}
}

// weekOfYear numbers the bucket weeks of a year, counting the partial
// week containing Jan 1 (if any) as week 1.
func weekOfYear(day time.Time) int {
	jan1 := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(jan1.Weekday()) + 6) % 7 // Monday = 0
	return (day.YearDay()-1+offset)/7 + 1
}

func mondayOnOrBefore(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// =============================================================================
// REGISTRY - Bucket lookup with a TTL'd "current bucket" pointer
// =============================================================================

// DefaultCurrentTTL is how long the current-bucket pointer is trusted
// before being re-resolved against the store.
const DefaultCurrentTTL = 5 * time.Minute

// Registry resolves buckets against a BucketStore and caches the
// current-bucket pointer for a short TTL window.
type Registry struct {
	Store BucketStore

	// TTL for the current-bucket pointer. Zero means DefaultCurrentTTL.
	TTL time.Duration

	// Now is overridable for tests. Nil means time.Now.
	Now func() time.Time

	mu         sync.Mutex
	current    *TimeBucket
	refreshDue time.Time
}

// Current returns the bucket whose FirstDay <= today, most recent.
func (r *Registry) Current(ctx context.Context) (*TimeBucket, error) {
	now := r.now()

	r.mu.Lock()
	if r.current != nil && now.Before(r.refreshDue) {
		b := r.current
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	b, err := r.Store.BucketOnOrBefore(ctx, now)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.current = b
	r.refreshDue = now.Add(r.ttl())
	r.mu.Unlock()
	return b, nil
}

// Bucket resolves a (year, week) ref. Missing buckets are a hard error.
func (r *Registry) Bucket(ctx context.Context, ref BucketRef) (*TimeBucket, error) {
	return r.Store.Bucket(ctx, ref)
}

// Offset returns the bucket n positions after ref in (year, week) order
// (n may be negative). Used for "N weeks before/after" windowing.
func (r *Registry) Offset(ctx context.Context, ref BucketRef, n int) (*TimeBucket, error) {
	return r.Store.OffsetBucket(ctx, ref, n)
}

// LastOfYear returns the final bucket of a calendar year.
func (r *Registry) LastOfYear(ctx context.Context, year int) (*TimeBucket, error) {
	return r.Store.LastBucketOfYear(ctx, year)
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Registry) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return DefaultCurrentTTL
}
