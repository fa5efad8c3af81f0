/*
cachekey.go - Cache key construction and schema versioning

PURPOSE:
  Keys are the sole invalidation mechanism. Shape:

    <entityKind>-<entityId>-<counter(s)>-<computation>-<timeBucketId>-v<schemaVersion>

  Every component that could make a cached bundle stale is embedded:
  the entity's generation counter(s), the current time bucket (so
  results roll over weekly even with zero writes), and a
  hand-maintained schema version so deployed code never reads a bundle
  produced by an older, incompatible shape.

TWO PERSON COUNTERS:
  Person-year keys embed BOTH person counters as independent fields of
  the version vector. The narrower year-target family embeds only the
  RatesCounter, so booking churn does not evict it.
*/
package metrics

import "fmt"

// SchemaVersion must be bumped by hand whenever the shape of a cached
// bundle changes.
const SchemaVersion = 3

const (
	compWorkCalc   = "workcalc"
	compPersonYear = "yearcombi"
	compTarget     = "target"
)

// ProjectKey addresses the project work calculation.
func ProjectKey(p *Project, bucket BucketID) string {
	return fmt.Sprintf("project-%s-%d-%s-%s-v%d", p.ID, p.Counter, compWorkCalc, bucket, SchemaVersion)
}

// PersonYearKey addresses the person-year combination. Both person
// counters are embedded, dot-separated, as the dependency version
// vector.
func PersonYearKey(p *Person, year int, bucket BucketID) string {
	return fmt.Sprintf("person-%s-%d.%d-%s.%d-%s-v%d",
		p.ID, p.Counter, p.RatesCounter, compPersonYear, year, bucket, SchemaVersion)
}

// TargetKey addresses the yearly turnover target, which depends only on
// the rate/target history. Deliberately excludes the booking-sensitive
// counter and the current bucket.
func TargetKey(p *Person, year int) string {
	return fmt.Sprintf("person-%s-%d-%s.%d-v%d", p.ID, p.RatesCounter, compTarget, year, SchemaVersion)
}
