// Package dedupe makes repeated submissions idempotent. Cache holds completed
// results for a bounded time and size; Replayer adds singleflight so that
// concurrent duplicates share a single execution, and refuses a key that is
// reused with a different request fingerprint.
package dedupe
