// Package ids generates the message and correlation identifiers used across
// the event pipeline. ULIDs are time-ordered, so duplicate-detection keys and
// broker log lines sort by emission time for free.
package ids

import "github.com/oklog/ulid/v2"

// CreateULID returns a new ULID as its 26-character Crockford base32 string.
// The shared entropy source is monotonic within a millisecond, so ids created
// back to back still sort in creation order.
func CreateULID() string {
	return ulid.Make().String()
}
