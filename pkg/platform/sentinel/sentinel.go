// Package sentinel holds storage-level facts that callers translate into
// domain errors.
package sentinel

import "errors"

// ErrNotFound is returned, possibly wrapped, when a store has no row for the
// requested id.
var ErrNotFound = errors.New("not found")
