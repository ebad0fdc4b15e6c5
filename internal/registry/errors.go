package registry

import "errors"

// ErrNoWorkers is returned by Acquire when no healthy worker became
// available before the caller's deadline (spec §7 NoWorkers).
var ErrNoWorkers = errors.New("registry: no healthy workers available")
