package catalog

import "fmt"

// NotFoundError reports that a table has no manifest in the given database
// path. Compare with errors.As, not string matching.
type NotFoundError struct {
	Path  string
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("table %q not found in %q", e.Table, e.Path)
}

// AlreadyExistsError reports that create_table was called for a table that
// already has a manifest, without if_not_exists set.
type AlreadyExistsError struct {
	Path  string
	Table string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("table %q already exists in %q", e.Table, e.Path)
}
