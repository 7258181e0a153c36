// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness conflict. For ticket mappings this
// means another unit of work already synchronized the same ticket.
var ErrConflict = errors.New("conflict: resource already exists")
