package store

import "errors"

// ErrNotFound indicates a missing or unauthorized resource lookup.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a uniqueness violation, such as a taken username.
var ErrConflict = errors.New("record already exists")
