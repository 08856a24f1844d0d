package models

import "errors"

// ErrNotFound is wrapped by collaborators when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")
