package repository

import "errors"

// ErrNotFound indicates the requested record does not exist. Stores return it for unknown users,
// missing reset keys, sessions and user requests alike.
var ErrNotFound = errors.New("repository: not found")
