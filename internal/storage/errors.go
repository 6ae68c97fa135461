package storage

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrArchiveDisabled is returned by the tick archive when ClickHouse is not configured.
var ErrArchiveDisabled = errors.New("price tick archive is disabled")
