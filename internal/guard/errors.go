package guard

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned for identities that are empty or
	// would resolve outside the lock directory.
	ErrInvalidIdentity = errors.New("invalid lock identity")

	// ErrMarkerIO marks filesystem failures on a lock marker.
	ErrMarkerIO = errors.New("lock marker I/O failure")

	// ErrNotHolder is returned by Release when the marker names another process.
	ErrNotHolder = errors.New("lock is held by another process")

	// ErrNotStale is returned by RemoveStale when the holder is alive.
	ErrNotStale = errors.New("lock holder is still running")

	// ErrMarkerChanged is returned by RemoveStale when the marker was
	// replaced between the liveness check and removal.
	ErrMarkerChanged = errors.New("lock file changed while being checked")

	// errMalformed is internal: marker content is not a PID.
	errMalformed = errors.New("malformed lock marker")
)

// MarkerError describes a failed operation on a marker file.
type MarkerError struct {
	Op   string // create, read, write, remove, lock, unlock, mkdir
	Path string
	Err  error
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("%s lock file %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *MarkerError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrMarkerIO) match any MarkerError.
func (e *MarkerError) Is(target error) bool {
	return target == ErrMarkerIO
}
