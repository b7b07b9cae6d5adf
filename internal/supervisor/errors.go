package supervisor

import "errors"

// ErrSpawnFailed means the binary could not be started at all (missing
// binary, permission denied).
var ErrSpawnFailed = errors.New("supervisor: failed to start process")

// ErrTimeout means the process did not finish before ctx's deadline and was
// killed: SIGTERM, then SIGKILL after WaitDelay if it had not already exited.
var ErrTimeout = errors.New("supervisor: process timed out")

// ErrStopped means Stop was called on the process before it exited on its
// own.
var ErrStopped = errors.New("supervisor: process stopped")
