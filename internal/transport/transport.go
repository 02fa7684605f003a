// Package transport owns one remote interactive session per device: send a
// command line, collect whatever output the device produces until its prompt
// returns or the output goes quiet.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConnection covers unreachable hosts and failed authentication.
	// The host is skipped; the batch continues.
	ErrConnection = errors.New("connection failed")
	// ErrEmptyOutput means the settle period elapsed with no data. A
	// warning, not a fatal error.
	ErrEmptyOutput = errors.New("no output received")
	// ErrTimeout means the per-command hard timeout expired while the
	// device was still producing output.
	ErrTimeout = errors.New("command timed out")
)

// Credentials is the opaque auth bundle handed to Open. The commands sent
// over the resulting session are assumed read-only diagnostics; the transport
// does not enforce that.
type Credentials struct {
	Username string
	Password string
	KeyPath  string // optional private key file
}

// Session is one interactive shell on one device. Commands must run one at a
// time; devices consume interactive input as a character stream.
type Session interface {
	// Run sends command and returns the accumulated output. timeout <= 0
	// uses the transport default. Returns ErrEmptyOutput if nothing
	// arrived, ErrTimeout with partial output on deadline.
	Run(ctx context.Context, command string, timeout time.Duration) (string, error)
	Close() error
}

// Transport opens sessions. Open authenticates exactly once; a failure is
// reported, never retried.
type Transport interface {
	Open(ctx context.Context, host string, creds Credentials) (Session, error)
}
