// Package guest defines the bridge through which hook scripts touch guest
// memory. The emulator wraps its address space in the Memory interface; hook
// callbacks never see raw host pointers.
package guest

import "errors"

// Sentinel errors returned by Memory implementations. Hook bindings convert
// them into catchable script-level errors; they never abort a dispatch.
var (
	// ErrInvalidAddress means the guest address does not map to accessible
	// memory, or a C string read ran past the mapped region without finding
	// a terminator.
	ErrInvalidAddress = errors.New("invalid guest address")

	// ErrInvalidSize means a read was requested with a non-positive size.
	ErrInvalidSize = errors.New("invalid size")
)

// Memory is guest address space as seen by hook callbacks.
//
// Implementations are not required to be safe for concurrent use; the hook
// engine serializes all access under its dispatch lock.
type Memory interface {
	// ReadBytes returns size bytes starting at addr. Fails with
	// ErrInvalidSize when size <= 0 and ErrInvalidAddress when the range is
	// not fully mapped.
	ReadBytes(addr uint64, size int64) ([]byte, error)

	// WriteBytes writes exactly len(data) bytes at addr. Fails with
	// ErrInvalidAddress when the range is not fully mapped. Writing zero
	// bytes is a no-op.
	WriteBytes(addr uint64, data []byte) error

	// ReadCString reads bytes starting at addr up to, and excluding, the
	// first zero byte. Fails with ErrInvalidAddress when addr is unmapped or
	// no terminator exists within the mapped region.
	ReadCString(addr uint64) (string, error)
}
