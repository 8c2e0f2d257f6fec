package guest

// RAM is a single flat region of host-allocated memory implementing Memory.
// It backs the hook engine in tests and in hosts that have no CPU emulator
// attached, such as replaying a recorded syscall trace.
type RAM struct {
	base uint64
	data []byte
}

// NewRAM allocates a zeroed region of size bytes mapped at base.
func NewRAM(base uint64, size int) *RAM {
	return &RAM{base: base, data: make([]byte, size)}
}

// Base returns the guest address of the first byte of the region.
func (r *RAM) Base() uint64 { return r.base }

// Size returns the region size in bytes.
func (r *RAM) Size() int { return len(r.data) }

// contains reports whether [addr, addr+n) lies inside the region.
func (r *RAM) contains(addr uint64, n uint64) bool {
	if addr < r.base {
		return false
	}
	off := addr - r.base
	return off <= uint64(len(r.data)) && n <= uint64(len(r.data))-off
}

// ReadBytes implements Memory.
func (r *RAM) ReadBytes(addr uint64, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if !r.contains(addr, uint64(size)) {
		return nil, ErrInvalidAddress
	}
	off := addr - r.base
	out := make([]byte, size)
	copy(out, r.data[off:])
	return out, nil
}

// WriteBytes implements Memory.
func (r *RAM) WriteBytes(addr uint64, data []byte) error {
	if !r.contains(addr, uint64(len(data))) {
		return ErrInvalidAddress
	}
	copy(r.data[addr-r.base:], data)
	return nil
}

// ReadCString implements Memory.
func (r *RAM) ReadCString(addr uint64) (string, error) {
	if !r.contains(addr, 0) || addr == r.base+uint64(len(r.data)) {
		return "", ErrInvalidAddress
	}
	off := addr - r.base
	for i := off; i < uint64(len(r.data)); i++ {
		if r.data[i] == 0 {
			return string(r.data[off:i]), nil
		}
	}
	// Ran off the end of the region without a terminator.
	return "", ErrInvalidAddress
}
