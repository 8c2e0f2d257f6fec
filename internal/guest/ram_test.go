package guest

import (
	"bytes"
	"errors"
	"testing"
)

func TestRAMReadWriteRoundTrip(t *testing.T) {
	ram := NewRAM(0x1000, 256)

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := ram.WriteBytes(0x1010, data); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	got, err := ram.ReadBytes(0x1010, int64(len(data)))
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: wrote %x, read %x", data, got)
	}
}

func TestRAMInvalidSize(t *testing.T) {
	ram := NewRAM(0x1000, 64)

	for _, size := range []int64{0, -1, -100} {
		if _, err := ram.ReadBytes(0x1000, size); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("ReadBytes(size=%d): want ErrInvalidSize, got %v", size, err)
		}
	}
}

func TestRAMOutOfRange(t *testing.T) {
	ram := NewRAM(0x1000, 64)

	cases := []struct {
		name string
		addr uint64
		size int64
	}{
		{"below base", 0x800, 8},
		{"past end", 0x1040, 1},
		{"straddles end", 0x103C, 8},
		{"wraps", ^uint64(0) - 3, 8},
	}
	for _, c := range cases {
		if _, err := ram.ReadBytes(c.addr, c.size); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("%s: want ErrInvalidAddress, got %v", c.name, err)
		}
	}

	if err := ram.WriteBytes(0x103F, []byte{1, 2}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("WriteBytes straddling end: want ErrInvalidAddress, got %v", err)
	}
}

func TestRAMReadCString(t *testing.T) {
	ram := NewRAM(0x2000, 64)
	if err := ram.WriteBytes(0x2000, []byte("hello\x00world")); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	s, err := ram.ReadCString(0x2000)
	if err != nil {
		t.Fatalf("ReadCString failed: %v", err)
	}
	if s != "hello" {
		t.Errorf("expected %q, got %q", "hello", s)
	}
}

func TestRAMReadCStringEmpty(t *testing.T) {
	ram := NewRAM(0x2000, 16)

	// Address points directly at a terminator.
	s, err := ram.ReadCString(0x2000)
	if err != nil {
		t.Fatalf("ReadCString failed: %v", err)
	}
	if s != "" {
		t.Errorf("expected empty string, got %q", s)
	}
}

func TestRAMReadCStringUnterminated(t *testing.T) {
	ram := NewRAM(0x2000, 8)
	if err := ram.WriteBytes(0x2000, []byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'}); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	if _, err := ram.ReadCString(0x2000); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("unterminated string: want ErrInvalidAddress, got %v", err)
	}

	if _, err := ram.ReadCString(0x3000); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("unmapped address: want ErrInvalidAddress, got %v", err)
	}
}
