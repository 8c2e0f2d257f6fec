package emulator

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zboralski/tinyhook/internal/guest"
)

const testCodeBase = 0x10000

// ARM64 test code: MOV X0, #5; MOV X1, #3; ADD X2, X0, X1; RET
var addTestCode = []byte{
	0xa0, 0x00, 0x80, 0xd2, // MOV X0, #5
	0x61, 0x00, 0x80, 0xd2, // MOV X1, #3
	0x02, 0x00, 0x01, 0x8b, // ADD X2, X0, X1
	0xc0, 0x03, 0x5f, 0xd6, // RET
}

// ARM64 test code: MOV X0, #7; MOV X8, #93; SVC #0
var svcTestCode = []byte{
	0xe0, 0x00, 0x80, 0xd2, // MOV X0, #7
	0xa8, 0x0b, 0x80, 0xd2, // MOV X8, #93
	0x01, 0x00, 0x00, 0xd4, // SVC #0
}

func newTestEmulator(t *testing.T) *Emulator {
	t.Helper()
	emu, err := New()
	if err != nil {
		t.Fatalf("Failed to create emulator: %v", err)
	}
	t.Cleanup(func() { emu.Close() })
	return emu
}

func loadCode(t *testing.T, emu *Emulator, code []byte) {
	t.Helper()
	if err := emu.MapRegion(testCodeBase, PageSize); err != nil {
		t.Fatalf("Failed to map code region: %v", err)
	}
	if err := emu.MemWrite(testCodeBase, code); err != nil {
		t.Fatalf("Failed to load code: %v", err)
	}
}

func TestEmulatorBasic(t *testing.T) {
	emu := newTestEmulator(t)
	loadCode(t, emu, addTestCode)

	endAddr := uint64(testCodeBase) + uint64(len(addTestCode)) - 4
	if err := emu.Run(testCodeBase, endAddr); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if x2 := emu.X(2); x2 != 8 {
		t.Errorf("Expected X2=8, got X2=%d", x2)
	}
}

func TestSyscallRouting(t *testing.T) {
	emu := newTestEmulator(t)
	loadCode(t, emu, svcTestCode)

	var gotNum int64
	var gotArgs [8]int64
	emu.SetSyscallHandler(func(num int64, args [8]int64) int64 {
		gotNum = num
		gotArgs = args
		emu.Exit(int(args[0]))
		return 0
	})

	if err := emu.Run(testCodeBase, 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if gotNum != 93 {
		t.Errorf("Expected syscall 93, got %d", gotNum)
	}
	if gotArgs[0] != 7 {
		t.Errorf("Expected arg0=7, got %d", gotArgs[0])
	}
	exited, code := emu.Exited()
	if !exited || code != 7 {
		t.Errorf("Expected exit(7), got exited=%v code=%d", exited, code)
	}
}

func TestSyscallReturnValue(t *testing.T) {
	emu := newTestEmulator(t)

	// SVC #0 followed by a NOP so there is something to execute after the
	// return value lands in X0.
	code := []byte{
		0xa8, 0x0b, 0x80, 0xd2, // MOV X8, #93
		0x01, 0x00, 0x00, 0xd4, // SVC #0
		0x1f, 0x20, 0x03, 0xd5, // NOP
	}
	loadCode(t, emu, code)

	emu.SetSyscallHandler(func(num int64, args [8]int64) int64 {
		return -38 // -ENOSYS
	})

	if err := emu.Run(testCodeBase, testCodeBase+uint64(len(code))); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := int64(emu.X(0)); got != -38 {
		t.Errorf("Expected X0=-38, got %d", got)
	}
}

func TestGuestMemoryBridge(t *testing.T) {
	emu := newTestEmulator(t)

	// The emulator must satisfy the bridge contract.
	var mem guest.Memory = emu

	addr := uint64(StackTop - StackSize)
	data := []byte("tinyhook\x00")
	if err := mem.WriteBytes(addr, data); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	got, err := mem.ReadBytes(addr, int64(len(data)))
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: %q", got)
	}

	s, err := mem.ReadCString(addr)
	if err != nil {
		t.Fatalf("ReadCString failed: %v", err)
	}
	if s != "tinyhook" {
		t.Errorf("expected %q, got %q", "tinyhook", s)
	}

	if _, err := mem.ReadBytes(addr, 0); !errors.Is(err, guest.ErrInvalidSize) {
		t.Errorf("zero size: want ErrInvalidSize, got %v", err)
	}
	if _, err := mem.ReadBytes(0xDEAD0000, 4); !errors.Is(err, guest.ErrInvalidAddress) {
		t.Errorf("unmapped read: want ErrInvalidAddress, got %v", err)
	}
	if err := mem.WriteBytes(0xDEAD0000, data); !errors.Is(err, guest.ErrInvalidAddress) {
		t.Errorf("unmapped write: want ErrInvalidAddress, got %v", err)
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	emu := newTestEmulator(t)

	if err := emu.MapRegion(testCodeBase, PageSize); err != nil {
		t.Fatalf("MapRegion failed: %v", err)
	}
	// Fill the very end of the only mapped page with non-zero bytes; the
	// walk must hit the unmapped neighbor and fail.
	tail := bytes.Repeat([]byte{'x'}, 16)
	if err := emu.MemWrite(testCodeBase+PageSize-16, tail); err != nil {
		t.Fatalf("MemWrite failed: %v", err)
	}

	if _, err := emu.ReadCString(testCodeBase + PageSize - 16); !errors.Is(err, guest.ErrInvalidAddress) {
		t.Errorf("unterminated string: want ErrInvalidAddress, got %v", err)
	}
}

func TestBrk(t *testing.T) {
	emu := newTestEmulator(t)
	emu.SetBrk(0x20000)

	if got := emu.Brk(0); got != 0x20000 {
		t.Errorf("query: expected 0x20000, got 0x%x", got)
	}
	if got := emu.Brk(0x23000); got != 0x23000 {
		t.Errorf("grow: expected 0x23000, got 0x%x", got)
	}
	// The grown region must be usable.
	if err := emu.MemWrite(0x22000, []byte{1, 2, 3}); err != nil {
		t.Errorf("write to grown brk region failed: %v", err)
	}
	// Shrinking is ignored.
	if got := emu.Brk(0x10000); got != 0x23000 {
		t.Errorf("shrink: expected 0x23000, got 0x%x", got)
	}
}

func TestMmap(t *testing.T) {
	emu := newTestEmulator(t)

	a := emu.Mmap(100)
	b := emu.Mmap(100)
	if a == 0 || b == 0 {
		t.Fatal("Mmap returned 0")
	}
	if b <= a {
		t.Errorf("expected bump allocation, got a=0x%x b=0x%x", a, b)
	}
	if err := emu.MemWrite(a, []byte{0xAA}); err != nil {
		t.Errorf("mmap region not writable: %v", err)
	}
}
