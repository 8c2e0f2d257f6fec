// Package emulator provides a minimal ARM64 linux-user CPU built on Unicorn
// Engine. It maps a guest address space, decodes SVC exceptions into syscall
// invocations, and hands them to a pluggable syscall handler.
package emulator

import (
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/zboralski/tinyhook/internal/guest"
)

// Memory layout constants
const (
	StackTop   = 0x7FFFFF0000 // Stack grows down from here
	StackSize  = 0x00800000   // 8MB stack
	MmapBase   = 0x6000000000 // Anonymous mmap allocations
	MmapSize   = 0x10000000   // 256MB mmap window
	LoadPIE    = 0x5500000000 // Base for position-independent executables
	PageSize   = 0x1000
	maxCString = 1 << 20 // Guard for C string reads on huge mappings
)

// SyscallFunc executes one guest syscall and returns its result. args always
// carries eight slots; the unused tail is whatever was in the registers.
type SyscallFunc func(num int64, args [8]int64) int64

// NumArgsRaw is the register argument block width presented to SyscallFunc.
const NumArgsRaw = 8

// CodeHookFunc is called for each executed instruction when instruction
// tracing is installed.
type CodeHookFunc func(emu *Emulator, addr uint64, size uint32)

// Emulator wraps Unicorn for ARM64 linux-user emulation.
type Emulator struct {
	mu uc.Unicorn

	// Syscall routing
	syscall SyscallFunc

	// Anonymous mmap bump allocator
	mmapPtr uint64

	// Program break
	brk     uint64
	brkBase uint64

	// Exit state
	stopped  bool
	exited   bool
	exitCode int

	codeHooks []CodeHookFunc
}

// New creates an ARM64 emulator with the stack mapped and SP initialized.
func New() (*Emulator, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	e := &Emulator{
		mu:      mu,
		mmapPtr: MmapBase,
	}

	if err := mu.MemMap(StackTop-StackSize, StackSize); err != nil {
		mu.Close()
		return nil, fmt.Errorf("map stack: %w", err)
	}
	if err := mu.MemMap(MmapBase, MmapSize); err != nil {
		mu.Close()
		return nil, fmt.Errorf("map mmap window: %w", err)
	}
	if err := mu.RegWrite(uc.ARM64_REG_SP, StackTop-PageSize); err != nil {
		mu.Close()
		return nil, fmt.Errorf("set SP: %w", err)
	}

	if err := e.setupHooks(); err != nil {
		mu.Close()
		return nil, err
	}
	return e, nil
}

// setupHooks installs the SVC interrupt hook and the code hook dispatcher.
func (e *Emulator) setupHooks() error {
	// EXCP_SWI (SVC) arrives as interrupt 2 on ARM64.
	_, err := e.mu.HookAdd(uc.HOOK_INTR, func(_ uc.Unicorn, intno uint32) {
		if intno != 2 {
			e.Stop()
			return
		}
		e.handleSyscall()
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("add intr hook: %w", err)
	}

	_, err = e.mu.HookAdd(uc.HOOK_CODE, func(_ uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}
		for _, h := range e.codeHooks {
			h(e, addr, size)
		}
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("add code hook: %w", err)
	}
	return nil
}

// handleSyscall reads the ARM64 syscall convention (number in X8, arguments
// in X0..X7) and routes through the installed handler. The handler's result
// lands in X0 unless the guest has exited.
func (e *Emulator) handleSyscall() {
	num := int64(e.X(8))
	var args [NumArgsRaw]int64
	for i := range args {
		args[i] = int64(e.X(i))
	}

	if e.syscall == nil {
		e.Stop()
		return
	}
	ret := e.syscall(num, args)
	if !e.exited {
		e.SetX(0, uint64(ret))
	}
}

// SetSyscallHandler installs the syscall execution path. Must be set before
// Run; a guest syscall with no handler stops emulation.
func (e *Emulator) SetSyscallHandler(fn SyscallFunc) {
	e.syscall = fn
}

// HookCode adds a code hook called for every instruction.
func (e *Emulator) HookCode(fn CodeHookFunc) {
	e.codeHooks = append(e.codeHooks, fn)
}

// Close releases resources.
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// MapRegion maps memory, rounding to page boundaries.
func (e *Emulator) MapRegion(addr, size uint64) error {
	alignedAddr := addr & ^uint64(PageSize-1)
	alignedEnd := (addr + size + PageSize - 1) & ^uint64(PageSize-1)
	return e.mu.MemMap(alignedAddr, alignedEnd-alignedAddr)
}

// Mmap carves an anonymous region out of the mmap window and returns its
// address, or -ENOMEM (as 0) when exhausted.
func (e *Emulator) Mmap(size uint64) uint64 {
	size = (size + PageSize - 1) & ^uint64(PageSize-1)
	if e.mmapPtr+size > MmapBase+MmapSize {
		return 0
	}
	addr := e.mmapPtr
	e.mmapPtr += size
	return addr
}

// SetBrk records the initial program break, typically the end of the loaded
// ELF image rounded up to a page.
func (e *Emulator) SetBrk(addr uint64) {
	addr = (addr + PageSize - 1) & ^uint64(PageSize-1)
	e.brk = addr
	e.brkBase = addr
}

// Brk implements the brk syscall contract: 0 queries, a higher address
// grows the segment. Returns the resulting break.
func (e *Emulator) Brk(addr uint64) uint64 {
	if addr <= e.brk {
		return e.brk
	}
	newBrk := (addr + PageSize - 1) & ^uint64(PageSize-1)
	if err := e.mu.MemMap(e.brk, newBrk-e.brk); err != nil {
		return e.brk
	}
	e.brk = newBrk
	return e.brk
}

// Exit records the guest exit code and stops emulation.
func (e *Emulator) Exit(code int) {
	e.exited = true
	e.exitCode = code
	e.Stop()
}

// Exited reports whether the guest called exit, and its code.
func (e *Emulator) Exited() (bool, int) {
	return e.exited, e.exitCode
}

// MemRead reads bytes from guest memory.
func (e *Emulator) MemRead(addr, size uint64) ([]byte, error) {
	return e.mu.MemRead(addr, size)
}

// MemWrite writes bytes to guest memory.
func (e *Emulator) MemWrite(addr uint64, data []byte) error {
	return e.mu.MemWrite(addr, data)
}

// MemWriteU64 writes a uint64 to memory (little endian).
func (e *Emulator) MemWriteU64(addr, val uint64) error {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, val)
	return e.mu.MemWrite(addr, data)
}

// MemReadU64 reads a uint64 from memory (little endian).
func (e *Emulator) MemReadU64(addr uint64) (uint64, error) {
	data, err := e.mu.MemRead(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ReadBytes implements guest.Memory.
func (e *Emulator) ReadBytes(addr uint64, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, guest.ErrInvalidSize
	}
	data, err := e.mu.MemRead(addr, uint64(size))
	if err != nil {
		return nil, guest.ErrInvalidAddress
	}
	return data, nil
}

// WriteBytes implements guest.Memory.
func (e *Emulator) WriteBytes(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := e.mu.MemWrite(addr, data); err != nil {
		return guest.ErrInvalidAddress
	}
	return nil
}

// ReadCString implements guest.Memory. The walk is page-wise so a string
// near the end of a mapping is found before the read runs off the edge.
func (e *Emulator) ReadCString(addr uint64) (string, error) {
	var out []byte
	for total := 0; total < maxCString; {
		// Read up to the end of the current page.
		chunk := PageSize - (addr & (PageSize - 1))
		data, err := e.mu.MemRead(addr, chunk)
		if err != nil {
			// Nothing readable at the start address, or the string ran
			// into an unmapped page without a terminator.
			return "", guest.ErrInvalidAddress
		}
		for i, b := range data {
			if b == 0 {
				return string(append(out, data[:i]...)), nil
			}
		}
		out = append(out, data...)
		total += len(data)
		addr += chunk
	}
	return "", guest.ErrInvalidAddress
}

// RegRead reads a register value.
func (e *Emulator) RegRead(reg int) (uint64, error) {
	return e.mu.RegRead(reg)
}

// RegWrite writes a register value.
func (e *Emulator) RegWrite(reg int, val uint64) error {
	return e.mu.RegWrite(reg, val)
}

// X reads general-purpose register X0-X30.
func (e *Emulator) X(n int) uint64 {
	if n < 0 || n > 30 {
		return 0
	}
	val, _ := e.mu.RegRead(uc.ARM64_REG_X0 + n)
	return val
}

// SetX writes general-purpose register X0-X30.
func (e *Emulator) SetX(n int, val uint64) error {
	if n < 0 || n > 30 {
		return fmt.Errorf("invalid register X%d", n)
	}
	return e.mu.RegWrite(uc.ARM64_REG_X0+n, val)
}

// PC returns the program counter.
func (e *Emulator) PC() uint64 {
	pc, _ := e.mu.RegRead(uc.ARM64_REG_PC)
	return pc
}

// SetPC sets the program counter.
func (e *Emulator) SetPC(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_PC, val)
}

// SP returns the stack pointer.
func (e *Emulator) SP() uint64 {
	sp, _ := e.mu.RegRead(uc.ARM64_REG_SP)
	return sp
}

// SetSP sets the stack pointer.
func (e *Emulator) SetSP(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_SP, val)
}

// Run starts emulation at start and runs until the guest exits, emulation
// is stopped, or execution reaches end (0 means run until stop).
func (e *Emulator) Run(start, end uint64) error {
	e.stopped = false
	err := e.mu.Start(start, end)
	if e.exited {
		// A stop triggered by guest exit is not an emulation error.
		return nil
	}
	return err
}

// Stop stops emulation.
func (e *Emulator) Stop() {
	e.stopped = true
	e.mu.Stop()
}
