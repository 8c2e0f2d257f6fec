package emulator

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
)

// ELFInfo contains parsed ELF metadata.
type ELFInfo struct {
	Path     string
	Machine  elf.Machine
	Entry    uint64
	Symbols  map[string]uint64 // symbol name -> virtual address
	BaseAddr uint64            // Load base address
	EndAddr  uint64            // End of loaded memory
	PhdrAddr uint64            // Program header table address in guest memory
	PhNum    int
}

// LoadELF loads a static ARM64 ELF executable and maps it into the emulator.
// Position-independent executables (base vaddr 0) are relocated to LoadPIE;
// fixed-address executables load at their file vaddr. Dynamic linking is not
// supported: binaries with a PT_INTERP segment are rejected.
func (e *Emulator) LoadELF(path string) (*ELFInfo, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("expected ARM64 (EM_AARCH64), got %v", f.Machine)
	}

	// Find file base address (lowest PT_LOAD vaddr)
	fileBase := uint64(0xFFFFFFFFFFFFFFFF)
	fileEnd := uint64(0)
	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_INTERP:
			return nil, fmt.Errorf("dynamically linked binary is not supported")
		case elf.PT_LOAD:
			if prog.Vaddr < fileBase {
				fileBase = prog.Vaddr
			}
			if end := prog.Vaddr + prog.Memsz; end > fileEnd {
				fileEnd = end
			}
		}
	}
	if fileBase == 0xFFFFFFFFFFFFFFFF {
		return nil, fmt.Errorf("no PT_LOAD segments found")
	}

	// PIE binaries have fileBase at or near zero and need relocating.
	var relocOffset uint64
	if fileBase < 0x10000 {
		relocOffset = LoadPIE - fileBase
	}

	info := &ELFInfo{
		Path:     path,
		Machine:  f.Machine,
		Entry:    f.Entry + relocOffset,
		Symbols:  make(map[string]uint64),
		BaseAddr: fileBase + relocOffset,
		EndAddr:  fileEnd + relocOffset,
	}

	if syms, err := f.Symbols(); err == nil {
		for _, sym := range syms {
			if sym.Value != 0 && sym.Name != "" {
				info.Symbols[sym.Name] = sym.Value + relocOffset
			}
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_PHDR {
			info.PhdrAddr = prog.Vaddr + relocOffset
		}
		if prog.Type != elf.PT_LOAD {
			continue
		}

		loadVAddr := prog.Vaddr + relocOffset

		// Map the segment (ignore overlap errors between adjacent segments)
		_ = e.MapRegion(loadVAddr, prog.Memsz)

		if prog.Filesz > 0 && prog.Off+prog.Filesz <= uint64(len(fileData)) {
			data := fileData[prog.Off : prog.Off+prog.Filesz]
			if err := e.MemWrite(loadVAddr, data); err != nil {
				return nil, fmt.Errorf("write segment at 0x%x: %w", loadVAddr, err)
			}
		}

		// Zero the .bss tail (memory size beyond file size)
		if prog.Memsz > prog.Filesz {
			zeros := make([]byte, prog.Memsz-prog.Filesz)
			_ = e.MemWrite(loadVAddr+prog.Filesz, zeros)
		}
	}

	info.PhNum = len(f.Progs)
	if info.PhdrAddr == 0 && len(fileData) >= 64 {
		// No PT_PHDR; fall back to base + e_phoff from the file header.
		phoff := binary.LittleEndian.Uint64(fileData[0x20:])
		info.PhdrAddr = info.BaseAddr + phoff
	}

	e.SetBrk(info.EndAddr)
	return info, nil
}

// Auxiliary vector keys consumed by libc startup code.
const (
	atNull   = 0
	atPhdr   = 3
	atPhEnt  = 4
	atPhNum  = 5
	atPageSz = 6
	atEntry  = 9
	atUID    = 11
	atEUID   = 12
	atGID    = 13
	atEGID   = 14
	atRandom = 25
	atSecure = 23
)

// SetupStack builds the initial linux-user process stack: argc, argv
// pointers, a null envp, and a minimal auxiliary vector. Returns the final
// SP, which is also written to the register.
func (e *Emulator) SetupStack(info *ELFInfo, args []string) (uint64, error) {
	sp := uint64(StackTop - PageSize)

	push := func(val uint64) error {
		sp -= 8
		return e.MemWriteU64(sp, val)
	}
	pushBytes := func(data []byte) (uint64, error) {
		sp -= uint64(len(data))
		sp &= ^uint64(15) // keep 16-byte alignment for strings block
		if err := e.MemWrite(sp, data); err != nil {
			return 0, err
		}
		return sp, nil
	}

	// String data first, highest addresses.
	argPtrs := make([]uint64, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		p, err := pushBytes(append([]byte(args[i]), 0))
		if err != nil {
			return 0, fmt.Errorf("push argv[%d]: %w", i, err)
		}
		argPtrs[i] = p
	}

	// 16 random bytes for AT_RANDOM. Deterministic for reproducible runs.
	randomAddr, err := pushBytes([]byte{
		0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
		0xFE, 0xED, 0xFA, 0xCE, 0xFE, 0xED, 0xFA, 0xCE,
	})
	if err != nil {
		return 0, fmt.Errorf("push AT_RANDOM: %w", err)
	}

	auxv := [][2]uint64{
		{atPhdr, info.PhdrAddr},
		{atPhEnt, 56}, // sizeof(Elf64_Phdr)
		{atPhNum, uint64(info.PhNum)},
		{atPageSz, PageSize},
		{atEntry, info.Entry},
		{atUID, 1000}, {atEUID, 1000}, {atGID, 1000}, {atEGID, 1000},
		{atSecure, 0},
		{atRandom, randomAddr},
		{atNull, 0},
	}

	// The vector layout grows down: auxv, envp NULL, argv pointers, argc.
	// Keep SP 16-byte aligned at the end.
	words := 1 + len(argPtrs) + 1 + 1 + len(auxv)*2
	sp &= ^uint64(15)
	if words%2 == 1 {
		sp -= 8
	}

	for i := len(auxv) - 1; i >= 0; i-- {
		if err := push(auxv[i][1]); err != nil {
			return 0, err
		}
		if err := push(auxv[i][0]); err != nil {
			return 0, err
		}
	}
	if err := push(0); err != nil { // envp terminator
		return 0, err
	}
	if err := push(0); err != nil { // argv terminator
		return 0, err
	}
	for i := len(argPtrs) - 1; i >= 0; i-- {
		if err := push(argPtrs[i]); err != nil {
			return 0, err
		}
	}
	if err := push(uint64(len(args))); err != nil { // argc
		return 0, err
	}

	if err := e.SetSP(sp); err != nil {
		return 0, fmt.Errorf("set SP: %w", err)
	}
	return sp, nil
}
