// Package kernel implements a minimal host-passthrough Linux syscall layer
// for ARM64 guests. It is the "real syscall" collaborator of the hook
// engine: the dispatch engine decides whether a syscall reaches Execute at
// all, and with which arguments.
package kernel

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zboralski/tinyhook/internal/emulator"
	tlog "github.com/zboralski/tinyhook/internal/log"
)

// ARM64 Linux syscall numbers handled natively.
const (
	SysIoctl         = 29
	SysFaccessat     = 48
	SysOpenat        = 56
	SysClose         = 57
	SysRead          = 63
	SysWrite         = 64
	SysReadv         = 65
	SysWritev        = 66
	SysReadlinkat    = 78
	SysFstat         = 80
	SysExit          = 93
	SysExitGroup     = 94
	SysSetTidAddress = 96
	SysClockGettime  = 113
	SysSchedYield    = 124
	SysUname         = 160
	SysGetpid        = 172
	SysGetppid       = 173
	SysGetuid        = 174
	SysGeteuid       = 175
	SysGetgid        = 176
	SysGetegid       = 177
	SysGettid        = 178
	SysBrk           = 214
	SysMunmap        = 215
	SysMmap          = 222
	SysMprotect      = 226
	SysGetrandom     = 278
)

// Synthetic process identity presented to the guest.
const (
	guestPid = 1000
	guestTid = 1000
	guestUid = 1000
)

// maxRW caps a single guest read/write to keep host allocations sane.
const maxRW = 1 << 24

// Linux executes guest syscalls against the host kernel.
type Linux struct {
	emu *emulator.Emulator
	log *tlog.Logger
}

// NewLinux creates a syscall layer bound to an emulator.
func NewLinux(emu *emulator.Emulator, logger *tlog.Logger) *Linux {
	if logger == nil {
		logger = tlog.NewNop()
	}
	return &Linux{emu: emu, log: logger}
}

// Execute runs one guest syscall and returns the result as the guest sees
// it: a non-negative value, or a negated errno. Unknown syscalls return
// -ENOSYS.
func (k *Linux) Execute(num int64, args [8]int64) int64 {
	switch num {
	case SysExit, SysExitGroup:
		k.emu.Exit(int(args[0]))
		return 0
	case SysRead:
		return k.read(args[0], uint64(args[1]), args[2])
	case SysWrite:
		return k.write(args[0], uint64(args[1]), args[2])
	case SysReadv:
		return k.readv(args[0], uint64(args[1]), args[2])
	case SysWritev:
		return k.writev(args[0], uint64(args[1]), args[2])
	case SysOpenat:
		return k.openat(args[0], uint64(args[1]), args[2], args[3])
	case SysClose:
		return k.close(args[0])
	case SysFstat:
		return k.fstat(args[0], uint64(args[1]))
	case SysBrk:
		return int64(k.emu.Brk(uint64(args[0])))
	case SysMmap:
		return k.mmap(args[1], args[3])
	case SysMunmap, SysMprotect, SysSchedYield:
		return 0
	case SysSetTidAddress, SysGettid:
		return guestTid
	case SysGetpid:
		return guestPid
	case SysGetppid:
		return 1
	case SysGetuid, SysGeteuid, SysGetgid, SysGetegid:
		return guestUid
	case SysClockGettime:
		return k.clockGettime(uint64(args[1]))
	case SysUname:
		return k.uname(uint64(args[0]))
	case SysGetrandom:
		return k.getrandom(uint64(args[0]), args[1])
	case SysIoctl:
		return -int64(unix.ENOTTY)
	case SysFaccessat, SysReadlinkat:
		return -int64(unix.ENOENT)
	default:
		k.log.Debug("unimplemented syscall", tlog.Sysno(num))
		return -int64(unix.ENOSYS)
	}
}

// errnoRet converts a host error into a guest return value.
func errnoRet(err error) int64 {
	if err == nil {
		return 0
	}
	if errno, ok := err.(unix.Errno); ok {
		return -int64(errno)
	}
	return -int64(unix.EIO)
}

func clampCount(count int64) (int64, bool) {
	if count < 0 {
		return 0, false
	}
	if count > maxRW {
		count = maxRW
	}
	return count, true
}

func (k *Linux) read(fd int64, buf uint64, count int64) int64 {
	count, ok := clampCount(count)
	if !ok {
		return -int64(unix.EINVAL)
	}
	host := make([]byte, count)
	n, err := unix.Read(int(fd), host)
	if err != nil {
		return errnoRet(err)
	}
	if n > 0 {
		if werr := k.emu.MemWrite(buf, host[:n]); werr != nil {
			return -int64(unix.EFAULT)
		}
	}
	return int64(n)
}

func (k *Linux) write(fd int64, buf uint64, count int64) int64 {
	count, ok := clampCount(count)
	if !ok {
		return -int64(unix.EINVAL)
	}
	if count == 0 {
		return 0
	}
	data, err := k.emu.MemRead(buf, uint64(count))
	if err != nil {
		return -int64(unix.EFAULT)
	}
	n, err := unix.Write(int(fd), data)
	if err != nil {
		return errnoRet(err)
	}
	return int64(n)
}

// readIovec reads one struct iovec from guest memory.
func (k *Linux) readIovec(addr uint64) (base uint64, length uint64, err error) {
	base, err = k.emu.MemReadU64(addr)
	if err != nil {
		return 0, 0, err
	}
	length, err = k.emu.MemReadU64(addr + 8)
	return base, length, err
}

func (k *Linux) readv(fd int64, iov uint64, cnt int64) int64 {
	if cnt < 0 || cnt > 1024 {
		return -int64(unix.EINVAL)
	}
	var total int64
	for i := int64(0); i < cnt; i++ {
		base, length, err := k.readIovec(iov + uint64(i)*16)
		if err != nil {
			return -int64(unix.EFAULT)
		}
		if length == 0 {
			continue
		}
		n := k.read(fd, base, int64(length))
		if n < 0 {
			if total > 0 {
				return total
			}
			return n
		}
		total += n
		if uint64(n) < length {
			break
		}
	}
	return total
}

func (k *Linux) writev(fd int64, iov uint64, cnt int64) int64 {
	if cnt < 0 || cnt > 1024 {
		return -int64(unix.EINVAL)
	}
	var total int64
	for i := int64(0); i < cnt; i++ {
		base, length, err := k.readIovec(iov + uint64(i)*16)
		if err != nil {
			return -int64(unix.EFAULT)
		}
		if length == 0 {
			continue
		}
		n := k.write(fd, base, int64(length))
		if n < 0 {
			if total > 0 {
				return total
			}
			return n
		}
		total += n
		if uint64(n) < length {
			break
		}
	}
	return total
}

func (k *Linux) openat(dirfd int64, pathAddr uint64, flags, mode int64) int64 {
	path, err := k.emu.ReadCString(pathAddr)
	if err != nil {
		return -int64(unix.EFAULT)
	}
	fd, oerr := unix.Openat(int(dirfd), path, int(flags), uint32(mode))
	if oerr != nil {
		return errnoRet(oerr)
	}
	return int64(fd)
}

func (k *Linux) close(fd int64) int64 {
	// The guest shares the host's standard streams; closing them would
	// take the emulator's own output down.
	if fd >= 0 && fd <= 2 {
		return 0
	}
	return errnoRet(unix.Close(int(fd)))
}

// fstat fills a zeroed struct stat. Enough for libc startup code that only
// probes whether the standard streams exist; st_mode reports a character
// device with a sane block size.
func (k *Linux) fstat(fd int64, statAddr uint64) int64 {
	buf := make([]byte, 128)
	binary.LittleEndian.PutUint32(buf[16:], uint32(unix.S_IFCHR|0o620)) // st_mode
	binary.LittleEndian.PutUint32(buf[56:], 4096)                       // st_blksize
	if err := k.emu.MemWrite(statAddr, buf); err != nil {
		return -int64(unix.EFAULT)
	}
	return 0
}

func (k *Linux) mmap(length, flags int64) int64 {
	if flags&unix.MAP_ANONYMOUS == 0 {
		return -int64(unix.ENODEV)
	}
	addr := k.emu.Mmap(uint64(length))
	if addr == 0 {
		return -int64(unix.ENOMEM)
	}
	return int64(addr)
}

func (k *Linux) clockGettime(tsAddr uint64) int64 {
	now := time.Now()
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], uint64(now.Unix()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(now.Nanosecond()))
	if err := k.emu.MemWrite(tsAddr, buf); err != nil {
		return -int64(unix.EFAULT)
	}
	return 0
}

func (k *Linux) uname(addr uint64) int64 {
	// struct utsname: six fixed 65-byte fields.
	fields := []string{"Linux", "tinyhook", "6.1.0", "#1 tinyhook", "aarch64", ""}
	buf := make([]byte, 65*len(fields))
	for i, f := range fields {
		copy(buf[i*65:], f)
	}
	if err := k.emu.MemWrite(addr, buf); err != nil {
		return -int64(unix.EFAULT)
	}
	return 0
}

func (k *Linux) getrandom(buf uint64, count int64) int64 {
	count, ok := clampCount(count)
	if !ok {
		return -int64(unix.EINVAL)
	}
	host := make([]byte, count)
	n, err := unix.Getrandom(host, 0)
	if err != nil {
		return errnoRet(err)
	}
	if n > 0 {
		if werr := k.emu.MemWrite(buf, host[:n]); werr != nil {
			return -int64(unix.EFAULT)
		}
	}
	return int64(n)
}
