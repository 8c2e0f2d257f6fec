package kernel

import "strconv"

// syscallNames maps ARM64 Linux syscall numbers to names for trace output.
// Covers the natively handled set plus numbers commonly seen from libc
// startup code even when they resolve to -ENOSYS.
var syscallNames = map[int64]string{
	17:  "getcwd",
	25:  "fcntl",
	29:  "ioctl",
	35:  "unlinkat",
	46:  "ftruncate",
	48:  "faccessat",
	56:  "openat",
	57:  "close",
	61:  "getdents64",
	62:  "lseek",
	63:  "read",
	64:  "write",
	65:  "readv",
	66:  "writev",
	72:  "pselect6",
	73:  "ppoll",
	78:  "readlinkat",
	79:  "newfstatat",
	80:  "fstat",
	93:  "exit",
	94:  "exit_group",
	96:  "set_tid_address",
	98:  "futex",
	99:  "set_robust_list",
	113: "clock_gettime",
	115: "clock_nanosleep",
	124: "sched_yield",
	129: "kill",
	130: "tkill",
	131: "tgkill",
	134: "rt_sigaction",
	135: "rt_sigprocmask",
	160: "uname",
	172: "getpid",
	173: "getppid",
	174: "getuid",
	175: "geteuid",
	176: "getgid",
	177: "getegid",
	178: "gettid",
	214: "brk",
	215: "munmap",
	220: "clone",
	221: "execve",
	222: "mmap",
	226: "mprotect",
	233: "madvise",
	260: "wait4",
	261: "prlimit64",
	278: "getrandom",
	291: "statx",
	293: "rseq",
}

// Name returns the ARM64 syscall name for num, or a numbered placeholder.
func Name(num int64) string {
	if name, ok := syscallNames[num]; ok {
		return name
	}
	return "sys_" + strconv.FormatInt(num, 10)
}
