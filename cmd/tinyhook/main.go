package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/spf13/cobra"
	"github.com/zboralski/tinyhook/internal/config"
	"github.com/zboralski/tinyhook/internal/emulator"
	"github.com/zboralski/tinyhook/internal/hook"
	"github.com/zboralski/tinyhook/internal/kernel"
	tlog "github.com/zboralski/tinyhook/internal/log"
	"github.com/zboralski/tinyhook/internal/trace"
	"github.com/zboralski/tinyhook/internal/ui/colorize"
)

var (
	verbose    bool
	quiet      bool
	scriptPath string
	configPath string
	traceCode  bool
	maxInsn    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tinyhook [binary] [args...]",
		Short: "Run ARM64 Linux binaries with scriptable syscall hooks",
		Long: `Tinyhook runs static ARM64 Linux executables under Unicorn Engine and
intercepts every syscall the guest makes. A JavaScript hook script can
observe each call, rewrite its arguments, replace its return value, or
suppress it entirely.

Hooks register per syscall number:

  tinyhook.registerPreHook(64, function(num, a1, a2, a3) {
      var s = tinyhook.readString(a2);
      return {action: tinyhook.SKIP, ret: a3};  // swallow the write
  });
  tinyhook.registerPostHook(63, function(num, ret) { return ret; });

A pre-hook returning {action: tinyhook.SKIP, ret: N} suppresses the real
syscall; {args: [..8 ints..]} rewrites the arguments. Hooks that throw or
return malformed values are logged and the call proceeds untouched.

Examples:
  tinyhook ./hello                          # Plain run with syscall trace
  tinyhook -s hooks.js ./hello arg1 arg2    # Run with a hook script
  tinyhook -s hooks.js -q ./hello           # Quiet mode - stats only
  tinyhook --trace-code ./hello             # Disassemble executed code
  tinyhook info ./hello                     # Show binary info`,
		Args:                  cobra.ArbitraryArgs,
		DisableFlagsInUseLine: true,
		RunE:                  runGuest,
	}

	rootCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "hook script to load")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (yaml)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (stats only)")
	rootCmd.Flags().BoolVar(&traceCode, "trace-code", false, "disassemble executed instructions")
	rootCmd.Flags().IntVarP(&maxInsn, "num", "n", 500, "max instructions to show with --trace-code")

	infoCmd := &cobra.Command{
		Use:   "info <binary>",
		Short: "Show binary information",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}
	rootCmd.AddCommand(infoCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return cfg, err
		}
	}

	// Flags override the file.
	if scriptPath != "" {
		cfg.Script = scriptPath
	}
	if verbose {
		cfg.Debug = true
	}
	if quiet {
		cfg.Trace.Syscalls = false
	}
	if traceCode {
		cfg.Trace.Code = true
	}
	if cmd.Flags().Changed("num") {
		cfg.Trace.MaxInsn = maxInsn
	}
	return cfg, nil
}

func disasm(code []byte) string {
	if len(code) < 4 {
		return "???"
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return fmt.Sprintf(".word 0x%08x", uint32(code[0])|uint32(code[1])<<8|uint32(code[2])<<16|uint32(code[3])<<24)
	}
	return inst.String()
}

// formatSyscall renders one trace event as a strace-like line.
func formatSyscall(e trace.Event) string {
	var b strings.Builder
	b.Grow(128)

	marker := "  "
	if e.Skipped {
		marker = colorize.Hooked("⊘ ")
	} else if e.PreFired || e.PostFired {
		marker = colorize.Hooked("◆ ")
	}
	b.WriteString(marker)

	b.WriteString(colorize.Sysname(e.Name))
	b.WriteByte('(')
	// The first four arguments cover the common calls; the rest are noise
	// for most of the syscall surface.
	for i := 0; i < 4; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(colorize.Number(fmt.Sprintf("0x%x", uint64(e.Args[i]))))
	}
	b.WriteString(", ...) ")
	b.WriteString(colorize.Detail("="))
	b.WriteByte(' ')
	b.WriteString(colorize.Number(fmt.Sprintf("%d", e.Ret)))
	return b.String()
}

func printHeader(binary string, info *emulator.ELFInfo, script string) {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, binary); err == nil && !strings.HasPrefix(rel, "..") {
			binary = rel
		}
	}

	fmt.Println()
	fmt.Printf("%s tinyhook ─ ARM64 syscall interception\n", colorize.Header("▶"))
	fmt.Printf("  %s %s\n", colorize.Detail("Loading:"), binary)
	fmt.Printf("  %s %s  %s %s\n",
		colorize.Detail("Base:"), colorize.Address(info.BaseAddr),
		colorize.Detail("Entry:"), colorize.Address(info.Entry))
	if script != "" {
		fmt.Printf("  %s %s\n", colorize.Detail("Script:"), script)
	}
	fmt.Println()
}

func printStats(session *trace.Session, insnCount int, exitCode int, runErr error) {
	st := session.Stats()
	fmt.Println()
	fmt.Print(colorize.Detail("───────────────────────────────────────── "))
	fmt.Printf("%s syscalls  %s hooked  %s skipped  exit %s",
		colorize.Sysname(fmt.Sprintf("%d", st.Total)),
		colorize.Sysname(fmt.Sprintf("%d", st.Hooked)),
		colorize.Sysname(fmt.Sprintf("%d", st.Skipped)),
		colorize.Sysname(fmt.Sprintf("%d", exitCode)))
	if insnCount > 0 {
		fmt.Printf("  %s insn", colorize.Sysname(fmt.Sprintf("%d", insnCount)))
	}
	if runErr != nil {
		fmt.Printf("  %s", colorize.Error(runErr.Error()))
	}
	fmt.Println()
}

func runGuest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	binaryPath := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tlog.Init(cfg.Debug)
	logger := tlog.L

	emu, err := emulator.New()
	if err != nil {
		return fmt.Errorf("create emulator: %w", err)
	}
	defer emu.Close()

	info, err := emu.LoadELF(binaryPath)
	if err != nil {
		return fmt.Errorf("load ELF: %w", err)
	}
	if _, err := emu.SetupStack(info, args); err != nil {
		return fmt.Errorf("setup stack: %w", err)
	}

	var eng *hook.Engine
	if cfg.Script != "" {
		eng, err = hook.New(cfg.Script, emu, logger)
		if err != nil {
			return fmt.Errorf("load script: %w", err)
		}
		defer eng.Shutdown()
	}

	krn := kernel.NewLinux(emu, logger)
	session := trace.NewSession()

	emu.SetSyscallHandler(func(num int64, raw [8]int64) int64 {
		args := hook.Args(raw)
		out := hook.PreOutcome{Args: args}
		preFired := false
		if eng != nil {
			out, preFired = eng.DispatchPre(num, args)
		}

		ret := out.Ret
		if !out.Skipped() {
			ret = krn.Execute(num, [8]int64(out.Args))
		}

		postFired := false
		if eng != nil {
			ret, postFired = eng.DispatchPost(num, ret, args)
		}

		ev := trace.Event{
			Num:       num,
			Name:      kernel.Name(num),
			Args:      [8]int64(out.Args),
			Ret:       ret,
			PreFired:  preFired,
			PostFired: postFired,
			Skipped:   out.Skipped(),
		}
		session.Add(ev)
		if cfg.Trace.Syscalls {
			fmt.Println(formatSyscall(ev))
		}
		return ret
	})

	insnCount := 0
	if cfg.Trace.Code {
		emu.HookCode(func(e *emulator.Emulator, addr uint64, size uint32) {
			insnCount++
			if insnCount > cfg.Trace.MaxInsn || quiet {
				return
			}
			code, _ := e.MemRead(addr, 4)
			fmt.Printf("%s  %s\n", colorize.Address(addr), colorize.Instruction(disasm(code)))
		})
	}

	if !quiet {
		printHeader(binaryPath, info, cfg.Script)
	}

	runErr := emu.Run(info.Entry, 0)
	_, exitCode := emu.Exited()

	printStats(session, insnCount, exitCode, runErr)

	if runErr != nil {
		return fmt.Errorf("emulation: %w", runErr)
	}
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	binaryPath := args[0]

	absPath, err := filepath.Abs(binaryPath)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("file not found: %s", absPath)
	}

	emu, err := emulator.New()
	if err != nil {
		return fmt.Errorf("create emulator: %w", err)
	}
	defer emu.Close()

	info, err := emu.LoadELF(absPath)
	if err != nil {
		return fmt.Errorf("load binary: %w", err)
	}

	fmt.Printf("Binary:  %s\n", filepath.Base(absPath))
	fmt.Printf("Machine: %v\n", info.Machine)
	fmt.Printf("Base:    0x%x\n", info.BaseAddr)
	fmt.Printf("End:     0x%x\n", info.EndAddr)
	fmt.Printf("Entry:   0x%x\n", info.Entry)
	fmt.Printf("Phdrs:   %d at 0x%x\n", info.PhNum, info.PhdrAddr)
	fmt.Printf("Symbols: %d\n", len(info.Symbols))

	if len(info.Symbols) > 0 {
		names := make([]string, 0, len(info.Symbols))
		for name := range info.Symbols {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return info.Symbols[names[i]] < info.Symbols[names[j]]
		})
		n := len(names)
		if n > 20 {
			n = 20
		}
		fmt.Println("\nSymbols:")
		for _, name := range names[:n] {
			fmt.Printf("  0x%x %s\n", info.Symbols[name], name)
		}
		if len(names) > n {
			fmt.Printf("  ... and %d more\n", len(names)-n)
		}
	}

	return nil
}
