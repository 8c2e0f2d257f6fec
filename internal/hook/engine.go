// Package hook implements scriptable syscall interception for a user-space
// emulator. Hook scripts run on an embedded goja runtime; before and after
// each guest syscall the engine gives a registered script callback the
// chance to inspect or rewrite the arguments, suppress the syscall with a
// substitute return value, or post-process the real result.
//
// The engine sits on a trust boundary: guest addresses and script behavior
// are both untrusted. Whatever a hook does, dispatch always produces a
// defined action and return value for the execution engine.
package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dop251/goja"

	"github.com/zboralski/tinyhook/internal/guest"
	tlog "github.com/zboralski/tinyhook/internal/log"
)

// Engine owns the script runtime, the two hook registries, and the guest
// memory bridge handed to script code. One engine serves one emulated
// process.
//
// The engine lock serializes whole dispatch calls; when the surrounding
// emulator runs multiple guest threads, at most one syscall's hooks execute
// at a time. Registry operations issued from script code run on the
// dispatching goroutine while that lock is already held, so the registries
// themselves carry no locking.
type Engine struct {
	mu      sync.Mutex
	rt      *goja.Runtime
	pre     *Registry
	post    *Registry
	mem     guest.Memory
	log     *tlog.Logger
	enabled bool

	scriptDir string
	modules   map[string]goja.Value
}

// New builds an engine from a hook script. It initializes the runtime,
// installs the tinyhook namespace and a require() resolver rooted at the
// script's directory, then executes the script's top-level code, which
// typically registers hooks as a side effect.
//
// Any failure aborts startup and returns an error; no partially initialized
// engine escapes. mem may be nil when the host exposes no guest memory, in
// which case the memory accessors throw to the script.
func New(scriptPath string, mem guest.Memory, logger *tlog.Logger) (*Engine, error) {
	if logger == nil {
		logger = tlog.NewNop()
	}

	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read hook script: %w", err)
	}

	e := &Engine{
		rt:        goja.New(),
		pre:       NewRegistry(),
		post:      NewRegistry(),
		mem:       mem,
		log:       logger,
		scriptDir: filepath.Dir(scriptPath),
		modules:   make(map[string]goja.Value),
	}

	if err := e.bind(); err != nil {
		return nil, fmt.Errorf("bind runtime: %w", err)
	}

	prog, err := goja.Compile(scriptPath, string(src), false)
	if err != nil {
		return nil, fmt.Errorf("compile hook script: %w", err)
	}
	if _, err := e.rt.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("run hook script: %w", err)
	}

	e.enabled = true
	logger.ScriptLoad(scriptPath, e.pre.Len(), e.post.Len())
	return e, nil
}

// Enabled reports whether the engine is initialized and dispatching.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Shutdown releases both registries and the runtime handle. Idempotent;
// calling it on an already disabled engine is a no-op. After shutdown,
// dispatch behaves as if no hooks were ever installed.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return
	}
	e.pre.Clear()
	e.post.Clear()
	e.modules = nil
	e.rt = nil
	e.enabled = false
}
