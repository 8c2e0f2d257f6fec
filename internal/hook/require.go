package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
)

// jsRequire is a minimal CommonJS-style loader. Modules resolve relative to
// the hook script's directory only and are cached by resolved path, so a
// module's top-level code runs once per engine.
func (e *Engine) jsRequire(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	path, err := e.resolveModule(name)
	if err != nil {
		panic(e.rt.NewGoError(err))
	}
	if v, ok := e.modules[path]; ok {
		return v
	}

	src, err := os.ReadFile(path)
	if err != nil {
		panic(e.rt.NewGoError(fmt.Errorf("require %q: %w", name, err)))
	}

	wrapped := "(function(module, exports, require) {\n" + string(src) + "\n})"
	prog, err := goja.Compile(path, wrapped, false)
	if err != nil {
		panic(e.rt.NewGoError(fmt.Errorf("require %q: %w", name, err)))
	}
	fnv, err := e.rt.RunProgram(prog)
	if err != nil {
		panic(e.rt.NewGoError(fmt.Errorf("require %q: %w", name, err)))
	}
	fn, ok := goja.AssertFunction(fnv)
	if !ok {
		panic(e.rt.NewGoError(fmt.Errorf("require %q: module wrapper is not a function", name)))
	}

	module := e.rt.NewObject()
	exports := e.rt.NewObject()
	_ = module.Set("exports", exports)

	// Provisional cache entry breaks require cycles.
	e.modules[path] = exports

	if _, err := fn(goja.Undefined(), module, exports, e.rt.Get("require")); err != nil {
		delete(e.modules, path)
		if ex, ok := err.(*goja.Exception); ok {
			panic(ex.Value())
		}
		panic(e.rt.NewGoError(err))
	}

	result := module.Get("exports")
	e.modules[path] = result
	return result
}

// resolveModule maps a module name onto a file under the script directory.
// A missing extension defaults to .js. Paths escaping the script directory
// are rejected.
func (e *Engine) resolveModule(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("require: empty module name")
	}
	if filepath.Ext(name) == "" {
		name += ".js"
	}
	path := filepath.Join(e.scriptDir, name)
	rel, err := filepath.Rel(e.scriptDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("require: %q escapes the script directory", name)
	}
	return path, nil
}
