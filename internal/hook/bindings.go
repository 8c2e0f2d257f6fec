package hook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

var errNoMemory = errors.New("no guest memory attached")

// bind installs the tinyhook namespace and the require resolver into the
// runtime's global scope. The namespace is the entire surface through which
// script code talks back to the engine.
func (e *Engine) bind() error {
	ns := e.rt.NewObject()

	entries := []struct {
		name  string
		value interface{}
	}{
		{"CONTINUE", int64(ActionContinue)},
		{"SKIP", int64(ActionSkip)},
		{"registerPreHook", e.makeRegister(e.pre, "pre")},
		{"registerPostHook", e.makeRegister(e.post, "post")},
		{"unregisterPreHook", e.makeUnregister(e.pre)},
		{"unregisterPostHook", e.makeUnregister(e.post)},
		{"readMemory", e.jsReadMemory},
		{"writeMemory", e.jsWriteMemory},
		{"readString", e.jsReadString},
		{"log", e.jsLog},
	}
	for _, ent := range entries {
		if err := ns.Set(ent.name, ent.value); err != nil {
			return err
		}
	}

	if err := e.rt.Set("tinyhook", ns); err != nil {
		return err
	}
	return e.rt.Set("require", e.jsRequire)
}

func (e *Engine) makeRegister(reg *Registry, direction string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		num := call.Argument(0).ToInteger()
		replaced, err := reg.Register(num, call.Argument(1))
		if err != nil {
			panic(e.rt.NewTypeError("callback must be callable"))
		}
		e.log.HookRegister(direction, num, replaced)
		return goja.Undefined()
	}
}

func (e *Engine) makeUnregister(reg *Registry) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		reg.Unregister(call.Argument(0).ToInteger())
		return goja.Undefined()
	}
}

// jsReadMemory implements tinyhook.readMemory(addr, size) -> ArrayBuffer.
func (e *Engine) jsReadMemory(call goja.FunctionCall) goja.Value {
	if e.mem == nil {
		panic(e.rt.NewGoError(errNoMemory))
	}
	addr := uint64(call.Argument(0).ToInteger())
	size := call.Argument(1).ToInteger()

	data, err := e.mem.ReadBytes(addr, size)
	if err != nil {
		panic(e.rt.NewGoError(err))
	}
	return e.rt.ToValue(e.rt.NewArrayBuffer(data))
}

// jsWriteMemory implements tinyhook.writeMemory(addr, data). data may be an
// ArrayBuffer, a typed-array view, a string, or an array of byte values.
func (e *Engine) jsWriteMemory(call goja.FunctionCall) goja.Value {
	if e.mem == nil {
		panic(e.rt.NewGoError(errNoMemory))
	}
	addr := uint64(call.Argument(0).ToInteger())

	data, ok := exportBytes(call.Argument(1))
	if !ok {
		panic(e.rt.NewTypeError("data must be an ArrayBuffer, typed array, string, or byte array"))
	}
	if err := e.mem.WriteBytes(addr, data); err != nil {
		panic(e.rt.NewGoError(err))
	}
	return goja.Undefined()
}

// jsReadString implements tinyhook.readString(addr) -> string.
func (e *Engine) jsReadString(call goja.FunctionCall) goja.Value {
	if e.mem == nil {
		panic(e.rt.NewGoError(errNoMemory))
	}
	addr := uint64(call.Argument(0).ToInteger())

	s, err := e.mem.ReadCString(addr)
	if err != nil {
		panic(e.rt.NewGoError(err))
	}
	return e.rt.ToValue(s)
}

// jsLog implements tinyhook.log(...args), the script's print facility.
// Output goes to stdout so hook diagnostics interleave with the trace.
func (e *Engine) jsLog(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}
	fmt.Printf("[script] %s\n", strings.Join(parts, " "))
	return goja.Undefined()
}

// exportBytes coerces a script value into a byte slice.
func exportBytes(v goja.Value) ([]byte, bool) {
	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return x.Bytes(), true
	case []byte:
		// Typed-array views export as byte slices.
		return x, true
	case string:
		return []byte(x), true
	case []interface{}:
		out := make([]byte, len(x))
		for i, el := range x {
			n, ok := el.(int64)
			if !ok || n < 0 || n > 0xFF {
				return nil, false
			}
			out[i] = byte(n)
		}
		return out, true
	}
	return nil, false
}
