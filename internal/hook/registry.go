package hook

import (
	"errors"

	"github.com/dop251/goja"
)

// ErrNotCallable is returned when a value that is not invocable is passed to
// Register. It surfaces in the script as a TypeError.
var ErrNotCallable = errors.New("callback is not callable")

// Callback is an opaque handle to a script-level callable. Holding the
// original value keeps the object alive from the runtime's point of view for
// as long as it stays registered.
type Callback struct {
	fn    goja.Callable
	value goja.Value
}

// Registry maps syscall numbers to callbacks for one direction (pre or
// post). It is not locked: all mutation and lookup happens on the engine's
// dispatch path, which is serialized by the engine lock, or during script
// top-level execution before any dispatch.
type Registry struct {
	hooks map[int64]Callback
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[int64]Callback)}
}

// Register stores v as the callback for num, replacing any prior entry.
// Reports whether an entry was replaced. Fails with ErrNotCallable when v is
// not invocable; the prior entry, if any, is left untouched in that case.
func (r *Registry) Register(num int64, v goja.Value) (replaced bool, err error) {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return false, ErrNotCallable
	}
	_, replaced = r.hooks[num]
	r.hooks[num] = Callback{fn: fn, value: v}
	return replaced, nil
}

// Unregister removes the callback for num. Removing an absent key is a
// no-op, never an error.
func (r *Registry) Unregister(num int64) {
	delete(r.hooks, num)
}

// Lookup returns the callback for num, if one is installed. It never
// mutates the registry.
func (r *Registry) Lookup(num int64) (Callback, bool) {
	cb, ok := r.hooks[num]
	return cb, ok
}

// Len returns the number of installed callbacks.
func (r *Registry) Len() int { return len(r.hooks) }

// Clear drops every callback, releasing the registry's ownership share of
// the underlying script objects.
func (r *Registry) Clear() {
	r.hooks = make(map[int64]Callback)
}
