package hook

import (
	"fmt"

	"github.com/dop251/goja"
)

// The marshalling layer converts between the emulator's native argument and
// return value representation and script runtime values. Invocation is the
// only point where untrusted script code runs; both a thrown exception and a
// runtime panic are converted into an error so the dispatch boundary sees a
// plain fallible call.
//
// Decoding is deliberately lenient: a malformed result degrades to "no
// change" rather than failing, because a broken hook must never take the
// guest down with it.

// callPre invokes a pre-hook as fn(num, a1..a8).
func (e *Engine) callPre(cb Callback, num int64, args Args) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	in := make([]goja.Value, 0, NumArgs+1)
	in = append(in, e.rt.ToValue(num))
	for _, a := range args {
		in = append(in, e.rt.ToValue(a))
	}
	return cb.fn(goja.Undefined(), in...)
}

// callPost invokes a post-hook as fn(num, ret, a1..a8).
func (e *Engine) callPost(cb Callback, num, ret int64, args Args) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	in := make([]goja.Value, 0, NumArgs+2)
	in = append(in, e.rt.ToValue(num), e.rt.ToValue(ret))
	for _, a := range args {
		in = append(in, e.rt.ToValue(a))
	}
	return cb.fn(goja.Undefined(), in...)
}

// decodePre folds a pre-hook result into out, which arrives holding the
// defaults. Recognized fields:
//
//	action: integer equal to SKIP switches the action; anything else,
//	        including absence, means continue.
//	args:   array of exactly NumArgs elements; shorter or longer arrays are
//	        ignored entirely, and a non-integer element leaves the original
//	        argument in that slot.
//	ret:    integer substitute return value; non-integers leave 0.
//
// A result that is not an object at all means "no change".
func decodePre(v goja.Value, out *PreOutcome) {
	m, ok := v.Export().(map[string]interface{})
	if !ok {
		return
	}
	if a, ok := m["action"].(int64); ok && Action(a) == ActionSkip {
		out.Action = ActionSkip
	}
	if arr, ok := m["args"].([]interface{}); ok && len(arr) == NumArgs {
		for i, el := range arr {
			if n, ok := el.(int64); ok {
				out.Args[i] = n
			}
		}
	}
	if n, ok := m["ret"].(int64); ok {
		out.Ret = n
	}
}

// decodePost returns the hook's result when it is an integer, otherwise the
// original return value.
func decodePost(v goja.Value, orig int64) int64 {
	if n, ok := v.Export().(int64); ok {
		return n
	}
	return orig
}
