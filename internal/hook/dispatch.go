package hook

// DispatchPre runs the pre-pass for one syscall invocation. It returns the
// outcome the execution engine must honor and whether a hook actually fired.
//
// With no hook installed, with the engine shut down, or when the hook throws,
// the outcome is the defaults: continue with the original arguments. A
// throwing hook is logged and reported as "did not fire", matching the
// registry lookup miss; callers cannot tell the two apart except through the
// log.
func (e *Engine) DispatchPre(num int64, args Args) (PreOutcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := defaultPre(args)
	if !e.enabled {
		return out, false
	}
	cb, ok := e.pre.Lookup(num)
	if !ok {
		return out, false
	}

	v, err := e.callPre(cb, num, args)
	if err != nil {
		e.log.HookError("pre", num, err)
		return defaultPre(args), false
	}

	decodePre(v, &out)
	if out.Skipped() {
		e.log.HookSkip(num, out.Ret)
	}
	return out, true
}

// DispatchPost runs the post-pass and returns the final return value for the
// syscall, plus whether a hook actually fired. ret is the value chosen by the
// pre-pass decision (the real syscall's result, or the substitute when it was
// skipped); args are the original eight arguments, not the possibly rewritten
// pre-pass ones.
//
// An absent hook, a disabled engine, a throwing hook, or a non-integer
// result all leave ret unchanged. As with the pre-pass, a throwing hook
// reports as "did not fire".
func (e *Engine) DispatchPost(num, ret int64, args Args) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return ret, false
	}
	cb, ok := e.post.Lookup(num)
	if !ok {
		return ret, false
	}

	v, err := e.callPost(cb, num, ret, args)
	if err != nil {
		e.log.HookError("post", num, err)
		return ret, false
	}
	return decodePost(v, ret), true
}
