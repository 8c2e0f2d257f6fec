package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zboralski/tinyhook/internal/guest"
	tlog "github.com/zboralski/tinyhook/internal/log"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hooks.js")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T, src string) *Engine {
	t.Helper()
	e, err := New(writeScript(t, src), guest.NewRAM(0x1000, 4096), tlog.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(e.Shutdown)
	return e
}

func testArgs() Args {
	return Args{10, 20, 30, 40, 50, 60, 70, 80}
}

func TestNoHookDefaults(t *testing.T) {
	e := newTestEngine(t, ``)

	args := testArgs()
	out, fired := e.DispatchPre(64, args)
	if fired {
		t.Error("DispatchPre reported a hook fired with none registered")
	}
	if out.Action != ActionContinue {
		t.Errorf("expected ActionContinue, got %v", out.Action)
	}
	if out.Args != args {
		t.Errorf("args changed: %v -> %v", args, out.Args)
	}

	if got, fired := e.DispatchPost(64, -9, args); got != -9 || fired {
		t.Errorf("DispatchPost with no hook: got %d, fired %v", got, fired)
	}
}

func TestPreHookSkip(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(56, function(num, a1) {
			return {action: tinyhook.SKIP, ret: 42};
		});
	`)

	out, fired := e.DispatchPre(56, testArgs())
	if !fired {
		t.Fatal("hook did not fire")
	}
	if !out.Skipped() {
		t.Error("expected skip")
	}
	if out.Ret != 42 {
		t.Errorf("expected ret=42, got %d", out.Ret)
	}
}

func TestPreHookRewritesArgs(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(64, function() {
			return {args: [1, 2, 3, 4, 5, 6, 7, 8]};
		});
	`)

	out, fired := e.DispatchPre(64, testArgs())
	if !fired {
		t.Fatal("hook did not fire")
	}
	if out.Skipped() {
		t.Error("action omitted must mean continue")
	}
	want := Args{1, 2, 3, 4, 5, 6, 7, 8}
	if out.Args != want {
		t.Errorf("expected args %v, got %v", want, out.Args)
	}
}

func TestPreHookShortArgsIgnored(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(64, function() {
			return {args: [1, 2, 3, 4, 5, 6, 7]};
		});
	`)

	args := testArgs()
	out, fired := e.DispatchPre(64, args)
	if !fired {
		t.Fatal("hook did not fire")
	}
	if out.Args != args {
		t.Errorf("7-element args must be ignored entirely: %v -> %v", args, out.Args)
	}
}

func TestPreHookNonIntegerArgSlot(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(64, function() {
			return {args: [1, "two", 3, 4, 5.5, 6, 7, 8]};
		});
	`)

	out, _ := e.DispatchPre(64, testArgs())
	want := Args{1, 20, 3, 4, 50, 6, 7, 8} // slots 1 and 4 keep originals
	if out.Args != want {
		t.Errorf("expected args %v, got %v", want, out.Args)
	}
}

func TestPreHookMalformedResult(t *testing.T) {
	scripts := map[string]string{
		"integer":   `return 7;`,
		"string":    `return "nope";`,
		"null":      `return null;`,
		"undefined": `return;`,
		"array":     `return [1, 2, 3];`,
		"floatret":  `return {ret: 1.5, action: "skip"};`,
	}
	for name, body := range scripts {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t, `
				tinyhook.registerPreHook(64, function() { `+body+` });
			`)
			args := testArgs()
			out, fired := e.DispatchPre(64, args)
			if !fired {
				t.Fatal("hook did not fire")
			}
			if out.Skipped() || out.Args != args || out.Ret != 0 {
				t.Errorf("malformed result must degrade to defaults, got %+v", out)
			}
		})
	}
}

func TestPreHookThrowBehavesAsUnregistered(t *testing.T) {
	e := newTestEngine(t, `
		var calls = 0;
		tinyhook.registerPreHook(64, function() {
			calls++;
			if (calls === 1) {
				throw new Error("boom");
			}
			return {action: tinyhook.SKIP, ret: 99};
		});
	`)

	args := testArgs()
	out, fired := e.DispatchPre(64, args)
	if fired {
		t.Error("throwing hook must report as not fired")
	}
	if out.Skipped() || out.Args != args {
		t.Errorf("throwing hook must leave defaults, got %+v", out)
	}

	// The failure must not affect the next call to the same number.
	out, fired = e.DispatchPre(64, args)
	if !fired || !out.Skipped() || out.Ret != 99 {
		t.Errorf("second call should fire normally, got fired=%v out=%+v", fired, out)
	}
}

func TestPostHookReplacesReturn(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPostHook(63, function(num, ret) {
			return ret + 1;
		});
	`)

	got, fired := e.DispatchPost(63, 41, testArgs())
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if !fired {
		t.Error("expected post hook to report fired")
	}
}

func TestPostHookNonIntegerKeepsReturn(t *testing.T) {
	scripts := map[string]string{
		"string":    `return "nope";`,
		"float":     `return 1.25;`,
		"object":    `return {ret: 5};`,
		"undefined": `return;`,
	}
	for name, body := range scripts {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(t, `
				tinyhook.registerPostHook(63, function() { `+body+` });
			`)
			if got, _ := e.DispatchPost(63, 123, testArgs()); got != 123 {
				t.Errorf("expected original 123, got %d", got)
			}
		})
	}
}

func TestPostHookThrowKeepsReturn(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPostHook(63, function() { throw "bad"; });
	`)

	got, fired := e.DispatchPost(63, 7, testArgs())
	if got != 7 {
		t.Errorf("expected original 7, got %d", got)
	}
	if fired {
		t.Error("throwing post hook should report not fired")
	}
}

func TestPostHookReceivesOriginalArgs(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPostHook(63, function(num, ret, a1, a2) {
			return a1 * 1000 + a2;
		});
	`)

	if got, _ := e.DispatchPost(63, 0, Args{3, 9}); got != 3009 {
		t.Errorf("expected 3009, got %d", got)
	}
}

func TestRegisterReplaces(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(64, function() { return {ret: 1, action: tinyhook.SKIP}; });
		tinyhook.registerPreHook(64, function() { return {ret: 2, action: tinyhook.SKIP}; });
	`)

	out, fired := e.DispatchPre(64, testArgs())
	if !fired || out.Ret != 2 {
		t.Errorf("only the latest registration should fire, got fired=%v ret=%d", fired, out.Ret)
	}
}

func TestUnregisterRestoresNoHook(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(64, function() { return {action: tinyhook.SKIP}; });
		tinyhook.unregisterPreHook(64);
		// Unregistering something never registered is a no-op.
		tinyhook.unregisterPreHook(9999);
		tinyhook.unregisterPostHook(9999);
	`)

	out, fired := e.DispatchPre(64, testArgs())
	if fired || out.Skipped() {
		t.Errorf("unregistered hook must not fire, got fired=%v out=%+v", fired, out)
	}
}

func TestHookUnregistersItself(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(64, function() {
			tinyhook.unregisterPreHook(64);
			return {action: tinyhook.SKIP, ret: 5};
		});
	`)

	out, fired := e.DispatchPre(64, testArgs())
	if !fired || out.Ret != 5 {
		t.Fatalf("first call should fire, got fired=%v out=%+v", fired, out)
	}
	if _, fired = e.DispatchPre(64, testArgs()); fired {
		t.Error("hook should be gone after unregistering itself")
	}
}

func TestRegisterNotCallableFailsStartup(t *testing.T) {
	_, err := New(writeScript(t, `tinyhook.registerPreHook(1, 42);`), nil, tlog.NewNop())
	if err == nil {
		t.Fatal("expected startup failure from non-callable registration")
	}
}

func TestRegisterNotCallableIsRecoverable(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(1, function() { return {ret: 1, action: tinyhook.SKIP}; });
		var caught = false;
		try {
			tinyhook.registerPreHook(2, "not a function");
		} catch (err) {
			caught = true;
		}
		if (!caught) {
			throw new Error("expected TypeError");
		}
	`)

	// The failed registration must not disturb hook 1.
	out, fired := e.DispatchPre(1, testArgs())
	if !fired || out.Ret != 1 {
		t.Errorf("existing hook affected by failed registration: fired=%v out=%+v", fired, out)
	}
	if _, fired := e.DispatchPre(2, testArgs()); fired {
		t.Error("failed registration must not install a hook")
	}
}

func TestStartupMissingScript(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.js"), nil, tlog.NewNop())
	if err == nil {
		t.Fatal("expected error for missing script")
	}
}

func TestStartupScriptThrow(t *testing.T) {
	_, err := New(writeScript(t, `throw new Error("top level");`), nil, tlog.NewNop())
	if err == nil {
		t.Fatal("expected error for script throwing at top level")
	}
}

func TestStartupSyntaxError(t *testing.T) {
	_, err := New(writeScript(t, `function (`), nil, tlog.NewNop())
	if err == nil {
		t.Fatal("expected error for unparsable script")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	e := newTestEngine(t, `
		tinyhook.registerPreHook(64, function() { return {action: tinyhook.SKIP}; });
	`)

	if !e.Enabled() {
		t.Fatal("engine should be enabled after New")
	}
	e.Shutdown()
	if e.Enabled() {
		t.Error("engine should be disabled after Shutdown")
	}
	e.Shutdown() // no-op

	out, fired := e.DispatchPre(64, testArgs())
	if fired || out.Skipped() {
		t.Errorf("dispatch after shutdown must use defaults, got fired=%v out=%+v", fired, out)
	}
	if got, fired := e.DispatchPost(64, 3, testArgs()); got != 3 || fired {
		t.Errorf("post dispatch after shutdown must keep ret, got %d fired=%v", got, fired)
	}
}
