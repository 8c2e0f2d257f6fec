package hook

// Action decides what happens to the real syscall after the pre-pass.
type Action int64

const (
	// ActionContinue runs the real syscall with the outcome's arguments.
	ActionContinue Action = 0
	// ActionSkip suppresses the real syscall; the outcome's Ret stands in
	// for its return value.
	ActionSkip Action = 1
)

// NumArgs is the fixed argument slot count carried through dispatch. Every
// syscall is presented with exactly eight slots regardless of how many it
// actually uses; the unused tail is ignored downstream.
const NumArgs = 8

// Args is the fixed-size argument block of one syscall invocation.
type Args [NumArgs]int64

// PreOutcome is the decoded result of a pre-hook. The zero value is not a
// valid default; use defaultPre so Args carries the original arguments.
type PreOutcome struct {
	Action Action
	Args   Args
	Ret    int64
}

// Skipped reports whether the real syscall should not be executed.
func (o PreOutcome) Skipped() bool { return o.Action == ActionSkip }

func defaultPre(args Args) PreOutcome {
	return PreOutcome{Action: ActionContinue, Args: args}
}
