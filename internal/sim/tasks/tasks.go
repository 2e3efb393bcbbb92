package tasks

import "strings"

// Flag is a named exclusivity channel. Two running tasks never hold the same
// flag in one scheduler.
type Flag int

const (
	FlagMove Flag = iota
	FlagLook
	FlagJump
	FlagTarget

	numFlags
)

var AllFlags = [numFlags]Flag{FlagMove, FlagLook, FlagJump, FlagTarget}

func (f Flag) Valid() bool { return f >= 0 && f < numFlags }

func (f Flag) String() string {
	switch f {
	case FlagMove:
		return "MOVE"
	case FlagLook:
		return "LOOK"
	case FlagJump:
		return "JUMP"
	case FlagTarget:
		return "TARGET"
	default:
		return "INVALID"
	}
}

// FlagSet is a set of flags. Build it with Flags; the bit layout is private.
type FlagSet uint8

func Flags(fs ...Flag) FlagSet {
	var s FlagSet
	for _, f := range fs {
		s = s.With(f)
	}
	return s
}

func (s FlagSet) With(f Flag) FlagSet {
	if !f.Valid() {
		return s
	}
	return s | 1<<uint(f)
}

func (s FlagSet) Without(f Flag) FlagSet {
	if !f.Valid() {
		return s
	}
	return s &^ (1 << uint(f))
}

func (s FlagSet) Has(f Flag) bool {
	return f.Valid() && s&(1<<uint(f)) != 0
}

func (s FlagSet) Overlaps(o FlagSet) bool { return s&o != 0 }

func (s FlagSet) Empty() bool { return s == 0 }

func (s FlagSet) List() []Flag {
	var out []Flag
	for _, f := range AllFlags {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s FlagSet) String() string {
	parts := make([]string, 0, numFlags)
	for _, f := range s.List() {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "|")
}

// Task is one candidate behavior. Tick must not block; a task runs until
// ShouldContinue reports false or a higher-ranked task preempts it.
type Task interface {
	Flags() FlagSet
	ShouldStart() bool
	ShouldContinue() bool
	Start()
	Tick()
	Stop()
}

// Interruptible lets a task refuse preemption while it is running.
type Interruptible interface {
	Interruptible() bool
}

// Named is implemented by tasks that want a readable name in logs.
type Named interface {
	Name() string
}

// Func adapts plain functions into a Task. Nil callbacks are no-ops; a nil
// ContinueIf falls back to StartIf.
type Func struct {
	Label       string
	Mask        FlagSet
	StartIf     func() bool
	ContinueIf  func() bool
	OnStart     func()
	OnTick      func()
	OnStop      func()
	NoInterrupt bool
}

func (f *Func) Name() string        { return f.Label }
func (f *Func) Flags() FlagSet      { return f.Mask }
func (f *Func) Interruptible() bool { return !f.NoInterrupt }

func (f *Func) ShouldStart() bool {
	return f.StartIf != nil && f.StartIf()
}

func (f *Func) ShouldContinue() bool {
	if f.ContinueIf != nil {
		return f.ContinueIf()
	}
	return f.ShouldStart()
}

func (f *Func) Start() {
	if f.OnStart != nil {
		f.OnStart()
	}
}

func (f *Func) Tick() {
	if f.OnTick != nil {
		f.OnTick()
	}
}

func (f *Func) Stop() {
	if f.OnStop != nil {
		f.OnStop()
	}
}
