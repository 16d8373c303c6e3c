package util

import (
	"runtime/debug"

	"github.com/stakedeck/stakedeck/internal/logging"
)

// SafeGo runs fn in a goroutine that logs instead of crashing on panic.
func SafeGo(fn func()) {
	SafeGoWithName("", fn)
}

// SafeGoWithName is SafeGo with a goroutine name attached to the panic log.
//
//	util.SafeGoWithName("event-watcher", w.loop)
func SafeGoWithName(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// Recover logs a recovered panic with its stack. It must be deferred directly.
func Recover(name string) {
	r := recover()
	if r == nil {
		return
	}
	args := []any{"panic", r, "stack", string(debug.Stack())}
	if name != "" {
		args = append(args, "goroutine", name)
	}
	logging.Error("goroutine panic recovered", args...)
}
