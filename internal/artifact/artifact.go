// Package artifact tracks the compiled state of a single function unit.
package artifact

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the compilation status of a function unit.
type Status byte

const (
	// StatusUnattempted is the initial status: compilation was never tried or
	// the policy declined every time so far.
	StatusUnattempted Status = iota
	// StatusCompiled means a native entry point is installed.
	StatusCompiled
	// StatusUncompilable is terminal: a failed attempt is never retried.
	StatusUncompilable
)

func (s Status) String() string {
	switch s {
	case StatusUnattempted:
		return "unattempted"
	case StatusCompiled:
		return "compiled"
	case StatusUncompilable:
		return "uncompilable"
	}
	return fmt.Sprintf("unknown(%d)", byte(s))
}

var (
	// ErrIllegalTransition is returned when a transition does not start from StatusUnattempted.
	ErrIllegalTransition = errors.New("illegal artifact transition")
	// ErrNotCompiled is returned by Invoke when no entry point is installed.
	ErrNotCompiled = errors.New("function is not compiled")
	// ErrDestroyed is returned by MarkCompiled once the owning unit was destroyed.
	ErrDestroyed = errors.New("function unit destroyed")
	// ErrReleased is returned by an Entry invoked after the backend owning it
	// released it, for example on JIT shutdown.
	ErrReleased = errors.New("native entry point released")
)

// Entry is the native entry point installed by MarkCompiled.
//
// Note: native.EntryPoint satisfies this.
type Entry interface {
	Name() string
	Invoke(l int64) (int32, error)
	Release() error
	// Released returns true once the entry can no longer be invoked, whoever
	// released it.
	Released() bool
}

// Artifact is the per-function compiled-artifact slot.
//
// The zero value is ready to use and StatusUnattempted.
type Artifact struct {
	mu     sync.Mutex
	status Status
	entry  Entry
	// destroyed is set by Release whatever the status.
	destroyed bool
}

// Status returns the current status.
func (a *Artifact) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Compiled returns true when a native entry point is installed and still valid.
func (a *Artifact) Compiled() bool {
	return a.Entry() != nil
}

// Uncompilable returns true when a previous attempt failed.
func (a *Artifact) Uncompilable() bool {
	return a.Status() == StatusUncompilable
}

// Destroyed returns true once the owning unit was destroyed.
func (a *Artifact) Destroyed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyed
}

// Entry returns the installed entry point, or nil when there is none or it was
// released.
func (a *Artifact) Entry() Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed || a.entry == nil || a.entry.Released() {
		return nil
	}
	return a.entry
}

// MarkCompiled installs entry. It is only legal from StatusUnattempted.
func (a *Artifact) MarkCompiled(entry Entry) error {
	if entry == nil {
		return errors.New("nil entry")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusUnattempted {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.status, StatusCompiled)
	}
	if a.destroyed {
		return ErrDestroyed
	}
	a.status, a.entry = StatusCompiled, entry
	return nil
}

// MarkUncompilable records a failed attempt. It is only legal from StatusUnattempted.
func (a *Artifact) MarkUncompilable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusUnattempted {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.status, StatusUncompilable)
	}
	a.status = StatusUncompilable
	return nil
}

// Invoke calls the installed entry point with the Lua state handle l.
func (a *Artifact) Invoke(l int64) (int32, error) {
	entry := a.Entry()
	if entry == nil {
		return 0, ErrNotCompiled
	}
	return entry.Invoke(l)
}

// Release is the hook run when the owning function unit is destroyed. It
// releases the entry point of a compiled artifact exactly once. The unit is
// recorded as destroyed whatever its status, so it is never compiled afterwards.
func (a *Artifact) Release() error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return nil
	}
	a.destroyed = true
	entry := a.entry
	a.entry = nil
	a.mu.Unlock()
	if entry == nil {
		return nil
	}
	return entry.Release()
}
