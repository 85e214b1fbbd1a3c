package native

import "sync"

// EntryPoint is the directly callable result of linking generated code.
//
// The EntryPoint owns the backend resources of its function. Release is the only
// way to give them back, and it runs the release hook at most once even when it
// races with the teardown of the owning backend.
type EntryPoint struct {
	name string
	fn   Function

	mu       sync.Mutex
	release  func() error
	released bool
	// onRelease is called once after release, used by Adapter to stop tracking this entry.
	onRelease func(*EntryPoint)
}

// NewEntryPoint wraps fn. release is called exactly once by the first Release.
func NewEntryPoint(name string, fn Function, release func() error) *EntryPoint {
	return &EntryPoint{name: name, fn: fn, release: release}
}

// Name returns the unique name the entry was linked under.
func (e *EntryPoint) Name() string {
	return e.name
}

// Invoke calls the native function with the given Lua state handle and returns
// the number of results it left for the caller.
func (e *EntryPoint) Invoke(l int64) (int32, error) {
	e.mu.Lock()
	released := e.released
	e.mu.Unlock()
	if released {
		return 0, ErrReleased
	}
	return e.fn.Call(l)
}

// Released returns true once Release was called.
func (e *EntryPoint) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// Release gives the backend resources of this entry back. Subsequent calls are no-ops.
func (e *EntryPoint) Release() (err error) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	release, onRelease := e.release, e.onRelease
	e.release, e.onRelease = nil, nil
	e.mu.Unlock()

	if release != nil {
		err = release()
	}
	if onRelease != nil {
		onRelease(e)
	}
	return
}
