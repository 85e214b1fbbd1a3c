package native

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/ravilang/ravijit/internal/symbols"
)

// Adapter drives a Backend through one compilation attempt per LinkAndGenerate call
// and keeps track of every EntryPoint it handed out until they are released.
type Adapter struct {
	backend Backend

	mu   sync.Mutex
	live map[*EntryPoint]struct{}
}

// NewAdapter returns an Adapter which owns backend.
func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend, live: map[*EntryPoint]struct{}{}}
}

// Backend returns the backend driven by this adapter.
func (a *Adapter) Backend() Backend {
	return a.backend
}

// LinkAndGenerate compiles code as a self-contained unit, resolves all of its
// imports through registry and returns the entry named name.
//
// Every error is a *LinkError. The per-attempt backend context is closed before
// returning on every failure path.
func (a *Adapter) LinkAndGenerate(code []byte, name string, registry *symbols.Registry) (entry *EntryPoint, err error) {
	ctx, err := a.backend.NewContext()
	if err != nil {
		return nil, &LinkError{Kind: LinkErrorKindBackendFailure, Entry: name, Err: err}
	}
	defer func() {
		if err == nil {
			return
		}
		if cerr := ctx.Close(); cerr != nil {
			if le, ok := err.(*LinkError); ok {
				le.Err = multierror.Append(le.Err, cerr)
			}
		}
	}()

	if err = ctx.Load(code); err != nil {
		return nil, &LinkError{Kind: LinkErrorKindBackendFailure, Entry: name, Err: err}
	}

	found := 0
	for _, export := range ctx.Exports() {
		if export == name {
			found++
		}
	}
	if found != 1 {
		return nil, &LinkError{Kind: LinkErrorKindEntryNotFound, Entry: name}
	}

	imports := ctx.Imports()
	resolved := make([]*symbols.Symbol, len(imports))
	for i, imp := range imports {
		var s *symbols.Symbol
		var ok bool
		if imp.Module == ImportModule {
			s, ok = registry.Lookup(imp.Name)
		}
		if !ok {
			return nil, &LinkError{Kind: LinkErrorKindUnresolvedSymbol, Entry: name, Symbol: imp.Name}
		}
		resolved[i] = s
	}

	fn, err := ctx.Link(name, resolved)
	if err != nil {
		return nil, &LinkError{Kind: LinkErrorKindBackendFailure, Entry: name, Err: err}
	}

	entry = NewEntryPoint(name, fn, ctx.Close)
	a.track(entry)
	return entry, nil
}

func (a *Adapter) track(e *EntryPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e.onRelease = a.untrack
	a.live[e] = struct{}{}
}

func (a *Adapter) untrack(e *EntryPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.live, e)
}

// Live returns the number of entry points not released yet.
func (a *Adapter) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Close releases every entry point still alive and then closes the backend.
func (a *Adapter) Close() error {
	a.mu.Lock()
	entries := make([]*EntryPoint, 0, len(a.live))
	for e := range a.live {
		entries = append(entries, e)
	}
	a.mu.Unlock()

	var errs *multierror.Error
	for _, e := range entries {
		if err := e.Release(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := a.backend.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
