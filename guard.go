package ravijit

import "errors"

// errReentrant is returned by acquireGuard while another compilation is in flight.
var errReentrant = errors.New("compilation already in progress")

// compileGuard is the token of the single in-flight compilation of a State.
type compileGuard struct {
	held *bool
}

// acquireGuard takes the compilation token of s. The caller must defer release.
func (s *State) acquireGuard() (compileGuard, error) {
	if s.compiling {
		return compileGuard{}, errReentrant
	}
	s.compiling = true
	return compileGuard{held: &s.compiling}, nil
}

func (g compileGuard) release() {
	if g.held != nil {
		*g.held = false
	}
}
