//go:build amd64 && cgo

package ravijit

// NativeSupported is true when at least one native backend is compiled in.
const NativeSupported = true
