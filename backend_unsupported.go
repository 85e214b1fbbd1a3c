//go:build !amd64 || !cgo

package ravijit

// NativeSupported is false when no native backend is compiled in. Initialize
// fails with ErrNoBackend unless a backend is registered by other means.
const NativeSupported = false
