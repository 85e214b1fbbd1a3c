//go:build amd64 && cgo && !windows

package ravijit

import _ "github.com/ravilang/ravijit/internal/native/wasmer" // registers "wasmer"
