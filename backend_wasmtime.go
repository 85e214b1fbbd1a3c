//go:build amd64 && cgo

package ravijit

import _ "github.com/ravilang/ravijit/internal/native/wasmtime" // registers "wasmtime"
