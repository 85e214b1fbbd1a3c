// Package version reports the version of ravijit compiled into the running binary.
package version

import "runtime/debug"

// Default is returned when the version cannot be determined, for example in tests.
const Default = "dev"

const modulePath = "github.com/ravilang/ravijit"

// GetRavijitVersion returns the version of ravijit in the go.mod of the main
// module, or of the main module itself when that is ravijit.
func GetRavijitVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return versionOf(info)
}

func versionOf(info *debug.BuildInfo) string {
	if info.Main.Path == modulePath {
		return orDefault(info.Main.Version)
	}
	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return orDefault(dep.Version)
	}
	return Default
}

func orDefault(v string) string {
	// Binaries built inside the module report "(devel)".
	if v == "" || v == "(devel)" {
		return Default
	}
	return v
}
