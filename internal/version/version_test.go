package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionOf(t *testing.T) {
	tests := []struct {
		name     string
		info     *debug.BuildInfo
		expected string
	}{
		{
			name:     "main module",
			info:     &debug.BuildInfo{Main: debug.Module{Path: modulePath, Version: "v0.3.0"}},
			expected: "v0.3.0",
		},
		{
			name:     "main module devel",
			info:     &debug.BuildInfo{Main: debug.Module{Path: modulePath, Version: "(devel)"}},
			expected: Default,
		},
		{
			name: "dependency",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "example.com/embedder"},
				Deps: []*debug.Module{
					{Path: "github.com/rs/zerolog", Version: "v1.28.0"},
					{Path: modulePath, Version: "v0.0.0-20221012123113-1948909ec0b1"},
				},
			},
			expected: "v0.0.0-20221012123113-1948909ec0b1",
		},
		{
			name: "replaced dependency",
			info: &debug.BuildInfo{
				Main: debug.Module{Path: "example.com/embedder"},
				Deps: []*debug.Module{
					{Path: modulePath, Version: "v0.1.0", Replace: &debug.Module{Path: "../ravijit", Version: "v0.1.1"}},
				},
			},
			expected: "v0.1.1",
		},
		{
			name:     "not found",
			info:     &debug.BuildInfo{Main: debug.Module{Path: "example.com/embedder"}},
			expected: Default,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, versionOf(tc.info))
		})
	}
}

func TestGetRavijitVersion(t *testing.T) {
	// Test binaries have no module version.
	require.Equal(t, Default, GetRavijitVersion())
}
