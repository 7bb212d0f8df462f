package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	t.Run("fills defaults", func(t *testing.T) {
		info := Info{Version: "dev", Commit: "none", BuildDate: "unknown"}
		fillFromBuildInfo(&info, bi)
		assert.Equal(t, "v1.2.3", info.Version)
		assert.Equal(t, "0123456789ab", info.Commit)
		assert.Equal(t, "2026-10-01T12:00:00Z", info.BuildDate)
		assert.True(t, info.Modified)
		assert.Contains(t, info.String(), "0123456789ab (modified)")
	})

	t.Run("linker values win", func(t *testing.T) {
		info := Info{Version: "v9.0.0", Commit: "abc", BuildDate: "yesterday"}
		fillFromBuildInfo(&info, bi)
		assert.Equal(t, "v9.0.0", info.Version)
		assert.Equal(t, "abc", info.Commit)
		assert.Equal(t, "yesterday", info.BuildDate)
	})

	t.Run("devel main module", func(t *testing.T) {
		info := Info{Version: "dev", Commit: "none", BuildDate: "unknown"}
		fillFromBuildInfo(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
		assert.Equal(t, "dev", info.Version)
		assert.Equal(t, "none", info.Commit)
	})
}
