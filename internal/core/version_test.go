package core

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionFromBuildInfo(t *testing.T) {
	vcs := func(version, revision, modified string) *debug.BuildInfo {
		return &debug.BuildInfo{
			Main: debug.Module{Version: version},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: revision},
				{Key: "vcs.modified", Value: modified},
			},
		}
	}

	tests := []struct {
		name string
		info *debug.BuildInfo
		ok   bool
		want string
	}{
		{name: "no build info", want: "devel"},
		{name: "tagged release", info: vcs("v0.3.1", "ad721b3c0ffee000", "false"), ok: true, want: "v0.3.1"},
		{name: "checkout build", info: vcs("(devel)", "ad721b3c0ffee000", "false"), ok: true, want: "devel-ad721b3"},
		{name: "dirty pseudo-version", info: vcs("v0.0.0-20260217105831-82903d1d8810+dirty", "82903d1d8810aaaa", "true"), ok: true, want: "devel-82903d1-dirty"},
		{name: "prerelease is a tag", info: vcs("v2.0.0-rc1", "82903d1d8810aaaa", "false"), ok: true, want: "v2.0.0-rc1"},
		{name: "no vcs info", info: &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, ok: true, want: "devel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, versionFromBuildInfo(tt.info, tt.ok))
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "0.3.1", FormatVersion("v0.3.1"))
	assert.Equal(t, "devel-ad721b3-dirty", FormatVersion("devel-ad721b3-dirty"))
}
