package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestUserAgent(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "1.4.0", "abc123"
	assert.Equal(t, "scrumboard-live-client/1.4.0 (abc123)", UserAgent("client"))
}

func TestApplyVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	info := Info{Version: "dev", Commit: "unknown", BuildTime: "unknown"}
	applyVCS(&info, settings)
	assert.Equal(t, Info{
		Version:   "dev",
		Commit:    "0123456789ab",
		BuildTime: "2024-05-01T10:00:00Z",
		Modified:  true,
	}, info)

	injected := Info{Commit: "abc123", BuildTime: "yesterday"}
	applyVCS(&injected, settings)
	assert.Equal(t, "abc123", injected.Commit, "ldflags win over the VCS stamp")
	assert.Equal(t, "yesterday", injected.BuildTime)
}
