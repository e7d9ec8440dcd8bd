package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	origVersion := Version
	origCommit := Commit
	origBuildTime := BuildTime
	defer func() {
		Version = origVersion
		Commit = origCommit
		BuildTime = origBuildTime
	}()

	Version = "1.2.3"
	Commit = "abc1234"
	BuildTime = "2024-01-15T10:00:00Z"

	if got, want := String(), "1.2.3/abc1234 (built 2024-01-15T10:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDefaultValues(t *testing.T) {
	// May be overwritten by ldflags in release builds, but never empty.
	if Version == "" || Commit == "" || BuildTime == "" {
		t.Error("build metadata must have non-empty defaults")
	}
	if !strings.Contains(String(), Version) {
		t.Errorf("String() = %q should contain the version", String())
	}
}
