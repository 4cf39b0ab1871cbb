package testutil

import (
	"testing"

	"safekeep/internal/fs"
	"safekeep/internal/staging"
)

// NewTestStagingArea creates a staging area rooted at dir with no free-space floor.
func NewTestStagingArea(t *testing.T, dir string) *staging.StagingArea {
	t.Helper()

	sa, err := staging.NewStagingArea(dir, 0, fs.NewOSFilesystemManager())
	if err != nil {
		t.Fatalf("creating staging area: %v", err)
	}
	return sa
}
