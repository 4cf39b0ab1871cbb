package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"safekeep/internal/sk"
)

// StagingArea hands out tracked paths inside the backup directory for the
// intermediate files of pipeline runs. Intermediates live next to the final
// artifact so promoting one is a no-op rather than a cross-device copy.
type StagingArea struct {
	dir     string
	minFree uint64
	fsmgr   sk.FilesystemManager
}

var _ sk.StagingArea = (*StagingArea)(nil)

// NewStagingArea creates a staging area rooted at dir, creating it if needed.
// minFree is the free space a run requires to start; zero disables the check.
func NewStagingArea(dir string, minFree uint64, fsmgr sk.FilesystemManager) (*StagingArea, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &StagingArea{dir: dir, minFree: minFree, fsmgr: fsmgr}, nil
}

// NewRun starts a pipeline run after checking free space.
func (s *StagingArea) NewRun() (sk.StagingRun, error) {
	if s.minFree > 0 {
		free, err := s.fsmgr.DiskFree(s.dir)
		if err != nil {
			return nil, fmt.Errorf("checking free space: %w", err)
		}
		if free < s.minFree {
			return nil, fmt.Errorf("staging area full: %d bytes free in %s, need %d", free, s.dir, s.minFree)
		}
	}
	return &run{
		dir:     s.dir,
		fsmgr:   s.fsmgr,
		tracked: make(map[string]struct{}),
	}, nil
}

// run tracks the files one pipeline run has produced.
type run struct {
	dir   string
	fsmgr sk.FilesystemManager

	mu      sync.Mutex
	tracked map[string]struct{}
}

func (r *run) Path(name string) string {
	p := filepath.Join(r.dir, filepath.Base(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[p] = struct{}{}
	return p
}

func (r *run) Remove(paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := r.fsmgr.Remove(p); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(r.tracked, p)
	}
	return errors.Join(errs...)
}

func (r *run) Keep(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tracked, path)
}

func (r *run) Discard() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for p := range r.tracked {
		if err := r.fsmgr.Remove(p); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(r.tracked, p)
	}
	return errors.Join(errs...)
}
