package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"

	"safekeep/internal/archive"
	"safekeep/internal/sk"
)

// FakeDriver is a DatabaseDriver whose dump is a fixed byte string and whose
// restore records what it was given.
type FakeDriver struct {
	mu         sync.Mutex
	content    []byte
	restored   []byte
	restores   int
	DumpErr    error
	RestoreErr error
	OnDump     func() // called at the start of every Dump
}

// NewFakeDriver creates a FakeDriver that dumps content.
func NewFakeDriver(content []byte) *FakeDriver {
	return &FakeDriver{content: content}
}

func (d *FakeDriver) Name() string          { return "fake" }
func (d *FakeDriver) DumpExtension() string { return "sql" }

func (d *FakeDriver) Dump(ctx context.Context, dst string) error {
	if d.OnDump != nil {
		d.OnDump()
	}
	if d.DumpErr != nil {
		return d.DumpErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.WriteFile(dst, d.content, 0600); err != nil {
		return fmt.Errorf("writing dump: %w", err)
	}
	return nil
}

func (d *FakeDriver) Restore(ctx context.Context, src string) error {
	if d.RestoreErr != nil {
		return d.RestoreErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading dump: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restored = data
	d.restores++
	return nil
}

// Restored returns the bytes of the most recent restore and how many restores ran.
func (d *FakeDriver) Restored() ([]byte, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restored, d.restores
}

// FaultyArchiver is the gzip archiver with failure injection per operation.
type FaultyArchiver struct {
	sk.Archiver
	CompressErr   error
	DecompressErr error
	ArchiveErr    error
}

// NewFaultyArchiver wraps a GzipArchiver with no exclusions.
func NewFaultyArchiver() *FaultyArchiver {
	return &FaultyArchiver{Archiver: archive.NewGzipArchiver(nil, sk.NewNopLogger())}
}

func (a *FaultyArchiver) CompressFile(src, dst string) error {
	if a.CompressErr != nil {
		return a.CompressErr
	}
	return a.Archiver.CompressFile(src, dst)
}

func (a *FaultyArchiver) DecompressFile(src, dst string) error {
	if a.DecompressErr != nil {
		return a.DecompressErr
	}
	return a.Archiver.DecompressFile(src, dst)
}

func (a *FaultyArchiver) ArchiveDir(dir, dst string) error {
	if a.ArchiveErr != nil {
		return a.ArchiveErr
	}
	return a.Archiver.ArchiveDir(dir, dst)
}
