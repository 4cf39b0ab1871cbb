package testutil

import (
	"sync"

	"safekeep/internal/fs"
	"safekeep/internal/sk"
)

// FaultyFilesystemManager is the OS filesystem with per-path failure injection.
type FaultyFilesystemManager struct {
	sk.FilesystemManager

	mu        sync.Mutex
	removeErr map[string]error
	free      *uint64
}

// NewFaultyFilesystemManager wraps the OS filesystem.
func NewFaultyFilesystemManager() *FaultyFilesystemManager {
	return &FaultyFilesystemManager{
		FilesystemManager: fs.NewOSFilesystemManager(),
		removeErr:         map[string]error{},
	}
}

// FailRemove makes Remove(path) return err.
func (m *FaultyFilesystemManager) FailRemove(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeErr[path] = err
}

// SetDiskFree makes DiskFree report n bytes for every path.
func (m *FaultyFilesystemManager) SetDiskFree(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free = &n
}

func (m *FaultyFilesystemManager) Remove(path string) error {
	m.mu.Lock()
	err := m.removeErr[path]
	m.mu.Unlock()
	if err != nil {
		return &sk.IOError{Op: "remove", Path: path, Err: err}
	}
	return m.FilesystemManager.Remove(path)
}

func (m *FaultyFilesystemManager) DiskFree(path string) (uint64, error) {
	m.mu.Lock()
	free := m.free
	m.mu.Unlock()
	if free != nil {
		return *free, nil
	}
	return m.FilesystemManager.DiskFree(path)
}
