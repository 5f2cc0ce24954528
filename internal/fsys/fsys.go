// Package fsys provides the filesystem abstraction shared by all
// components. Production code uses the OS-backed filesystem; tests
// inject a fault-wrapping filesystem instead of patching globals.
package fsys

import (
	"os"
	"sync"

	"github.com/spf13/afero"
)

// Default returns the OS-backed filesystem.
func Default() afero.Fs {
	return afero.NewOsFs()
}

// FaultFunc decides whether an operation on a path should fail.
// Returning a non-nil error injects that error.
type FaultFunc func(op, name string) error

// FaultFs wraps a filesystem and injects errors for selected
// operations. Operations without a registered fault pass through.
type FaultFs struct {
	afero.Fs

	mu    sync.RWMutex
	fault FaultFunc
}

// NewFaultFs wraps base with no faults registered.
func NewFaultFs(base afero.Fs) *FaultFs {
	return &FaultFs{Fs: base}
}

// SetFault installs the fault decision function. Pass nil to clear.
func (f *FaultFs) SetFault(fn FaultFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = fn
}

func (f *FaultFs) check(op, name string) error {
	f.mu.RLock()
	fn := f.fault
	f.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(op, name)
}

// Open injects faults for the "open" operation.
func (f *FaultFs) Open(name string) (afero.File, error) {
	if err := f.check("open", name); err != nil {
		return nil, err
	}
	return f.Fs.Open(name)
}

// OpenFile injects faults for the "openfile" operation.
func (f *FaultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if err := f.check("openfile", name); err != nil {
		return nil, err
	}
	return f.Fs.OpenFile(name, flag, perm)
}

// Create injects faults for the "create" operation.
func (f *FaultFs) Create(name string) (afero.File, error) {
	if err := f.check("create", name); err != nil {
		return nil, err
	}
	return f.Fs.Create(name)
}

// Remove injects faults for the "remove" operation.
func (f *FaultFs) Remove(name string) error {
	if err := f.check("remove", name); err != nil {
		return err
	}
	return f.Fs.Remove(name)
}

// Rename injects faults for the "rename" operation.
func (f *FaultFs) Rename(oldname, newname string) error {
	if err := f.check("rename", oldname); err != nil {
		return err
	}
	return f.Fs.Rename(oldname, newname)
}

// Stat injects faults for the "stat" operation.
func (f *FaultFs) Stat(name string) (os.FileInfo, error) {
	if err := f.check("stat", name); err != nil {
		return nil, err
	}
	return f.Fs.Stat(name)
}
