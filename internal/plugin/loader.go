// Package plugin resolves kernel implementations into a uniform dispatch
// table, either from the compiled-in registry (by identifier) or from a
// shared object on disk (by path). Callers never learn which path produced
// the table.
package plugin

import (
	"fmt"
	goplugin "plugin"
	"sync"

	"github.com/cortex-data/cortex/internal/abi"
)

// ABIVersion is the contract version this harness speaks. Dynamically loaded
// modules export their own and the loader refuses a mismatch rather than
// calling into an incompatible binary.
const ABIVersion uint32 = 1

// Factory constructs a fresh, uninitialized kernel.
type Factory func() abi.Kernel

// Table is the resolved capability table for one kernel implementation.
// Both resolution paths produce the same shape.
type Table struct {
	Name       string
	ABIVersion uint32
	New        Factory
}

// Global registry for compiled-in kernels keyed by identifier.
var (
	registry   = map[string]Factory{}
	registryMu sync.RWMutex
)

// Register adds a compiled-in kernel factory under id. Registering an empty
// id or nil factory is ignored; re-registering an id replaces it.
func Register(id string, f Factory) {
	if id == "" || f == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = f
}

// Registered reports whether id is present in the compiled-in registry
// without constructing anything.
func Registered(id string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[id]
	return ok
}

// FromRegistry resolves a compiled-in kernel by identifier.
func FromRegistry(id string) (Table, error) {
	registryMu.RLock()
	f, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return Table{}, fmt.Errorf("no registered kernel %q", id)
	}
	return Table{Name: id, ABIVersion: ABIVersion, New: f}, nil
}

// FromPath loads a shared object and resolves its entry points. The module
// must export NewKernel (func() abi.Kernel) and KernelABIVersion (uint32);
// a missing symbol or a version mismatch refuses the module before any
// kernel code runs.
func FromPath(path string) (Table, error) {
	mod, err := goplugin.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open kernel module %s: %w", path, err)
	}

	verSym, err := mod.Lookup("KernelABIVersion")
	if err != nil {
		return Table{}, fmt.Errorf("kernel module %s: %w", path, err)
	}
	ver, ok := verSym.(*uint32)
	if !ok {
		return Table{}, fmt.Errorf("kernel module %s: KernelABIVersion has wrong type %T", path, verSym)
	}
	if *ver != ABIVersion {
		return Table{}, fmt.Errorf("kernel module %s speaks ABI %d, harness speaks %d", path, *ver, ABIVersion)
	}

	newSym, err := mod.Lookup("NewKernel")
	if err != nil {
		return Table{}, fmt.Errorf("kernel module %s: %w", path, err)
	}
	factory, ok := newSym.(func() abi.Kernel)
	if !ok {
		return Table{}, fmt.Errorf("kernel module %s: NewKernel has wrong type %T", path, newSym)
	}

	return Table{Name: path, ABIVersion: *ver, New: factory}, nil
}

// Resolve returns the dispatch table for exactly one of path or id. Both or
// neither populated is a caller error, mirroring the wire protocol's
// load-kernel constraint.
func Resolve(path, id string) (Table, error) {
	switch {
	case path != "" && id != "":
		return Table{}, fmt.Errorf("kernel path %q and id %q are mutually exclusive", path, id)
	case path == "" && id == "":
		return Table{}, fmt.Errorf("one of kernel path or id is required")
	case path != "":
		return FromPath(path)
	default:
		return FromRegistry(id)
	}
}
