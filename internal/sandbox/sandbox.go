// Package sandbox defines the contract the core needs from an embedded
// script VM — a constructor taking an allocation hook, a Load/ProtectedCall
// pair that mirrors a real VM's bytecode loader and protected call, and a
// registry slot so native callbacks can recover the owning actor's
// accounting state. The actual scripting language is an external
// collaborator out of scope here; this package ships a minimal reference
// implementation of the contract rather than a general-purpose interpreter.
package sandbox

import (
	"fmt"
	"runtime/debug"
)

// Accountant tracks one actor's live memory usage against an optional
// limit, mirroring the allocator hook's (extra, old_size, new_size)
// accounting contract (spec §4.4). It carries no pointers — under a
// garbage-collected host the hook counts logical bytes requested by the
// reference VM's object constructors, not physical allocator alignment.
type Accountant struct {
	Limit      int64 // 0 means unlimited
	live       int64
	warning    int64
	onWarn     func(live, warning int64)
	onLimitHit func(live, attempted int64)
}

// NewAccountant builds an Accountant with the given limit (0 = unlimited)
// and an initial warning watermark of half the limit, or 1MiB if
// unlimited — doubling thereafter, per spec §4.4.
func NewAccountant(limit int64) *Accountant {
	warn := limit / 2
	if warn <= 0 {
		warn = 1 << 20
	}
	return &Accountant{Limit: limit, warning: warn}
}

// OnWarn installs a callback invoked when live usage crosses the warning
// watermark (typically wired to the logger).
func (a *Accountant) OnWarn(fn func(live, warning int64)) { a.onWarn = fn }

// OnLimitHit installs a callback invoked when an allocation would exceed
// the limit, before the request is rejected.
func (a *Accountant) OnLimitHit(fn func(live, attempted int64)) { a.onLimitHit = fn }

// Live returns current accounted bytes.
func (a *Accountant) Live() int64 { return a.live }

// Allocator is the hook signature a VM constructor takes: given the
// previous and requested sizes for one block, it returns whether the
// request may proceed. newSize == 0 means "free oldSize bytes" and always
// succeeds.
type Allocator func(acct *Accountant, oldSize, newSize int) bool

// DefaultAllocator implements spec §4.4 exactly: compute delta, reject if
// it would exceed the limit, otherwise commit and check the warning
// watermark.
func DefaultAllocator(acct *Accountant, oldSize, newSize int) bool {
	if newSize == 0 {
		acct.live -= int64(oldSize)
		if acct.live < 0 {
			acct.live = 0
		}
		return true
	}
	delta := int64(newSize - oldSize)
	if acct.Limit > 0 && acct.live+delta > acct.Limit {
		if acct.onLimitHit != nil {
			acct.onLimitHit(acct.live, acct.live+delta)
		}
		return false
	}
	acct.live += delta
	if acct.live > acct.warning {
		if acct.onWarn != nil {
			acct.onWarn(acct.live, acct.warning)
		}
		acct.warning *= 2
	}
	return true
}

// EntryPoint is what Load resolves a script path to: a callable that, given
// string parameters, runs the script body. A real embedded language would
// parse bytecode here; the reference implementation treats a registered Go
// closure as the "compiled" form, keyed by path through the Cache.
type EntryPoint func(params map[string]string) error

// VM is a minimal reference implementation of the embedded-language
// contract spec §4.3 describes: an allocator-backed accountant, a
// Load-by-path step through the shared script cache, and a ProtectedCall
// that recovers panics into a traceback string exactly like a real VM's
// protected call would return one.
type VM struct {
	acct   *Accountant
	alloc  Allocator
	cache  *Cache
	loaded EntryPoint
	extra  any // opaque per-actor data native callbacks may stash here
}

// New constructs a VM with the given accountant, allocator hook, and
// backing script cache.
func New(acct *Accountant, alloc Allocator, cache *Cache) *VM {
	if alloc == nil {
		alloc = DefaultAllocator
	}
	return &VM{acct: acct, alloc: alloc, cache: cache}
}

// Extra returns the registry slot for native callbacks recovering
// actor-specific state (the "opaque extra pointer" of spec §4.3).
func (v *VM) Extra() any              { return v.extra }
func (v *VM) SetExtra(extra any)      { v.extra = extra }
func (v *VM) Accountant() *Accountant { return v.acct }

// Reserve routes a raw allocation request through the installed hook,
// charging it to this VM's accountant.
func (v *VM) Reserve(oldSize, newSize int) bool {
	return v.alloc(v.acct, oldSize, newSize)
}

// Load resolves path to an entry point through the script cache and binds
// it as this VM's loaded program.
func (v *VM) Load(path string) error {
	entry, err := v.cache.Get(path)
	if err != nil {
		return err
	}
	v.loaded = entry
	return nil
}

// ProtectedCall invokes the loaded entry point with params, recovering any panic
// into a traceback string the same shape a real VM's protected call
// returns on failure.
func (v *VM) ProtectedCall(params map[string]string) (traceback string, err error) {
	defer func() {
		if r := recover(); r != nil {
			traceback = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("protected call failed: %v", r)
		}
	}()
	if v.loaded == nil {
		return "", fmt.Errorf("protected call: no entry point loaded")
	}
	if callErr := v.loaded(params); callErr != nil {
		return "", callErr
	}
	return "", nil
}
