package training

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// MethodRecord: per-method training data
// ---------------------------------------------------------------------------

// tierCount is the number of compilation tiers, tier 0 (none) included.
const tierCount = 5

// tierMaskBit returns the mask bit for a tier, or 0 for out-of-range.
func tierMaskBit(tier int) int32 {
	if tier < 0 || tier >= tierCount {
		return 0
	}
	return 1 << tier
}

// highestTier returns the highest tier present in a mask.
func highestTier(mask int32) int {
	for t := tierCount - 1; t > 0; t-- {
		if mask&(1<<t) != 0 {
			return t
		}
	}
	return 0
}

// MethodRecord accumulates facts about one method: which tiers were ever
// requested for it, whether it was only ever inlined, and the history of
// its compilations. Logical identity is fixed by key; the live method
// the holder points at may be rebound when the physical representation
// changes.
type MethodRecord struct {
	recordBase

	klass  *ClassRecord
	holder atomic.Pointer[methodHolder]

	tierMask    atomic.Int32 // bits only ever OR'd in
	wasInlined  atomic.Bool
	wasToplevel atomic.Bool

	// Compile chain, latest (highest compile id) first, and the most
	// recent top-level compile per tier. Guarded by the store lock.
	compiles            *CompileRecord
	lastToplevelCompile [tierCount]*CompileRecord
	highestTopTier      int
}

type methodHolder struct {
	handle MethodHandle
}

func newMethodRecord(reg *Registry, key Key, klass *ClassRecord) *MethodRecord {
	return &MethodRecord{
		recordBase: recordBase{key: key, reg: reg},
		klass:      klass,
	}
}

// Klass returns the owning class record.
func (m *MethodRecord) Klass() *ClassRecord { return m.klass }

// Name returns the method name symbol.
func (m *MethodRecord) Name() *Symbol { return m.key.MethodName() }

// Signature returns the method signature symbol.
func (m *MethodRecord) Signature() *Symbol { return m.key.Signature() }

// HasHolder reports whether a live method is currently bound.
func (m *MethodRecord) HasHolder() bool { return m.holder.Load() != nil }

// Holder returns the bound live method handle, or nil.
func (m *MethodRecord) Holder() MethodHandle {
	if h := m.holder.Load(); h != nil {
		return h.handle
	}
	return nil
}

// RefreshFrom rebinds the live method. Unlike a class holder, a method
// holder may legitimately move to a different pointer; logical identity
// is carried by the key alone.
func (m *MethodRecord) RefreshFrom(handle MethodHandle) {
	if handle == nil {
		return
	}
	m.holder.Store(&methodHolder{handle: handle})
	m.klass.RefreshFrom(handle.Holder())
}

// OnlyInlined reports that the method was never requested for a
// standalone compilation. Starts true; once false, stays false.
func (m *MethodRecord) OnlyInlined() bool { return !m.wasToplevel.Load() }

// NeverInlined reports that the method was never inlined anywhere.
func (m *MethodRecord) NeverInlined() bool { return !m.wasInlined.Load() }

// SawTier reports whether the given tier was ever requested.
func (m *MethodRecord) SawTier(tier int) bool {
	return m.tierMask.Load()&tierMaskBit(tier) != 0
}

// TierMask returns the bitmask of all tiers ever requested.
func (m *MethodRecord) TierMask() int { return int(m.tierMask.Load()) }

// HighestTier returns the highest tier ever requested.
func (m *MethodRecord) HighestTier() int { return highestTier(m.tierMask.Load()) }

// HighestTopTier returns the highest tier of any top-level compile.
func (m *MethodRecord) HighestTopTier() int {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.highestTopTier
}

// noticeCompilation extends the tier mask and the inlined/toplevel
// flags. The mask is monotonic: bits are OR'd in, never removed.
func (m *MethodRecord) noticeCompilation(tier int, inlined bool) {
	if inlined {
		m.wasInlined.Store(true)
	} else {
		m.wasToplevel.Store(true)
	}
	bit := tierMaskBit(tier)
	for {
		old := m.tierMask.Load()
		if old&bit == bit || m.tierMask.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// LastCompileID returns the id of the most recent compile, or 0.
func (m *MethodRecord) LastCompileID() int {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	if m.compiles == nil {
		return 0
	}
	return m.compiles.compileID
}

// LastToplevelCompile returns the most recent top-level compile at the
// given tier, or nil.
func (m *MethodRecord) LastToplevelCompile(tier int) *CompileRecord {
	if tier <= 0 || tier >= tierCount {
		return nil
	}
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	return m.lastToplevelCompile[tier]
}

// EachCompile visits the compile chain, latest first.
func (m *MethodRecord) EachCompile(fn func(*CompileRecord)) {
	m.reg.mu.Lock()
	chain := m.compiles
	m.reg.mu.Unlock()
	for ctd := chain; ctd != nil; ctd = ctd.next {
		fn(ctd)
	}
}

func (m *MethodRecord) relatedClass() *ClassRecord { return m.klass }
func (m *MethodRecord) kindRank() int              { return 1 }

// Compare implements the deterministic dump order.
func (m *MethodRecord) Compare(other Record) int { return compareRecords(m, other) }

func (m *MethodRecord) String() string {
	return fmt.Sprintf("method %s mask=%#x", m.key, m.TierMask())
}

// ---------------------------------------------------------------------------
// Registry: method record acquisition
// ---------------------------------------------------------------------------

// MethodRecordFor returns the record for a live method. The common case
// is the lock-free cached back-reference on the handle; this path takes
// no lock at all. On a cache miss the key is built from the handle's
// current identity and resolved under the store lock, creating the
// owning class record first if needed. On success the handle cache is
// refreshed so future calls take the fast path.
func (r *Registry) MethodRecordFor(handle MethodHandle, createIfMissing bool) *MethodRecord {
	if handle == nil {
		return nil
	}
	if mtd := handle.TrainingRecord(); mtd != nil {
		return mtd
	}

	key := KeyForMethod(r.symbols, handle)

	r.mu.Lock()
	rec := r.findLocked(key)
	var mtd *MethodRecord
	if rec != nil {
		mtd = rec.(*MethodRecord)
	} else {
		if !createIfMissing || !r.NeedData() {
			r.mu.Unlock()
			return nil
		}
		ktd := r.classRecordLocked(key.ClassOnly())
		mtd = r.installLocked(newMethodRecord(r, key, ktd)).(*MethodRecord)
	}
	r.mu.Unlock()

	mtd.RefreshFrom(handle)

	// Publish the cache only after the record is fully installed; racing
	// writers all cache the same canonical record.
	handle.SetTrainingRecord(mtd)
	return mtd
}

// FindMethodRecord is MethodRecordFor without creation.
func (r *Registry) FindMethodRecord(handle MethodHandle) *MethodRecord {
	return r.MethodRecordFor(handle, false)
}

// GetCached returns the record already attached to the handle, or nil.
// Never takes a lock.
func (r *Registry) GetCached(handle MethodHandle) *MethodRecord {
	if handle == nil {
		return nil
	}
	return handle.TrainingRecord()
}

// Get resolves a method record from a loaded profile during a
// production run, repopulating the handle cache on success.
func (r *Registry) Get(handle MethodHandle) *MethodRecord {
	if !r.HaveData() || handle == nil {
		return nil
	}
	if mtd := handle.TrainingRecord(); mtd != nil {
		return mtd
	}
	key := KeyForMethod(r.symbols, handle)
	rec := r.Find(key)
	mtd, ok := rec.(*MethodRecord)
	if !ok {
		return nil
	}
	mtd.RefreshFrom(handle)
	handle.SetTrainingRecord(mtd)
	return mtd
}

// NoticeCompilation records that a compilation of the method was
// requested at the given tier, inlined or standalone. This is the main
// entry point for compiler threads.
func (r *Registry) NoticeCompilation(handle MethodHandle, tier int, inlined bool) {
	if !r.NeedData() {
		return
	}
	mtd := r.MethodRecordFor(handle, true)
	if mtd == nil {
		return
	}
	mtd.noticeCompilation(tier, inlined)
}
