package training

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// ClassRecord: per-class training data
// ---------------------------------------------------------------------------

// ClassRecord accumulates facts about one class: when it initialized,
// which classes its initialization touched, and which static fields its
// initializer assigned. It is created lazily on first observation and
// mutated in place for the rest of the run.
type ClassRecord struct {
	recordBase

	// holder is the live class, or nil until first touch. Once bound it
	// is never rebound to a different class; identity is fixed at first
	// successful bind. The reference also keeps the class alive for the
	// run, which the design wants.
	holder atomic.Pointer[classHolder]

	hasInitializationTouch atomic.Bool
	clinitSeq              atomic.Int32 // 1-based global order, assigned at most once
	clinitDone             atomic.Bool

	staticFields   atomic.Pointer[fieldTable]
	fieldinitCount atomic.Int32

	// initDeps are the classes this class asked to be initialized;
	// compDeps are the compiles that depend on this class's state.
	// Both are guarded by the store lock.
	initDeps DepList[*ClassRecord]
	compDeps DepList[*CompileRecord]
}

// classHolder wraps the handle so it can sit in an atomic.Pointer.
type classHolder struct {
	handle ClassHandle
}

func newClassRecord(reg *Registry, key Key) *ClassRecord {
	return &ClassRecord{recordBase: recordBase{key: key, reg: reg}}
}

// Name returns the class's symbolic name.
func (k *ClassRecord) Name() *Symbol { return k.key.KlassName() }

// LoaderName returns the defining loader's name symbol, or nil.
func (k *ClassRecord) LoaderName() *Symbol { return k.key.LoaderName() }

// HasHolder reports whether a live class has been bound.
func (k *ClassRecord) HasHolder() bool { return k.holder.Load() != nil }

// Holder returns the bound live class handle, or nil.
func (k *ClassRecord) Holder() ClassHandle {
	if h := k.holder.Load(); h != nil {
		return h.handle
	}
	return nil
}

// initHolder binds the live class. Rebinding to the same class is a
// no-op; rebinding to a different class fails a consistency check.
func (k *ClassRecord) initHolder(handle ClassHandle) {
	if handle == nil {
		return
	}
	if k.holder.CompareAndSwap(nil, &classHolder{handle: handle}) {
		return
	}
	if prior := k.holder.Load(); prior.handle != handle {
		panic(fmt.Sprintf("training: class record %s rebound to a different class", k.key))
	}
}

// RefreshFrom rebinds the record's understanding of the live class
// state. An inconsistent handle is not corruption; the record simply
// re-reads what the class reports now.
func (k *ClassRecord) RefreshFrom(handle ClassHandle) {
	k.initHolder(handle)
	if handle.InitState() == InitDone {
		k.clinitDone.Store(true)
	}
}

// ClinitSequence returns the 1-based global order in which this class
// started initialization, or 0 if that has not happened.
func (k *ClassRecord) ClinitSequence() int { return int(k.clinitSeq.Load()) }

// ClinitIsDone reports whether the class finished its initializer.
func (k *ClassRecord) ClinitIsDone() bool { return k.clinitDone.Load() }

// HasInitializationTouch reports whether this class was ever the subject
// of an initialization touch.
func (k *ClassRecord) HasInitializationTouch() bool {
	return k.hasInitializationTouch.Load()
}

// RecordInitializationStart brackets the beginning of the class's own
// initializer. The global sequence number is assigned exactly once;
// a second start on the same record fails a consistency check.
func (k *ClassRecord) RecordInitializationStart() {
	if !k.reg.NeedData() {
		return
	}
	seq := int32(k.reg.nextClinitSequence())
	if !k.clinitSeq.CompareAndSwap(0, seq) {
		panic(fmt.Sprintf("training: initialization of %s started twice", k.key))
	}
	k.reg.appendAudit(AuditEvent{
		Kind:     AuditInitStart,
		Class:    k.key,
		Sequence: int(seq),
	})
}

// RecordInitializationEnd brackets the completion of the class's own
// initializer.
func (k *ClassRecord) RecordInitializationEnd() {
	if !k.reg.NeedData() {
		return
	}
	k.clinitDone.Store(true)
	k.reg.appendAudit(AuditEvent{
		Kind:     AuditInitEnd,
		Class:    k.key,
		Sequence: k.ClinitSequence(),
	})
}

// addInitDep records that this class asked for dep's initialization.
// Caller holds the store lock. Self edges are rejected.
func (k *ClassRecord) addInitDep(dep *ClassRecord) {
	if dep == k {
		panic(fmt.Sprintf("training: %s cannot depend on its own initialization", k.key))
	}
	k.initDeps.AppendIfMissing(dep)
}

// addCompDep records that a compile depends on this class's state.
// Caller holds the store lock.
func (k *ClassRecord) addCompDep(ctd *CompileRecord) {
	k.compDeps.AppendIfMissing(ctd)
}

// InitDeps returns a copy of the classes this class's initialization
// depends on.
func (k *ClassRecord) InitDeps() []*ClassRecord {
	k.reg.mu.Lock()
	defer k.reg.mu.Unlock()
	out := make([]*ClassRecord, 0, k.initDeps.Len())
	k.initDeps.Each(func(dep *ClassRecord) { out = append(out, dep) })
	return out
}

// CompDeps returns a copy of the compiles depending on this class.
func (k *ClassRecord) CompDeps() []*CompileRecord {
	k.reg.mu.Lock()
	defer k.reg.mu.Unlock()
	out := make([]*CompileRecord, 0, k.compDeps.Len())
	k.compDeps.Each(func(dep *CompileRecord) { out = append(out, dep) })
	return out
}

func (k *ClassRecord) relatedClass() *ClassRecord { return k }
func (k *ClassRecord) kindRank() int              { return 0 }

// Compare implements the deterministic dump order.
func (k *ClassRecord) Compare(other Record) int { return compareRecords(k, other) }

func (k *ClassRecord) String() string {
	return fmt.Sprintf("klass %s iclock=%d", k.key, k.ClinitSequence())
}

// ---------------------------------------------------------------------------
// Registry: class record acquisition
// ---------------------------------------------------------------------------

// ClassRecordForSymbols returns the record for a class identified purely
// by name symbols, creating and installing it if absent. Used when no
// live class is at hand (symbolic dependency targets, profile loading).
func (r *Registry) ClassRecordForSymbols(name, loader *Symbol) *ClassRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.classRecordLocked(ClassKey(name, loader))
}

func (r *Registry) classRecordLocked(key Key) *ClassRecord {
	if rec := r.findLocked(key); rec != nil {
		return rec.(*ClassRecord)
	}
	installed := r.installLocked(newClassRecord(r, key))
	return installed.(*ClassRecord)
}

// ClassRecordFor returns the record for a live class. The common case is
// the lock-free cached back-reference on the handle. On a miss the store
// lock is taken, the record found or created, the holder bound, and the
// cache refreshed. Returns nil when createIfMissing is false and no
// record exists, or when collection is disabled and creation would be
// needed.
func (r *Registry) ClassRecordFor(handle ClassHandle, createIfMissing bool) *ClassRecord {
	if handle == nil {
		return nil
	}
	// Fast path: >99% of calls hit the handle cache, no lock.
	if ktd := handle.TrainingRecord(); ktd != nil {
		return ktd
	}

	key := KeyForClass(r.symbols, handle)

	r.mu.Lock()
	rec := r.findLocked(key)
	var ktd *ClassRecord
	if rec != nil {
		ktd = rec.(*ClassRecord)
	} else {
		if !createIfMissing || !r.NeedData() {
			r.mu.Unlock()
			return nil
		}
		ktd = r.installLocked(newClassRecord(r, key)).(*ClassRecord)
	}
	r.mu.Unlock()

	ktd.RefreshFrom(handle)

	// Publish the cache only after the record is fully installed. Racing
	// writers all cache the same canonical record.
	handle.SetTrainingRecord(ktd)
	return ktd
}

// FindClassRecord is ClassRecordFor without creation.
func (r *Registry) FindClassRecord(handle ClassHandle) *ClassRecord {
	return r.ClassRecordFor(handle, false)
}
