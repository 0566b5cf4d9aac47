package training

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// CompileRecord: one observed compilation event
// ---------------------------------------------------------------------------

// CompileRecord describes one compilation of a method: the tier, the
// process-wide compile id, whether the method was inlined into a
// different top-level compile, timing, resulting code size, and the
// class-initialization dependencies discovered while the compile was
// being prepared.
//
// Records form a singly linked chain per method, latest (highest compile
// id) first. Once linked, a record's timing and size fields are written
// only by the thread owning the compile task, so those writes take no
// lock.
type CompileRecord struct {
	recordBase // empty key; reached through the method chain, not the store

	method    *MethodRecord
	topMethod *MethodRecord
	tier      int
	compileID int
	next      *CompileRecord // guarded by the store lock

	queuedAt  atomic.Int64 // unix nanos, 0 = not seen
	startedAt atomic.Int64
	endedAt   atomic.Int64
	codeSize  atomic.Int32

	// initDeps are the classes that should be initialized before this
	// compile's code runs. Guarded by the store lock.
	initDeps DepList[*ClassRecord]

	// initDepsLeft counts the deps still uninitialized; maintained
	// during a production run.
	initDepsLeft atomic.Int32
}

func newCompileRecord(reg *Registry, method, topMethod *MethodRecord, tier, compileID int) *CompileRecord {
	return &CompileRecord{
		recordBase: recordBase{reg: reg},
		method:     method,
		topMethod:  topMethod,
		tier:       tier,
		compileID:  compileID,
	}
}

// Method returns the method this record describes: the inlined method,
// or the same as TopMethod for a standalone compile.
func (c *CompileRecord) Method() *MethodRecord { return c.method }

// TopMethod returns the outermost method the compile was requested for.
func (c *CompileRecord) TopMethod() *MethodRecord { return c.topMethod }

// IsInlined reports whether the method was compiled by inlining into a
// different top-level method.
func (c *CompileRecord) IsInlined() bool { return c.method != c.topMethod }

// Tier returns the compilation tier.
func (c *CompileRecord) Tier() int { return c.tier }

// CompileID returns the process-wide compile id.
func (c *CompileRecord) CompileID() int { return c.compileID }

// Next returns the next-older record in the method's chain.
func (c *CompileRecord) Next() *CompileRecord {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	return c.next
}

// CodeSize returns the size of the generated code, or 0.
func (c *CompileRecord) CodeSize() int { return int(c.codeSize.Load()) }

// QueuedAt, StartedAt and EndedAt return the lifecycle timestamps, or
// the zero time if the event was not observed.
func (c *CompileRecord) QueuedAt() time.Time  { return nanoTime(c.queuedAt.Load()) }
func (c *CompileRecord) StartedAt() time.Time { return nanoTime(c.startedAt.Load()) }
func (c *CompileRecord) EndedAt() time.Time   { return nanoTime(c.endedAt.Load()) }

func nanoTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// MarkQueued notes that the compile task entered the queue.
func (c *CompileRecord) MarkQueued() { c.queuedAt.Store(time.Now().UnixNano()) }

// MarkStarted notes that a compiler thread picked the task up.
func (c *CompileRecord) MarkStarted() { c.startedAt.Store(time.Now().UnixNano()) }

// MarkEnded notes completion and the resulting code size.
func (c *CompileRecord) MarkEnded(codeSize int) {
	c.endedAt.Store(time.Now().UnixNano())
	c.codeSize.Store(int32(codeSize))
}

// AddInitDep records that this compile wants dep initialized before its
// code runs, and back-links the compile from the class.
func (c *CompileRecord) AddInitDep(dep *ClassRecord) {
	if dep == nil {
		return
	}
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	dep.addCompDep(c)
	c.initDeps.AppendIfMissing(dep)
}

// NoticeInitDependency is AddInitDep from a live class handle, creating
// the class record if needed.
func (c *CompileRecord) NoticeInitDependency(klass ClassHandle) {
	if !c.reg.NeedData() {
		return
	}
	c.AddInitDep(c.reg.ClassRecordFor(klass, true))
}

// InitDeps returns a copy of the compile's init dependencies.
func (c *CompileRecord) InitDeps() []*ClassRecord {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	out := make([]*ClassRecord, 0, c.initDeps.Len())
	c.initDeps.Each(func(dep *ClassRecord) { out = append(out, dep) })
	return out
}

// InitDepsLeft returns how many deps are still uninitialized during a
// production run.
func (c *CompileRecord) InitDepsLeft() int { return int(c.initDepsLeft.Load()) }

// initializeDepsTracking counts the deps that still need initialization;
// symbolic-only deps and already-initialized classes are ignored.
func (c *CompileRecord) initializeDepsTracking() {
	var left int32
	c.reg.mu.Lock()
	c.initDeps.Each(func(dep *ClassRecord) {
		if h := dep.Holder(); h != nil && h.InitState() != InitDone {
			left++
		}
	})
	c.reg.mu.Unlock()
	c.initDepsLeft.Store(left)
}

// decInitDepsLeft notes that one dep class finished initializing.
func (c *CompileRecord) decInitDepsLeft() {
	c.initDepsLeft.Add(-1)
}

func (c *CompileRecord) String() string {
	return fmt.Sprintf("compile %s tier=%d id=%d inlined=%v",
		c.method.Key(), c.tier, c.compileID, c.IsInlined())
}

// ---------------------------------------------------------------------------
// Registry: compile record creation
// ---------------------------------------------------------------------------

// NewCompileRecord records a compilation event for a task. If inlined is
// non-nil, it names a method inlined into the task's top-level method
// rather than the top-level method itself.
//
// Both method records are resolved or created, and the compilation is
// noticed on both; only the innermost, directly requested method keeps
// its "only inlined" flag accurate. The new record is linked into the
// inner method's chain at the descending-id position under the store
// lock. A duplicate (same method, top method and compile id) discards
// the candidate and returns the existing record. Returns nil when
// collection is off.
func (r *Registry) NewCompileRecord(task CompileTask, inlined MethodHandle) *CompileRecord {
	if !r.NeedData() || task == nil {
		return nil
	}

	top := r.MethodRecordFor(task.Method(), true)
	if top == nil {
		return nil
	}
	method := top
	isInlined := false
	if inlined != nil {
		method = r.MethodRecordFor(inlined, true)
		if method == nil {
			return nil
		}
		isInlined = method != top
	}

	tier := task.Tier()
	method.noticeCompilation(tier, isInlined)
	if isInlined {
		top.noticeCompilation(tier, false)
	}

	ctd := newCompileRecord(r, method, top, tier, task.ID())

	r.mu.Lock()
	defer r.mu.Unlock()
	return linkCompileLocked(method, ctd)
}

// linkCompileLocked inserts ctd into its method's chain at the
// descending-id position, checking for an existing duplicate at equal
// ids on the way. A duplicate (same method, top method and compile id)
// discards the candidate and returns the existing record. Callers hold
// the store lock.
func linkCompileLocked(method *MethodRecord, ctd *CompileRecord) *CompileRecord {
	var prev *CompileRecord
	cur := method.compiles
	for cur != nil && cur.compileID >= ctd.compileID {
		if cur.compileID == ctd.compileID &&
			cur.method == ctd.method && cur.topMethod == ctd.topMethod {
			return cur // duplicate; discard the candidate
		}
		prev, cur = cur, cur.next
	}
	ctd.next = cur
	if prev == nil {
		method.compiles = ctd
	} else {
		prev.next = ctd
	}

	if !ctd.IsInlined() && ctd.tier > 0 && ctd.tier < tierCount {
		last := method.lastToplevelCompile[ctd.tier]
		if last == nil || last.compileID < ctd.compileID {
			method.lastToplevelCompile[ctd.tier] = ctd
		}
		if ctd.tier > method.highestTopTier {
			method.highestTopTier = ctd.tier
		}
	}
	return ctd
}
