package training

import "sort"

// ---------------------------------------------------------------------------
// Production run: dependency countdowns and recompilation schedule
// ---------------------------------------------------------------------------

// InitializeDepsTracking primes the per-compile countdowns of
// still-uninitialized dependency classes. Call once after loading a
// profile, before the production run starts executing.
func (r *Registry) InitializeDepsTracking() {
	for _, rec := range r.snapshotRecords() {
		if mtd, ok := rec.(*MethodRecord); ok {
			mtd.EachCompile(func(ctd *CompileRecord) {
				ctd.initializeDepsTracking()
			})
		}
	}
}

// NoticeClassInitialized reports that a class finished initialization in
// the production run, counting it off every compile that waits on it.
func (r *Registry) NoticeClassInitialized(handle ClassHandle) {
	ktd := r.ClassRecordFor(handle, false)
	if ktd == nil {
		return
	}
	for _, ctd := range ktd.CompDeps() {
		ctd.decInitDepsLeft()
	}
}

// RecompilationSchedule returns the loaded method records that had
// top-level compiles in the training run, ordered by their last compile
// id. Replaying compilations in that order reproduces the training
// run's warm-up trajectory.
func (r *Registry) RecompilationSchedule() []*MethodRecord {
	var methods []*MethodRecord
	for _, rec := range r.snapshotRecords() {
		if mtd, ok := rec.(*MethodRecord); ok && !mtd.OnlyInlined() {
			methods = append(methods, mtd)
		}
	}
	sort.SliceStable(methods, func(i, j int) bool {
		a, b := methods[i].LastCompileID(), methods[j].LastCompileID()
		if a != b {
			return a < b
		}
		return methods[i].Key().Compare(methods[j].Key()) < 0
	})
	return methods
}
