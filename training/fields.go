package training

import (
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Static-field initialization tracking
// ---------------------------------------------------------------------------

// fieldData tracks one non-constant static field of a class. The
// sequence index is the 1-based local order in which the field was seen
// to leave its default value, or 0 if that has not been observed.
// Assignment is a one-shot compare-and-swap: only one writer ever wins
// per field.
type fieldData struct {
	desc         FieldDescriptor
	fieldinitSeq atomic.Int32
}

func (fd *fieldData) sequence() int { return int(fd.fieldinitSeq.Load()) }

// fieldTable is the immutable-once-published snapshot of a class's
// tracked static fields. It is built lazily on first need and published
// with a single CAS; racing builders all observe the same table.
type fieldTable struct {
	fields []*fieldData
}

var noStaticFields = &fieldTable{}

// setupStaticFields builds and publishes the field table from the live
// class, skipping compile-time constants (those are never meaningfully
// initialized by code). Safe to call repeatedly and from racing threads.
func (k *ClassRecord) setupStaticFields(holder ClassHandle) *fieldTable {
	if t := k.staticFields.Load(); t != nil {
		return t
	}

	descs := holder.StaticFields()
	table := &fieldTable{}
	for _, d := range descs {
		if d.IsConstant {
			continue
		}
		table.fields = append(table.fields, &fieldData{desc: d})
	}
	if len(table.fields) == 0 {
		table = noStaticFields
	}

	if k.staticFields.CompareAndSwap(nil, table) {
		return table
	}
	return k.staticFields.Load()
}

// fieldStateIsClean reports whether the field's live value still equals
// its type's zero default. This is a heuristic: a field explicitly set
// to its default value looks untouched. The approximation is accepted;
// downstream consumers expect exactly this semantics.
func (k *ClassRecord) fieldStateIsClean(holder ClassHandle, fd *fieldData) bool {
	return holder.FieldIsDefault(fd.desc)
}

// noteFieldInit assigns the field its 1-based local initialization
// order, once. Returns true if this call was the winning writer.
func (k *ClassRecord) noteFieldInit(fd *fieldData, reason string) bool {
	if fd.fieldinitSeq.Load() != 0 {
		return false
	}
	seq := int32(k.fieldinitCount.Add(1))
	if !fd.fieldinitSeq.CompareAndSwap(0, seq) {
		// Lost the race; give the drawn number back is not possible, so
		// the per-class counter may skip. Order stays monotonic.
		return false
	}
	k.reg.appendAudit(AuditEvent{
		Kind:     AuditFieldInit,
		Class:    k.key,
		Reason:   reason,
		Field:    fd.desc.Name,
		Sequence: int(seq),
	})
	return true
}

// CheckFieldStates scans the class's tracked fields, detecting any that
// have left their default value without an explicit report. Detection is
// lazy and late detection is tolerated; no lock is taken.
func (k *ClassRecord) CheckFieldStates() {
	holder := k.Holder()
	if holder == nil || !k.reg.NeedData() {
		return
	}
	table := k.setupStaticFields(holder)
	for _, fd := range table.fields {
		if fd.sequence() != 0 {
			continue
		}
		if !k.fieldStateIsClean(holder, fd) {
			k.noteFieldInit(fd, "scan")
		}
	}
}

// RecordStaticFieldInit reports that the named field is being assigned
// by initialization code (a putstatic or equivalent). Only safe to call
// from the initializing thread. Returns true if the field's sequence
// number was assigned by this call.
func (k *ClassRecord) RecordStaticFieldInit(desc FieldDescriptor, reason string) bool {
	holder := k.Holder()
	if holder == nil || !k.reg.NeedData() {
		return false
	}
	table := k.setupStaticFields(holder)
	for _, fd := range table.fields {
		if fd.desc.Index == desc.Index {
			return k.noteFieldInit(fd, reason)
		}
	}
	return false
}

// AllFieldStatesDone reports whether every tracked field has been seen
// to initialize.
func (k *ClassRecord) AllFieldStatesDone() bool {
	table := k.staticFields.Load()
	if table == nil {
		return false
	}
	return len(table.fields) == int(k.fieldinitCount.Load())
}

// FieldInitCount returns the number of field initializations observed.
func (k *ClassRecord) FieldInitCount() int {
	return int(k.fieldinitCount.Load())
}

// trackedFields returns the published field table, or nil.
func (k *ClassRecord) trackedFields() []*fieldData {
	table := k.staticFields.Load()
	if table == nil {
		return nil
	}
	return table.fields
}
