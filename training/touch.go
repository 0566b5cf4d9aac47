package training

// ---------------------------------------------------------------------------
// Initialization touches
// ---------------------------------------------------------------------------

// RecordInitializationTouch records that something is touching the class
// behind touched in a way relevant to its initialization state: running
// its initializer, resolving one of its members, or JIT analysis wanting
// it initialized. Touches are collected even after the class is fully
// initialized.
//
// The requesting class, if not nil, is the class causing the event. The
// member name and signature, if non-empty, are relevant to the event;
// depending on the reason they refer to a member of the touched class or
// of the requester. The context is a little extra information for the
// audit trail.
//
// When reason is "super" — the superclass step of the initialization
// protocol — the touch is attributed as if the subclass being
// initialized (the requesting handle) asked for its superclass's
// initialization, no matter what is actually on the call stack: the
// source-level invoker there is the VM's bootstrap machinery, not user
// code. Callers therefore always pass the initializing subclass as the
// requester for "super" touches.
//
// The touched class's record gains the touch flag; the requester's
// init_deps set gains the touched class (set semantics, no duplicate
// edges); and a structured audit record describes the event.
func (r *Registry) RecordInitializationTouch(reason string, touched ClassHandle,
	member, signature string, requesting ClassHandle, context string) {
	if !r.NeedData() || touched == nil {
		return
	}

	ktd := r.ClassRecordFor(touched, true)
	if ktd == nil {
		return
	}
	ktd.hasInitializationTouch.Store(true)

	var requester *ClassRecord
	if requesting != nil {
		requester = r.ClassRecordFor(requesting, true)
	}

	if requester != nil && requester != ktd {
		r.mu.Lock()
		requester.addInitDep(ktd)
		r.mu.Unlock()
	}

	ev := AuditEvent{
		Kind:    AuditTouch,
		Class:   ktd.key,
		Reason:  reason,
		Context: context,
	}
	if member != "" {
		ev.Member = member
		if signature != "" {
			ev.Member += signature
		}
	}
	if requester != nil {
		ev.Requester = requester.key
	}
	r.appendAudit(ev)
}
