package training

import "sync"

// ---------------------------------------------------------------------------
// Audit log: initialization events observed during training
// ---------------------------------------------------------------------------

// AuditKind discriminates audit event types. The names double as the
// element tags used when events are written into a dump stream.
type AuditKind string

const (
	AuditTouch     AuditKind = "initialization_touch"
	AuditInitStart AuditKind = "initialization"
	AuditInitEnd   AuditKind = "initialization_done"
	AuditFieldInit AuditKind = "initialize_static_field"
)

// AuditEvent is one observed initialization-related event. Events are
// buffered in observation order and appended to the dump after all
// records have been identified, so their class references can be
// resolved ids.
type AuditEvent struct {
	Kind      AuditKind
	Class     Key    // the class the event is about
	Requester Key    // touch only: the class causing the event
	Reason    string // touch/field-init only
	Member    string // touch: member name+sig the event refers to
	Context   string // touch only: extra information
	Sequence  int    // init start: clinit order; field init: field order
	Field     string // field init only: field name
}

// auditLog is an append-only event buffer with its own small lock; audit
// appends must not contend with the store lock.
type auditLog struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (al *auditLog) append(ev AuditEvent) {
	al.mu.Lock()
	al.events = append(al.events, ev)
	al.mu.Unlock()
}

func (al *auditLog) snapshot() []AuditEvent {
	al.mu.Lock()
	defer al.mu.Unlock()
	out := make([]AuditEvent, len(al.events))
	copy(out, al.events)
	return out
}

// appendAudit records an audit event if auditing is enabled, and always
// traces it to the log.
func (r *Registry) appendAudit(ev AuditEvent) {
	log.Debugf("%s class=%s requester=%s reason=%s seq=%d",
		ev.Kind, ev.Class, ev.Requester, ev.Reason, ev.Sequence)
	if r.opts.Audit {
		r.audit.append(ev)
	}
}

// AuditEvents returns a copy of the buffered audit events in
// observation order.
func (r *Registry) AuditEvents() []AuditEvent {
	return r.audit.snapshot()
}
