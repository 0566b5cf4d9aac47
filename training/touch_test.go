package training

import "testing"

func TestTouchSetsFlagAndEdge(t *testing.T) {
	reg := newTestRegistry()
	user := newFakeClass("com/example/User")
	used := newFakeClass("com/example/Config")

	reg.RecordInitializationTouch("new_instance", used, "", "", user, "interp")

	usedRec := reg.FindClassRecord(used)
	if usedRec == nil || !usedRec.HasInitializationTouch() {
		t.Fatal("Touched class should carry the touch flag")
	}

	userRec := reg.FindClassRecord(user)
	if userRec == nil {
		t.Fatal("Requester should have a record")
	}
	if userRec.HasInitializationTouch() {
		t.Error("Requester should not carry the touch flag")
	}

	deps := userRec.InitDeps()
	if len(deps) != 1 || deps[0] != usedRec {
		t.Error("Requester's init deps should contain the touched class")
	}
	if len(usedRec.InitDeps()) != 0 {
		t.Error("The edge points from requester to touched, not back")
	}
}

func TestTouchDeduplicatesEdges(t *testing.T) {
	reg := newTestRegistry()
	user := newFakeClass("User")
	used := newFakeClass("Used")

	reg.RecordInitializationTouch("get_static", used, "LIMIT", "I", user, "interp")
	reg.RecordInitializationTouch("put_static", used, "LIMIT", "I", user, "jit")

	userRec := reg.FindClassRecord(user)
	if got := len(userRec.InitDeps()); got != 1 {
		t.Errorf("Init deps = %d, want 1 (set semantics)", got)
	}
}

func TestTouchSelfIsNoEdge(t *testing.T) {
	reg := newTestRegistry()
	self := newFakeClass("Recursive")

	reg.RecordInitializationTouch("invoke_static", self, "helper", "()V", self, "interp")

	rec := reg.FindClassRecord(self)
	if !rec.HasInitializationTouch() {
		t.Error("Self touch still sets the flag")
	}
	if len(rec.InitDeps()) != 0 {
		t.Error("Self touch should not add a dependency edge")
	}
}

// A subclass starting initialization first initializes its superclass;
// the attribution for that "super" touch is the initializing subclass.
func TestTouchSuperAttribution(t *testing.T) {
	reg := newTestRegistry()
	super := newFakeClass("Base")
	sub := newFakeClass("Derived")
	sub.super = super

	reg.RecordInitializationTouch("super", super, "", "", sub, "init")

	subRec := reg.FindClassRecord(sub)
	superRec := reg.FindClassRecord(super)
	deps := subRec.InitDeps()
	if len(deps) != 1 || deps[0] != superRec {
		t.Error("The subclass should depend on its superclass's initialization")
	}

	events := reg.AuditEvents()
	if len(events) != 1 {
		t.Fatalf("Audit events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != AuditTouch || ev.Reason != "super" {
		t.Errorf("Event = %s/%s", ev.Kind, ev.Reason)
	}
	if ev.Class != superRec.Key() || ev.Requester != subRec.Key() {
		t.Error("Event should name the touched class and the requesting subclass")
	}
}

func TestTouchMemberNaming(t *testing.T) {
	reg := newTestRegistry()
	used := newFakeClass("Used")

	reg.RecordInitializationTouch("invoke_static", used, "compute", "(I)I", nil, "interp")

	events := reg.AuditEvents()
	if len(events) != 1 {
		t.Fatalf("Audit events = %d, want 1", len(events))
	}
	if events[0].Member != "compute(I)I" {
		t.Errorf("Member = %q, want name+signature", events[0].Member)
	}
}

func TestTouchIgnoredWhenOff(t *testing.T) {
	reg := NewRegistry(Options{Mode: ModeOff})
	used := newFakeClass("Used")

	reg.RecordInitializationTouch("new_instance", used, "", "", nil, "interp")
	if reg.Len() != 0 {
		t.Error("No records should be created when collection is off")
	}
}
