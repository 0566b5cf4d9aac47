package training

import "testing"

func classWithFields(t *testing.T, reg *Registry) (*fakeClass, *ClassRecord) {
	t.Helper()
	handle := newFakeClass("com/example/Settings")
	handle.fields = []FieldDescriptor{
		{Name: "count", Index: 0, Type: TypeInt},
		{Name: "VERSION", Index: 1, Type: TypeInt, IsConstant: true},
		{Name: "table", Index: 2, Type: TypeObject},
	}
	ktd := reg.ClassRecordFor(handle, true)
	if ktd == nil {
		t.Fatal("no class record")
	}
	return handle, ktd
}

func TestFieldTableSkipsConstants(t *testing.T) {
	reg := newTestRegistry()
	handle, ktd := classWithFields(t, reg)

	table := ktd.setupStaticFields(handle)
	if len(table.fields) != 2 {
		t.Fatalf("Tracked fields = %d, want 2 (constant excluded)", len(table.fields))
	}
	for _, fd := range table.fields {
		if fd.desc.IsConstant {
			t.Error("Constant field should not be tracked")
		}
	}

	// Repeated setup returns the published table.
	if ktd.setupStaticFields(handle) != table {
		t.Error("Second setup should return the same table")
	}
}

func TestRecordStaticFieldInitOneShot(t *testing.T) {
	reg := newTestRegistry()
	handle, ktd := classWithFields(t, reg)

	count := handle.fields[0]
	if !ktd.RecordStaticFieldInit(count, "putstatic") {
		t.Fatal("First report should win the sequence number")
	}
	if ktd.RecordStaticFieldInit(count, "putstatic") {
		t.Error("Second report of the same field should be a no-op")
	}
	if ktd.FieldInitCount() != 1 {
		t.Errorf("FieldInitCount = %d, want 1", ktd.FieldInitCount())
	}

	// Constants are not tracked, so reporting one changes nothing.
	if ktd.RecordStaticFieldInit(handle.fields[1], "putstatic") {
		t.Error("Reporting a constant field should be a no-op")
	}
}

func TestCheckFieldStatesScan(t *testing.T) {
	reg := newTestRegistry()
	handle, ktd := classWithFields(t, reg)

	// Nothing has left its default; the scan finds nothing.
	ktd.CheckFieldStates()
	if ktd.FieldInitCount() != 0 {
		t.Errorf("FieldInitCount = %d after clean scan", ktd.FieldInitCount())
	}

	// The table field now holds a non-default value.
	handle.nonZero[2] = true
	ktd.CheckFieldStates()
	if ktd.FieldInitCount() != 1 {
		t.Errorf("FieldInitCount = %d, want 1 after dirty scan", ktd.FieldInitCount())
	}

	// A repeat scan does not double count.
	ktd.CheckFieldStates()
	if ktd.FieldInitCount() != 1 {
		t.Error("Scan should be idempotent")
	}
}

// A field assigned exactly its default value is indistinguishable from an
// untouched one. The scan accepts that false negative.
func TestFieldDefaultValueBlindSpot(t *testing.T) {
	reg := newTestRegistry()
	handle, ktd := classWithFields(t, reg)

	// count was "assigned" zero: FieldIsDefault still reports true.
	ktd.CheckFieldStates()
	if ktd.FieldInitCount() != 0 {
		t.Error("A field holding its default value should look untouched")
	}

	// An explicit report from the initializing thread still lands.
	if !ktd.RecordStaticFieldInit(handle.fields[0], "putstatic") {
		t.Error("Explicit report should win even for a default value")
	}
}

func TestAllFieldStatesDone(t *testing.T) {
	reg := newTestRegistry()
	handle, ktd := classWithFields(t, reg)

	if ktd.AllFieldStatesDone() {
		t.Error("No table published yet")
	}
	ktd.RecordStaticFieldInit(handle.fields[0], "putstatic")
	if ktd.AllFieldStatesDone() {
		t.Error("One of two fields reported")
	}
	ktd.RecordStaticFieldInit(handle.fields[2], "putstatic")
	if !ktd.AllFieldStatesDone() {
		t.Error("All tracked fields reported")
	}
}

func TestFieldInitAuditEvents(t *testing.T) {
	reg := newTestRegistry()
	handle, ktd := classWithFields(t, reg)

	ktd.RecordStaticFieldInit(handle.fields[0], "putstatic")
	events := reg.AuditEvents()
	if len(events) != 1 {
		t.Fatalf("Audit events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != AuditFieldInit || ev.Field != "count" || ev.Sequence != 1 {
		t.Errorf("Event = %+v", ev)
	}
}
