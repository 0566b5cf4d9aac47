package training

import "testing"

func TestCompileRecordChainOrder(t *testing.T) {
	reg := newTestRegistry()
	holder := newFakeClass("Foo")
	handle := newFakeMethod(holder, "bar", "()V")

	// Arrivals out of order: the chain keeps descending compile ids.
	reg.NewCompileRecord(&fakeTask{id: 5, tier: 1, method: handle}, nil)
	reg.NewCompileRecord(&fakeTask{id: 12, tier: 3, method: handle}, nil)
	reg.NewCompileRecord(&fakeTask{id: 8, tier: 2, method: handle}, nil)

	mtd := reg.FindMethodRecord(handle)
	var ids []int
	mtd.EachCompile(func(ctd *CompileRecord) { ids = append(ids, ctd.CompileID()) })
	want := []int{12, 8, 5}
	if len(ids) != len(want) {
		t.Fatalf("Chain length = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Chain[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
	if mtd.LastCompileID() != 12 {
		t.Errorf("LastCompileID = %d, want 12", mtd.LastCompileID())
	}
}

func TestCompileRecordDuplicateDiscard(t *testing.T) {
	reg := newTestRegistry()
	holder := newFakeClass("Foo")
	handle := newFakeMethod(holder, "bar", "()V")

	first := reg.NewCompileRecord(&fakeTask{id: 7, tier: 2, method: handle}, nil)
	second := reg.NewCompileRecord(&fakeTask{id: 7, tier: 2, method: handle}, nil)
	if first != second {
		t.Error("A duplicate compile should return the existing record")
	}

	mtd := reg.FindMethodRecord(handle)
	count := 0
	mtd.EachCompile(func(*CompileRecord) { count++ })
	if count != 1 {
		t.Errorf("Chain length = %d, want 1", count)
	}
}

func TestCompileRecordInlined(t *testing.T) {
	reg := newTestRegistry()
	holder := newFakeClass("Foo")
	top := newFakeMethod(holder, "caller", "()V")
	inner := newFakeMethod(holder, "callee", "()I")

	ctd := reg.NewCompileRecord(&fakeTask{id: 9, tier: 4, method: top}, inner)
	if ctd == nil {
		t.Fatal("no compile record")
	}
	if !ctd.IsInlined() {
		t.Error("Record for an inlinee should report inlined")
	}
	if ctd.Method() != reg.FindMethodRecord(inner) {
		t.Error("Method should be the inlinee")
	}
	if ctd.TopMethod() != reg.FindMethodRecord(top) {
		t.Error("TopMethod should be the enclosing compilation")
	}

	// The inlinee hangs off its own method's chain, not the top's.
	topRec := reg.FindMethodRecord(top)
	topCount := 0
	topRec.EachCompile(func(*CompileRecord) { topCount++ })
	if topCount != 0 {
		t.Error("Inlinee records do not appear on the top method's chain")
	}

	// Both methods saw the tier; only the top is a top-level sighting.
	innerRec := reg.FindMethodRecord(inner)
	if !innerRec.SawTier(4) || !topRec.SawTier(4) {
		t.Error("Both methods should carry tier 4 in their masks")
	}
	if !innerRec.OnlyInlined() {
		t.Error("The inlinee has never compiled top-level")
	}
	if topRec.OnlyInlined() {
		t.Error("The enclosing method compiled top-level")
	}
}

func TestCompileRecordLastToplevel(t *testing.T) {
	reg := newTestRegistry()
	holder := newFakeClass("Foo")
	handle := newFakeMethod(holder, "bar", "()V")

	reg.NewCompileRecord(&fakeTask{id: 3, tier: 2, method: handle}, nil)
	latest := reg.NewCompileRecord(&fakeTask{id: 6, tier: 2, method: handle}, nil)
	reg.NewCompileRecord(&fakeTask{id: 10, tier: 4, method: handle}, nil)

	mtd := reg.FindMethodRecord(handle)
	if got := mtd.LastToplevelCompile(2); got != latest {
		t.Error("LastToplevelCompile(2) should be the highest-id tier-2 compile")
	}
	if mtd.HighestTopTier() != 4 {
		t.Errorf("HighestTopTier = %d, want 4", mtd.HighestTopTier())
	}
	if mtd.LastToplevelCompile(1) != nil {
		t.Error("No tier-1 compile exists")
	}
}

func TestCompileRecordLifecycleMarks(t *testing.T) {
	reg := newTestRegistry()
	holder := newFakeClass("Foo")
	handle := newFakeMethod(holder, "bar", "()V")

	ctd := reg.NewCompileRecord(&fakeTask{id: 1, tier: 3, method: handle}, nil)
	ctd.MarkQueued()
	ctd.MarkStarted()
	ctd.MarkEnded(4096)

	if ctd.CodeSize() != 4096 {
		t.Errorf("CodeSize = %d", ctd.CodeSize())
	}
	if ctd.QueuedAt().IsZero() || ctd.StartedAt().IsZero() || ctd.EndedAt().IsZero() {
		t.Error("Lifecycle timestamps should be set")
	}
	if ctd.EndedAt().Before(ctd.QueuedAt()) {
		t.Error("Timestamps should be ordered")
	}
}

func TestCompileRecordInitDeps(t *testing.T) {
	reg := newTestRegistry()
	holder := newFakeClass("Foo")
	handle := newFakeMethod(holder, "bar", "()V")
	dep := newFakeClass("com/example/Config")

	ctd := reg.NewCompileRecord(&fakeTask{id: 1, tier: 4, method: handle}, nil)
	ctd.NoticeInitDependency(dep)
	ctd.NoticeInitDependency(dep) // set semantics

	deps := ctd.InitDeps()
	depRec := reg.FindClassRecord(dep)
	if len(deps) != 1 || deps[0] != depRec {
		t.Fatal("Compile should depend on the config class")
	}

	// The reverse link lets class initialization find the compile.
	back := depRec.CompDeps()
	if len(back) != 1 || back[0] != ctd {
		t.Error("Class should know the compiles depending on it")
	}
}

func TestCompileRecordOffMode(t *testing.T) {
	reg := NewRegistry(Options{Mode: ModeOff})
	holder := newFakeClass("Foo")
	handle := newFakeMethod(holder, "bar", "()V")

	if reg.NewCompileRecord(&fakeTask{id: 1, tier: 1, method: handle}, nil) != nil {
		t.Error("No compile records when collection is off")
	}
}
