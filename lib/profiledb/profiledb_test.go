package profiledb

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/preheat/training"
)

const sampleProfile = `<training_data version='1' run_id='test-run' records='4'>
<klass id='1' name='com/example/Foo' iclock='1' clinit_done='1' touched='1' fieldinit_count='2'/>
<klass id='2' name='com/example/Base' iclock='0' clinit_done='1' touched='0' fieldinit_count='0'/>
<method id='3' klass_id='1' name='bar' signature='(I)I' level_mask='24' only_inlined='0' was_inlined='0' highest_top_level='4' last_compile_id='9'/>
<method id='4' klass_id='1' name='tiny' signature='()I' level_mask='16' only_inlined='1' was_inlined='1' highest_top_level='0' last_compile_id='0'/>
<compile id='5' method_id='3' top_method_id='3' tier='4' compile_id='9' nm_size='4096' qtime='0' stime='0' etime='0'/>
<compile id='6' method_id='3' top_method_id='3' tier='3' compile_id='2' nm_size='1024' qtime='0' stime='0' etime='0'/>
<klass_deps id='1' deps='2'/>
</training_data>
`

func loadSample(t *testing.T) *training.Registry {
	t.Helper()
	reg := training.NewRegistry(training.Options{Mode: training.ModeReplay})
	if err := reg.LoadProfile(strings.NewReader(sampleProfile)); err != nil {
		t.Fatal(err)
	}
	return reg
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImportAndSummarize(t *testing.T) {
	s := openStore(t)
	reg := loadSample(t)

	if err := s.ImportRegistry(reg); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summarize(reg.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Klasses != 2 || sum.Initialized != 2 {
		t.Errorf("Klasses = %d/%d initialized", sum.Klasses, sum.Initialized)
	}
	if sum.Methods != 2 || sum.TopLevel != 1 {
		t.Errorf("Methods = %d/%d top-level", sum.Methods, sum.TopLevel)
	}
	if sum.Compiles != 2 || sum.HighestTier != 4 {
		t.Errorf("Compiles = %d, highest tier %d", sum.Compiles, sum.HighestTier)
	}
	if sum.TotalNMBytes != 5120 {
		t.Errorf("TotalNMBytes = %d", sum.TotalNMBytes)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	s := openStore(t)
	reg := loadSample(t)

	if err := s.ImportRegistry(reg); err != nil {
		t.Fatal(err)
	}
	if err := s.ImportRegistry(reg); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summarize(reg.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Klasses != 2 || sum.Methods != 2 || sum.Compiles != 2 {
		t.Error("Re-importing a run should replace its rows, not duplicate them")
	}
}

func TestRuns(t *testing.T) {
	s := openStore(t)
	reg := loadSample(t)
	if err := s.ImportRegistry(reg); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0] != reg.RunID() {
		t.Errorf("Runs = %v", runs)
	}
}

func TestHottestMethods(t *testing.T) {
	s := openStore(t)
	reg := loadSample(t)
	if err := s.ImportRegistry(reg); err != nil {
		t.Fatal(err)
	}

	hot, err := s.HottestMethods(reg.RunID(), 10)
	if err != nil {
		t.Fatal(err)
	}
	// The inlinee-only method is excluded.
	if len(hot) != 1 {
		t.Fatalf("Hot methods = %d, want 1", len(hot))
	}
	if hot[0].Name != "bar" || hot[0].Tier != 4 || hot[0].NMSize != 4096 {
		t.Errorf("Hot[0] = %+v", hot[0])
	}
}

func TestSummarizeUnknownRun(t *testing.T) {
	s := openStore(t)
	if _, err := s.Summarize("no-such-run"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}
