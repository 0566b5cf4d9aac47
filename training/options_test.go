package training

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestParseFlags(t *testing.T) {
	o := DefaultOptions()
	if err := o.ParseFlags("noaudit,snapshot"); err != nil {
		t.Fatal(err)
	}
	if o.Audit {
		t.Error("noaudit should clear Audit")
	}
	if !o.Snapshot {
		t.Error("snapshot should set Snapshot")
	}

	if err := o.ParseFlags(""); err != nil {
		t.Error("Empty flag string is valid")
	}
	if err := o.ParseFlags("bogus"); err == nil {
		t.Error("Unknown option should be rejected")
	}
}

func TestExpandOutput(t *testing.T) {
	o := Options{Output: "run-%p.ptd"}
	got := o.ExpandOutput()
	want := "run-" + strconv.Itoa(os.Getpid()) + ".ptd"
	if got != want {
		t.Errorf("ExpandOutput = %q, want %q", got, want)
	}

	// Empty output falls back to the default template.
	o.Output = ""
	if !strings.HasSuffix(o.ExpandOutput(), ".ptd") {
		t.Errorf("Default output = %q", o.ExpandOutput())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
[training]
mode = "replay"
output = "warm.ptd"
record-limit = 500
audit = false
snapshot = true
`
	if err := os.WriteFile(filepath.Join(dir, "preheat.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	o, err := c.Options()
	if err != nil {
		t.Fatal(err)
	}
	if o.Mode != ModeReplay || o.Output != "warm.ptd" || o.RecordLimit != 500 {
		t.Errorf("Options = %+v", o)
	}
	if o.Audit || !o.Snapshot {
		t.Error("audit/snapshot flags not applied")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c *Config
	o, err := c.Options()
	if err != nil {
		t.Fatal(err)
	}
	if o.Mode != ModeRecord || o.Output != DefaultOutput || !o.Audit {
		t.Errorf("Defaults = %+v", o)
	}
}

func TestFindAndLoadConfigWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "preheat.toml"),
		[]byte("[training]\nmode = \"off\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoadConfig(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("Config in an ancestor directory should be found")
	}
	o, err := c.Options()
	if err != nil {
		t.Fatal(err)
	}
	if o.Mode != ModeOff {
		t.Errorf("Mode = %v", o.Mode)
	}
}

func TestConfigBadMode(t *testing.T) {
	c := &Config{}
	c.Training.Mode = "banana"
	if _, err := c.Options(); err == nil {
		t.Error("Unknown mode should be rejected")
	}
}
