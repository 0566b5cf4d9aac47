package training

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// Options and preheat.toml configuration
// ---------------------------------------------------------------------------

// Mode selects what a process run does with training data.
type Mode int

const (
	// ModeOff collects nothing and loads nothing.
	ModeOff Mode = iota
	// ModeRecord collects records during a training run.
	ModeRecord
	// ModeReplay loads a stored profile for a production run.
	ModeReplay
)

func (m Mode) String() string {
	switch m {
	case ModeRecord:
		return "record"
	case ModeReplay:
		return "replay"
	}
	return "off"
}

// DefaultOutput is the output path used when none is configured.
// The %p placeholder expands to the current process id at dump time.
const DefaultOutput = "preheat-%p.ptd"

// Options configures a Registry.
type Options struct {
	Mode   Mode
	Output string // dump path template, %p -> pid

	// RecordLimit bounds the number of records the registry will hold.
	// Exceeding it disables further collection instead of failing the
	// process. Zero means unlimited.
	RecordLimit int

	// Audit keeps initialization audit events for inclusion in the dump.
	Audit bool
	// Snapshot additionally writes a binary CBOR snapshot next to the
	// text dump.
	Snapshot bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Mode:   ModeRecord,
		Output: DefaultOutput,
		Audit:  true,
	}
}

// NeedData reports whether this run collects records.
func (o Options) NeedData() bool { return o.Mode == ModeRecord }

// HaveData reports whether this run consumes a stored profile.
func (o Options) HaveData() bool { return o.Mode == ModeReplay }

// ParseFlags applies a comma-separated boolean option list, the string
// form accepted on the command line ("audit,snapshot").
func (o *Options) ParseFlags(s string) error {
	for _, tok := range strings.Split(s, ",") {
		switch strings.TrimSpace(tok) {
		case "":
		case "audit":
			o.Audit = true
		case "noaudit":
			o.Audit = false
		case "snapshot":
			o.Snapshot = true
		default:
			return fmt.Errorf("unknown training option %q", tok)
		}
	}
	return nil
}

// ExpandOutput resolves the output path template for this process,
// replacing %p with the current pid.
func (o Options) ExpandOutput() string {
	path := o.Output
	if path == "" {
		path = DefaultOutput
	}
	return strings.ReplaceAll(path, "%p", strconv.Itoa(os.Getpid()))
}

// Config represents a preheat.toml file.
type Config struct {
	Training trainingSection `toml:"training"`

	// Dir is the directory containing the preheat.toml file (set at load time).
	Dir string `toml:"-"`
}

type trainingSection struct {
	Mode        string `toml:"mode"`
	Output      string `toml:"output"`
	RecordLimit int    `toml:"record-limit"`
	Audit       *bool  `toml:"audit"`
	Snapshot    bool   `toml:"snapshot"`
}

// LoadConfig parses a preheat.toml file from the given directory.
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, "preheat.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return &c, nil
}

// FindAndLoadConfig walks up from startDir to find a preheat.toml file,
// then loads and returns it. Returns nil if no config is found.
func FindAndLoadConfig(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "preheat.toml")
		if _, err := os.Stat(path); err == nil {
			return LoadConfig(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Options converts the parsed config into registry options, with
// defaults filled in for anything left unset.
func (c *Config) Options() (Options, error) {
	o := DefaultOptions()
	if c == nil {
		return o, nil
	}
	switch c.Training.Mode {
	case "", "record":
		o.Mode = ModeRecord
	case "replay":
		o.Mode = ModeReplay
	case "off":
		o.Mode = ModeOff
	default:
		return o, fmt.Errorf("unknown training mode %q", c.Training.Mode)
	}
	if c.Training.Output != "" {
		o.Output = c.Training.Output
	}
	o.RecordLimit = c.Training.RecordLimit
	if c.Training.Audit != nil {
		o.Audit = *c.Training.Audit
	}
	o.Snapshot = c.Training.Snapshot
	return o, nil
}
