package training

// ---------------------------------------------------------------------------
// Record: the polymorphic fact-accumulator
// ---------------------------------------------------------------------------

// dumpPhase selects what a record emits during a dump pass.
type dumpPhase int

const (
	dpPrepare  dumpPhase = iota // no output, settle final structure
	dpIdentify                  // emit only the identity element with an id
	dpDetail                    // emit dependency lists and compile history
)

// Record is a persistent fact-accumulator keyed by symbolic identity.
// The concrete set is closed: *ClassRecord and *MethodRecord. Use a type
// switch to discriminate; there are no "as_X or nil" accessors.
type Record interface {
	// Key returns the identity under which the record is installed.
	Key() Key
	// Compare defines the deterministic dump order. Records group by
	// their related class; classes order by clinit sequence number with
	// "never initialized" sorting last, ties broken by key.
	Compare(other Record) int
	// DoNotDump reports whether the record is excluded from dumps.
	DoNotDump() bool
	// SetDoNotDump marks the record as excluded from dumps.
	SetDoNotDump(bool)

	// relatedClass returns the class record this record groups under.
	relatedClass() *ClassRecord
	// kindRank orders record kinds within one class group.
	kindRank() int
	// dump runs one dump phase against the dumper.
	dump(d *Dumper, phase dumpPhase) error
}

// recordBase carries the state shared by every record variant.
type recordBase struct {
	key       Key
	reg       *Registry
	doNotDump bool
}

func (b *recordBase) Key() Key            { return b.key }
func (b *recordBase) DoNotDump() bool     { return b.doNotDump }
func (b *recordBase) SetDoNotDump(z bool) { b.doNotDump = z }

// compareRecords implements the shared ordering used by both variants.
func compareRecords(a, b Record) int {
	if a == b {
		return 0
	}
	ka, kb := a.relatedClass(), b.relatedClass()
	if ka != kb {
		if c := compareClassOrder(ka, kb); c != 0 {
			return c
		}
	}
	if a.kindRank() != b.kindRank() {
		return a.kindRank() - b.kindRank()
	}
	return a.Key().Compare(b.Key())
}

// compareClassOrder orders classes by clinit sequence number. A class
// that never started initialization has sequence 0 and sorts after every
// initialized class, not before.
func compareClassOrder(a, b *ClassRecord) int {
	if a == b {
		return 0
	}
	if a == nil {
		return +1
	}
	if b == nil {
		return -1
	}
	sa, sb := a.ClinitSequence(), b.ClinitSequence()
	if sa != sb {
		switch {
		case sa == 0:
			return +1
		case sb == 0:
			return -1
		case sa < sb:
			return -1
		default:
			return +1
		}
	}
	return a.Key().Compare(b.Key())
}
