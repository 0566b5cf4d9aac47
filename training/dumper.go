package training

import (
	"bufio"
	"io"
	"os"
	"sort"

	"github.com/tliron/commonlog"
)

var dumpLog = commonlog.GetLogger("preheat.dump")

// ---------------------------------------------------------------------------
// Dumper: deterministic, ID-stable serialization
// ---------------------------------------------------------------------------

// rootTag wraps the whole persisted stream.
const rootTag = "training_data"

// formatVersion stamps the stream; readers reject other versions.
const formatVersion = 1

// Dumper assigns reproducible small-integer ids to the record graph and
// emits the element stream. IDs are assigned first-touch-wins during the
// identify pass: a record referencing a not-yet-identified record
// triggers that record's identification (and output) first. Requesting
// the id of an already-identified record returns the existing id with
// no side effects.
type Dumper struct {
	reg    *Registry
	ew     *elementWriter
	ids    map[any]int // *ClassRecord, *MethodRecord or *CompileRecord -> id
	nextID int
}

func newDumper(reg *Registry, w io.Writer) *Dumper {
	return &Dumper{
		reg:    reg,
		ew:     newElementWriter(bufio.NewWriter(w)),
		ids:    make(map[any]int),
		nextID: 1,
	}
}

// assign draws the next id for rec, or returns the one it already has.
func (d *Dumper) assign(rec any) (id int, fresh bool) {
	if id, ok := d.ids[rec]; ok {
		return id, false
	}
	id = d.nextID
	d.nextID++
	d.ids[rec] = id
	return id, true
}

// identify returns rec's id, emitting its identify element first if it
// has none yet. Idempotent.
func (d *Dumper) identify(rec Record) (int, error) {
	if id, ok := d.ids[rec]; ok {
		return id, nil
	}
	if err := rec.dump(d, dpIdentify); err != nil {
		return 0, err
	}
	return d.ids[rec], nil
}

// identifyAll runs the two-pass dependency emission discipline: a first
// pass identifies every still-unidentified dependency (each of which may
// itself emit output), and only then are the fully resolved ids
// collected for printing. The write cursor cannot be shared with the
// recursive identifications, because those print lines of their own.
func (d *Dumper) identifyAll(deps []*ClassRecord) ([]int, error) {
	for _, dep := range deps {
		if _, err := d.identify(dep); err != nil {
			return nil, err
		}
	}
	ids := make([]int, len(deps))
	for i, dep := range deps {
		ids[i] = d.ids[dep]
	}
	return ids, nil
}

// StoreResults computes the dump closure and writes the profile to the
// configured output path. A file open or write failure is reported and
// the dump abandoned; it never affects process correctness, only loses
// the training artifact.
func (r *Registry) StoreResults() error {
	path := r.opts.ExpandOutput()
	f, err := os.Create(path)
	if err != nil {
		dumpLog.Warningf("cannot open %s, dump abandoned: %v", path, err)
		return err
	}
	defer f.Close()

	if err := r.DumpTo(f); err != nil {
		dumpLog.Warningf("writing %s failed, dump abandoned: %v", path, err)
		return err
	}
	dumpLog.Infof("stored training data in %s (%d records)", path, r.Len())

	if r.opts.Snapshot {
		snapPath := path + ".snap"
		if err := r.WriteSnapshotFile(snapPath); err != nil {
			dumpLog.Warningf("cannot write snapshot %s: %v", snapPath, err)
		}
	}
	return nil
}

// DumpTo writes the full element stream to w. Enumeration works on
// private snapshots of the store; the store lock is never held across
// the writes themselves.
func (r *Registry) DumpTo(w io.Writer) error {
	records := r.closeOverRecords()
	sortRecords(records)

	d := newDumper(r, w)
	d.ew.open(rootTag, func(e *element) {
		e.attrInt("version", formatVersion)
		e.attr("run_id", r.runID)
		e.attrInt("records", len(records))
	})

	// Identify pass: every record gets an id and an identity line.
	for _, rec := range records {
		if rec.DoNotDump() {
			continue
		}
		if _, err := d.identify(rec); err != nil {
			return err
		}
	}

	// Detail pass: dependency lists and compile history, in the same
	// deterministic order. Detail lines refer only to ids the identify
	// pass (or a recursive identification just above them) has printed.
	for _, rec := range records {
		if rec.DoNotDump() {
			continue
		}
		if err := rec.dump(d, dpDetail); err != nil {
			return err
		}
	}

	// Audit events, in observation order, with class references resolved
	// to ids.
	for _, ev := range r.AuditEvents() {
		d.emitAudit(ev)
	}

	d.ew.closeTag(rootTag)
	return d.ew.flush()
}

// closeOverRecords runs the fixed-point closure: repeatedly snapshot the
// store, run every not-yet-prepared record's prepare phase (which may
// install previously unseen records, e.g. a superclass record discovered
// for a dependency), and stop once a full pass adds nothing. Termination
// is guaranteed: the record universe only grows during a bounded
// training run and the set of classes and methods is finite.
func (r *Registry) closeOverRecords() []Record {
	prepared := make(map[Record]bool)
	for {
		snapshot := r.snapshotRecords()
		newWork := false
		for _, rec := range snapshot {
			if prepared[rec] {
				continue
			}
			prepared[rec] = true
			newWork = true
			rec.dump(nil, dpPrepare)
		}
		if !newWork {
			return snapshot
		}
	}
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Compare(records[j]) < 0
	})
}

// emitAudit writes one buffered audit event into the stream. Events
// about records that never made it into the store are dropped with a
// warning.
func (d *Dumper) emitAudit(ev AuditEvent) {
	classID, ok := d.idForKey(ev.Class)
	if !ok {
		dumpLog.Warningf("audit event %s refers to unknown class %s", ev.Kind, ev.Class)
		return
	}
	e := d.ew.begin(string(ev.Kind))
	e.attrInt("klass_id", classID)
	switch ev.Kind {
	case AuditTouch:
		e.attr("reason", ev.Reason)
		if ev.Member != "" {
			e.attr("member", ev.Member)
		}
		if !ev.Requester.IsEmpty() {
			if reqID, ok := d.idForKey(ev.Requester); ok {
				e.attrInt("requester_id", reqID)
			}
		}
		if ev.Context != "" {
			e.attr("context", ev.Context)
		}
	case AuditInitStart, AuditInitEnd:
		e.attrInt("iclock", ev.Sequence)
	case AuditFieldInit:
		e.attr("name", ev.Field)
		e.attrInt("seq", ev.Sequence)
		if ev.Reason != "" {
			e.attr("reason", ev.Reason)
		}
	}
	e.end()
}

// idForKey resolves a key to the id of its installed record, if any.
func (d *Dumper) idForKey(key Key) (int, bool) {
	rec := d.reg.Find(key)
	if rec == nil {
		return 0, false
	}
	id, ok := d.ids[rec]
	return id, ok
}

// ---------------------------------------------------------------------------
// Per-record dump phases
// ---------------------------------------------------------------------------

func (k *ClassRecord) dump(d *Dumper, phase dumpPhase) error {
	switch phase {
	case dpPrepare:
		holder := k.Holder()
		if holder == nil {
			return nil
		}
		k.RefreshFrom(holder)
		if k.HasInitializationTouch() {
			k.CheckFieldStates()
			// Record the initialized ancestor chain so a production run
			// can preload it. This may install records the store has
			// never seen; the closure loop picks them up.
			if super := holder.Super(); super != nil && super.InitState() != InitNotStarted {
				k.reg.ClassRecordFor(super, true)
			}
		}
		return nil
	case dpIdentify:
		id, fresh := d.assign(k)
		if !fresh {
			return nil
		}
		e := d.ew.begin("klass")
		e.attrInt("id", id)
		e.attr("name", k.Name().Name())
		if k.LoaderName() != nil {
			e.attr("loader", k.LoaderName().Name())
		}
		e.attrInt("iclock", k.ClinitSequence())
		e.attrBool("clinit_done", k.ClinitIsDone())
		e.attrBool("touched", k.HasInitializationTouch())
		e.attrInt("fieldinit_count", k.FieldInitCount())
		e.end()
	case dpDetail:
		deps := k.InitDeps()
		if len(deps) == 0 {
			return nil
		}
		ids, err := d.identifyAll(deps)
		if err != nil {
			return err
		}
		e := d.ew.begin("klass_deps")
		e.attrInt("id", d.ids[k])
		e.attrIDs("deps", ids)
		e.end()
	}
	return d.ew.err
}

func (m *MethodRecord) dump(d *Dumper, phase dumpPhase) error {
	switch phase {
	case dpPrepare:
		if holder := m.Holder(); holder != nil {
			m.RefreshFrom(holder)
		}
		return nil
	case dpIdentify:
		klassID, err := d.identify(m.klass)
		if err != nil {
			return err
		}
		id, fresh := d.assign(m)
		if !fresh {
			return nil
		}
		e := d.ew.begin("method")
		e.attrInt("id", id)
		e.attrInt("klass_id", klassID)
		e.attr("name", m.Name().Name())
		e.attr("signature", m.Signature().Name())
		e.attrInt("level_mask", m.TierMask())
		e.attrBool("only_inlined", m.OnlyInlined())
		e.attrBool("was_inlined", !m.NeverInlined())
		e.attrInt("highest_top_level", m.HighestTopTier())
		e.attrInt("last_compile_id", m.LastCompileID())
		e.end()
	case dpDetail:
		var dumpErr error
		m.EachCompile(func(ctd *CompileRecord) {
			if dumpErr == nil {
				dumpErr = ctd.dumpInto(d)
			}
		})
		return dumpErr
	}
	return d.ew.err
}

// dumpInto emits the compile and compile_deps elements for one compile.
func (c *CompileRecord) dumpInto(d *Dumper) error {
	methodID, err := d.identify(c.method)
	if err != nil {
		return err
	}
	topID, err := d.identify(c.topMethod)
	if err != nil {
		return err
	}
	id, _ := d.assign(c)

	e := d.ew.begin("compile")
	e.attrInt("id", id)
	e.attrInt("method_id", methodID)
	e.attrInt("top_method_id", topID)
	e.attrInt("tier", c.tier)
	e.attrInt("compile_id", c.compileID)
	e.attrBool("is_inlined", c.IsInlined())
	e.attrInt("nm_size", c.CodeSize())
	e.attrInt64("qtime", c.queuedAt.Load())
	e.attrInt64("stime", c.startedAt.Load())
	e.attrInt64("etime", c.endedAt.Load())
	e.end()

	deps := c.InitDeps()
	if len(deps) > 0 {
		ids, err := d.identifyAll(deps)
		if err != nil {
			return err
		}
		de := d.ew.begin("compile_deps")
		de.attrInt("id", id)
		de.attrIDs("deps", ids)
		de.end()
	}
	return d.ew.err
}
