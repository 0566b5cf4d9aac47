package training

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

var loadLog = commonlog.GetLogger("preheat.load")

// ---------------------------------------------------------------------------
// Loader: the dump format's load-side mirror
// ---------------------------------------------------------------------------

// LoadProfileFile reads a stored profile into the registry.
func (r *Registry) LoadProfileFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open profile %s: %w", path, err)
	}
	defer f.Close()
	if err := r.LoadProfile(f); err != nil {
		return fmt.Errorf("loading profile %s: %w", path, err)
	}
	return nil
}

// LoadProfile parses an element stream and rebuilds the records it
// describes. Malformed lines are skipped with a warning; partial data is
// preferred over aborting entirely. Only a missing or incompatible root
// element is fatal.
func (r *Registry) LoadProfile(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	ld := &profileLoader{reg: r, byID: make(map[int]any)}

	sawRoot := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		pe, err := parseElement(line)
		if err != nil {
			loadLog.Warningf("skipping malformed line: %v", err)
			continue
		}
		if !sawRoot {
			if pe.tag != rootTag {
				return fmt.Errorf("not a training data stream (leading tag %q)", pe.tag)
			}
			if v, err := pe.intAttr("version"); err != nil || v != formatVersion {
				return fmt.Errorf("unsupported training data version %q", pe.str("version"))
			}
			sawRoot = true
			continue
		}
		if pe.tag == "/"+rootTag {
			break
		}
		if err := ld.element(pe); err != nil {
			loadLog.Warningf("skipping %s element: %v", pe.tag, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !sawRoot {
		return fmt.Errorf("empty or truncated training data stream")
	}
	return nil
}

// profileLoader carries the id cross-reference table while one stream
// loads.
type profileLoader struct {
	reg  *Registry
	byID map[int]any // id -> *ClassRecord, *MethodRecord or *CompileRecord
}

func (ld *profileLoader) element(pe *parsedElement) error {
	switch pe.tag {
	case "klass":
		return ld.klass(pe)
	case "klass_deps":
		return ld.klassDeps(pe)
	case "method":
		return ld.method(pe)
	case "compile":
		return ld.compile(pe)
	case "compile_deps":
		return ld.compileDeps(pe)
	case string(AuditTouch), string(AuditInitStart), string(AuditInitEnd), string(AuditFieldInit):
		return ld.audit(pe)
	default:
		return fmt.Errorf("unknown tag %q", pe.tag)
	}
}

func (ld *profileLoader) klassByID(pe *parsedElement, attr string) (*ClassRecord, error) {
	id, err := pe.intAttr(attr)
	if err != nil {
		return nil, err
	}
	ktd, ok := ld.byID[id].(*ClassRecord)
	if !ok {
		return nil, fmt.Errorf("%s=%d does not name a klass", attr, id)
	}
	return ktd, nil
}

func (ld *profileLoader) methodByID(pe *parsedElement, attr string) (*MethodRecord, error) {
	id, err := pe.intAttr(attr)
	if err != nil {
		return nil, err
	}
	mtd, ok := ld.byID[id].(*MethodRecord)
	if !ok {
		return nil, fmt.Errorf("%s=%d does not name a method", attr, id)
	}
	return mtd, nil
}

func (ld *profileLoader) klass(pe *parsedElement) error {
	id, err := pe.intAttr("id")
	if err != nil {
		return err
	}
	name := pe.str("name")
	if name == "" {
		return fmt.Errorf("klass without a name")
	}
	st := ld.reg.symbols
	ktd := ld.reg.ClassRecordForSymbols(st.Intern(name), st.Intern(pe.str("loader")))

	if seq, err := pe.intAttr("iclock"); err == nil && seq > 0 {
		ktd.clinitSeq.CompareAndSwap(0, int32(seq))
	}
	if pe.boolAttr("clinit_done") {
		ktd.clinitDone.Store(true)
	}
	if pe.boolAttr("touched") {
		ktd.hasInitializationTouch.Store(true)
	}
	if n, err := pe.intAttr("fieldinit_count"); err == nil {
		ktd.fieldinitCount.Store(int32(n))
	}
	ld.byID[id] = ktd
	return nil
}

func (ld *profileLoader) klassDeps(pe *parsedElement) error {
	ktd, err := ld.klassByID(pe, "id")
	if err != nil {
		return err
	}
	ids, err := pe.idList("deps")
	if err != nil {
		return err
	}
	ld.reg.mu.Lock()
	defer ld.reg.mu.Unlock()
	for _, depID := range ids {
		dep, ok := ld.byID[depID].(*ClassRecord)
		if !ok {
			return fmt.Errorf("dep %d does not name a klass", depID)
		}
		if dep != ktd {
			ktd.initDeps.AppendIfMissing(dep)
		}
	}
	return nil
}

func (ld *profileLoader) method(pe *parsedElement) error {
	id, err := pe.intAttr("id")
	if err != nil {
		return err
	}
	ktd, err := ld.klassByID(pe, "klass_id")
	if err != nil {
		return err
	}
	name := pe.str("name")
	sig := pe.str("signature")
	if name == "" {
		return fmt.Errorf("method without a name")
	}

	st := ld.reg.symbols
	key := MethodKey(ktd.key.KlassName(), ktd.key.LoaderName(),
		st.Intern(name), st.Intern(sig))

	ld.reg.mu.Lock()
	var mtd *MethodRecord
	if rec := ld.reg.findLocked(key); rec != nil {
		mtd = rec.(*MethodRecord)
	} else {
		mtd = ld.reg.installLocked(newMethodRecord(ld.reg, key, ktd)).(*MethodRecord)
	}
	ld.reg.mu.Unlock()

	if mask, err := pe.intAttr("level_mask"); err == nil {
		mtd.tierMask.Store(int32(mask))
	}
	if !pe.boolAttr("only_inlined") {
		mtd.wasToplevel.Store(true)
	}
	if pe.boolAttr("was_inlined") {
		mtd.wasInlined.Store(true)
	}
	if top, err := pe.intAttr("highest_top_level"); err == nil {
		ld.reg.mu.Lock()
		mtd.highestTopTier = top
		ld.reg.mu.Unlock()
	}
	ld.byID[id] = mtd
	return nil
}

func (ld *profileLoader) compile(pe *parsedElement) error {
	id, err := pe.intAttr("id")
	if err != nil {
		return err
	}
	mtd, err := ld.methodByID(pe, "method_id")
	if err != nil {
		return err
	}
	top, err := ld.methodByID(pe, "top_method_id")
	if err != nil {
		return err
	}
	tier, err := pe.intAttr("tier")
	if err != nil {
		return err
	}
	compileID, err := pe.intAttr("compile_id")
	if err != nil {
		return err
	}

	ctd := newCompileRecord(ld.reg, mtd, top, tier, compileID)
	if v, err := pe.int64Attr("qtime"); err == nil {
		ctd.queuedAt.Store(v)
	}
	if v, err := pe.int64Attr("stime"); err == nil {
		ctd.startedAt.Store(v)
	}
	if v, err := pe.int64Attr("etime"); err == nil {
		ctd.endedAt.Store(v)
	}
	if v, err := pe.intAttr("nm_size"); err == nil {
		ctd.codeSize.Store(int32(v))
	}

	// Link into the chain at the descending-id position, dropping
	// duplicates exactly like live creation does.
	ld.reg.mu.Lock()
	ctd = linkCompileLocked(mtd, ctd)
	ld.reg.mu.Unlock()

	ld.byID[id] = ctd
	return nil
}

func (ld *profileLoader) compileDeps(pe *parsedElement) error {
	id, err := pe.intAttr("id")
	if err != nil {
		return err
	}
	ctd, ok := ld.byID[id].(*CompileRecord)
	if !ok {
		return fmt.Errorf("id=%d does not name a compile", id)
	}
	ids, err := pe.idList("deps")
	if err != nil {
		return err
	}
	for _, depID := range ids {
		dep, ok := ld.byID[depID].(*ClassRecord)
		if !ok {
			return fmt.Errorf("dep %d does not name a klass", depID)
		}
		ctd.AddInitDep(dep)
	}
	return nil
}

func (ld *profileLoader) audit(pe *parsedElement) error {
	ktd, err := ld.klassByID(pe, "klass_id")
	if err != nil {
		return err
	}
	ev := AuditEvent{Kind: AuditKind(pe.tag), Class: ktd.key}
	switch ev.Kind {
	case AuditTouch:
		ev.Reason = pe.str("reason")
		ev.Member = pe.str("member")
		ev.Context = pe.str("context")
		if req, err := ld.klassByID(pe, "requester_id"); err == nil {
			ev.Requester = req.key
		}
	case AuditInitStart, AuditInitEnd:
		ev.Sequence, _ = pe.intAttr("iclock")
	case AuditFieldInit:
		ev.Field = pe.str("name")
		ev.Reason = pe.str("reason")
		ev.Sequence, _ = pe.intAttr("seq")
	}
	ld.reg.audit.append(ev)
	return nil
}
