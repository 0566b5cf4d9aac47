package training

import (
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

// ---------------------------------------------------------------------------
// Snapshot: compact binary profile (canonical CBOR, LZ4-framed)
// ---------------------------------------------------------------------------

// cborEncMode uses canonical mode so equal snapshots encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("training: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the flattened, id-resolved form of a dumped profile. It
// carries the same information as the text stream in a compact binary
// shape for fast reload.
type Snapshot struct {
	Version  int           `cbor:"version"`
	RunID    string        `cbor:"run_id"`
	Klasses  []SnapKlass   `cbor:"klasses"`
	Methods  []SnapMethod  `cbor:"methods"`
	Compiles []SnapCompile `cbor:"compiles"`
	Events   []SnapEvent   `cbor:"events,omitempty"`
}

// SnapKlass mirrors a klass element plus its klass_deps.
type SnapKlass struct {
	ID             int    `cbor:"id"`
	Name           string `cbor:"name"`
	Loader         string `cbor:"loader,omitempty"`
	Iclock         int    `cbor:"iclock,omitempty"`
	ClinitDone     bool   `cbor:"clinit_done,omitempty"`
	Touched        bool   `cbor:"touched,omitempty"`
	FieldinitCount int    `cbor:"fieldinit_count,omitempty"`
	Deps           []int  `cbor:"deps,omitempty"`
}

// SnapMethod mirrors a method element.
type SnapMethod struct {
	ID              int    `cbor:"id"`
	KlassID         int    `cbor:"klass_id"`
	Name            string `cbor:"name"`
	Signature       string `cbor:"signature"`
	LevelMask       int    `cbor:"level_mask,omitempty"`
	OnlyInlined     bool   `cbor:"only_inlined,omitempty"`
	WasInlined      bool   `cbor:"was_inlined,omitempty"`
	HighestTopLevel int    `cbor:"highest_top_level,omitempty"`
}

// SnapCompile mirrors a compile element plus its compile_deps.
type SnapCompile struct {
	ID          int   `cbor:"id"`
	MethodID    int   `cbor:"method_id"`
	TopMethodID int   `cbor:"top_method_id"`
	Tier        int   `cbor:"tier"`
	CompileID   int   `cbor:"compile_id"`
	NMSize      int   `cbor:"nm_size,omitempty"`
	QTime       int64 `cbor:"qtime,omitempty"`
	STime       int64 `cbor:"stime,omitempty"`
	ETime       int64 `cbor:"etime,omitempty"`
	Deps        []int `cbor:"deps,omitempty"`
}

// SnapEvent mirrors one buffered audit element.
type SnapEvent struct {
	Kind        string `cbor:"kind"`
	KlassID     int    `cbor:"klass_id"`
	RequesterID int    `cbor:"requester_id,omitempty"`
	Reason      string `cbor:"reason,omitempty"`
	Member      string `cbor:"member,omitempty"`
	Context     string `cbor:"context,omitempty"`
	Field       string `cbor:"field,omitempty"`
	Sequence    int    `cbor:"seq,omitempty"`
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("training: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// BuildSnapshot flattens the registry into a Snapshot. It runs the same
// closure and deterministic ordering as the text dump, so ids agree with
// a text dump taken from the same store state.
func (r *Registry) BuildSnapshot() *Snapshot {
	records := r.closeOverRecords()
	sortRecords(records)

	snap := &Snapshot{Version: formatVersion, RunID: r.runID}
	ids := make(map[any]int)
	nextID := 1
	assign := func(rec any) int {
		if id, ok := ids[rec]; ok {
			return id
		}
		ids[rec] = nextID
		nextID++
		return nextID - 1
	}

	// Identify in dump order: a method identifies its class first, like
	// the text dumper does.
	for _, rec := range records {
		if rec.DoNotDump() {
			continue
		}
		switch v := rec.(type) {
		case *ClassRecord:
			assign(v)
		case *MethodRecord:
			assign(v.klass)
			assign(v)
		}
	}

	for _, rec := range records {
		if rec.DoNotDump() {
			continue
		}
		switch v := rec.(type) {
		case *ClassRecord:
			sk := SnapKlass{
				ID:             ids[v],
				Name:           v.Name().Name(),
				Loader:         v.LoaderName().Name(),
				Iclock:         v.ClinitSequence(),
				ClinitDone:     v.ClinitIsDone(),
				Touched:        v.HasInitializationTouch(),
				FieldinitCount: v.FieldInitCount(),
			}
			for _, dep := range v.InitDeps() {
				if id, ok := ids[dep]; ok {
					sk.Deps = append(sk.Deps, id)
				}
			}
			snap.Klasses = append(snap.Klasses, sk)
		case *MethodRecord:
			snap.Methods = append(snap.Methods, SnapMethod{
				ID:              ids[v],
				KlassID:         ids[v.klass],
				Name:            v.Name().Name(),
				Signature:       v.Signature().Name(),
				LevelMask:       v.TierMask(),
				OnlyInlined:     v.OnlyInlined(),
				WasInlined:      !v.NeverInlined(),
				HighestTopLevel: v.HighestTopTier(),
			})
			v.EachCompile(func(ctd *CompileRecord) {
				sc := SnapCompile{
					ID:          assign(ctd),
					MethodID:    ids[ctd.method],
					TopMethodID: ids[ctd.topMethod],
					Tier:        ctd.tier,
					CompileID:   ctd.compileID,
					NMSize:      ctd.CodeSize(),
					QTime:       ctd.queuedAt.Load(),
					STime:       ctd.startedAt.Load(),
					ETime:       ctd.endedAt.Load(),
				}
				for _, dep := range ctd.InitDeps() {
					if id, ok := ids[dep]; ok {
						sc.Deps = append(sc.Deps, id)
					}
				}
				snap.Compiles = append(snap.Compiles, sc)
			})
		}
	}

	idForKey := func(key Key) int {
		if rec := r.Find(key); rec != nil {
			return ids[rec]
		}
		return 0
	}
	for _, ev := range r.AuditEvents() {
		kid := idForKey(ev.Class)
		if kid == 0 {
			continue
		}
		snap.Events = append(snap.Events, SnapEvent{
			Kind:        string(ev.Kind),
			KlassID:     kid,
			RequesterID: idForKey(ev.Requester),
			Reason:      ev.Reason,
			Member:      ev.Member,
			Context:     ev.Context,
			Field:       ev.Field,
			Sequence:    ev.Sequence,
		})
	}
	return snap
}

// WriteSnapshot writes the registry's snapshot to w as LZ4-framed CBOR.
func (r *Registry) WriteSnapshot(w io.Writer) error {
	data, err := MarshalSnapshot(r.BuildSnapshot())
	if err != nil {
		return err
	}
	zw := lz4.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	return zw.Close()
}

// WriteSnapshotFile writes the snapshot to a file.
func (r *Registry) WriteSnapshotFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.WriteSnapshot(f)
}

// ReadSnapshot reads an LZ4-framed CBOR snapshot.
func ReadSnapshot(rd io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(lz4.NewReader(rd))
	if err != nil {
		return nil, fmt.Errorf("training: read snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}

// ReadSnapshotFile reads a snapshot file.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// LoadSnapshot rebuilds records from a snapshot, mirroring the text
// loader.
func (r *Registry) LoadSnapshot(snap *Snapshot) error {
	if snap.Version != formatVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	st := r.symbols
	klasses := make(map[int]*ClassRecord, len(snap.Klasses))
	for _, sk := range snap.Klasses {
		ktd := r.ClassRecordForSymbols(st.Intern(sk.Name), st.Intern(sk.Loader))
		if sk.Iclock > 0 {
			ktd.clinitSeq.CompareAndSwap(0, int32(sk.Iclock))
		}
		if sk.ClinitDone {
			ktd.clinitDone.Store(true)
		}
		if sk.Touched {
			ktd.hasInitializationTouch.Store(true)
		}
		ktd.fieldinitCount.Store(int32(sk.FieldinitCount))
		klasses[sk.ID] = ktd
	}
	for _, sk := range snap.Klasses {
		ktd := klasses[sk.ID]
		r.mu.Lock()
		for _, depID := range sk.Deps {
			if dep := klasses[depID]; dep != nil && dep != ktd {
				ktd.initDeps.AppendIfMissing(dep)
			}
		}
		r.mu.Unlock()
	}

	methods := make(map[int]*MethodRecord, len(snap.Methods))
	for _, sm := range snap.Methods {
		ktd := klasses[sm.KlassID]
		if ktd == nil {
			loadLog.Warningf("snapshot method %s refers to unknown klass %d", sm.Name, sm.KlassID)
			continue
		}
		key := MethodKey(ktd.key.KlassName(), ktd.key.LoaderName(),
			st.Intern(sm.Name), st.Intern(sm.Signature))
		r.mu.Lock()
		var mtd *MethodRecord
		if rec := r.findLocked(key); rec != nil {
			mtd = rec.(*MethodRecord)
		} else {
			mtd = r.installLocked(newMethodRecord(r, key, ktd)).(*MethodRecord)
		}
		mtd.highestTopTier = sm.HighestTopLevel
		r.mu.Unlock()
		mtd.tierMask.Store(int32(sm.LevelMask))
		if !sm.OnlyInlined {
			mtd.wasToplevel.Store(true)
		}
		if sm.WasInlined {
			mtd.wasInlined.Store(true)
		}
		methods[sm.ID] = mtd
	}

	for _, sc := range snap.Compiles {
		mtd, top := methods[sc.MethodID], methods[sc.TopMethodID]
		if mtd == nil || top == nil {
			loadLog.Warningf("snapshot compile %d refers to unknown methods", sc.CompileID)
			continue
		}
		ctd := newCompileRecord(r, mtd, top, sc.Tier, sc.CompileID)
		ctd.queuedAt.Store(sc.QTime)
		ctd.startedAt.Store(sc.STime)
		ctd.endedAt.Store(sc.ETime)
		ctd.codeSize.Store(int32(sc.NMSize))
		r.mu.Lock()
		linkCompileLocked(mtd, ctd)
		r.mu.Unlock()
		for _, depID := range sc.Deps {
			if dep := klasses[depID]; dep != nil {
				ctd.AddInitDep(dep)
			}
		}
	}

	for _, se := range snap.Events {
		ktd := klasses[se.KlassID]
		if ktd == nil {
			continue
		}
		ev := AuditEvent{
			Kind:     AuditKind(se.Kind),
			Class:    ktd.key,
			Reason:   se.Reason,
			Member:   se.Member,
			Context:  se.Context,
			Field:    se.Field,
			Sequence: se.Sequence,
		}
		if req := klasses[se.RequesterID]; req != nil {
			ev.Requester = req.key
		}
		r.audit.append(ev)
	}
	return nil
}
