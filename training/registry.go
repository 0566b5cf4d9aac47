package training

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("preheat.training")

// ---------------------------------------------------------------------------
// Registry: the record store
// ---------------------------------------------------------------------------

// Registry is the process-wide training-data repository. It owns the
// symbol table, the key->record store, the global initialization
// sequence counter and the audit log. It is constructed once per run and
// passed to collaborators explicitly; tests build independent instances.
//
// One coarse mutex guards lookup, installation, full-store iteration and
// compile-chain linkage. Contention on record creation is low relative
// to the overall workload, so a single lock is enough. The lock is a
// plain mutex with no external-pause interaction: nothing done under it
// can block on a stop-the-world coordinator.
type Registry struct {
	opts    Options
	symbols *SymbolTable
	runID   string

	mu      sync.Mutex
	records map[Key]Record
	order   []Record // insertion order, for deterministic iteration

	clinitCount atomic.Int32 // global count (so far) of clinit events
	disabled    atomic.Bool  // collection switched off (record limit hit)

	audit auditLog
}

// NewRegistry creates an empty registry with the given options.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:    opts,
		symbols: NewSymbolTable(),
		runID:   uuid.NewString(),
		records: make(map[Key]Record, 1024),
	}
}

// Symbols returns the registry's interning table. Every symbol used in
// a Key must come from this table.
func (r *Registry) Symbols() *SymbolTable { return r.symbols }

// RunID returns the unique id of this training run, stamped into dumps.
func (r *Registry) RunID() string { return r.runID }

// Options returns the registry's configuration.
func (r *Registry) Options() Options { return r.opts }

// NeedData reports whether this run is collecting records.
// Collection stops early if the record limit was hit.
func (r *Registry) NeedData() bool {
	return r.opts.NeedData() && !r.disabled.Load()
}

// HaveData reports whether this run consumes a stored profile.
func (r *Registry) HaveData() bool { return r.opts.HaveData() }

// Disabled reports whether collection was switched off mid-run.
func (r *Registry) Disabled() bool { return r.disabled.Load() }

// disableCollection turns further collection into a no-op. Existing
// records stay valid and are still dumped.
func (r *Registry) disableCollection(reason string) {
	if r.disabled.CompareAndSwap(false, true) {
		log.Warningf("training data collection disabled: %s", reason)
	}
}

// Install atomically inserts record under its key if absent, else
// returns the already-present record and discards the candidate.
// Exactly one of any set of racing candidates becomes canonical, and
// every caller observes that same record.
func (r *Registry) Install(record Record) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installLocked(record)
}

// installLocked is Install for callers already holding the store lock.
func (r *Registry) installLocked(record Record) Record {
	key := record.Key()
	if key.IsEmpty() {
		return record // unkeyed records are not installed
	}
	if prior, ok := r.records[key]; ok {
		return prior
	}
	if r.opts.RecordLimit > 0 && len(r.records) >= r.opts.RecordLimit {
		r.disableCollection("record limit reached")
		return record
	}
	r.records[key] = record
	r.order = append(r.order, record)
	return record
}

// Find returns the record installed under key, or nil.
func (r *Registry) Find(key Key) Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(key)
}

func (r *Registry) findLocked(key Key) Record {
	return r.records[key]
}

// Len returns the number of installed records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// IterateAll visits every installed record in insertion order, under the
// store lock. The visitor must not call back into the registry.
func (r *Registry) IterateAll(fn func(Key, Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.order {
		fn(rec.Key(), rec)
	}
}

// snapshotRecords copies the current record list under the lock, for
// use outside it (the dumper works on private snapshots).
func (r *Registry) snapshotRecords() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.order))
	copy(out, r.order)
	return out
}

// nextClinitSequence draws the next value of the global 1-based class
// initialization order.
func (r *Registry) nextClinitSequence() int {
	return int(r.clinitCount.Add(1))
}

// ClinitCount returns how many class initializations have been observed.
func (r *Registry) ClinitCount() int {
	return int(r.clinitCount.Load())
}
