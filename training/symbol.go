package training

import "sync"

// ---------------------------------------------------------------------------
// SymbolTable: Interned name references
// ---------------------------------------------------------------------------

// Symbol is an interned, immutable name. All symbols used in record keys
// come from a single SymbolTable, so two logically equal names are always
// the same pointer. Key equality and hashing rely on this.
type Symbol struct {
	name string
	id   uint32
}

// Name returns the symbol text.
func (s *Symbol) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// ID returns the table-local symbol id.
func (s *Symbol) ID() uint32 {
	if s == nil {
		return 0
	}
	return s.id
}

func (s *Symbol) String() string { return s.Name() }

// Compare orders symbols by name, with nil sorting first.
func (s *Symbol) Compare(other *Symbol) int {
	if s == other {
		return 0
	}
	if s == nil {
		return -1
	}
	if other == nil {
		return +1
	}
	if s.name < other.name {
		return -1
	}
	if s.name > other.name {
		return +1
	}
	return 0
}

// SymbolTable interns name strings to unique Symbol pointers.
// Symbols are immutable and live for the life of the table.
type SymbolTable struct {
	mu     sync.RWMutex
	byName map[string]*Symbol
	byID   []*Symbol
}

// NewSymbolTable creates a new empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: make(map[string]*Symbol),
		byID:   make([]*Symbol, 0, 256),
	}
}

// Intern returns the canonical Symbol for a name, creating one if needed.
// Interning the empty string returns nil; nil is the "absent" symbol.
func (st *SymbolTable) Intern(name string) *Symbol {
	if name == "" {
		return nil
	}

	// Fast path: read-only lookup
	st.mu.RLock()
	if sym, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return sym
	}
	st.mu.RUnlock()

	// Slow path: need to add new symbol
	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if sym, ok := st.byName[name]; ok {
		return sym
	}

	sym := &Symbol{name: name, id: uint32(len(st.byID)) + 1}
	st.byName[name] = sym
	st.byID = append(st.byID, sym)
	return sym
}

// Lookup returns the canonical Symbol for a name, or nil and false if
// the name has never been interned.
func (st *SymbolTable) Lookup(name string) (*Symbol, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sym, ok := st.byName[name]
	return sym, ok
}

// Len returns the number of interned symbols.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// All returns all symbols in interning order.
func (st *SymbolTable) All() []*Symbol {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]*Symbol, len(st.byID))
	copy(result, st.byID)
	return result
}
