package training

import "sync/atomic"

// ---------------------------------------------------------------------------
// Test doubles for the VM-side handles
// ---------------------------------------------------------------------------

type fakeClass struct {
	name    string
	loader  string
	super   *fakeClass
	state   InitState
	fields  []FieldDescriptor
	nonZero map[int]bool // field index -> live value differs from default
	rec     atomic.Pointer[ClassRecord]
}

func newFakeClass(name string) *fakeClass {
	return &fakeClass{name: name, nonZero: make(map[int]bool)}
}

func (c *fakeClass) Name() string       { return c.name }
func (c *fakeClass) LoaderName() string { return c.loader }
func (c *fakeClass) Super() ClassHandle {
	if c.super == nil {
		return nil
	}
	return c.super
}
func (c *fakeClass) InitState() InitState            { return c.state }
func (c *fakeClass) StaticFields() []FieldDescriptor { return c.fields }
func (c *fakeClass) FieldIsDefault(fd FieldDescriptor) bool {
	return !c.nonZero[fd.Index]
}
func (c *fakeClass) TrainingRecord() *ClassRecord     { return c.rec.Load() }
func (c *fakeClass) SetTrainingRecord(k *ClassRecord) { c.rec.Store(k) }

type fakeMethod struct {
	name   string
	sig    string
	holder *fakeClass
	rec    atomic.Pointer[MethodRecord]
}

func newFakeMethod(holder *fakeClass, name, sig string) *fakeMethod {
	return &fakeMethod{name: name, sig: sig, holder: holder}
}

func (m *fakeMethod) Name() string                      { return m.name }
func (m *fakeMethod) Signature() string                 { return m.sig }
func (m *fakeMethod) Holder() ClassHandle               { return m.holder }
func (m *fakeMethod) TrainingRecord() *MethodRecord     { return m.rec.Load() }
func (m *fakeMethod) SetTrainingRecord(r *MethodRecord) { m.rec.Store(r) }

type fakeTask struct {
	id     int
	tier   int
	method MethodHandle
}

func (t *fakeTask) ID() int              { return t.id }
func (t *fakeTask) Tier() int            { return t.tier }
func (t *fakeTask) Method() MethodHandle { return t.method }

func newTestRegistry() *Registry {
	return NewRegistry(Options{Mode: ModeRecord, Audit: true})
}
