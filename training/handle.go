package training

// ---------------------------------------------------------------------------
// External handles: opaque views of live VM classes and methods
// ---------------------------------------------------------------------------

// The registry never constructs or destroys handles; it only reads their
// symbolic identity and uses the one-slot record cache each handle offers.
// The cache slot is the attach point for the lock-free fast path: it must
// only be written after the referenced record is fully installed, and
// racing writers always store the same canonical pointer.

// InitState describes where a class is in its initialization protocol.
type InitState int

const (
	InitNotStarted InitState = iota
	InitInProgress
	InitDone
	InitError
)

func (s InitState) String() string {
	switch s {
	case InitNotStarted:
		return "not_started"
	case InitInProgress:
		return "in_progress"
	case InitDone:
		return "done"
	case InitError:
		return "error"
	}
	return "unknown"
}

// BasicType is the VM-level type tag of a static field.
type BasicType int

const (
	TypeObject BasicType = iota
	TypeArray
	TypeBoolean
	TypeChar
	TypeByte
	TypeShort
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
)

// FieldDescriptor describes one static field of a class, as reported by
// the class handle. Index is unique within the class's field stream.
type FieldDescriptor struct {
	Name       string
	Index      int
	Type       BasicType
	Offset     int
	IsConstant bool // compile-time constant; never meaningfully initialized
}

// ClassHandle is the registry's view of a live class.
type ClassHandle interface {
	// Name returns the class's symbolic name.
	Name() string
	// LoaderName returns the defining loader's name, or "" for the
	// bootstrap loader.
	LoaderName() string
	// Super returns the superclass handle, or nil for a root class.
	Super() ClassHandle
	// InitState reports the class's initialization state.
	InitState() InitState
	// StaticFields snapshots the class's static field descriptors.
	StaticFields() []FieldDescriptor
	// FieldIsDefault reports whether the field's live value still equals
	// the zero default for its type. This cannot distinguish "never set"
	// from "explicitly set to the default"; callers accept the
	// approximation.
	FieldIsDefault(fd FieldDescriptor) bool

	// TrainingRecord returns the cached back-reference, or nil.
	TrainingRecord() *ClassRecord
	// SetTrainingRecord publishes the back-reference cache.
	SetTrainingRecord(*ClassRecord)
}

// MethodHandle is the registry's view of a live method.
type MethodHandle interface {
	// Name returns the method's symbolic name.
	Name() string
	// Signature returns the method's type signature.
	Signature() string
	// Holder returns the class defining this method.
	Holder() ClassHandle

	// TrainingRecord returns the cached back-reference, or nil.
	TrainingRecord() *MethodRecord
	// SetTrainingRecord publishes the back-reference cache.
	SetTrainingRecord(*MethodRecord)
}

// CompileTask is the registry's view of one compilation request.
// Timestamps and code size are reported through the compile record's
// Mark* notifications as the task moves through its lifecycle.
type CompileTask interface {
	// ID returns the process-wide monotonic compile id.
	ID() int
	// Tier returns the requested compilation tier.
	Tier() int
	// Method returns the top-level method being compiled.
	Method() MethodHandle
}
