package training

// ---------------------------------------------------------------------------
// Key: Symbolic record identity
// ---------------------------------------------------------------------------

// Key identifies a record across process runs by symbolic names rather
// than live VM pointers. A class key carries a class name and a loader
// name; a method key additionally carries a method name and signature.
//
// All four fields must be interned through the registry's SymbolTable:
// equality and hashing are pointer-identity based, which is only correct
// because logically equal names intern to the same *Symbol. This is a
// documented invariant, not an optimization.
type Key struct {
	klassName  *Symbol
	loaderName *Symbol
	methodName *Symbol
	signature  *Symbol
}

// ClassKey builds the key for a class record.
func ClassKey(klassName, loaderName *Symbol) Key {
	return Key{klassName: klassName, loaderName: loaderName}
}

// MethodKey builds the key for a method record.
func MethodKey(klassName, loaderName, methodName, signature *Symbol) Key {
	return Key{
		klassName:  klassName,
		loaderName: loaderName,
		methodName: methodName,
		signature:  signature,
	}
}

// KeyForClass builds a class key from a live class handle.
func KeyForClass(st *SymbolTable, klass ClassHandle) Key {
	return ClassKey(st.Intern(klass.Name()), st.Intern(klass.LoaderName()))
}

// KeyForMethod builds a method key from a live method handle.
func KeyForMethod(st *SymbolTable, method MethodHandle) Key {
	holder := method.Holder()
	return MethodKey(
		st.Intern(holder.Name()),
		st.Intern(holder.LoaderName()),
		st.Intern(method.Name()),
		st.Intern(method.Signature()),
	)
}

// IsEmpty reports whether the key has no components at all.
// Compile records carry the empty key; they are reached through their
// method's chain, never through the store.
func (k Key) IsEmpty() bool {
	return k.klassName == nil && k.loaderName == nil &&
		k.methodName == nil && k.signature == nil
}

// IsMethod reports whether the key names a method rather than a class.
func (k Key) IsMethod() bool { return k.methodName != nil }

// ClassOnly strips the method components, yielding the owning class key.
func (k Key) ClassOnly() Key {
	return Key{klassName: k.klassName, loaderName: k.loaderName}
}

func (k Key) KlassName() *Symbol  { return k.klassName }
func (k Key) LoaderName() *Symbol { return k.loaderName }
func (k Key) MethodName() *Symbol { return k.methodName }
func (k Key) Signature() *Symbol  { return k.signature }

// Compare defines the deterministic total order over keys used when
// sorting records for a dump. Absent components sort first.
func (k Key) Compare(other Key) int {
	if c := k.klassName.Compare(other.klassName); c != 0 {
		return c
	}
	if c := k.loaderName.Compare(other.loaderName); c != 0 {
		return c
	}
	if c := k.methodName.Compare(other.methodName); c != 0 {
		return c
	}
	return k.signature.Compare(other.signature)
}

func (k Key) String() string {
	if k.IsEmpty() {
		return "<empty>"
	}
	s := k.klassName.Name()
	if k.loaderName != nil {
		s += "@" + k.loaderName.Name()
	}
	if k.IsMethod() {
		s += "." + k.methodName.Name() + k.signature.Name()
	}
	return s
}
