package vm

import "github.com/google/uuid"

// ObjString is an immutable UTF-8 byte vector (spec.md §3 Heap objects).
type ObjString struct {
	Value string
}

// ObjList is a dynamic array of Value.
type ObjList struct {
	Elements []Value
}

// ObjJson preserves insertion order, matching spec.md's "mapping from
// string key to Value (insertion-order preserved)".
type ObjJson struct {
	keys   []string
	values map[string]Value
}

func NewObjJson() *ObjJson {
	return &ObjJson{values: make(map[string]Value)}
}

func (j *ObjJson) Get(key string) (Value, bool) {
	v, ok := j.values[key]
	return v, ok
}

// Set inserts or overwrites key, preserving first-insertion order.
func (j *ObjJson) Set(key string, v Value) {
	if _, exists := j.values[key]; !exists {
		j.keys = append(j.keys, key)
	}
	j.values[key] = v
}

func (j *ObjJson) Len() int { return len(j.keys) }

// Keys returns keys in insertion order (used by JSON key iterators).
func (j *ObjJson) Keys() []string {
	out := make([]string, len(j.keys))
	copy(out, j.keys)
	return out
}

// ObjFunction is a compiled function body: arity, optional name, and
// its owned Chunk. Arity 255 marks a variadic function.
type ObjFunction struct {
	Arity      int // 0-254; 255 means variadic
	Name       string
	Chunk      *Chunk
	LocalCount int // slots to preallocate in each call's CallFrame.locals
}

const VariadicArity = 255

// ObjClosure binds an ObjFunction to its captured upvalues. Upvalues
// are never first-class language values, so they're held directly
// rather than boxed through the heap arena like other objects.
type ObjClosure struct {
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

// ObjUpvalue is open (pointing at a live CallFrame's dedicated locals
// slot) or closed (owning its own Value), per spec.md §4.5's Upvalue
// state machine. Kaubo frames keep locals in a vector separate from
// the operand stack (confirmed against the reference VM's CallFrame,
// which comments its operand stack as "independent of local
// variables"), so an open upvalue points at a frame and a slot within
// that frame's locals rather than at an offset into a shared stack.
type ObjUpvalue struct {
	open   bool
	frame  *CallFrame // valid when open
	slot   int        // valid when open: index into frame.locals
	closed Value
}

func (u *ObjUpvalue) get() Value {
	if u.open {
		return u.frame.locals[u.slot]
	}
	return u.closed
}

func (u *ObjUpvalue) set(v Value) {
	if u.open {
		u.frame.locals[u.slot] = v
		return
	}
	u.closed = v
}

// close snapshots the current value and detaches from the frame, so
// the upvalue keeps working after the owning frame is popped.
func (u *ObjUpvalue) close() {
	u.closed = u.frame.locals[u.slot]
	u.open = false
	u.frame = nil
}

// Operator names the overloadable operator enum used by shapes'
// operator table and the VM's operator dispatch (spec.md §4.4).
type Operator string

// Operator name constants carry an Op suffix (AddOp, not OpAdd) so
// they never collide with the OpXxx bytecode OpCode constants in
// opcodes.go, which share this package.
const (
	AddOp  Operator = "add"
	RAddOp Operator = "radd"
	SubOp  Operator = "sub"
	RSubOp Operator = "rsub"
	MulOp  Operator = "mul"
	RMulOp Operator = "rmul"
	DivOp  Operator = "div"
	RDivOp Operator = "rdiv"
	ModOp  Operator = "mod"
	RModOp Operator = "rmod"
	LtOp   Operator = "lt"
	LeOp   Operator = "le"
	StrOp  Operator = "str"
	GetOp  Operator = "get"
	SetOp  Operator = "set"
	CallOp Operator = "call"
)

// reverseOperator maps an operator to its reverse-dispatch counterpart.
// Only the five arithmetic operators have one (spec.md §4.4 "Reverse-operator
// table"; confirmed exhaustive by original_source/.../vm/operators.rs).
var reverseOperator = map[Operator]Operator{
	AddOp: RAddOp,
	SubOp: RSubOp,
	MulOp: RMulOp,
	DivOp: RDivOp,
	ModOp: RModOp,
}

// ObjShape is the compile-time identity of a user type or built-in type
// (spec.md §3 Heap objects, Shape table).
type ObjShape struct {
	ID         uint16
	Name       string
	FieldNames []string
	FieldTypes []string
	Methods    []Value // indexed by method index; each a callable Value or NullVal()
	Operators  map[Operator]Value
}

func NewShape(id uint16, name string, fieldNames, fieldTypes []string) *ObjShape {
	return &ObjShape{
		ID:         id,
		Name:       name,
		FieldNames: fieldNames,
		FieldTypes: fieldTypes,
		Operators:  make(map[Operator]Value),
	}
}

// FieldIndex returns the index of name in FieldNames, or -1.
func (s *ObjShape) FieldIndex(name string) int {
	for i, n := range s.FieldNames {
		if n == name {
			return i
		}
	}
	return -1
}

func (s *ObjShape) SetMethod(idx int, fn Value) {
	for len(s.Methods) <= idx {
		s.Methods = append(s.Methods, NullVal())
	}
	s.Methods[idx] = fn
}

// ObjStruct is an instance of a user-defined shape.
type ObjStruct struct {
	Shape  Value // KindShape
	Fields []Value
}

// ObjModule is a compiled module's exported value table.
type ObjModule struct {
	Name       string
	Exports    []Value
	ExportName map[string]int
}

func NewModule(name string) *ObjModule {
	return &ObjModule{Name: name, ExportName: make(map[string]int)}
}

func (m *ObjModule) AddExport(name string, v Value) int {
	idx := len(m.Exports)
	m.Exports = append(m.Exports, v)
	m.ExportName[name] = idx
	return idx
}

// CoroutineState is the lifecycle state of an ObjCoroutine (spec.md §4.5).
type CoroutineState int

const (
	CoroutineSuspended CoroutineState = iota
	CoroutineRunning
	CoroutineDead
)

// ObjCoroutine snapshots an execution context: stack, frames, and open
// upvalues, so it can be swapped in and out of the VM's live state.
type ObjCoroutine struct {
	ID      uuid.UUID
	Entry   Value // KindClosure
	State   CoroutineState
	started bool

	stack      []Value
	sp         int
	frames     []*CallFrame
	frameCount int
}

// IteratorKind discriminates the three ObjIterator variants.
type IteratorKind int

const (
	IterList IteratorKind = iota
	IterCoroutine
	IterJsonKeys
)

// ObjIterator is one of ListIter/CoroutineIter/JsonKeyIter (spec.md §3).
type ObjIterator struct {
	Kind       IteratorKind
	List       Value // KindList, when Kind == IterList
	Cursor     int
	Coroutine  Value // KindCoroutine, when Kind == IterCoroutine
	Keys       []string
	KeyCursor  int
}

// ObjNative wraps a Go function exposed to Kaubo code as a stdlib
// builtin (spec.md's "native functions" heap-object kind). The body of
// the native function itself is outside this module's scope (spec.md
// §1: "standard-library native functions"); only the calling
// convention is.
type ObjNative struct {
	Name string
	Fn   func(vm *VM, args []Value) (Value, error)
}

// ObjNativeVM is a native function that needs direct access to VM
// internals beyond argument passing (e.g. std.create_coroutine, which
// must allocate an ObjCoroutine through the VM's heap).
type ObjNativeVM struct {
	Name string
	Fn   func(vm *VM, args []Value) (Value, error)
}
