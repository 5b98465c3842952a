package vm

// Heap is the arena every heap-allocated object lives in for the
// lifetime of a VM. Allocation only ever appends; nothing is ever
// removed. See the Value doc comment for why that is the correct,
// GC-safe adaptation of the reference implementation's documented
// leak-by-design heap (spec.md §9).
type Heap struct {
	entries []any
}

func newHeap() *Heap {
	return &Heap{entries: make([]any, 0, 256)}
}

func (h *Heap) alloc(kind ObjKind, obj any) Value {
	idx := uint32(len(h.entries))
	h.entries = append(h.entries, obj)
	return objVal(kind, idx)
}

func (h *Heap) get(v Value) any {
	return h.entries[v.objIndex()]
}

func (h *Heap) NewString(s string) Value {
	return h.alloc(KindString, &ObjString{Value: s})
}

func (h *Heap) NewList(elems []Value) Value {
	return h.alloc(KindList, &ObjList{Elements: elems})
}

func (h *Heap) NewJson(j *ObjJson) Value {
	return h.alloc(KindJson, j)
}

func (h *Heap) NewFunction(f *ObjFunction) Value {
	return h.alloc(KindFunction, f)
}

func (h *Heap) NewClosure(c *ObjClosure) Value {
	return h.alloc(KindClosure, c)
}

func (h *Heap) NewStruct(s *ObjStruct) Value {
	return h.alloc(KindStruct, s)
}

func (h *Heap) NewShape(s *ObjShape) Value {
	return h.alloc(KindShape, s)
}

func (h *Heap) NewModule(m *ObjModule) Value {
	return h.alloc(KindModule, m)
}

func (h *Heap) NewCoroutine(c *ObjCoroutine) Value {
	return h.alloc(KindCoroutine, c)
}

func (h *Heap) NewIterator(it *ObjIterator) Value {
	return h.alloc(KindIterator, it)
}

func (h *Heap) NewNative(n *ObjNative) Value {
	return h.alloc(KindNative, n)
}

func (h *Heap) NewNativeVM(n *ObjNativeVM) Value {
	return h.alloc(KindNativeVM, n)
}

// Typed accessors. Each panics on kind mismatch, which can only happen
// from a VM bug (spec.md §7: stack underflow/opcode misuse are bugs,
// not user-facing errors) since the compiler only ever emits opcodes
// whose operand kinds it statically knows.

func (h *Heap) String(v Value) *ObjString       { return h.get(v).(*ObjString) }
func (h *Heap) List(v Value) *ObjList           { return h.get(v).(*ObjList) }
func (h *Heap) Json(v Value) *ObjJson           { return h.get(v).(*ObjJson) }
func (h *Heap) Function(v Value) *ObjFunction   { return h.get(v).(*ObjFunction) }
func (h *Heap) Closure(v Value) *ObjClosure     { return h.get(v).(*ObjClosure) }
func (h *Heap) Struct(v Value) *ObjStruct       { return h.get(v).(*ObjStruct) }
func (h *Heap) Shape(v Value) *ObjShape         { return h.get(v).(*ObjShape) }
func (h *Heap) Module(v Value) *ObjModule       { return h.get(v).(*ObjModule) }
func (h *Heap) Coroutine(v Value) *ObjCoroutine { return h.get(v).(*ObjCoroutine) }
func (h *Heap) Iterator(v Value) *ObjIterator   { return h.get(v).(*ObjIterator) }
func (h *Heap) Native(v Value) *ObjNative       { return h.get(v).(*ObjNative) }
func (h *Heap) NativeVM(v Value) *ObjNativeVM   { return h.get(v).(*ObjNativeVM) }
