package vm

import (
	"errors"
	"fmt"

	"github.com/kaubo-lang/kaubo/internal/kconfig"
)

var errStackUnderflow = errors.New("stack underflow")
var errTruncatedBytecode = errors.New("truncated bytecode")

// CallFrame is a single ongoing function call. Its locals are a
// dedicated vector, independent of the shared operand stack (spec.md
// §3; confirmed against the reference VM, whose CallFrame comments
// the operand stack as "独立于局部变量" - independent of local
// variables). openUpvalues tracks the upvalues this frame's locals
// have been captured into, so a block exit or frame return can close
// exactly the ones that need it.
type CallFrame struct {
	closure *ObjClosure
	chunk   *Chunk
	ip      int
	locals  []Value

	openUpvalues []*ObjUpvalue
}

// closeFrom closes every open upvalue captured from a local at slot
// >= fromSlot (spec.md §4.5), used both on block exit (OpCloseUpvalues)
// and on frame return (close everything still open).
func (f *CallFrame) closeFrom(fromSlot int) {
	kept := f.openUpvalues[:0]
	for _, up := range f.openUpvalues {
		if up.slot >= fromSlot {
			up.close()
		} else {
			kept = append(kept, up)
		}
	}
	f.openUpvalues = kept
}

// VM is the stack-based bytecode interpreter (spec.md §4).
type VM struct {
	stack []Value
	sp    int

	frames     []*CallFrame
	frameCount int
	frame      *CallFrame

	globals map[string]Value
	heap    *Heap

	// shapes is the process-wide shape table (spec.md §6.3): built-in
	// ids 0-6 registered at New(), user shapes registered by the host
	// after the type-resolution pass via RegisterShape, ahead of
	// Interpret.
	shapes map[uint16]Value

	modules map[string]Value // name -> KindModule Value, populated by OpBuildModule and stdlib install

	// out is where std.print and friends write; tests substitute a buffer.
	out func(string)
}

// New creates a VM with the standard library installed (spec.md §5).
func New() *VM {
	vm := &VM{
		stack:   make([]Value, kconfig.InitialStackSize),
		globals: make(map[string]Value),
		heap:    newHeap(),
		modules: make(map[string]Value),
		out:     func(s string) { fmt.Print(s) },
	}
	vm.frames = make([]*CallFrame, kconfig.InitialFrameCount)
	vm.shapes = make(map[uint16]Value, 16)
	vm.registerBuiltinShapes()
	installStdlib(vm)
	return vm
}

// SetOutput redirects std.print output.
func (vm *VM) SetOutput(w func(string)) { vm.out = w }

// Heap returns the arena the VM allocates against. The compiler needs
// it to realize string/function constants directly as live heap
// values at compile time (compiler.go), since a Value's heap
// reference is only meaningful against the heap that allocated it.
func (vm *VM) Heap() *Heap { return vm.heap }

// registerBuiltinShapes installs the seven reserved primitive shapes
// (spec.md §6.3) so operator/method dispatch on primitive values can
// look them up the same way as user shapes.
func (vm *VM) registerBuiltinShapes() {
	prims := []struct {
		id   uint16
		name string
	}{
		{kconfig.ShapeInt, "Int"}, {kconfig.ShapeFloat, "Float"},
		{kconfig.ShapeString, "String"}, {kconfig.ShapeList, "List"},
		{kconfig.ShapeJson, "Json"}, {kconfig.ShapeClosure, "Closure"},
		{kconfig.ShapeModule, "Module"},
	}
	for _, p := range prims {
		vm.shapes[p.id] = vm.heap.NewShape(NewShape(p.id, p.name, nil, nil))
	}
}

// RegisterShape installs a user-defined shape into the process-wide
// shape table (spec.md §6.3 VM::register_shape), ahead of Interpret.
func (vm *VM) RegisterShape(shape *ObjShape) {
	vm.shapes[shape.ID] = vm.heap.NewShape(shape)
}

func (vm *VM) shapeByID(id uint16) (Value, bool) {
	v, ok := vm.shapes[id]
	return v, ok
}

// LoadChunk performs chunk load-time registration (spec.md §4.3 "Chunk
// load-time registration"): installs every method_table/operator_table
// entry into its target shape. Must run once before Interpret/run
// executes the chunk's bytecode.
func (vm *VM) LoadChunk(chunk *Chunk) error {
	for _, e := range chunk.MethodTable {
		shapeVal, ok := vm.shapes[e.ShapeID]
		if !ok {
			return newRuntimeError(0, "method table references unknown shape id %d", e.ShapeID)
		}
		if int(e.ConstIdx) >= len(chunk.Constants) {
			return newRuntimeError(0, "method table constant index out of range")
		}
		vm.heap.Shape(shapeVal).SetMethod(int(e.MethodIdx), chunk.Constants[e.ConstIdx])
	}
	for _, e := range chunk.OperatorTable {
		shapeVal, ok := vm.shapes[e.ShapeID]
		if !ok {
			return newRuntimeError(0, "operator table references unknown shape id %d", e.ShapeID)
		}
		if int(e.ConstIdx) >= len(chunk.Constants) {
			return newRuntimeError(0, "operator table constant index out of range")
		}
		vm.heap.Shape(shapeVal).Operators[e.Operator] = chunk.Constants[e.ConstIdx]
	}
	return nil
}

// Interpret compiles nothing; it runs an already-compiled top-level
// Chunk to completion and returns its final value (spec.md §6.4).
func (vm *VM) Interpret(chunk *Chunk, localCount int) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	scriptFn := &ObjFunction{Name: "<script>", Chunk: chunk}
	closure := &ObjClosure{Function: scriptFn}

	vm.sp = 0
	vm.frameCount = 1
	vm.frames[0] = &CallFrame{
		closure: closure,
		chunk:   chunk,
		locals:  make([]Value, localCount),
	}
	vm.frame = vm.frames[0]

	return vm.run()
}

// run is the main dispatch loop. It returns once the top-level frame
// executes OpReturn/OpReturnValue, or OpHalt fires, or an error
// propagates out of an opcode handler.
func (vm *VM) run() (Value, error) {
	for {
		if vm.frame.ip >= len(vm.frame.chunk.Code) {
			// Control fell off the end of a frame without an explicit
			// return: implicit `return null` (spec.md §4.3).
			if done, err := vm.doReturn(NullVal()); done {
				return NullVal(), err
			}
			continue
		}

		op := OpCode(vm.frame.chunk.Code[vm.frame.ip])
		vm.frame.ip++

		switch op {
		case OpReturn:
			if done, err := vm.doReturn(NullVal()); done {
				return NullVal(), err
			}

		case OpReturnValue:
			result := vm.pop()
			if done, err := vm.doReturn(result); done {
				return result, err
			}

		case OpHalt:
			v := NullVal()
			if vm.sp > 0 {
				v = vm.pop()
			}
			return v, nil

		default:
			if err := vm.executeOneOp(op); err != nil {
				if errors.Is(err, errYield) {
					return NullVal(), err
				}
				return NullVal(), vm.wrapRuntimeError(err)
			}
		}
	}
}

// doReturn pops the current frame, closing its still-open upvalues.
// done is true once the outermost frame (the one Interpret pushed)
// returns, telling run() to stop; otherwise the caller's frame is
// resumed with result pushed and the dispatch loop continues.
func (vm *VM) doReturn(result Value) (done bool, err error) {
	vm.frame.closeFrom(0)
	vm.frameCount--
	if vm.frameCount == 0 {
		return true, nil
	}
	vm.frame = vm.frames[vm.frameCount-1]
	vm.push(result)
	return false, nil
}

func (vm *VM) wrapRuntimeError(err error) error {
	if _, ok := err.(*RuntimeError); ok {
		return err
	}
	line := uint32(0)
	if vm.frame != nil && vm.frame.ip-1 < len(vm.frame.chunk.Lines) && vm.frame.ip-1 >= 0 {
		line = vm.frame.chunk.Lines[vm.frame.ip-1]
	}
	return newRuntimeError(int(line), "%s", err.Error())
}

// Stack helpers

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		growBy := kconfig.StackGrowthIncrement
		if len(vm.stack) > growBy {
			growBy = len(vm.stack)
		}
		newStack := make([]Value, len(vm.stack)+growBy)
		copy(newStack, vm.stack[:vm.sp])
		vm.stack = newStack
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	if vm.sp <= 0 {
		panic(errStackUnderflow)
	}
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	idx := vm.sp - 1 - distance
	if idx < 0 {
		panic(errStackUnderflow)
	}
	return vm.stack[idx]
}

func (vm *VM) readByte() byte {
	if vm.frame.ip >= len(vm.frame.chunk.Code) {
		panic(errTruncatedBytecode)
	}
	b := vm.frame.chunk.Code[vm.frame.ip]
	vm.frame.ip++
	return b
}

func (vm *VM) readU16() uint16 {
	hi := vm.readByte()
	lo := vm.readByte()
	return uint16(hi) | uint16(lo)<<8
}

func (vm *VM) readConstant() Value {
	idx := vm.readByte()
	return vm.frame.chunk.Constants[idx]
}

func (vm *VM) currentLine() int {
	if vm.frame.ip-1 < 0 || vm.frame.ip-1 >= len(vm.frame.chunk.Lines) {
		return 0
	}
	return int(vm.frame.chunk.Lines[vm.frame.ip-1])
}

func (vm *VM) growFramesIfNeeded() {
	if vm.frameCount < len(vm.frames) {
		return
	}
	growBy := kconfig.FrameGrowthIncrement
	if len(vm.frames) > growBy {
		growBy = len(vm.frames)
	}
	newFrames := make([]*CallFrame, len(vm.frames)+growBy)
	copy(newFrames, vm.frames[:vm.frameCount])
	vm.frames = newFrames
}
