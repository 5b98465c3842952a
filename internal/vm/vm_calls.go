package vm

import "github.com/kaubo-lang/kaubo/internal/kconfig"

// callValue dispatches OpCall's callee (spec.md §4.3 Call) to whichever
// kind of callable Value it is. OpResume does not come through here; it
// goes through resumeCoroutine.
func (vm *VM) callValue(callee Value, argCount int) error {
	if !callee.IsObj() {
		return newRuntimeError(vm.currentLine(), "value is not callable")
	}
	switch callee.Kind() {
	case KindClosure:
		return vm.callClosure(vm.heap.Closure(callee), argCount)
	case KindNative:
		return vm.callNative(vm.heap.Native(callee), argCount)
	case KindNativeVM:
		return vm.callNativeVM(vm.heap.NativeVM(callee), argCount)
	default:
		return newRuntimeError(vm.currentLine(), "value is not callable")
	}
}

// callClosure pushes a new CallFrame for closure, moving the argCount
// values already on the operand stack into the frame's dedicated
// locals vector (spec.md §3: frame locals are independent of the
// operand stack).
func (vm *VM) callClosure(closure *ObjClosure, argCount int) error {
	fn := closure.Function

	if fn.Arity == VariadicArity {
		// Any argument count is accepted. Arguments are copied into the
		// leading local slots; those beyond LocalCount are dropped, and
		// no list of extra arguments is built.
	} else if argCount != fn.Arity {
		name := fn.Name
		if name == "" {
			name = "<anonymous>"
		}
		return newRuntimeError(vm.currentLine(), "%s expected %d arguments but got %d", name, fn.Arity, argCount)
	}

	if vm.frameCount >= kconfig.MaxFrameCount {
		return newRuntimeError(vm.currentLine(), "stack overflow")
	}
	vm.growFramesIfNeeded()

	locals := make([]Value, fn.LocalCount)
	for i := argCount - 1; i >= 0; i-- {
		if i < len(locals) {
			locals[i] = vm.pop()
		} else {
			vm.pop()
		}
	}
	vm.pop() // the callee itself

	frame := &CallFrame{closure: closure, chunk: fn.Chunk, locals: locals}
	vm.frames[vm.frameCount] = frame
	vm.frameCount++
	vm.frame = frame
	return nil
}

// callNative invokes a native function: its arguments are consumed
// directly from the operand stack, no frame is pushed (spec.md §5).
func (vm *VM) callNative(n *ObjNative, argCount int) error {
	args := make([]Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	vm.pop() // the callee itself
	result, err := n.Fn(vm, args)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

func (vm *VM) callNativeVM(n *ObjNativeVM, argCount int) error {
	args := make([]Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	vm.pop() // the callee itself
	result, err := n.Fn(vm, args)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

// callAndRun performs a full synchronous nested call: it pushes a
// frame for callee, then recursively drives the dispatch loop until
// that frame (and only that frame) returns. Used by operator/method
// dispatch and by built-in higher-order list methods, where the VM
// needs the callee's result back in Go code rather than leaving it on
// the operand stack for the enclosing bytecode to consume.
func (vm *VM) callAndRun(callee Value, args []Value) (Value, error) {
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	savedFrameCount := vm.frameCount
	if err := vm.callValue(callee, len(args)); err != nil {
		return NullVal(), err
	}
	if vm.frameCount <= savedFrameCount {
		// A native callable ran inline with no frame push: result is on
		// top of the stack already.
		return vm.pop(), nil
	}
	return vm.runUntilFrame(savedFrameCount)
}

// runUntilFrame drives the dispatch loop until frameCount drops back
// to target, returning the value that call produced.
func (vm *VM) runUntilFrame(target int) (Value, error) {
	for {
		if vm.frame.ip >= len(vm.frame.chunk.Code) {
			vm.push(NullVal())
			if done, err := vm.doReturnTo(target); done {
				return vm.pop(), err
			}
			continue
		}
		op := OpCode(vm.frame.chunk.Code[vm.frame.ip])
		vm.frame.ip++

		switch op {
		case OpReturn:
			vm.push(NullVal())
			if done, err := vm.doReturnTo(target); done {
				return vm.pop(), err
			}
		case OpReturnValue:
			result := vm.pop()
			vm.push(result)
			if done, err := vm.doReturnTo(target); done {
				return vm.pop(), err
			}
		case OpHalt:
			v := NullVal()
			if vm.sp > 0 {
				v = vm.pop()
			}
			return v, nil
		default:
			if err := vm.executeOneOp(op); err != nil {
				return NullVal(), vm.wrapRuntimeError(err)
			}
		}
	}
}

// doReturnTo mirrors doReturn but stops once frameCount reaches
// target rather than 0, so callAndRun can nest inside an already
// running dispatch loop.
func (vm *VM) doReturnTo(target int) (done bool, err error) {
	result := vm.pop()
	vm.frame.closeFrom(0)
	vm.frameCount--
	if vm.frameCount <= target {
		if vm.frameCount > 0 {
			vm.frame = vm.frames[vm.frameCount-1]
		}
		vm.push(result)
		return true, nil
	}
	vm.frame = vm.frames[vm.frameCount-1]
	vm.push(result)
	return false, nil
}

// captureUpvalue returns the (possibly newly created) open upvalue
// pointing at frame's local slot, reusing one already captured for
// the same slot (spec.md §4.5).
func (vm *VM) captureUpvalue(frame *CallFrame, slot int) *ObjUpvalue {
	for _, up := range frame.openUpvalues {
		if up.slot == slot {
			return up
		}
	}
	up := &ObjUpvalue{open: true, frame: frame, slot: slot}
	frame.openUpvalues = append(frame.openUpvalues, up)
	return up
}
