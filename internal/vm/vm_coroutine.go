package vm

import (
	"errors"

	"github.com/kaubo-lang/kaubo/internal/kconfig"
)

// execCreateCoroutine handles OpCreateCoroutine: pops a closure,
// pushes a fresh Suspended coroutine wrapping it (spec.md §4.3
// Coroutines).
func (vm *VM) execCreateCoroutine() error {
	entry := vm.pop()
	if !entry.Is(KindClosure) {
		return newRuntimeError(vm.currentLine(), "create_coroutine expects a function")
	}
	vm.push(vm.heap.NewCoroutine(&ObjCoroutine{Entry: entry, State: CoroutineSuspended}))
	return nil
}

// execResume handles OpResume(arg_count): per spec.md §4.3, the
// coroutine is popped first, then the resume arguments below it.
func (vm *VM) execResume(argCount int) error {
	coVal := vm.pop()
	args := make([]Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	if !coVal.Is(KindCoroutine) {
		return newRuntimeError(vm.currentLine(), "can only resume a coroutine")
	}
	result, _, err := vm.resumeCoroutine(vm.heap.Coroutine(coVal), args)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

// execCoroutineStatus handles OpCoroutineStatus: pushes 0/1/2 for
// Suspended/Running/Dead (spec.md §4.3).
func (vm *VM) execCoroutineStatus() error {
	coVal := vm.pop()
	if !coVal.Is(KindCoroutine) {
		return newRuntimeError(vm.currentLine(), "status expects a coroutine")
	}
	vm.push(IntVal(int64(vm.heap.Coroutine(coVal).State)))
	return nil
}

// execYield handles OpYield: pops the yielded value and pushes it
// straight back, so it sits at the coroutine's stack top once the
// dispatch loop unwinds (spec.md §4.3 Yield), then signals
// suspension via the errYield sentinel.
func (vm *VM) execYield() error {
	v := vm.pop()
	vm.push(v)
	return errYield
}

// resumeCoroutine implements spec.md §4.3 Resume: on first entry it
// builds the coroutine's initial frame directly (bypassing the normal
// call-argument stack dance, since the coroutine has no operand stack
// yet); on later entries, the first resume argument, if any, replaces
// the value left on the coroutine's stack at the yield site, so it
// becomes the value of the yield expression; further arguments are
// dropped. Returns the produced value and whether the coroutine is
// still alive (yielded=true) or finished (yielded=false).
func (vm *VM) resumeCoroutine(co *ObjCoroutine, args []Value) (result Value, yielded bool, err error) {
	if co.State == CoroutineDead {
		return NullVal(), false, newRuntimeError(vm.currentLine(), "cannot resume a dead coroutine")
	}

	savedStack, savedSp := vm.stack, vm.sp
	savedFrames, savedFrameCount, savedFrame := vm.frames, vm.frameCount, vm.frame

	if !co.started {
		closure := vm.heap.Closure(co.Entry)
		fn := closure.Function
		if fn.Arity != VariadicArity && len(args) != fn.Arity {
			return NullVal(), false, newRuntimeError(vm.currentLine(),
				"coroutine expected %d arguments but got %d", fn.Arity, len(args))
		}
		locals := make([]Value, fn.LocalCount)
		copy(locals, args)

		co.stack = make([]Value, kconfig.InitialStackSize)
		co.sp = 0
		co.frames = make([]*CallFrame, kconfig.InitialFrameCount)
		co.frames[0] = &CallFrame{closure: closure, chunk: fn.Chunk, locals: locals}
		co.frameCount = 1
		co.started = true
	} else if len(args) > 0 && co.sp > 0 {
		co.stack[co.sp-1] = args[0]
	}

	co.State = CoroutineRunning
	vm.stack, vm.sp = co.stack, co.sp
	vm.frames, vm.frameCount = co.frames, co.frameCount
	vm.frame = vm.frames[vm.frameCount-1]

	runResult, runErr := vm.run()

	co.stack, co.sp = vm.stack, vm.sp
	co.frames, co.frameCount = vm.frames, vm.frameCount
	vm.stack, vm.sp = savedStack, savedSp
	vm.frames, vm.frameCount, vm.frame = savedFrames, savedFrameCount, savedFrame

	if runErr != nil {
		if errors.Is(runErr, errYield) {
			co.State = CoroutineSuspended
			yieldedValue := NullVal()
			if co.sp > 0 {
				yieldedValue = co.stack[co.sp-1]
			}
			return yieldedValue, true, nil
		}
		co.State = CoroutineDead
		return NullVal(), false, runErr
	}

	co.State = CoroutineDead
	return runResult, false, nil
}
