package vm

import (
	"math"
	"strconv"

	"github.com/kaubo-lang/kaubo/internal/kconfig"
)

// installStdlib builds the `std` module (spec.md §5 Standard library)
// and registers it both as a resolvable import and as a global so
// top-level scripts can reach it without an explicit `import` (the
// reference behaviour the invariant examples rely on).
func installStdlib(vm *VM) {
	mod := NewModule(kconfig.StdModuleName)

	native := func(name string, fn func(vm *VM, args []Value) (Value, error)) Value {
		return vm.heap.NewNative(&ObjNative{Name: name, Fn: fn})
	}
	nativeVM := func(name string, fn func(vm *VM, args []Value) (Value, error)) Value {
		return vm.heap.NewNativeVM(&ObjNativeVM{Name: name, Fn: fn})
	}

	exports := make([]Value, 14)
	exports[kconfig.StdPrint] = native("print", stdPrint)
	exports[kconfig.StdAssert] = native("assert", stdAssert)
	exports[kconfig.StdType] = nativeVM("type", stdType)
	exports[kconfig.StdToString] = nativeVM("to_string", stdToString)
	exports[kconfig.StdSqrt] = native("sqrt", stdMathUnary(math.Sqrt))
	exports[kconfig.StdSin] = native("sin", stdMathUnary(math.Sin))
	exports[kconfig.StdCos] = native("cos", stdMathUnary(math.Cos))
	exports[kconfig.StdFloor] = native("floor", stdMathUnary(math.Floor))
	exports[kconfig.StdCeil] = native("ceil", stdMathUnary(math.Ceil))
	exports[kconfig.StdPI] = FloatVal(math.Pi)
	exports[kconfig.StdE] = FloatVal(math.E)
	exports[kconfig.StdCreateCoroutine] = native("create_coroutine", stdCreateCoroutine)
	exports[kconfig.StdResume] = native("resume", stdResume)
	exports[kconfig.StdCoroutineStatus] = native("coroutine_status", stdCoroutineStatus)

	mod.Exports = exports
	names := []string{
		"print", "assert", "type", "to_string", "sqrt", "sin", "cos",
		"floor", "ceil", "PI", "E", "create_coroutine", "resume",
		"coroutine_status",
	}
	for i, n := range names {
		mod.ExportName[n] = i
	}

	modVal := vm.heap.NewModule(mod)
	vm.modules[kconfig.StdModuleName] = modVal
	vm.globals[kconfig.StdModuleName] = modVal
}

func stdPrint(vm *VM, args []Value) (Value, error) {
	for i, a := range args {
		if i > 0 {
			vm.out(" ")
		}
		vm.out(vm.displayString(a))
	}
	vm.out("\n")
	return NullVal(), nil
}

func stdAssert(vm *VM, args []Value) (Value, error) {
	if len(args) == 0 || !args[0].IsTruthy() {
		msg := "assertion failed"
		if len(args) > 1 && args[1].Is(KindString) {
			msg = vm.heap.String(args[1]).Value
		}
		return NullVal(), newRuntimeError(vm.currentLine(), "%s", msg)
	}
	return NullVal(), nil
}

func stdType(vm *VM, args []Value) (Value, error) {
	if len(args) == 0 {
		return NullVal(), newRuntimeError(vm.currentLine(), "type expects one argument")
	}
	return vm.heap.NewString(vm.typeName(args[0])), nil
}

func stdToString(vm *VM, args []Value) (Value, error) {
	if len(args) == 0 {
		return NullVal(), newRuntimeError(vm.currentLine(), "to_string expects one argument")
	}
	return vm.heap.NewString(vm.displayString(args[0])), nil
}

func stdMathUnary(f func(float64) float64) func(*VM, []Value) (Value, error) {
	return func(vm *VM, args []Value) (Value, error) {
		if len(args) == 0 || !isNumber(args[0]) {
			return NullVal(), newRuntimeError(vm.currentLine(), "expected a numeric argument")
		}
		return FloatVal(f(asFloat(args[0]))), nil
	}
}

func stdCreateCoroutine(vm *VM, args []Value) (Value, error) {
	if len(args) == 0 || !args[0].Is(KindClosure) {
		return NullVal(), newRuntimeError(vm.currentLine(), "create_coroutine expects a function")
	}
	return vm.heap.NewCoroutine(&ObjCoroutine{Entry: args[0], State: CoroutineSuspended}), nil
}

func stdResume(vm *VM, args []Value) (Value, error) {
	if len(args) == 0 || !args[0].Is(KindCoroutine) {
		return NullVal(), newRuntimeError(vm.currentLine(), "resume expects a coroutine")
	}
	result, _, err := vm.resumeCoroutine(vm.heap.Coroutine(args[0]), args[1:])
	return result, err
}

func stdCoroutineStatus(vm *VM, args []Value) (Value, error) {
	if len(args) == 0 || !args[0].Is(KindCoroutine) {
		return NullVal(), newRuntimeError(vm.currentLine(), "coroutine_status expects a coroutine")
	}
	return IntVal(int64(vm.heap.Coroutine(args[0]).State)), nil
}

// Display renders v the way std.print/to_string do; exported so a host
// embedding the VM (cmd/kaubo) can print an Interpret result without
// reimplementing value formatting.
func (vm *VM) Display(v Value) string { return vm.displayString(v) }

// displayString renders v the way std.print/to_string do: primitive
// values get their canonical textual form; a struct is rendered by its
// shape's `str` operator when it has one that returns a string, and
// otherwise by its shape name.
func (vm *VM) displayString(v Value) string {
	switch {
	case v.IsInt():
		return strconv.FormatInt(v.AsInt(), 10)
	case v.IsFloat():
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case v.IsBool():
		return strconv.FormatBool(v.AsBool())
	case v.IsNull():
		return "null"
	case v.Is(KindString):
		return vm.heap.String(v).Value
	case v.Is(KindStruct):
		if result, err := vm.invokeUnaryOperator(StrOp, v); err == nil && result.Is(KindString) {
			return vm.heap.String(result).Value
		}
		return vm.typeName(v)
	default:
		return vm.typeName(v)
	}
}
