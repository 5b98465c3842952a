package vm

import "github.com/kaubo-lang/kaubo/internal/kconfig"

// List built-in method indices (spec.md §4.3 Built-in method dispatch).
const (
	listPush = iota
	listLen
	listRemove
	listClear
	listIsEmpty
	listForeach
	listMap
	listFilter
	listReduce
	listFind
	listAny
	listAll
)

// String/Json built-in method indices share the same small table shape.
const (
	strLen = iota
	strIsEmpty
)

// execCallBuiltin handles OpCallBuiltin: stack layout is
// [receiver, arg1, ..., argN] with argCount counting the receiver.
func (vm *VM) execCallBuiltin(typeTag, methodIdx uint8, argCount int) error {
	args := make([]Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	receiver := args[0]
	rest := args[1:]

	switch typeTag {
	case kconfig.ShapeList:
		return vm.callListBuiltin(methodIdx, receiver, rest)
	case kconfig.ShapeString:
		return vm.callStringBuiltin(methodIdx, receiver, rest)
	case kconfig.ShapeJson:
		return vm.callJsonBuiltin(methodIdx, receiver, rest)
	}
	return newRuntimeError(vm.currentLine(), "unknown built-in receiver type tag %d", typeTag)
}

func (vm *VM) callListBuiltin(methodIdx uint8, receiver Value, args []Value) error {
	if !receiver.Is(KindList) {
		return newRuntimeError(vm.currentLine(), "built-in list method called on non-list receiver")
	}
	list := vm.heap.List(receiver)

	switch methodIdx {
	case listPush:
		list.Elements = append(list.Elements, args[0])
		vm.push(NullVal())
		return nil

	case listLen:
		vm.push(IntVal(int64(len(list.Elements))))
		return nil

	case listRemove:
		i := int(args[0].AsInt())
		if i < 0 || i >= len(list.Elements) {
			return newRuntimeError(vm.currentLine(), "list index %d out of bounds (len %d)", i, len(list.Elements))
		}
		removed := list.Elements[i]
		list.Elements = append(list.Elements[:i], list.Elements[i+1:]...)
		vm.push(removed)
		return nil

	case listClear:
		list.Elements = list.Elements[:0]
		vm.push(NullVal())
		return nil

	case listIsEmpty:
		vm.push(BoolVal(len(list.Elements) == 0))
		return nil

	case listForeach:
		fn := args[0]
		for _, elem := range list.Elements {
			if _, err := vm.callAndRun(fn, []Value{elem}); err != nil {
				return err
			}
		}
		vm.push(NullVal())
		return nil

	case listMap:
		fn := args[0]
		result := make([]Value, 0, len(list.Elements))
		for _, elem := range list.Elements {
			v, err := vm.callAndRun(fn, []Value{elem})
			if err != nil {
				return err
			}
			result = append(result, v)
		}
		vm.push(vm.heap.NewList(result))
		return nil

	case listFilter:
		fn := args[0]
		result := make([]Value, 0, len(list.Elements))
		for _, elem := range list.Elements {
			v, err := vm.callAndRun(fn, []Value{elem})
			if err != nil {
				return err
			}
			if v.IsTruthy() {
				result = append(result, elem)
			}
		}
		vm.push(vm.heap.NewList(result))
		return nil

	case listReduce:
		fn, acc := args[0], args[1]
		for _, elem := range list.Elements {
			v, err := vm.callAndRun(fn, []Value{acc, elem})
			if err != nil {
				return err
			}
			acc = v
		}
		vm.push(acc)
		return nil

	case listFind:
		fn := args[0]
		for _, elem := range list.Elements {
			v, err := vm.callAndRun(fn, []Value{elem})
			if err != nil {
				return err
			}
			if v.IsTruthy() {
				vm.push(elem)
				return nil
			}
		}
		vm.push(NullVal())
		return nil

	case listAny:
		fn := args[0]
		for _, elem := range list.Elements {
			v, err := vm.callAndRun(fn, []Value{elem})
			if err != nil {
				return err
			}
			if v.IsTruthy() {
				vm.push(BoolVal(true))
				return nil
			}
		}
		vm.push(BoolVal(false))
		return nil

	case listAll:
		fn := args[0]
		for _, elem := range list.Elements {
			v, err := vm.callAndRun(fn, []Value{elem})
			if err != nil {
				return err
			}
			if !v.IsTruthy() {
				vm.push(BoolVal(false))
				return nil
			}
		}
		vm.push(BoolVal(true))
		return nil
	}
	return newRuntimeError(vm.currentLine(), "unknown list method index %d", methodIdx)
}

func (vm *VM) callStringBuiltin(methodIdx uint8, receiver Value, args []Value) error {
	if !receiver.Is(KindString) {
		return newRuntimeError(vm.currentLine(), "built-in string method called on non-string receiver")
	}
	s := vm.heap.String(receiver)
	switch methodIdx {
	case strLen:
		vm.push(IntVal(int64(len(s.Value))))
		return nil
	case strIsEmpty:
		vm.push(BoolVal(len(s.Value) == 0))
		return nil
	}
	return newRuntimeError(vm.currentLine(), "unknown string method index %d", methodIdx)
}

func (vm *VM) callJsonBuiltin(methodIdx uint8, receiver Value, args []Value) error {
	if !receiver.Is(KindJson) {
		return newRuntimeError(vm.currentLine(), "built-in json method called on non-json receiver")
	}
	j := vm.heap.Json(receiver)
	switch methodIdx {
	case strLen:
		vm.push(IntVal(int64(j.Len())))
		return nil
	case strIsEmpty:
		vm.push(BoolVal(j.Len() == 0))
		return nil
	}
	return newRuntimeError(vm.currentLine(), "unknown json method index %d", methodIdx)
}
