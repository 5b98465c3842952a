package vm

// execIndexGet handles OpIndexGet (spec.md §4.3 Index access):
// list+SMI bounds-checked get, json+string lookup, struct+string
// field lookup, struct+SMI legacy positional field lookup, else
// `operator get(object, index)`.
func (vm *VM) execIndexGet() error {
	index := vm.pop()
	recv := vm.pop()

	switch {
	case recv.Is(KindList) && index.IsInt():
		list := vm.heap.List(recv)
		i := int(index.AsInt())
		if i < 0 || i >= len(list.Elements) {
			return newRuntimeError(vm.currentLine(), "list index %d out of bounds (len %d)", i, len(list.Elements))
		}
		vm.push(list.Elements[i])
		return nil

	case recv.Is(KindJson) && index.Is(KindString):
		j := vm.heap.Json(recv)
		v, ok := j.Get(vm.heap.String(index).Value)
		if !ok {
			vm.push(NullVal())
			return nil
		}
		vm.push(v)
		return nil

	case recv.Is(KindStruct) && index.Is(KindString):
		s := vm.heap.Struct(recv)
		shape := vm.heap.Shape(s.Shape)
		name := vm.heap.String(index).Value
		fi := shape.FieldIndex(name)
		if fi == -1 {
			return newRuntimeError(vm.currentLine(), "shape '%s' has no field '%s'", shape.Name, name)
		}
		vm.push(s.Fields[fi])
		return nil

	case recv.Is(KindStruct) && index.IsInt():
		// Deprecated legacy positional access (spec.md "Open Questions").
		s := vm.heap.Struct(recv)
		i := int(index.AsInt())
		if i < 0 || i >= len(s.Fields) {
			return newRuntimeError(vm.currentLine(), "struct field index %d out of bounds", i)
		}
		vm.push(s.Fields[i])
		return nil

	default:
		v, err := vm.dispatchGetSet(GetOp, recv, index, NullVal())
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}
}

// execIndexSet handles OpIndexSet (spec.md §4.3): symmetric to
// execIndexGet, ending with `operator set(object, index, value)`.
func (vm *VM) execIndexSet() error {
	value := vm.pop()
	index := vm.pop()
	recv := vm.pop()

	switch {
	case recv.Is(KindList) && index.IsInt():
		list := vm.heap.List(recv)
		i := int(index.AsInt())
		if i < 0 || i >= len(list.Elements) {
			return newRuntimeError(vm.currentLine(), "list index %d out of bounds (len %d)", i, len(list.Elements))
		}
		list.Elements[i] = value
		vm.push(value)
		return nil

	case recv.Is(KindJson) && index.Is(KindString):
		j := vm.heap.Json(recv)
		j.Set(vm.heap.String(index).Value, value)
		vm.push(value)
		return nil

	case recv.Is(KindStruct) && index.Is(KindString):
		s := vm.heap.Struct(recv)
		shape := vm.heap.Shape(s.Shape)
		name := vm.heap.String(index).Value
		fi := shape.FieldIndex(name)
		if fi == -1 {
			return newRuntimeError(vm.currentLine(), "shape '%s' has no field '%s'", shape.Name, name)
		}
		s.Fields[fi] = value
		vm.push(value)
		return nil

	default:
		v, err := vm.dispatchGetSet(SetOp, recv, index, value)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}
}

// dispatchGetSet invokes a shape's `get`/`set` operator method,
// bypassing the arithmetic inline-cache path entirely: get/set are
// never SMI-closure operators, so spec.md §4.4 never caches them.
func (vm *VM) dispatchGetSet(op Operator, recv, index, value Value) (Value, error) {
	id := vm.shapeIDOf(recv)
	shapeVal, ok := vm.shapeByID(id)
	if !ok {
		return NullVal(), operatorError(vm.typeName(recv), op)
	}
	shape := vm.heap.Shape(shapeVal)
	fn, ok := shape.Operators[op]
	if !ok {
		return NullVal(), operatorError(shape.Name, op)
	}
	if op == SetOp {
		return vm.callAndRun(fn, []Value{recv, index, value})
	}
	return vm.callAndRun(fn, []Value{recv, index})
}
