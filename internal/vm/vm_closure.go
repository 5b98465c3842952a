package vm

// execClosure handles OpClosure: wraps the function constant in a
// fresh ObjClosure, resolving each upvalue descriptor against the
// current frame (spec.md §4.3 Closure construction).
func (vm *VM) execClosure() error {
	fnVal := vm.readConstant()
	fn := vm.heap.Function(fnVal)
	n := int(vm.readByte())

	ups := make([]*ObjUpvalue, n)
	for i := 0; i < n; i++ {
		isLocal := vm.readByte() != 0
		index := int(vm.readByte())
		if isLocal {
			ups[i] = vm.captureUpvalue(vm.frame, index)
		} else {
			ups[i] = vm.frame.closure.Upvalues[index]
		}
	}
	vm.push(vm.heap.NewClosure(&ObjClosure{Function: fn, Upvalues: ups}))
	return nil
}

// execBuildModule handles OpBuildModule: pops `export count` values
// (reverse order, matching struct-literal convention) and builds an
// ObjModule, then registers it under its declared name both as a
// bindable value and in the VM's by-name module table so a later
// `import` resolves GetModule against it (spec.md §4.3/§6 Module decl).
func (vm *VM) execBuildModule() error {
	nameIdx := vm.readByte()
	exportCount := int(vm.readByte())

	values := make([]Value, exportCount)
	for i := exportCount - 1; i >= 0; i-- {
		values[i] = vm.pop()
	}
	name := vm.heap.String(vm.frame.chunk.Constants[nameIdx]).Value

	mod := NewModule(name)
	mod.Exports = values
	modVal := vm.heap.NewModule(mod)
	vm.modules[name] = modVal
	vm.push(modVal)
	return nil
}

// execGetField handles OpGetField: struct field access by
// compile-time-resolved index (spec.md §4.3 member access).
func (vm *VM) execGetField(idx int) error {
	recv := vm.pop()
	if !recv.Is(KindStruct) {
		return newRuntimeError(vm.currentLine(), "cannot access field of non-struct value")
	}
	s := vm.heap.Struct(recv)
	if idx >= len(s.Fields) {
		return newRuntimeError(vm.currentLine(), "field index %d out of range", idx)
	}
	vm.push(s.Fields[idx])
	return nil
}

func (vm *VM) execSetField(idx int) error {
	value := vm.pop()
	recv := vm.pop()
	if !recv.Is(KindStruct) {
		return newRuntimeError(vm.currentLine(), "cannot assign field of non-struct value")
	}
	s := vm.heap.Struct(recv)
	if idx >= len(s.Fields) {
		return newRuntimeError(vm.currentLine(), "field index %d out of range", idx)
	}
	s.Fields[idx] = value
	vm.push(value)
	return nil
}

// execLoadMethod handles OpLoadMethod: pops the receiver, pushes the
// shape's method value (a closure built when the impl block was
// compiled) in its place, then pushes the receiver back as the
// following Call's argument 0. The Call invokes that closure as is.
func (vm *VM) execLoadMethod(idx int) error {
	recv := vm.pop()
	if !recv.Is(KindStruct) {
		return newRuntimeError(vm.currentLine(), "cannot call method on non-struct value")
	}
	shape := vm.heap.Shape(vm.heap.Struct(recv).Shape)
	if idx >= len(shape.Methods) || shape.Methods[idx].IsNull() {
		return newRuntimeError(vm.currentLine(), "shape '%s' has no method at index %d", shape.Name, idx)
	}
	vm.push(shape.Methods[idx])
	vm.push(recv)
	return nil
}
