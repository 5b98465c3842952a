package vm

// executeOneOp executes everything except OpReturn/OpReturnValue/OpHalt,
// which run() handles directly since they affect which frame is current
// (spec.md §4.3 dispatch loop).
func (vm *VM) executeOneOp(op OpCode) error {
	switch op {
	case OpConst:
		vm.push(vm.readConstant())

	case OpLoadNull:
		vm.push(NullVal())
	case OpLoadTrue:
		vm.push(TrueVal())
	case OpLoadFalse:
		vm.push(FalseVal())

	case OpLoadConst0, OpLoadConst1, OpLoadConst2, OpLoadConst3, OpLoadConst4, OpLoadConst5,
		OpLoadConst6, OpLoadConst7, OpLoadConst8, OpLoadConst9, OpLoadConst10, OpLoadConst11,
		OpLoadConst12, OpLoadConst13, OpLoadConst14, OpLoadConst15:
		idx := int(op - OpLoadConst0)
		vm.push(vm.frame.chunk.Constants[idx])

	case OpPop:
		vm.pop()

	case OpDup:
		vm.push(vm.peek(0))

	case OpCloseUpvalues:
		slot := int(vm.readByte())
		vm.frame.closeFrom(slot)

	case OpLoadLocal:
		slot := int(vm.readByte())
		vm.push(vm.frame.locals[slot])
	case OpStoreLocal:
		slot := int(vm.readByte())
		vm.frame.locals[slot] = vm.peek(0)

	case OpLoadLocal0, OpLoadLocal1, OpLoadLocal2, OpLoadLocal3, OpLoadLocal4, OpLoadLocal5, OpLoadLocal6, OpLoadLocal7:
		slot := int(op - OpLoadLocal0)
		vm.push(vm.frame.locals[slot])
	case OpStoreLocal0, OpStoreLocal1, OpStoreLocal2, OpStoreLocal3, OpStoreLocal4, OpStoreLocal5, OpStoreLocal6, OpStoreLocal7:
		slot := int(op - OpStoreLocal0)
		vm.frame.locals[slot] = vm.peek(0)

	case OpDefineGlobal:
		name := vm.heap.String(vm.readConstant()).Value
		vm.globals[name] = vm.pop()

	case OpLoadGlobal:
		name := vm.heap.String(vm.readConstant()).Value
		v, ok := vm.globals[name]
		if !ok {
			return newRuntimeError(vm.currentLine(), "undefined global variable '%s'", name)
		}
		vm.push(v)

	case OpStoreGlobal:
		name := vm.heap.String(vm.readConstant()).Value
		if _, ok := vm.globals[name]; !ok {
			return newRuntimeError(vm.currentLine(), "undefined global variable '%s'", name)
		}
		vm.globals[name] = vm.peek(0)

	case OpLoadUpvalue:
		idx := int(vm.readByte())
		vm.push(vm.frame.closure.Upvalues[idx].get())
	case OpStoreUpvalue:
		idx := int(vm.readByte())
		vm.frame.closure.Upvalues[idx].set(vm.peek(0))

	case OpJump:
		off := vm.readU16()
		vm.frame.ip += int(int16(off))
	case OpJumpIfFalse:
		off := vm.readU16()
		if !vm.peek(0).IsTruthy() {
			vm.frame.ip += int(int16(off))
		}
	case OpLoop:
		off := vm.readU16()
		vm.frame.ip += int(int16(off))

	case OpCall:
		argCount := int(vm.readByte())
		callee := vm.peek(argCount)
		if err := vm.callWithReceiver(callee, argCount); err != nil {
			return err
		}

	case OpClosure:
		return vm.execClosure()

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		icIdx := vm.readByte()
		return vm.arithmetic(op, icIdx)

	case OpNeg:
		v := vm.pop()
		switch {
		case v.IsInt():
			vm.push(IntVal(-v.AsInt()))
		case v.IsFloat():
			vm.push(FloatVal(-v.AsFloat()))
		default:
			return operatorError(vm.typeName(v), SubOp)
		}

	case OpEqual:
		vm.readByte() // unused trailing IC byte, kept for uniform encoding
		b, a := vm.pop(), vm.pop()
		vm.push(BoolVal(a.Equals(b)))
	case OpNotEqual:
		vm.readByte()
		b, a := vm.pop(), vm.pop()
		vm.push(BoolVal(!a.Equals(b)))

	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		icIdx := vm.readByte()
		return vm.compare(op, icIdx)

	case OpNot:
		v := vm.pop()
		vm.push(BoolVal(!v.IsTruthy()))

	case OpBuildList:
		n := int(vm.readU16())
		elems := make([]Value, n)
		for i := n - 1; i >= 0; i-- {
			elems[i] = vm.pop()
		}
		vm.push(vm.heap.NewList(elems))

	case OpBuildJson:
		n := int(vm.readU16())
		entries := make([]struct {
			k string
			v Value
		}, n)
		for i := n - 1; i >= 0; i-- {
			v := vm.pop()
			k := vm.heap.String(vm.pop()).Value
			entries[i] = struct {
				k string
				v Value
			}{k, v}
		}
		j := NewObjJson()
		for _, e := range entries {
			j.Set(e.k, e.v)
		}
		vm.push(vm.heap.NewJson(j))

	case OpBuildStruct:
		shapeID := vm.readU16()
		fieldCount := int(vm.readByte())
		fields := make([]Value, fieldCount)
		for i := fieldCount - 1; i >= 0; i-- {
			fields[i] = vm.pop()
		}
		shapeVal, ok := vm.shapeByID(shapeID)
		if !ok {
			return newRuntimeError(vm.currentLine(), "unknown shape id %d", shapeID)
		}
		vm.push(vm.heap.NewStruct(&ObjStruct{Shape: shapeVal, Fields: fields}))

	case OpBuildModule:
		return vm.execBuildModule()

	case OpGetField:
		idx := int(vm.readByte())
		return vm.execGetField(idx)
	case OpSetField:
		idx := int(vm.readByte())
		return vm.execSetField(idx)

	case OpIndexGet:
		return vm.execIndexGet()
	case OpIndexSet:
		return vm.execIndexSet()

	case OpGetModule:
		name := vm.heap.String(vm.pop()).Value
		m, ok := vm.modules[name]
		if !ok {
			return newRuntimeError(vm.currentLine(), "undefined module '%s'", name)
		}
		vm.push(m)

	case OpGetModuleExport:
		name := vm.heap.String(vm.pop()).Value
		modVal := vm.pop()
		mod := vm.heap.Module(modVal)
		idx, ok := mod.ExportName[name]
		if !ok {
			return newRuntimeError(vm.currentLine(), "module '%s' has no export '%s'", mod.Name, name)
		}
		vm.push(mod.Exports[idx])

	case OpModuleGet:
		idx := int(vm.readU16())
		modVal := vm.pop()
		mod := vm.heap.Module(modVal)
		if idx >= len(mod.Exports) {
			return newRuntimeError(vm.currentLine(), "module '%s' export index %d out of range", mod.Name, idx)
		}
		vm.push(mod.Exports[idx])

	case OpLoadMethod:
		idx := int(vm.readByte())
		return vm.execLoadMethod(idx)

	case OpCallBuiltin:
		typeTag := vm.readByte()
		methodIdx := vm.readByte()
		argCount := int(vm.readByte())
		return vm.execCallBuiltin(typeTag, methodIdx, argCount)

	case OpCastToInt:
		return vm.execCast(castInt)
	case OpCastToFloat:
		return vm.execCast(castFloat)
	case OpCastToString:
		return vm.execCast(castString)
	case OpCastToBool:
		return vm.execCast(castBool)

	case OpGetIter:
		return vm.execGetIter()
	case OpIterNext:
		return vm.execIterNext()

	case OpYield:
		return vm.execYield()
	case OpCreateCoroutine:
		return vm.execCreateCoroutine()
	case OpResume:
		argCount := int(vm.readByte())
		return vm.execResume(argCount)
	case OpCoroutineStatus:
		return vm.execCoroutineStatus()

	default:
		return newRuntimeError(vm.currentLine(), "unknown opcode %d", op)
	}
	return nil
}

// callWithReceiver is OpCall's entrypoint: most callees are plain
// closures/natives, but calling through a struct instance whose shape
// defines `call` dispatches to that operator instead (spec.md §4.4
// Call operator).
func (vm *VM) callWithReceiver(callee Value, argCount int) error {
	if callee.Is(KindStruct) {
		s := vm.heap.Struct(callee)
		shape := vm.heap.Shape(s.Shape)
		if fn, ok := shape.Operators[CallOp]; ok {
			args := make([]Value, argCount)
			for i := argCount - 1; i >= 0; i-- {
				args[i] = vm.pop()
			}
			vm.pop() // the struct receiver itself
			result, err := vm.callAndRun(fn, append([]Value{callee}, args...))
			if err != nil {
				return err
			}
			vm.push(result)
			return nil
		}
		return operatorError(shape.Name, CallOp)
	}
	return vm.callValue(callee, argCount)
}
