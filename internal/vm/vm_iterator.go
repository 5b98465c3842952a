package vm

// execGetIter handles OpGetIter (spec.md §4.3 `for x in iterable`
// desugaring): builds a ListIter, CoroutineIter, or JsonKeyIter.
func (vm *VM) execGetIter() error {
	recv := vm.pop()
	switch {
	case recv.Is(KindList):
		vm.push(vm.heap.NewIterator(&ObjIterator{Kind: IterList, List: recv}))
	case recv.Is(KindCoroutine):
		vm.push(vm.heap.NewIterator(&ObjIterator{Kind: IterCoroutine, Coroutine: recv}))
	case recv.Is(KindJson):
		vm.push(vm.heap.NewIterator(&ObjIterator{Kind: IterJsonKeys, Keys: vm.heap.Json(recv).Keys()}))
	default:
		return newRuntimeError(vm.currentLine(), "type '%s' is not iterable", vm.typeName(recv))
	}
	return nil
}

// execIterNext handles OpIterNext: pushes (value, hasNext). Callers
// compiled from `for` desugaring check hasNext and pop both.
func (vm *VM) execIterNext() error {
	iterVal := vm.peek(0)
	it := vm.heap.Iterator(iterVal)

	switch it.Kind {
	case IterList:
		list := vm.heap.List(it.List)
		if it.Cursor >= len(list.Elements) {
			vm.pop()
			vm.push(NullVal())
			vm.push(FalseVal())
			return nil
		}
		v := list.Elements[it.Cursor]
		it.Cursor++
		vm.pop()
		vm.push(v)
		vm.push(TrueVal())
		return nil

	case IterJsonKeys:
		if it.KeyCursor >= len(it.Keys) {
			vm.pop()
			vm.push(NullVal())
			vm.push(FalseVal())
			return nil
		}
		k := it.Keys[it.KeyCursor]
		it.KeyCursor++
		vm.pop()
		vm.push(vm.heap.NewString(k))
		vm.push(TrueVal())
		return nil

	case IterCoroutine:
		vm.pop()
		co := vm.heap.Coroutine(it.Coroutine)
		if co.State == CoroutineDead {
			vm.push(NullVal())
			vm.push(FalseVal())
			return nil
		}
		result, yielded, err := vm.resumeCoroutine(co, nil)
		if err != nil {
			return err
		}
		vm.push(result)
		vm.push(BoolVal(yielded))
		return nil
	}
	return newRuntimeError(vm.currentLine(), "invalid iterator")
}
