package vm

import (
	"strconv"
)

type castKind int

const (
	castInt castKind = iota
	castFloat
	castString
	castBool
)

// execCast handles OpCastToInt/Float/String/Bool (spec.md §4.3 Casts).
func (vm *VM) execCast(kind castKind) error {
	v := vm.pop()
	switch kind {
	case castInt:
		switch {
		case v.IsInt():
			vm.push(v)
		case v.IsFloat():
			vm.push(IntVal(int64(v.AsFloat())))
		case v.Is(KindString):
			if n, err := strconv.ParseInt(vm.heap.String(v).Value, 10, 64); err == nil {
				vm.push(IntVal(n))
			} else {
				vm.push(NullVal())
			}
		default:
			vm.push(NullVal())
		}

	case castFloat:
		switch {
		case v.IsInt():
			vm.push(FloatVal(float64(v.AsInt())))
		case v.IsFloat():
			vm.push(v)
		case v.Is(KindString):
			if f, err := strconv.ParseFloat(vm.heap.String(v).Value, 64); err == nil {
				vm.push(FloatVal(f))
			} else {
				vm.push(NullVal())
			}
		default:
			vm.push(NullVal())
		}

	case castBool:
		vm.push(BoolVal(v.IsTruthy()))

	case castString:
		switch {
		case v.IsInt():
			vm.push(vm.heap.NewString(strconv.FormatInt(v.AsInt(), 10)))
		case v.IsFloat():
			vm.push(vm.heap.NewString(strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)))
		case v.IsBool():
			vm.push(vm.heap.NewString(strconv.FormatBool(v.AsBool())))
		case v.IsNull():
			vm.push(vm.heap.NewString("null"))
		case v.Is(KindString):
			vm.push(v)
		default:
			result, err := vm.invokeUnaryOperator(StrOp, v)
			if err != nil {
				return err
			}
			vm.push(result)
		}
	}
	return nil
}
