package vm

import (
	"math"

	"github.com/kaubo-lang/kaubo/internal/kconfig"
)

// arithOpFor maps an arithmetic OpCode to its overloadable Operator name.
var arithOpFor = map[OpCode]Operator{
	OpAdd: AddOp, OpSub: SubOp, OpMul: MulOp, OpDiv: DivOp, OpMod: ModOp,
}

// arithmetic implements the three-level dispatch of spec.md §4.4 for
// Add/Sub/Mul/Div/Mod: a primitive fast path, then an inline-cache
// probe, then a full shape-operator lookup with reverse fallback.
func (vm *VM) arithmetic(op OpCode, icIdx uint8) error {
	b := vm.pop()
	a := vm.pop()

	if isNumber(a) && isNumber(b) {
		v, err := primitiveArith(op, a, b)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}
	if a.Is(KindString) && b.Is(KindString) && op == OpAdd {
		vm.push(vm.heap.NewString(vm.heap.String(a).Value + vm.heap.String(b).Value))
		return nil
	}

	v, err := vm.dispatchOperator(arithOpFor[op], a, b, icIdx)
	if err != nil {
		return err
	}
	vm.push(v)
	return nil
}

func isNumber(v Value) bool { return v.IsInt() || v.IsFloat() }

// primitiveArith is the primitive path: spec.md §4.4/§8 SMI closure
// ("for all SMI pairs, if the result is in range it's SMI, otherwise
// a finite double matching the double computation bit-for-bit").
// Division always yields a double; division/modulo by zero is a
// runtime error.
func primitiveArith(op OpCode, a, b Value) (Value, error) {
	if a.IsInt() && b.IsInt() && op != OpDiv {
		x, y := a.AsInt(), b.AsInt()
		var r int64
		switch op {
		case OpAdd:
			r = x + y
		case OpSub:
			r = x - y
		case OpMul:
			r = x * y
		case OpMod:
			if y == 0 {
				return Value(0), newRuntimeError(0, "Division by zero")
			}
			r = x % y
		}
		if r >= SMIMin && r < SMIMax {
			return IntVal(r), nil
		}
		// Overflow: promote both operands to double (spec.md §4.4/§8
		// SMI closure) and redo the op bit-for-bit as a float op.
		fx, fy := float64(x), float64(y)
		switch op {
		case OpAdd:
			return FloatVal(fx + fy), nil
		case OpSub:
			return FloatVal(fx - fy), nil
		case OpMul:
			return FloatVal(fx * fy), nil
		}
	}

	x, y := asFloat(a), asFloat(b)
	switch op {
	case OpAdd:
		return FloatVal(x + y), nil
	case OpSub:
		return FloatVal(x - y), nil
	case OpMul:
		return FloatVal(x * y), nil
	case OpDiv:
		if y == 0 {
			return Value(0), newRuntimeError(0, "Division by zero")
		}
		return FloatVal(x / y), nil
	case OpMod:
		if y == 0 {
			return Value(0), newRuntimeError(0, "Division by zero")
		}
		return FloatVal(math.Mod(x, y)), nil
	}
	return Value(0), newRuntimeError(0, "unsupported arithmetic opcode")
}

func asFloat(v Value) float64 {
	if v.IsInt() {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// dispatchOperator is the inline-cache and lookup path shared by
// arithmetic and ordering comparisons (spec.md §4.4).
func (vm *VM) dispatchOperator(op Operator, a, b Value, icIdx uint8) (Value, error) {
	ls, rs := vm.shapeIDOf(a), vm.shapeIDOf(b)

	if icIdx != noCache {
		ic := &vm.frame.chunk.InlineCaches[icIdx]
		if ic.Matches(ls, rs) {
			ic.HitCount++
			return vm.callAndRun(ic.Closure, []Value{a, b})
		}
		ic.MissCount++
	}

	if shapeVal, ok := vm.shapeByID(ls); ok {
		shape := vm.heap.Shape(shapeVal)
		if fn, ok := shape.Operators[op]; ok {
			if icIdx != noCache {
				vm.frame.chunk.InlineCaches[icIdx].Update(ls, rs, fn)
			}
			return vm.callAndRun(fn, []Value{a, b})
		}
	}

	if rop, ok := reverseOperator[op]; ok {
		if shapeVal, ok := vm.shapeByID(rs); ok {
			shape := vm.heap.Shape(shapeVal)
			if fn, ok := shape.Operators[rop]; ok {
				return vm.callAndRun(fn, []Value{b, a})
			}
		}
	}

	return Value(0), operatorError(vm.typeName(a), op)
}

// compare implements Less/LessEqual/Greater/GreaterEqual. Greater(Equal)
// is executed here as Less(Equal) with its operands swapped, so only Lt
// and Le ever need shape dispatch.
func (vm *VM) compare(op OpCode, icIdx uint8) error {
	b := vm.pop()
	a := vm.pop()

	switch op {
	case OpLess, OpGreater:
		x, y := a, b
		invert := op == OpGreater
		if invert {
			x, y = b, a
		}
		if isNumber(x) && isNumber(y) {
			vm.push(BoolVal(asFloat(x) < asFloat(y)))
			return nil
		}
		v, err := vm.dispatchOperator(LtOp, x, y, icIdx)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil

	case OpLessEqual, OpGreaterEqual:
		x, y := a, b
		if op == OpGreaterEqual {
			x, y = b, a
		}
		if isNumber(x) && isNumber(y) {
			vm.push(BoolVal(asFloat(x) <= asFloat(y)))
			return nil
		}
		v, err := vm.dispatchOperator(LeOp, x, y, icIdx)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}
	return newRuntimeError(vm.currentLine(), "unsupported comparison opcode")
}

// shapeIDOf returns the shape id used for operator/method dispatch:
// the built-in primitive ids for unboxed values and strings, or the
// struct instance's own shape id.
func (vm *VM) shapeIDOf(v Value) uint16 {
	switch {
	case v.IsInt():
		return kconfig.ShapeInt
	case v.IsFloat():
		return kconfig.ShapeFloat
	case v.Is(KindString):
		return kconfig.ShapeString
	case v.Is(KindList):
		return kconfig.ShapeList
	case v.Is(KindJson):
		return kconfig.ShapeJson
	case v.Is(KindClosure):
		return kconfig.ShapeClosure
	case v.Is(KindModule):
		return kconfig.ShapeModule
	case v.Is(KindStruct):
		return vm.heap.Shape(vm.heap.Struct(v).Shape).ID
	default:
		return 0xFFFF
	}
}

// invokeUnaryOperator looks up and calls a single-operand operator
// method (e.g. `str`) on v's shape, with no reverse-operator fallback.
func (vm *VM) invokeUnaryOperator(op Operator, v Value) (Value, error) {
	shapeVal, ok := vm.shapeByID(vm.shapeIDOf(v))
	if !ok {
		return NullVal(), operatorError(vm.typeName(v), op)
	}
	shape := vm.heap.Shape(shapeVal)
	fn, ok := shape.Operators[op]
	if !ok {
		return NullVal(), operatorError(shape.Name, op)
	}
	return vm.callAndRun(fn, []Value{v})
}

// typeName gives the display name spec.md §7's OperatorError requires.
func (vm *VM) typeName(v Value) string {
	if id := vm.shapeIDOf(v); id != 0xFFFF {
		if shapeVal, ok := vm.shapeByID(id); ok {
			return vm.heap.Shape(shapeVal).Name
		}
	}
	switch {
	case v.IsNull():
		return "Null"
	case v.IsBool():
		return "Bool"
	default:
		return "Object"
	}
}
