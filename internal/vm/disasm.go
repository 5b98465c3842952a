package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble renders chunk as human-readable bytecode text (spec.md
// §7 Diagnostics), gated by the caller on kconfig.TraceEnabled. Unlike
// a plain opcode dump, rendering a constant needs heap access: a
// Value's heap reference is only meaningful against the heap that
// allocated it (value.go), so Disassemble takes the heap that owns
// chunk's constants rather than reading them standalone.
func Disassemble(chunk *Chunk, name string, heap *Heap) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)

	offset := 0
	for offset < len(chunk.Code) {
		offset = disassembleInstruction(&sb, chunk, offset, heap)
	}
	return sb.String()
}

func disassembleInstruction(sb *strings.Builder, chunk *Chunk, offset int, heap *Heap) int {
	fmt.Fprintf(sb, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(sb, "%4d ", chunk.Lines[offset])
	}

	op := OpCode(chunk.Code[offset])
	name := OpCodeNames[op]

	switch op {
	case OpLoadNull, OpLoadTrue, OpLoadFalse, OpPop, OpDup,
		OpLoadLocal0, OpLoadLocal1, OpLoadLocal2, OpLoadLocal3,
		OpLoadLocal4, OpLoadLocal5, OpLoadLocal6, OpLoadLocal7,
		OpStoreLocal0, OpStoreLocal1, OpStoreLocal2, OpStoreLocal3,
		OpStoreLocal4, OpStoreLocal5, OpStoreLocal6, OpStoreLocal7,
		OpLoadConst0, OpLoadConst1, OpLoadConst2, OpLoadConst3,
		OpLoadConst4, OpLoadConst5, OpLoadConst6, OpLoadConst7,
		OpLoadConst8, OpLoadConst9, OpLoadConst10, OpLoadConst11,
		OpLoadConst12, OpLoadConst13, OpLoadConst14, OpLoadConst15,
		OpReturn, OpReturnValue, OpNeg, OpNot, OpIndexGet, OpIndexSet,
		OpGetModule, OpGetModuleExport, OpCastToInt, OpCastToFloat,
		OpCastToString, OpCastToBool, OpGetIter, OpIterNext, OpYield,
		OpCreateCoroutine, OpCoroutineStatus, OpHalt:
		return simpleInstruction(sb, name, offset)

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		ic := chunk.Code[offset+1]
		if ic == noCache {
			fmt.Fprintf(sb, "%-16s (no cache)\n", name)
		} else {
			fmt.Fprintf(sb, "%-16s cache #%d\n", name, ic)
		}
		return offset + 2
	case OpEqual, OpNotEqual:
		fmt.Fprintf(sb, "%s\n", name)
		return offset + 2 // trailing 0xFF byte, never consulted

	case OpConst:
		return constantInstruction(sb, name, chunk, offset, heap)
	case OpLoadGlobal, OpStoreGlobal, OpDefineGlobal:
		return constantInstruction(sb, name, chunk, offset, heap)

	case OpLoadLocal, OpStoreLocal, OpLoadUpvalue, OpStoreUpvalue,
		OpCloseUpvalues, OpCall, OpGetField, OpSetField, OpLoadMethod, OpResume:
		return byteInstruction(sb, name, chunk, offset)

	case OpJump, OpJumpIfFalse, OpLoop:
		return jumpInstruction(sb, name, chunk, offset)

	case OpClosure:
		return closureInstruction(sb, name, chunk, offset, heap)

	case OpBuildList, OpBuildJson:
		n := int(chunk.ReadU16(offset + 1))
		fmt.Fprintf(sb, "%-16s %d\n", name, n)
		return offset + 3
	case OpBuildStruct:
		shapeID := int(chunk.ReadU16(offset + 1))
		fieldCount := int(chunk.Code[offset+3])
		fmt.Fprintf(sb, "%-16s shape %d, %d fields\n", name, shapeID, fieldCount)
		return offset + 4
	case OpBuildModule:
		nameIdx := int(chunk.Code[offset+1])
		exportCount := int(chunk.Code[offset+2])
		fmt.Fprintf(sb, "%-16s %s, %d exports\n", name, constText(chunk, nameIdx, heap), exportCount)
		return offset + 3
	case OpModuleGet:
		idx := int(chunk.ReadU16(offset + 1))
		fmt.Fprintf(sb, "%-16s export %d\n", name, idx)
		return offset + 3

	case OpCallBuiltin:
		tag := chunk.Code[offset+1]
		methodIdx := chunk.Code[offset+2]
		argCount := chunk.Code[offset+3]
		fmt.Fprintf(sb, "%-16s type %d, method %d, %d args\n", name, tag, methodIdx, argCount)
		return offset + 4

	default:
		fmt.Fprintf(sb, "unknown opcode %d\n", op)
		return offset + 1
	}
}

func simpleInstruction(sb *strings.Builder, name string, offset int) int {
	fmt.Fprintf(sb, "%s\n", name)
	return offset + 1
}

func byteInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	operand := chunk.Code[offset+1]
	fmt.Fprintf(sb, "%-16s %4d\n", name, operand)
	return offset + 2
}

func jumpInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	jump := int(chunk.ReadI16(offset + 1))
	target := offset + 3 + jump
	fmt.Fprintf(sb, "%-16s %4d -> %d\n", name, jump, target)
	return offset + 3
}

func constantInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int, heap *Heap) int {
	idx := int(chunk.Code[offset+1])
	fmt.Fprintf(sb, "%-16s %4d '%s'\n", name, idx, constText(chunk, idx, heap))
	return offset + 2
}

func constText(chunk *Chunk, idx int, heap *Heap) string {
	if idx < 0 || idx >= len(chunk.Constants) {
		return "(invalid)"
	}
	return renderConst(chunk.Constants[idx], heap)
}

func renderConst(v Value, heap *Heap) string {
	switch {
	case v.IsInt():
		return strconv.FormatInt(v.AsInt(), 10)
	case v.IsFloat():
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case v.IsBool():
		return strconv.FormatBool(v.AsBool())
	case v.IsNull():
		return "null"
	case heap == nil:
		return fmt.Sprintf("<obj kind=%d>", v.Kind())
	case v.Is(KindString):
		return heap.String(v).Value
	case v.Is(KindFunction):
		return "<fn " + heap.Function(v).Name + ">"
	case v.Is(KindClosure):
		return "<fn " + heap.Closure(v).Function.Name + ">"
	default:
		return fmt.Sprintf("<obj kind=%d>", v.Kind())
	}
}

func closureInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int, heap *Heap) int {
	idx := int(chunk.Code[offset+1])
	nUpvalues := int(chunk.Code[offset+2])
	base := offset + 3

	fmt.Fprintf(sb, "%-16s %4d '%s'\n", name, idx, constText(chunk, idx, heap))

	if idx < len(chunk.Constants) {
		if fn := chunk.Constants[idx]; fn.Is(KindFunction) {
			inner := heap.Function(fn)
			nested := Disassemble(inner.Chunk, inner.Name, heap)
			indented := strings.ReplaceAll(strings.TrimRight(nested, "\n"), "\n", "\n    | ")
			sb.WriteString("    | " + indented + "\n")
		}
	}

	for i := 0; i < nUpvalues; i++ {
		isLocal := chunk.Code[base]
		upIdx := chunk.Code[base+1]
		kind := "upvalue"
		if isLocal == 1 {
			kind = "local"
		}
		fmt.Fprintf(sb, "%04d    |                     %s %d\n", base, kind, upIdx)
		base += 2
	}
	return base
}
