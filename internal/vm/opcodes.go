package vm

// OpCode is a single bytecode instruction (spec.md §2 OpCode set,
// roughly 90 opcodes once the dense low-index load/store variants are
// counted).
type OpCode byte

const (
	// Constant loads
	OpConst OpCode = iota // u8 const idx
	OpLoadConst0
	OpLoadConst1
	OpLoadConst2
	OpLoadConst3
	OpLoadConst4
	OpLoadConst5
	OpLoadConst6
	OpLoadConst7
	OpLoadConst8
	OpLoadConst9
	OpLoadConst10
	OpLoadConst11
	OpLoadConst12
	OpLoadConst13
	OpLoadConst14
	OpLoadConst15
	OpLoadNull
	OpLoadTrue
	OpLoadFalse

	// Stack manipulation
	OpPop
	OpDup
	OpCloseUpvalues // u8: first local slot to close from

	// Locals
	OpLoadLocal // u8 slot
	OpStoreLocal
	OpLoadLocal0
	OpLoadLocal1
	OpLoadLocal2
	OpLoadLocal3
	OpLoadLocal4
	OpLoadLocal5
	OpLoadLocal6
	OpLoadLocal7
	OpStoreLocal0
	OpStoreLocal1
	OpStoreLocal2
	OpStoreLocal3
	OpStoreLocal4
	OpStoreLocal5
	OpStoreLocal6
	OpStoreLocal7

	// Globals
	OpLoadGlobal   // u8 const idx (name)
	OpStoreGlobal  // u8 const idx (name)
	OpDefineGlobal // u8 const idx (name)

	// Upvalues
	OpLoadUpvalue  // u8 idx
	OpStoreUpvalue // u8 idx

	// Control flow
	OpJump         // i16 signed displacement (little-endian)
	OpJumpIfFalse  // i16 signed displacement (little-endian)
	OpLoop         // i16 signed displacement (little-endian), negative

	// Calls / returns
	OpCall   // u8 arg count
	OpReturn      // returns null
	OpReturnValue // returns stack top

	// Closures
	OpClosure // u8 func const idx, u8 n-upvalues, n*(u8 is_local, u8 index)

	// Arithmetic (each followed by u8 inline-cache index, 0xFF = none)
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg // unary, no IC byte

	// Comparison (Equal/NotEqual also carry a trailing 0xFF IC byte for
	// uniform encoding, spec.md §4.3, but never consult it: equality is
	// bitwise and never overloaded)
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual

	// Logic
	OpNot

	// Data structures
	OpBuildList   // u16 element count
	OpBuildJson   // u16 entry count
	OpBuildStruct // u16 shape id, u8 field count
	OpBuildModule // u8 name const idx, u8 export count

	// Field / index access
	OpGetField // u8 field idx
	OpSetField // u8 field idx
	OpIndexGet
	OpIndexSet

	// Modules
	OpGetModule       // pops module-name string
	OpGetModuleExport // pops module, pops export-name string
	OpModuleGet       // u16 export idx; pops module

	// Struct-level methods
	OpLoadMethod // u8 method idx; pops receiver, pushes method then receiver

	// Built-in list/string/json methods
	OpCallBuiltin // u8 type tag, u8 method idx, u8 arg count (incl. receiver)

	// Casts
	OpCastToInt
	OpCastToFloat
	OpCastToString
	OpCastToBool

	// Iterators
	OpGetIter
	OpIterNext

	// Coroutines
	OpYield
	OpCreateCoroutine
	OpResume // u8 arg count
	OpCoroutineStatus

	// Top level
	OpHalt
)

// OpCodeNames maps an opcode to its disassembly mnemonic.
var OpCodeNames = map[OpCode]string{
	OpConst:       "CONST",
	OpLoadConst0:  "LOAD_CONST0", OpLoadConst1: "LOAD_CONST1", OpLoadConst2: "LOAD_CONST2",
	OpLoadConst3: "LOAD_CONST3", OpLoadConst4: "LOAD_CONST4", OpLoadConst5: "LOAD_CONST5",
	OpLoadConst6: "LOAD_CONST6", OpLoadConst7: "LOAD_CONST7", OpLoadConst8: "LOAD_CONST8",
	OpLoadConst9: "LOAD_CONST9", OpLoadConst10: "LOAD_CONST10", OpLoadConst11: "LOAD_CONST11",
	OpLoadConst12: "LOAD_CONST12", OpLoadConst13: "LOAD_CONST13", OpLoadConst14: "LOAD_CONST14",
	OpLoadConst15: "LOAD_CONST15",
	OpLoadNull:    "LOAD_NULL", OpLoadTrue: "LOAD_TRUE", OpLoadFalse: "LOAD_FALSE",

	OpPop: "POP", OpDup: "DUP", OpCloseUpvalues: "CLOSE_UPVALUES",

	OpLoadLocal: "LOAD_LOCAL", OpStoreLocal: "STORE_LOCAL",
	OpLoadLocal0: "LOAD_LOCAL0", OpLoadLocal1: "LOAD_LOCAL1", OpLoadLocal2: "LOAD_LOCAL2",
	OpLoadLocal3: "LOAD_LOCAL3", OpLoadLocal4: "LOAD_LOCAL4", OpLoadLocal5: "LOAD_LOCAL5",
	OpLoadLocal6: "LOAD_LOCAL6", OpLoadLocal7: "LOAD_LOCAL7",
	OpStoreLocal0: "STORE_LOCAL0", OpStoreLocal1: "STORE_LOCAL1", OpStoreLocal2: "STORE_LOCAL2",
	OpStoreLocal3: "STORE_LOCAL3", OpStoreLocal4: "STORE_LOCAL4", OpStoreLocal5: "STORE_LOCAL5",
	OpStoreLocal6: "STORE_LOCAL6", OpStoreLocal7: "STORE_LOCAL7",

	OpLoadGlobal: "LOAD_GLOBAL", OpStoreGlobal: "STORE_GLOBAL", OpDefineGlobal: "DEFINE_GLOBAL",

	OpLoadUpvalue: "LOAD_UPVALUE", OpStoreUpvalue: "STORE_UPVALUE",

	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpLoop: "LOOP",

	OpCall: "CALL", OpReturn: "RETURN", OpReturnValue: "RETURN_VALUE",

	OpClosure: "CLOSURE",

	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD", OpNeg: "NEG",

	OpEqual: "EQUAL", OpNotEqual: "NOT_EQUAL", OpLess: "LESS", OpLessEqual: "LESS_EQUAL",
	OpGreater: "GREATER", OpGreaterEqual: "GREATER_EQUAL",

	OpNot: "NOT",

	OpBuildList: "BUILD_LIST", OpBuildJson: "BUILD_JSON", OpBuildStruct: "BUILD_STRUCT",
	OpBuildModule: "BUILD_MODULE",

	OpGetField: "GET_FIELD", OpSetField: "SET_FIELD", OpIndexGet: "INDEX_GET", OpIndexSet: "INDEX_SET",

	OpGetModule: "GET_MODULE", OpGetModuleExport: "GET_MODULE_EXPORT", OpModuleGet: "MODULE_GET",

	OpLoadMethod: "LOAD_METHOD",

	OpCallBuiltin: "CALL_BUILTIN",

	OpCastToInt: "CAST_TO_INT", OpCastToFloat: "CAST_TO_FLOAT",
	OpCastToString: "CAST_TO_STRING", OpCastToBool: "CAST_TO_BOOL",

	OpGetIter: "GET_ITER", OpIterNext: "ITER_NEXT",

	OpYield: "YIELD", OpCreateCoroutine: "CREATE_COROUTINE", OpResume: "RESUME",
	OpCoroutineStatus: "COROUTINE_STATUS",

	OpHalt: "HALT",
}

// noCache is the inline-cache-index sentinel meaning "no cache"
// (spec.md §4.3/§6.2: 0xFF).
const noCache uint8 = 0xFF

// loadConstOpcodes/loadLocalOpcodes/storeLocalOpcodes give the
// emitter's dense low-index specializations (spec.md §4.3 "Emit
// specialisation"). Purely a size optimization; semantics are
// identical to the generic form.
var loadConstOpcodes = [16]OpCode{
	OpLoadConst0, OpLoadConst1, OpLoadConst2, OpLoadConst3,
	OpLoadConst4, OpLoadConst5, OpLoadConst6, OpLoadConst7,
	OpLoadConst8, OpLoadConst9, OpLoadConst10, OpLoadConst11,
	OpLoadConst12, OpLoadConst13, OpLoadConst14, OpLoadConst15,
}

var loadLocalOpcodes = [8]OpCode{
	OpLoadLocal0, OpLoadLocal1, OpLoadLocal2, OpLoadLocal3,
	OpLoadLocal4, OpLoadLocal5, OpLoadLocal6, OpLoadLocal7,
}

var storeLocalOpcodes = [8]OpCode{
	OpStoreLocal0, OpStoreLocal1, OpStoreLocal2, OpStoreLocal3,
	OpStoreLocal4, OpStoreLocal5, OpStoreLocal6, OpStoreLocal7,
}
