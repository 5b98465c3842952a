package vm

import (
	"github.com/kaubo-lang/kaubo/internal/ast"
	"github.com/kaubo-lang/kaubo/internal/kconfig"
)

// Local is one of the current function's local slots, in declaration
// order (spec.md §4.3 Compiler state). Slot is the index into the
// owning CallFrame's dedicated locals vector at runtime (spec.md §3:
// Kaubo frames keep locals separate from the operand stack, confirmed
// against the reference VM), not an offset into a shared stack.
type Local struct {
	Name          string
	Depth         int
	Slot          int
	IsInitialized bool
	IsCaptured    bool
}

// Upvalue is a captured variable, resolved at compile time (spec.md §4.3).
type Upvalue struct {
	Name    string
	Index   uint8
	IsLocal bool
}

// VarType records what little static type information the compiler
// tracks for a local, enough to specialize field access and built-in
// method dispatch (spec.md §4.3 var_types).
type VarType struct {
	Kind       VarKind
	StructName string   // valid when Kind == VarKindStruct
	ElemKind   *VarType // valid when Kind == VarKindList
}

type VarKind int

const (
	VarKindUnknown VarKind = iota
	VarKindStruct
	VarKindList
	VarKindString
	VarKindJson
)

// StructInfo is what the compiler knows about a declared struct type:
// its shape id and field layout (handed in from the external
// type-resolution pass, spec.md §6.4's compile_with_struct_info), plus
// the method/operator indices the compiler itself assigns as it walks
// `impl` blocks.
type StructInfo struct {
	ShapeID       uint16
	FieldNames    []string
	FieldTypes    []string
	MethodIndex   map[string]int
	NextMethodIdx int
	Operators     map[ast.BinaryOp]bool // keyed by surface token; not consulted by the compiler (duplicates are checked via HasOperator)
	HasOperator   map[Operator]bool
}

// ModuleInfo is what the compiler knows about an in-file `module name {
// ... }` block: its exported names in declaration order. Cross-file
// import resolution is external to this core (spec.md §1: the module
// loader/on-disk format are out of scope); `import`/`from ... import`
// here only resolve against modules declared earlier in the same
// compiled unit.
type ModuleInfo struct {
	Name       string
	ExportName map[string]int
	NextExport int
}

// FunctionType distinguishes the implicit top-level script function
// from an ordinary (or lambda) function body.
type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
)

// Compiler is a recursive-descent / tree-walking AST->Chunk compiler
// (spec.md §4.3). One Compiler compiles one function body; nested
// functions get a child Compiler linked via enclosing.
type Compiler struct {
	function *ObjFunction
	funcType FunctionType

	locals     []Local
	scopeDepth int
	slotCount  int // number of currently-live slots (locals still in scope)
	maxSlots   int // high-water mark of slotCount; becomes frame.locals' allocation size

	upvalues []Upvalue

	enclosing *Compiler

	structInfos map[string]*StructInfo // shared by pointer across the whole compile
	varTypes    map[string]VarType

	currentModule *ModuleInfo
	modules       map[string]*ModuleInfo // shared by pointer across the whole compile
	moduleAliases map[string]string

	// heap realizes string/function constants directly against the VM
	// that will run the compiled chunk, since a Value's heap reference
	// is only meaningful against the heap that allocated it (value.go).
	heap *Heap

	// shapeAlloc hands out shape ids for struct declarations the
	// caller didn't already resolve via structInfo (spec.md §6.4's
	// external type-resolution pass is optional); shared by pointer so
	// every nested compiler draws from the same counter.
	shapeAlloc     *uint16
	resolvedShapes *[]*ObjShape

	inTailPosition bool
}

// NewCompiler creates the root compiler for a top-level script. heap
// must be the same heap the resulting chunk will later run against.
func NewCompiler(heap *Heap) *Compiler {
	firstShape := uint16(kconfig.FirstUserShapeID)
	shapes := make([]*ObjShape, 0)
	return &Compiler{
		function:       &ObjFunction{Chunk: NewChunk(), Name: "<script>"},
		funcType:       TypeScript,
		structInfos:    make(map[string]*StructInfo),
		varTypes:       make(map[string]VarType),
		modules:        make(map[string]*ModuleInfo),
		moduleAliases:  make(map[string]string),
		heap:           heap,
		shapeAlloc:     &firstShape,
		resolvedShapes: &shapes,
	}
}

func newChildCompiler(enclosing *Compiler, name string) *Compiler {
	return &Compiler{
		function:       &ObjFunction{Chunk: NewChunk(), Name: name},
		funcType:       TypeFunction,
		enclosing:      enclosing,
		structInfos:    enclosing.structInfos,
		varTypes:       make(map[string]VarType),
		modules:        enclosing.modules,
		moduleAliases:  enclosing.moduleAliases,
		currentModule:  enclosing.currentModule,
		heap:           enclosing.heap,
		shapeAlloc:     enclosing.shapeAlloc,
		resolvedShapes: enclosing.resolvedShapes,
	}
}

func (c *Compiler) currentChunk() *Chunk { return c.function.Chunk }

// StructInfoInput is the external type-resolution pass's contribution
// for one struct (spec.md §6.4 compile_with_struct_info).
type StructInfoInput struct {
	ShapeID    uint16
	FieldNames []string
	FieldTypes []string
}

// Compile is the legacy entrypoint with no struct info (spec.md §6.4).
func Compile(mod *ast.Module, heap *Heap) (*Chunk, int, []*ObjShape, error) {
	return CompileWithStructInfo(mod, nil, heap)
}

// CompileWithStructInfo is the standard compiler entrypoint (spec.md §6.4).
// Returns the top-level Chunk, the number of local slots the script body
// uses, and any shapes the compiler had to self-assign ids for because
// structInfo didn't already cover them (the caller must RegisterShape
// each of these against heap's VM before Interpret runs).
func CompileWithStructInfo(mod *ast.Module, structInfo map[string]StructInfoInput, heap *Heap) (*Chunk, int, []*ObjShape, error) {
	c := NewCompiler(heap)
	for name, info := range structInfo {
		c.structInfos[name] = &StructInfo{
			ShapeID:     info.ShapeID,
			FieldNames:  info.FieldNames,
			FieldTypes:  info.FieldTypes,
			MethodIndex: make(map[string]int),
			Operators:   make(map[ast.BinaryOp]bool),
			HasOperator: make(map[Operator]bool),
		}
	}

	for _, stmt := range mod.Statements {
		if err := c.compileStmt(stmt); err != nil {
			return nil, 0, nil, err
		}
	}
	c.emit(OpLoadNull, 0)
	c.emit(OpReturn, 0)

	c.function.LocalCount = c.maxSlots
	return c.currentChunk(), c.maxSlots, *c.resolvedShapes, nil
}
