package vm

import (
	"github.com/kaubo-lang/kaubo/internal/ast"
	"github.com/kaubo-lang/kaubo/internal/kconfig"
)

// listBuiltinIdx/stringBuiltinIdx/jsonBuiltinIdx are the compile-time
// mirrors of vm_builtins.go's method tables, used to recognize a
// `receiver.method(...)` call as a CallBuiltin site (spec.md §4.3
// Function call).
var listBuiltinIdx = map[string]uint8{
	"push": listPush, "len": listLen, "remove": listRemove, "clear": listClear,
	"is_empty": listIsEmpty, "foreach": listForeach, "map": listMap,
	"filter": listFilter, "reduce": listReduce, "find": listFind,
	"any": listAny, "all": listAll,
}
var stringBuiltinIdx = map[string]uint8{"len": strLen, "is_empty": strIsEmpty}
var jsonBuiltinIdx = map[string]uint8{"len": strLen, "is_empty": strIsEmpty}

// binaryOpcode maps an AST binary token to its opcode, for the
// operators that aren't short-circuit/assignment special forms.
var binaryOpcode = map[ast.BinaryOp]OpCode{
	ast.OpAdd: OpAdd, ast.OpSub: OpSub, ast.OpMul: OpMul, ast.OpDiv: OpDiv, ast.OpMod: OpMod,
	ast.OpEq: OpEqual, ast.OpNe: OpNotEqual,
	ast.OpLt: OpLess, ast.OpLe: OpLessEqual, ast.OpGt: OpGreater, ast.OpGe: OpGreaterEqual,
}

// hasInlineCache holds for the binary opcodes that carry a trailing
// inline-cache index byte (spec.md §4.3: arithmetic/ordering do,
// Equal/NotEqual carry a fixed 0xFF instead).
var hasInlineCache = map[OpCode]bool{
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true,
	OpLess: true, OpLessEqual: true, OpGreater: true, OpGreaterEqual: true,
}

// operatorByName maps an `impl`/`operator` surface name to the
// overloadable Operator enum (spec.md §4.4).
var operatorByName = map[string]Operator{
	"add": AddOp, "radd": RAddOp, "sub": SubOp, "rsub": RSubOp,
	"mul": MulOp, "rmul": RMulOp, "div": DivOp, "rdiv": RDivOp,
	"mod": ModOp, "rmod": RModOp, "lt": LtOp, "le": LeOp,
	"str": StrOp, "get": GetOp, "set": SetOp, "call": CallOp,
}

func (c *Compiler) compileExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.LiteralInt:
		return c.compileIntLiteral(n.Value, uint32(n.L))
	case *ast.LiteralFloat:
		c.emitConstant(FloatVal(n.Value), uint32(n.L))
		return nil
	case *ast.LiteralString:
		return c.emitConstant(c.stringConstant(n.Value), uint32(n.L))
	case *ast.LiteralBool:
		if n.Value {
			c.emit(OpLoadTrue, uint32(n.L))
		} else {
			c.emit(OpLoadFalse, uint32(n.L))
		}
		return nil
	case *ast.LiteralNull:
		c.emit(OpLoadNull, uint32(n.L))
		return nil
	case *ast.LiteralList:
		return c.compileListLiteral(n)
	case *ast.JsonLiteral:
		return c.compileJsonLiteral(n)
	case *ast.Binary:
		return c.compileBinary(n)
	case *ast.Unary:
		return c.compileUnary(n)
	case *ast.Grouping:
		return c.compileExpr(n.Inner)
	case *ast.VarRef:
		return c.compileVarLoad(n.Name, uint32(n.L))
	case *ast.FunctionCall:
		return c.compileCall(n)
	case *ast.Lambda:
		return c.compileLambda(n, "")
	case *ast.MemberAccess:
		return c.compileMemberGet(n)
	case *ast.IndexAccess:
		return c.compileIndexGet(n)
	case *ast.Yield:
		if n.Value != nil {
			if err := c.compileExpr(n.Value); err != nil {
				return err
			}
		} else {
			c.emit(OpLoadNull, uint32(n.L))
		}
		c.emit(OpYield, uint32(n.L))
		return nil
	case *ast.StructLiteral:
		return c.compileStructLiteral(n)
	case *ast.As:
		return c.compileCast(n)
	}
	return newCompileError(0, "unsupported expression node %T", e)
}

// stringConstant realizes s as a live heap string against the same
// heap the compiled chunk will run under (spec.md §3: a Value's heap
// reference is only meaningful against the heap that allocated it).
func (c *Compiler) stringConstant(s string) Value {
	return c.heap.NewString(s)
}

// addNameConstant adds name's string constant to the current chunk
// and returns its index, for opcodes that take the index as an
// embedded operand rather than reading it off the value stack
// (OpLoadGlobal/OpStoreGlobal/OpDefineGlobal).
func (c *Compiler) addNameConstant(name string, line uint32) (uint8, error) {
	idx, ok := c.currentChunk().AddConstant(c.stringConstant(name))
	if !ok {
		return 0, newCompileError(int(line), "too many constants in one chunk")
	}
	return idx, nil
}

func (c *Compiler) compileIntLiteral(v int64, line uint32) error {
	if v >= SMIMin && v < SMIMax {
		return c.emitConstant(IntVal(v), line)
	}
	return c.emitConstant(FloatVal(float64(v)), line)
}

// compileListLiteral/compileJsonLiteral/compileStructLiteral compile
// elements in forward (declaration) order; OpBuildList/OpBuildJson/
// OpBuildStruct pop from the stack top downward while filling the
// result array from its highest index down, so a forward compile
// order is what lands each element at its own index (vm_exec.go).
func (c *Compiler) compileListLiteral(n *ast.LiteralList) error {
	for _, el := range n.Elements {
		if err := c.compileExpr(el); err != nil {
			return err
		}
	}
	c.emitU16(OpBuildList, uint16(len(n.Elements)), uint32(n.L))
	return nil
}

func (c *Compiler) compileJsonLiteral(n *ast.JsonLiteral) error {
	for _, e := range n.Entries {
		if err := c.emitConstant(c.stringConstant(e.Key), uint32(n.L)); err != nil {
			return err
		}
		if err := c.compileExpr(e.Value); err != nil {
			return err
		}
	}
	c.emitU16(OpBuildJson, uint16(len(n.Entries)), uint32(n.L))
	return nil
}

func (c *Compiler) compileStructLiteral(n *ast.StructLiteral) error {
	info, ok := c.structInfos[n.Name]
	if !ok {
		return newCompileError(n.L, "unknown struct '%s'", n.Name)
	}
	if len(n.Fields) != len(info.FieldNames) {
		return newCompileError(n.L, "struct '%s' literal has %d fields, expected %d", n.Name, len(n.Fields), len(info.FieldNames))
	}
	byName := make(map[string]ast.Expr, len(n.Fields))
	for _, f := range n.Fields {
		byName[f.Name] = f.Value
	}
	ordered := make([]ast.Expr, len(info.FieldNames))
	for i, fn := range info.FieldNames {
		v, ok := byName[fn]
		if !ok {
			return newCompileError(n.L, "struct '%s' literal is missing field '%s'", n.Name, fn)
		}
		ordered[i] = v
	}
	for _, fieldExpr := range ordered {
		if err := c.compileExpr(fieldExpr); err != nil {
			return err
		}
	}
	c.currentChunk().WriteOpU16U8(OpBuildStruct, info.ShapeID, uint8(len(ordered)), uint32(n.L))
	c.setVarType(n.Name, VarType{Kind: VarKindStruct, StructName: n.Name})
	return nil
}

func (c *Compiler) compileBinary(n *ast.Binary) error {
	if n.Op == ast.OpAssign {
		return c.compileAssign(n.Left, n.Right, uint32(n.L))
	}
	if n.Op == ast.OpAnd {
		return c.compileAnd(n)
	}
	if n.Op == ast.OpOr {
		return c.compileOr(n)
	}

	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	if err := c.compileExpr(n.Right); err != nil {
		return err
	}
	op, ok := binaryOpcode[n.Op]
	if !ok {
		return newCompileError(n.L, "unsupported binary operator '%s'", n.Op)
	}
	if hasInlineCache[op] {
		ic := c.currentChunk().AllocateInlineCache()
		c.emitU8(op, ic, uint32(n.L))
	} else {
		c.emitU8(op, noCache, uint32(n.L))
	}
	return nil
}

// compileAnd/compileOr implement spec.md §4.1/§4.3 short-circuit
// evaluation. JumpIfFalse in this VM peeks rather than pops (vm_exec.go),
// so the surviving branch needs an explicit Pop before falling through
// to the other operand.
func (c *Compiler) compileAnd(n *ast.Binary) error {
	line := uint32(n.L)
	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	shortCircuit := c.emitJump(OpJumpIfFalse, line)
	c.emit(OpPop, line)
	if err := c.compileExpr(n.Right); err != nil {
		return err
	}
	return c.patchJump(shortCircuit)
}

func (c *Compiler) compileOr(n *ast.Binary) error {
	line := uint32(n.L)
	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	elseJump := c.emitJump(OpJumpIfFalse, line)
	endJump := c.emitJump(OpJump, line)
	if err := c.patchJump(elseJump); err != nil {
		return err
	}
	c.emit(OpPop, line)
	if err := c.compileExpr(n.Right); err != nil {
		return err
	}
	return c.patchJump(endJump)
}

func (c *Compiler) compileUnary(n *ast.Unary) error {
	if err := c.compileExpr(n.Operand); err != nil {
		return err
	}
	switch n.Op {
	case ast.UnaryNeg:
		c.emit(OpNeg, uint32(n.L))
	case ast.UnaryNot:
		c.emit(OpNot, uint32(n.L))
	default:
		return newCompileError(n.L, "unsupported unary operator '%s'", n.Op)
	}
	return nil
}

// compileVarLoad implements spec.md §4.3 variable resolution: local,
// then upvalue (recursively through enclosing compilers), then global.
func (c *Compiler) compileVarLoad(name string, line uint32) error {
	if slot, initialized := c.resolveLocal(name); slot != -1 {
		if !initialized {
			return newCompileError(int(line), "cannot read local variable '%s' in its own initializer", name)
		}
		c.emitLocalLoad(slot, line)
		return nil
	}
	if up := c.resolveUpvalue(name); up != -1 {
		c.emitU8(OpLoadUpvalue, uint8(up), line)
		return nil
	}
	idx, err := c.addNameConstant(name, line)
	if err != nil {
		return err
	}
	c.emitU8(OpLoadGlobal, idx, line)
	return nil
}

func (c *Compiler) compileCall(n *ast.FunctionCall) error {
	line := uint32(n.L)
	if member, ok := n.Callee.(*ast.MemberAccess); ok {
		handled, err := c.compileMemberCall(member, n.Args, line)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}

	if err := c.compileExpr(n.Callee); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	if len(n.Args) > 255 {
		return newCompileError(n.L, "too many call arguments")
	}
	c.emitU8(OpCall, uint8(len(n.Args)), line)
	return nil
}

// compileMemberCall handles the `receiver.method(args)` forms of
// spec.md §4.3 Function call: module export call, built-in method
// dispatch, or struct method dispatch. Returns handled=false when
// none apply, so the caller falls back to the generic `f(args)` path
// (receiver.field happens to be a plain callable value).
func (c *Compiler) compileMemberCall(member *ast.MemberAccess, args []ast.Expr, line uint32) (bool, error) {
	if modName, ok := c.moduleNameOf(member.Object); ok {
		if err := c.compileModuleExportLoad(modName, member.Object, member.Member, line); err != nil {
			return false, err
		}
		for _, a := range args {
			if err := c.compileExpr(a); err != nil {
				return false, err
			}
		}
		c.emitU8(OpCall, uint8(len(args)), line)
		return true, nil
	}

	vt := c.staticTypeOf(member.Object)

	if tag, idx, ok := builtinMethodLookup(vt, member.Member); ok {
		if err := c.compileExpr(member.Object); err != nil {
			return false, err
		}
		for _, a := range args {
			if err := c.compileExpr(a); err != nil {
				return false, err
			}
		}
		c.currentChunk().WriteOp(OpCallBuiltin, line)
		c.currentChunk().writeByte(tag, line)
		c.currentChunk().writeByte(idx, line)
		c.currentChunk().writeByte(uint8(len(args)+1), line)
		return true, nil
	}

	if vt.Kind == VarKindStruct {
		if info, ok := c.structInfos[vt.StructName]; ok {
			if idx, ok := info.MethodIndex[member.Member]; ok {
				if err := c.compileExpr(member.Object); err != nil {
					return false, err
				}
				c.emitU8(OpLoadMethod, uint8(idx), line)
				for _, a := range args {
					if err := c.compileExpr(a); err != nil {
						return false, err
					}
				}
				c.emitU8(OpCall, uint8(len(args)+1), line)
				return true, nil
			}
		}
	}

	return false, nil
}

func builtinMethodLookup(vt VarType, member string) (tag uint8, idx uint8, ok bool) {
	switch vt.Kind {
	case VarKindList:
		if i, found := listBuiltinIdx[member]; found {
			return kconfig.ShapeList, i, true
		}
	case VarKindString:
		if i, found := stringBuiltinIdx[member]; found {
			return kconfig.ShapeString, i, true
		}
	case VarKindJson:
		if i, found := jsonBuiltinIdx[member]; found {
			return kconfig.ShapeJson, i, true
		}
	}
	return 0, 0, false
}

// compileMemberGet handles non-call `a.b` (spec.md §4.3 member access).
func (c *Compiler) compileMemberGet(n *ast.MemberAccess) error {
	line := uint32(n.L)
	if modName, ok := c.moduleNameOf(n.Object); ok {
		return c.compileModuleExportLoad(modName, n.Object, n.Member, line)
	}

	vt := c.staticTypeOf(n.Object)
	if vt.Kind == VarKindStruct {
		if info, ok := c.structInfos[vt.StructName]; ok {
			if fi := fieldIndexOf(info, n.Member); fi != -1 {
				if err := c.compileExpr(n.Object); err != nil {
					return err
				}
				c.emitU8(OpGetField, uint8(fi), line)
				return nil
			}
		}
	}

	if err := c.compileExpr(n.Object); err != nil {
		return err
	}
	if err := c.emitConstant(c.stringConstant(n.Member), line); err != nil {
		return err
	}
	c.emit(OpIndexGet, line)
	return nil
}

func fieldIndexOf(info *StructInfo, name string) int {
	for i, n := range info.FieldNames {
		if n == name {
			return i
		}
	}
	return -1
}

func (c *Compiler) compileIndexGet(n *ast.IndexAccess) error {
	if err := c.compileExpr(n.Object); err != nil {
		return err
	}
	if err := c.compileExpr(n.Index); err != nil {
		return err
	}
	c.emit(OpIndexGet, uint32(n.L))
	return nil
}

// compileAssign implements spec.md §4.3 Assignment: disambiguate the
// left-hand side, emit object/index/value in the order the matching
// Set opcode expects, then discard the echoed value and push null.
func (c *Compiler) compileAssign(left, right ast.Expr, line uint32) error {
	switch l := left.(type) {
	case *ast.VarRef:
		if err := c.compileExpr(right); err != nil {
			return err
		}
		if err := c.storeVar(l.Name, line); err != nil {
			return err
		}
	case *ast.MemberAccess:
		vt := c.staticTypeOf(l.Object)
		if vt.Kind == VarKindStruct {
			if info, ok := c.structInfos[vt.StructName]; ok {
				if fi := fieldIndexOf(info, l.Member); fi != -1 {
					if err := c.compileExpr(l.Object); err != nil {
						return err
					}
					if err := c.compileExpr(right); err != nil {
						return err
					}
					c.emitU8(OpSetField, uint8(fi), line)
					break
				}
			}
		}
		if err := c.compileExpr(l.Object); err != nil {
			return err
		}
		if err := c.emitConstant(c.stringConstant(l.Member), line); err != nil {
			return err
		}
		if err := c.compileExpr(right); err != nil {
			return err
		}
		c.emit(OpIndexSet, line)
	case *ast.IndexAccess:
		if err := c.compileExpr(l.Object); err != nil {
			return err
		}
		if err := c.compileExpr(l.Index); err != nil {
			return err
		}
		if err := c.compileExpr(right); err != nil {
			return err
		}
		c.emit(OpIndexSet, line)
	default:
		return newCompileError(int(line), "invalid assignment target")
	}
	c.emit(OpPop, line)
	c.emit(OpLoadNull, line)
	return nil
}

func (c *Compiler) storeVar(name string, line uint32) error {
	if slot, _ := c.resolveLocal(name); slot != -1 {
		c.emitLocalStore(slot, line)
		return nil
	}
	if up := c.resolveUpvalue(name); up != -1 {
		c.emitU8(OpStoreUpvalue, uint8(up), line)
		return nil
	}
	idx, err := c.addNameConstant(name, line)
	if err != nil {
		return err
	}
	c.emitU8(OpStoreGlobal, idx, line)
	return nil
}

func (c *Compiler) compileCast(n *ast.As) error {
	if err := c.compileExpr(n.X); err != nil {
		return err
	}
	line := uint32(n.L)
	switch n.TargetType {
	case "Int":
		c.emit(OpCastToInt, line)
	case "Float":
		c.emit(OpCastToFloat, line)
	case "String":
		c.emit(OpCastToString, line)
	case "Bool":
		c.emit(OpCastToBool, line)
	default:
		return newCompileError(n.L, "unsupported cast target '%s'", n.TargetType)
	}
	return nil
}

// compileLambda implements spec.md §4.3 Lambda compilation: a child
// compiler compiles the body, then the parent emits Closure with the
// resolved upvalue descriptors.
func (c *Compiler) compileLambda(n *ast.Lambda, name string) error {
	child := newChildCompiler(c, name)
	child.function.Arity = len(n.Params)

	for _, p := range n.Params {
		if err := child.addLocal(p.Name, uint32(n.L)); err != nil {
			return err
		}
		child.markInitialized()
	}

	for _, stmt := range n.Body.Statements {
		if err := child.compileStmt(stmt); err != nil {
			return err
		}
	}
	child.emit(OpLoadNull, uint32(n.L))
	child.emit(OpReturn, uint32(n.L))
	child.function.LocalCount = child.maxSlots

	idx, ok := c.currentChunk().AddConstant(c.heap.NewFunction(child.function))
	if !ok {
		return newCompileError(n.L, "too many constants in one chunk")
	}
	c.emitU8(OpClosure, idx, uint32(n.L))
	c.currentChunk().writeByte(uint8(len(child.upvalues)), uint32(n.L))
	for _, up := range child.upvalues {
		b := uint8(0)
		if up.IsLocal {
			b = 1
		}
		c.currentChunk().writeByte(b, uint32(n.L))
		c.currentChunk().writeByte(up.Index, uint32(n.L))
	}
	return nil
}

func (c *Compiler) setVarType(name string, vt VarType) {
	c.varTypes[name] = vt
}

func (c *Compiler) staticTypeOf(e ast.Expr) VarType {
	switch n := e.(type) {
	case *ast.VarRef:
		return c.varTypes[n.Name]
	case *ast.StructLiteral:
		return VarType{Kind: VarKindStruct, StructName: n.Name}
	case *ast.LiteralList:
		return VarType{Kind: VarKindList}
	case *ast.LiteralString:
		return VarType{Kind: VarKindString}
	case *ast.JsonLiteral:
		return VarType{Kind: VarKindJson}
	case *ast.Grouping:
		return c.staticTypeOf(n.Inner)
	case *ast.FunctionCall:
		if member, ok := n.Callee.(*ast.MemberAccess); ok {
			if member.Member == "filter" || member.Member == "map" {
				if recv := c.staticTypeOf(member.Object); recv.Kind == VarKindList {
					return VarType{Kind: VarKindList}
				}
			}
		}
	}
	return VarType{Kind: VarKindUnknown}
}

// moduleNameOf reports whether e is a bare reference to a known
// module (spec.md §4.3 "a is a known module name or module alias").
func (c *Compiler) moduleNameOf(e ast.Expr) (string, bool) {
	ref, ok := e.(*ast.VarRef)
	if !ok {
		return "", false
	}
	if ref.Name == kconfig.StdModuleName {
		return kconfig.StdModuleName, true
	}
	if _, ok := c.modules[ref.Name]; ok {
		return ref.Name, true
	}
	if target, ok := c.moduleAliases[ref.Name]; ok {
		return target, true
	}
	return "", false
}

// compileModuleExportLoad loads the module object (as an ordinary
// variable reference, since every known module is also bound as a
// global or local by the point it's referenced) then the export by
// its compile-time index when known, falling back to a name-based
// lookup otherwise.
func (c *Compiler) compileModuleExportLoad(modName string, objExpr ast.Expr, member string, line uint32) error {
	if err := c.compileExpr(objExpr); err != nil {
		return err
	}
	if info, ok := c.modules[modName]; ok {
		if idx, ok := info.ExportName[member]; ok {
			c.emitU16(OpModuleGet, uint16(idx), line)
			return nil
		}
	}
	if err := c.emitConstant(c.stringConstant(member), line); err != nil {
		return err
	}
	c.emit(OpGetModuleExport, line)
	return nil
}
