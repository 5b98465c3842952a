package vm

import (
	"github.com/kaubo-lang/kaubo/internal/ast"
	"github.com/kaubo-lang/kaubo/internal/kconfig"
)

func (c *Compiler) compileStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.ExprStmt:
		if err := c.compileExpr(n.X); err != nil {
			return err
		}
		c.emit(OpPop, uint32(n.X.Line()))
		return nil
	case *ast.VarDecl:
		return c.compileVarDecl(n)
	case *ast.Block:
		return c.compileBlockStmts(n, 0)
	case *ast.If:
		return c.compileIf(n)
	case *ast.While:
		return c.compileWhile(n)
	case *ast.For:
		return c.compileFor(n)
	case *ast.Return:
		return c.compileReturn(n)
	case *ast.ModuleDecl:
		return c.compileModuleDecl(n)
	case *ast.Import:
		return c.compileImport(n)
	case *ast.StructDecl:
		return c.compileStructDecl(n)
	case *ast.Impl:
		return c.compileImpl(n)
	case *ast.Empty:
		return nil
	}
	return newCompileError(0, "unsupported statement node %T", s)
}

// compileBlockStmts compiles a lexical block: new scope in, statements,
// scope out (spec.md §4.3 Block).
func (c *Compiler) compileBlockStmts(b *ast.Block, line uint32) error {
	c.beginScope()
	for _, stmt := range b.Statements {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	c.endScope(line)
	return nil
}

// compileVarDecl implements spec.md §4.3 Var declaration: at top
// level (outside any function, outside any block) a `var` becomes a
// global; anywhere else it becomes a dedicated local slot. Kaubo
// frames keep locals in their own vector (vm.go CallFrame), so
// declaring one means storing the initializer's value into that slot
// and discarding the transient operand-stack copy.
func (c *Compiler) compileVarDecl(n *ast.VarDecl) error {
	line := uint32(n.Line)
	if err := c.compileExpr(n.Initializer); err != nil {
		return err
	}

	if c.funcType == TypeScript && c.scopeDepth == 0 {
		idx, err := c.addNameConstant(n.Name, line)
		if err != nil {
			return err
		}
		c.emitU8(OpDefineGlobal, idx, line)
	} else {
		if err := c.addLocal(n.Name, line); err != nil {
			return err
		}
		c.markInitialized()
		slot, _ := c.resolveLocal(n.Name)
		c.emitLocalStore(slot, line)
		c.emit(OpPop, line)
	}

	c.setVarType(n.Name, c.staticTypeOf(n.Initializer))
	return nil
}

// compileIf implements spec.md §4.3 If/elif/else.
func (c *Compiler) compileIf(n *ast.If) error {
	line := uint32(n.Line)
	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	thenJump := c.emitJump(OpJumpIfFalse, line)
	c.emit(OpPop, line)
	if err := c.compileBlockStmts(n.Then, line); err != nil {
		return err
	}
	var endJumps []int
	endJumps = append(endJumps, c.emitJump(OpJump, line))
	if err := c.patchJump(thenJump); err != nil {
		return err
	}
	c.emit(OpPop, line)

	for _, elif := range n.Elifs {
		if err := c.compileExpr(elif.Cond); err != nil {
			return err
		}
		nextJump := c.emitJump(OpJumpIfFalse, line)
		c.emit(OpPop, line)
		if err := c.compileBlockStmts(elif.Body, line); err != nil {
			return err
		}
		endJumps = append(endJumps, c.emitJump(OpJump, line))
		if err := c.patchJump(nextJump); err != nil {
			return err
		}
		c.emit(OpPop, line)
	}

	if n.Else != nil {
		if err := c.compileBlockStmts(n.Else, line); err != nil {
			return err
		}
	}

	for _, j := range endJumps {
		if err := c.patchJump(j); err != nil {
			return err
		}
	}
	return nil
}

// compileWhile implements spec.md §4.3 While.
func (c *Compiler) compileWhile(n *ast.While) error {
	line := uint32(n.Line)
	loopStart := c.currentChunk().Len()
	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	exitJump := c.emitJump(OpJumpIfFalse, line)
	c.emit(OpPop, line)
	if err := c.compileBlockStmts(n.Body, line); err != nil {
		return err
	}
	c.currentChunk().WriteLoop(loopStart, line)
	if err := c.patchJump(exitJump); err != nil {
		return err
	}
	c.emit(OpPop, line)
	return nil
}

// compileFor implements spec.md §4.3 For: `for var x in iterable`.
// The iterator (GetIter) and the loop variable each get a dedicated
// local slot so they survive across the backward jump; execIterNext
// reports an explicit hasNext flag rather than a null sentinel, so a
// list legitimately containing null never terminates the loop early.
func (c *Compiler) compileFor(n *ast.For) error {
	line := uint32(n.Line)
	c.beginScope()

	if err := c.compileExpr(n.Iterable); err != nil {
		return err
	}
	c.emit(OpGetIter, line)
	if err := c.addLocal("<iter>", line); err != nil {
		return err
	}
	c.markInitialized()
	iterSlot, _ := c.resolveLocal("<iter>")
	c.emitLocalStore(iterSlot, line)
	c.emit(OpPop, line)

	c.emit(OpLoadNull, line)
	if err := c.addLocal(n.VarName, line); err != nil {
		return err
	}
	c.markInitialized()
	varSlot, _ := c.resolveLocal(n.VarName)
	c.emitLocalStore(varSlot, line)
	c.emit(OpPop, line)

	loopStart := c.currentChunk().Len()
	c.emitLocalLoad(iterSlot, line)
	c.emit(OpIterNext, line)

	exitJump := c.emitJump(OpJumpIfFalse, line)
	c.emit(OpPop, line) // discard hasNext=true
	c.emitLocalStore(varSlot, line)
	c.emit(OpPop, line) // discard the transient value copy

	if err := c.compileBlockStmts(n.Body, line); err != nil {
		return err
	}
	c.currentChunk().WriteLoop(loopStart, line)

	if err := c.patchJump(exitJump); err != nil {
		return err
	}
	c.emit(OpPop, line) // discard hasNext=false
	c.emit(OpPop, line) // discard the exhausted iterator's null value

	c.endScope(line)
	return nil
}

func (c *Compiler) compileReturn(n *ast.Return) error {
	line := uint32(n.Line)
	if n.Value != nil {
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		c.emit(OpReturnValue, line)
	} else {
		c.emit(OpReturn, line)
	}
	return nil
}

// compileModuleDecl implements spec.md §4.3/§6 Module decl: every
// top-level `var` inside the body becomes an export, in declaration
// order; other statement kinds inside a module body run for their
// side effects only. The built module is bound as a global under its
// own name too, so `name.field` resolves through the ordinary
// variable-load + member-access path.
func (c *Compiler) compileModuleDecl(n *ast.ModuleDecl) error {
	const line = uint32(0)
	info := &ModuleInfo{Name: n.Name, ExportName: make(map[string]int)}
	c.modules[n.Name] = info
	prevModule := c.currentModule
	c.currentModule = info

	exportCount := 0
	for _, stmt := range n.Body.Statements {
		vd, ok := stmt.(*ast.VarDecl)
		if !ok {
			if err := c.compileStmt(stmt); err != nil {
				return err
			}
			continue
		}
		if err := c.compileExpr(vd.Initializer); err != nil {
			return err
		}
		info.ExportName[vd.Name] = info.NextExport
		info.NextExport++
		exportCount++
		c.setVarType(vd.Name, c.staticTypeOf(vd.Initializer))
	}
	c.currentModule = prevModule

	nameIdx, err := c.addNameConstant(n.Name, line)
	if err != nil {
		return err
	}
	c.currentChunk().WriteOp(OpBuildModule, line)
	c.currentChunk().writeByte(nameIdx, line)
	c.currentChunk().writeByte(uint8(exportCount), line)
	c.emitU8(OpDefineGlobal, nameIdx, line)
	return nil
}

// compileImport implements spec.md §4.3/§6 Import. Cross-file module
// resolution is out of this core's scope; `path` must already name a
// module declared earlier in the same compiled unit, or the fixed
// `std` module.
func (c *Compiler) compileImport(n *ast.Import) error {
	line := uint32(n.Line)
	target := n.Path
	info, known := c.modules[target]
	if !known && target != kconfig.StdModuleName {
		return newCompileError(n.Line, "unknown module '%s'", target)
	}

	if len(n.Items) == 0 {
		alias := n.Alias
		if alias == "" {
			alias = target
		}
		if alias == target {
			return nil
		}
		c.moduleAliases[alias] = target
		if err := c.emitConstant(c.stringConstant(target), line); err != nil {
			return err
		}
		c.emit(OpGetModule, line)
		idx, err := c.addNameConstant(alias, line)
		if err != nil {
			return err
		}
		c.emitU8(OpDefineGlobal, idx, line)
		return nil
	}

	for _, item := range n.Items {
		if err := c.emitConstant(c.stringConstant(target), line); err != nil {
			return err
		}
		c.emit(OpGetModule, line)
		if known {
			if expIdx, ok := info.ExportName[item]; ok {
				c.emitU16(OpModuleGet, uint16(expIdx), line)
			} else {
				if err := c.emitConstant(c.stringConstant(item), line); err != nil {
					return err
				}
				c.emit(OpGetModuleExport, line)
			}
		} else {
			if err := c.emitConstant(c.stringConstant(item), line); err != nil {
				return err
			}
			c.emit(OpGetModuleExport, line)
		}
		idx, err := c.addNameConstant(item, line)
		if err != nil {
			return err
		}
		c.emitU8(OpDefineGlobal, idx, line)
	}
	return nil
}

// compileStructDecl implements spec.md §4.3/§6.4 Struct decl: when the
// external type-resolution pass already supplied this struct's shape
// (CompileWithStructInfo's structInfo argument), it's a no-op; only a
// self-contained compile (Compile with nil structInfo) needs to
// invent a shape id here, surfaced via resolvedShapes for the caller
// to RegisterShape before Interpret runs.
func (c *Compiler) compileStructDecl(n *ast.StructDecl) error {
	if _, exists := c.structInfos[n.Name]; exists {
		return nil
	}
	id := *c.shapeAlloc
	*c.shapeAlloc++

	names := make([]string, len(n.Fields))
	types := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		names[i] = f.Name
		types[i] = f.Type
	}
	c.structInfos[n.Name] = &StructInfo{
		ShapeID:     id,
		FieldNames:  names,
		FieldTypes:  types,
		MethodIndex: make(map[string]int),
		Operators:   make(map[ast.BinaryOp]bool),
		HasOperator: make(map[Operator]bool),
	}
	*c.resolvedShapes = append(*c.resolvedShapes, NewShape(id, n.Name, names, types))
	return nil
}

// compileImpl implements spec.md §4.3/§4.4 Impl: each method or
// operator body compiles to a standalone closure (impl blocks live at
// module scope, so methods never capture outer locals) realized
// directly as a chunk constant, then registered into the chunk's
// method/operator table for chunk-load-time installation (vm.go
// LoadChunk).
func (c *Compiler) compileImpl(n *ast.Impl) error {
	info, ok := c.structInfos[n.StructName]
	if !ok {
		return newCompileError(n.Line, "impl for unknown struct '%s'", n.StructName)
	}
	for _, m := range n.Methods {
		fnConstIdx, err := c.compileMethodLambda(m.Lambda, m.Name)
		if err != nil {
			return err
		}
		if m.OperatorName != "" {
			op, ok := operatorByName[m.OperatorName]
			if !ok {
				return newCompileError(n.Line, "unknown operator '%s'", m.OperatorName)
			}
			if info.HasOperator[op] {
				return newCompileError(n.Line, "struct '%s' already implements operator '%s'", n.StructName, m.OperatorName)
			}
			info.HasOperator[op] = true
			c.currentChunk().OperatorTable = append(c.currentChunk().OperatorTable, OperatorTableEntry{
				ShapeID: info.ShapeID, Operator: op, ConstIdx: fnConstIdx,
			})
			continue
		}
		idx := info.NextMethodIdx
		info.NextMethodIdx++
		info.MethodIndex[m.Name] = idx
		c.currentChunk().MethodTable = append(c.currentChunk().MethodTable, MethodTableEntry{
			ShapeID: info.ShapeID, MethodIdx: uint8(idx), ConstIdx: fnConstIdx,
		})
	}
	return nil
}

// compileMethodLambda compiles one impl method/operator body and
// returns its constant-pool index. Unlike compileLambda (used for
// ordinary closures created at runtime), the closure is built once at
// compile time since it can never capture anything.
func (c *Compiler) compileMethodLambda(lam *ast.Lambda, name string) (uint8, error) {
	child := newChildCompiler(c, name)
	child.function.Arity = len(lam.Params)

	for _, p := range lam.Params {
		if err := child.addLocal(p.Name, uint32(lam.L)); err != nil {
			return 0, err
		}
		child.markInitialized()
	}
	for _, stmt := range lam.Body.Statements {
		if err := child.compileStmt(stmt); err != nil {
			return 0, err
		}
	}
	child.emit(OpLoadNull, uint32(lam.L))
	child.emit(OpReturn, uint32(lam.L))
	child.function.LocalCount = child.maxSlots

	if len(child.upvalues) > 0 {
		return 0, newCompileError(lam.L, "methods cannot capture outer variables")
	}

	closureVal := c.heap.NewClosure(&ObjClosure{Function: child.function})
	idx, ok := c.currentChunk().AddConstant(closureVal)
	if !ok {
		return 0, newCompileError(lam.L, "too many constants in one chunk")
	}
	return idx, nil
}
