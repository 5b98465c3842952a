package vm

import (
	"testing"

	"github.com/kaubo-lang/kaubo/internal/ast"
)

// --- small AST builder helpers, standing in for a parser this module
// never has (spec.md §1 scopes the lexer/parser out) ---

func intLit(v int64) ast.Expr     { return &ast.LiteralInt{Value: v} }
func floatLit(v float64) ast.Expr { return &ast.LiteralFloat{Value: v} }
func ref(name string) ast.Expr    { return &ast.VarRef{Name: name} }
func bin(l ast.Expr, op ast.BinaryOp, r ast.Expr) ast.Expr {
	return &ast.Binary{Left: l, Op: op, Right: r}
}
func block(stmts ...ast.Stmt) *ast.Block { return &ast.Block{Statements: stmts} }
func ret(e ast.Expr) ast.Stmt            { return &ast.Return{Value: e} }
func exprStmt(e ast.Expr) ast.Stmt       { return &ast.ExprStmt{X: e} }
func varDecl(name string, init ast.Expr) ast.Stmt {
	return &ast.VarDecl{Name: name, Initializer: init}
}
func lambda(params []string, body *ast.Block) ast.Expr {
	ps := make([]ast.Param, len(params))
	for i, p := range params {
		ps[i] = ast.Param{Name: p}
	}
	return &ast.Lambda{Params: ps, Body: body}
}
func call(callee ast.Expr, args ...ast.Expr) ast.Expr {
	return &ast.FunctionCall{Callee: callee, Args: args}
}
func mod(stmts ...ast.Stmt) *ast.Module { return &ast.Module{Statements: stmts} }

// --- compile + run ---

func compileAndRun(t *testing.T, m *ast.Module) Value {
	t.Helper()
	return compileAndRunWithStructs(t, m, nil)
}

func compileAndRunWithStructs(t *testing.T, m *ast.Module, structInfo map[string]StructInfoInput) Value {
	t.Helper()
	machine := New()
	chunk, localCount, shapes, err := CompileWithStructInfo(m, structInfo, machine.Heap())
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	for _, shape := range shapes {
		machine.RegisterShape(shape)
	}
	// Shapes resolved by the caller are not returned by the compiler; the
	// host registers them itself.
	for name, info := range structInfo {
		machine.RegisterShape(NewShape(info.ShapeID, name, info.FieldNames, info.FieldTypes))
	}
	if err := machine.LoadChunk(chunk); err != nil {
		t.Fatalf("load error: %s", err)
	}
	result, err := machine.Interpret(chunk, localCount)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	return result
}

func expectCompileErr(t *testing.T, m *ast.Module) {
	t.Helper()
	machine := New()
	_, _, _, err := CompileWithStructInfo(m, nil, machine.Heap())
	if err == nil {
		t.Fatalf("expected a compile error, got none")
	}
}

func testInt(t *testing.T, v Value, want int64) {
	t.Helper()
	if !v.IsInt() {
		t.Fatalf("value is not an int: %#v", v)
	}
	if got := v.AsInt(); got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func testFloat(t *testing.T, v Value, want float64) {
	t.Helper()
	if !v.IsFloat() {
		t.Fatalf("value is not a float: %#v", v)
	}
	if got := v.AsFloat(); got != want {
		t.Errorf("got %g, want %g", got, want)
	}
}

func testBool(t *testing.T, v Value, want bool) {
	t.Helper()
	if !v.IsBool() {
		t.Fatalf("value is not a bool: %#v", v)
	}
	if got := v.AsBool(); got != want {
		t.Errorf("got %t, want %t", got, want)
	}
}

// Scenario 1 (spec.md §8.1): var add = |a, b| { return a + b; }; return add(3, 4);
func TestScenarioLambdaCall(t *testing.T) {
	m := mod(
		varDecl("add", lambda([]string{"a", "b"}, block(
			ret(bin(ref("a"), ast.OpAdd, ref("b"))),
		))),
		ret(call(ref("add"), intLit(3), intLit(4))),
	)
	testInt(t, compileAndRun(t, m), 7)
}

// Scenario 2 (spec.md §8.2): a closure mutating an outer variable
// across two separate calls. y is declared at the top level, so it is a
// global and g reaches it through LoadGlobal/StoreGlobal, not an upvalue.
func TestScenarioClosureMutatesOuterVariable(t *testing.T) {
	m := mod(
		varDecl("y", intLit(10)),
		varDecl("g", lambda(nil, block(
			exprStmt(bin(ref("y"), ast.OpAssign, bin(ref("y"), ast.OpAdd, intLit(1)))),
			ret(ref("y")),
		))),
		varDecl("r1", call(ref("g"))),
		varDecl("r2", call(ref("g"))),
		ret(bin(ref("r1"), ast.OpAdd, ref("r2"))),
	)
	testInt(t, compileAndRun(t, m), 23)
}

// Scenario 3 (spec.md §8.3): operator-overloaded struct addition.
func TestScenarioOperatorOverload(t *testing.T) {
	fieldSum := func(field string) ast.Expr {
		return bin(
			&ast.MemberAccess{Object: ref("self"), Member: field}, ast.OpAdd,
			&ast.MemberAccess{Object: ref("other"), Member: field},
		)
	}
	addOperator := &ast.Lambda{
		Params: []ast.Param{{Name: "self"}, {Name: "other", Type: "Vec2"}},
		Body: block(ret(&ast.StructLiteral{
			Name: "Vec2",
			Fields: []ast.StructFieldInit{
				{Name: "x", Value: fieldSum("x")},
				{Name: "y", Value: fieldSum("y")},
			},
		})),
	}
	vec := func(name string, x, y float64) ast.Stmt {
		return varDecl(name, &ast.StructLiteral{
			Name: "Vec2",
			Fields: []ast.StructFieldInit{
				{Name: "x", Value: floatLit(x)},
				{Name: "y", Value: floatLit(y)},
			},
		})
	}
	m := mod(
		&ast.StructDecl{Name: "Vec2", Fields: []ast.FieldDecl{
			{Name: "x", Type: "float"}, {Name: "y", Type: "float"},
		}},
		&ast.Impl{StructName: "Vec2", Methods: []ast.ImplMethod{
			{OperatorName: "add", Lambda: addOperator},
		}},
		vec("a", 1.0, 2.0),
		vec("b", 3.0, 4.0),
		varDecl("c", bin(ref("a"), ast.OpAdd, ref("b"))),
		ret(bin(
			bin(&ast.MemberAccess{Object: ref("c"), Member: "x"}, ast.OpEq, floatLit(4.0)),
			ast.OpAnd,
			bin(&ast.MemberAccess{Object: ref("c"), Member: "y"}, ast.OpEq, floatLit(6.0)),
		)),
	)
	testBool(t, compileAndRun(t, m), true)
}

// Scenario 4 (spec.md §8.4): a coroutine generator consumed by a for-loop.
func TestScenarioCoroutineForLoop(t *testing.T) {
	yieldStmt := func(v int64) ast.Stmt {
		return exprStmt(&ast.Yield{Value: intLit(v)})
	}
	m := mod(
		varDecl("gen", lambda(nil, block(yieldStmt(1), yieldStmt(2), yieldStmt(3)))),
		varDecl("co", call(&ast.MemberAccess{Object: ref("std"), Member: "create_coroutine"}, ref("gen"))),
		varDecl("sum", intLit(0)),
		&ast.For{
			VarName:  "x",
			Iterable: ref("co"),
			Body: block(
				exprStmt(bin(ref("sum"), ast.OpAssign, bin(ref("sum"), ast.OpAdd, ref("x")))),
			),
		},
		ret(ref("sum")),
	)
	testInt(t, compileAndRun(t, m), 6)
}

// Scenario 5 (spec.md §8.5): indexed list mutation.
func TestScenarioListIndexAssignment(t *testing.T) {
	at := func(i int64) ast.Expr {
		return &ast.IndexAccess{Object: ref("list"), Index: intLit(i)}
	}
	m := mod(
		varDecl("list", &ast.LiteralList{Elements: []ast.Expr{intLit(1), intLit(2), intLit(3)}}),
		exprStmt(bin(at(1), ast.OpAssign, intLit(99))),
		ret(bin(bin(at(0), ast.OpAdd, at(1)), ast.OpAdd, at(2))),
	)
	testInt(t, compileAndRun(t, m), 103)
}

// Scenario 6 (spec.md §8.6): a fluent filter/map/reduce chain.
func TestScenarioFilterMapReduceChain(t *testing.T) {
	oneParam := func(p string, body ast.Expr) ast.Expr {
		return lambda([]string{p}, block(ret(body)))
	}
	list := &ast.LiteralList{Elements: []ast.Expr{
		intLit(1), intLit(2), intLit(3), intLit(4), intLit(5),
	}}
	filtered := call(&ast.MemberAccess{Object: list, Member: "filter"},
		oneParam("x", bin(ref("x"), ast.OpGt, intLit(2))))
	mapped := call(&ast.MemberAccess{Object: filtered, Member: "map"},
		oneParam("x", bin(ref("x"), ast.OpMul, intLit(10))))
	reduced := call(&ast.MemberAccess{Object: mapped, Member: "reduce"},
		&ast.Lambda{
			Params: []ast.Param{{Name: "a"}, {Name: "b"}},
			Body:   block(ret(bin(ref("a"), ast.OpAdd, ref("b")))),
		},
		intLit(0),
	)
	m := mod(ret(reduced))
	testInt(t, compileAndRun(t, m), 120)
}

// Assignment yields null (spec.md §8 invariant): `(x = v)` as an
// expression evaluates to null regardless of v.
func TestAssignmentYieldsNull(t *testing.T) {
	m := mod(
		varDecl("x", intLit(1)),
		ret(bin(ref("x"), ast.OpAssign, intLit(42))),
	)
	if !compileAndRun(t, m).IsNull() {
		t.Errorf("expected assignment expression to yield null")
	}
}

// Short-circuit and/or (spec.md §8 invariant): the right operand of a
// short-circuited `and`/`or` must never execute. The right operand here
// calls an undefined global, which would be a runtime error if it ran.
func TestShortCircuitAnd(t *testing.T) {
	m := mod(ret(bin(&ast.LiteralBool{Value: false}, ast.OpAnd, call(ref("undefinedFunction")))))
	testBool(t, compileAndRun(t, m), false)
}

func TestShortCircuitOr(t *testing.T) {
	m := mod(ret(bin(&ast.LiteralBool{Value: true}, ast.OpOr, call(ref("undefinedFunction")))))
	testBool(t, compileAndRun(t, m), true)
}

// Closure capture identity, and closures outliving their frame (spec.md
// §8 invariants): two closures built inside the same (now-returned)
// function frame, capturing its local, observe each other's mutations
// through shared upvalue storage.
func TestClosureCaptureIdentity(t *testing.T) {
	makeCounter := lambda(nil, block(
		varDecl("counter", intLit(0)),
		varDecl("inc", lambda(nil, block(
			exprStmt(bin(ref("counter"), ast.OpAssign, bin(ref("counter"), ast.OpAdd, intLit(1)))),
			ret(ref("counter")),
		))),
		varDecl("read", lambda(nil, block(ret(ref("counter"))))),
		ret(&ast.LiteralList{Elements: []ast.Expr{ref("inc"), ref("read")}}),
	))
	m := mod(
		varDecl("makeCounter", makeCounter),
		varDecl("pair", call(ref("makeCounter"))),
		varDecl("inc", &ast.IndexAccess{Object: ref("pair"), Index: intLit(0)}),
		varDecl("read", &ast.IndexAccess{Object: ref("pair"), Index: intLit(1)}),
		exprStmt(call(ref("inc"))),
		exprStmt(call(ref("inc"))),
		ret(call(ref("read"))),
	)
	testInt(t, compileAndRun(t, m), 2)
}

// For-in over an empty list runs the loop body zero times (spec.md §8
// invariant) and leaves the loop variable at its initial null.
func TestForInEmptyList(t *testing.T) {
	m := mod(
		varDecl("hits", intLit(0)),
		&ast.For{
			VarName:  "x",
			Iterable: &ast.LiteralList{},
			Body: block(
				exprStmt(bin(ref("hits"), ast.OpAssign, bin(ref("hits"), ast.OpAdd, intLit(1)))),
			),
		},
		ret(ref("hits")),
	)
	testInt(t, compileAndRun(t, m), 0)
}

// A for-loop over a list containing a literal null must still visit
// every element (the explicit hasNext flag, not a null-sentinel, is
// what execIterNext reports — see DESIGN.md).
func TestForInListContainingNull(t *testing.T) {
	m := mod(
		varDecl("count", intLit(0)),
		&ast.For{
			VarName:  "x",
			Iterable: &ast.LiteralList{Elements: []ast.Expr{intLit(1), &ast.LiteralNull{}, intLit(3)}},
			Body: block(
				exprStmt(bin(ref("count"), ast.OpAssign, bin(ref("count"), ast.OpAdd, intLit(1)))),
			),
		},
		ret(ref("count")),
	)
	testInt(t, compileAndRun(t, m), 3)
}

// SMI arithmetic stays an int for in-range results (spec.md §8 SMI closure).
func TestSMIArithmeticStaysInt(t *testing.T) {
	m := mod(ret(bin(intLit(1000), ast.OpMul, intLit(1000))))
	testInt(t, compileAndRun(t, m), 1_000_000)
}

// Struct literal field evaluation follows declaration order, not
// surface order (spec.md §8 invariant), exercised via the external
// struct-info path (compile_with_struct_info, spec.md §6.4).
func TestStructLiteralDeclarationOrder(t *testing.T) {
	structInfo := map[string]StructInfoInput{
		"Point": {ShapeID: 200, FieldNames: []string{"x", "y"}, FieldTypes: []string{"int", "int"}},
	}
	m := mod(
		varDecl("p", &ast.StructLiteral{
			Name: "Point",
			Fields: []ast.StructFieldInit{
				{Name: "y", Value: intLit(2)},
				{Name: "x", Value: intLit(1)},
			},
		}),
		ret(bin(&ast.MemberAccess{Object: ref("p"), Member: "x"}, ast.OpAdd,
			bin(&ast.MemberAccess{Object: ref("p"), Member: "y"}, ast.OpMul, intLit(10)))),
	)
	testInt(t, compileAndRunWithStructs(t, m, structInfo), 21)
}

// A duplicate operator registration for the same struct is a compile
// error (confirmed against original_source/next_kaubo's compiler.rs).
func TestDuplicateOperatorIsCompileError(t *testing.T) {
	noop := &ast.Lambda{
		Params: []ast.Param{{Name: "self"}, {Name: "other"}},
		Body:   block(ret(ref("self"))),
	}
	m := mod(
		&ast.StructDecl{Name: "Dup", Fields: []ast.FieldDecl{{Name: "n", Type: "int"}}},
		&ast.Impl{StructName: "Dup", Methods: []ast.ImplMethod{
			{OperatorName: "add", Lambda: noop},
			{OperatorName: "add", Lambda: noop},
		}},
	)
	expectCompileErr(t, m)
}

// Coroutine life cycle (spec.md §8 invariant): a coroutine starts
// Suspended, stays Suspended across intermediate yields, and becomes
// Dead only once its body runs to completion.
func TestCoroutineLifecycleStatus(t *testing.T) {
	yieldStmt := func(v int64) ast.Stmt {
		return exprStmt(&ast.Yield{Value: intLit(v)})
	}
	status := func() ast.Expr {
		return call(&ast.MemberAccess{Object: ref("std"), Member: "coroutine_status"}, ref("co"))
	}
	resume := func() ast.Stmt {
		return exprStmt(call(&ast.MemberAccess{Object: ref("std"), Member: "resume"}, ref("co")))
	}
	m := mod(
		varDecl("gen", lambda(nil, block(yieldStmt(1), yieldStmt(2)))),
		varDecl("co", call(&ast.MemberAccess{Object: ref("std"), Member: "create_coroutine"}, ref("gen"))),
		varDecl("s0", status()),
		resume(),
		varDecl("s1", status()),
		resume(),
		varDecl("s2", status()),
		resume(),
		varDecl("s3", status()),
		ret(bin(
			bin(bin(ref("s0"), ast.OpMul, intLit(1000)), ast.OpAdd, bin(ref("s1"), ast.OpMul, intLit(100))),
			ast.OpAdd,
			bin(bin(ref("s2"), ast.OpMul, intLit(10)), ast.OpAdd, ref("s3")),
		)),
	)
	// Suspended=0 at every checkpoint except the last, Dead=2 once the
	// generator has yielded twice and returned.
	testInt(t, compileAndRun(t, m), 2)
}

// Reverse-operator fallback (spec.md §4.4): `int + struct` finds no
// `add` on the int's shape, so the VM retries with the struct's `radd`,
// calling it as fn(struct, int) — self is the right operand.
func TestOperatorReverseFallback(t *testing.T) {
	raddOperator := &ast.Lambda{
		Params: []ast.Param{{Name: "self"}, {Name: "other"}},
		Body: block(ret(bin(
			&ast.MemberAccess{Object: ref("self"), Member: "n"}, ast.OpAdd, ref("other"),
		))),
	}
	structInfo := map[string]StructInfoInput{
		"Money": {ShapeID: 201, FieldNames: []string{"n"}, FieldTypes: []string{"int"}},
	}
	m := mod(
		&ast.StructDecl{Name: "Money", Fields: []ast.FieldDecl{{Name: "n", Type: "int"}}},
		&ast.Impl{StructName: "Money", Methods: []ast.ImplMethod{
			{OperatorName: "radd", Lambda: raddOperator},
		}},
		varDecl("m", &ast.StructLiteral{
			Name:   "Money",
			Fields: []ast.StructFieldInit{{Name: "n", Value: intLit(10)}},
		}),
		ret(bin(intLit(5), ast.OpAdd, ref("m"))),
	)
	testInt(t, compileAndRunWithStructs(t, m, structInfo), 15)
}

// Inline-cache transparency (spec.md §4.4): a cache hit on the second
// and third pass through the same call site must produce the same
// result as the initial miss. The loop body (and its inline-cache
// slot) is compiled once and executed three times.
func TestInlineCacheTransparentAcrossRepeatedCalls(t *testing.T) {
	fieldSum := func(field string) ast.Expr {
		return bin(
			&ast.MemberAccess{Object: ref("self"), Member: field}, ast.OpAdd,
			&ast.MemberAccess{Object: ref("other"), Member: field},
		)
	}
	addOperator := &ast.Lambda{
		Params: []ast.Param{{Name: "self"}, {Name: "other", Type: "Vec2"}},
		Body: block(ret(&ast.StructLiteral{
			Name: "Vec2",
			Fields: []ast.StructFieldInit{
				{Name: "x", Value: fieldSum("x")},
				{Name: "y", Value: fieldSum("y")},
			},
		})),
	}
	vecLit := func(x, y float64) ast.Expr {
		return &ast.StructLiteral{
			Name: "Vec2",
			Fields: []ast.StructFieldInit{
				{Name: "x", Value: floatLit(x)},
				{Name: "y", Value: floatLit(y)},
			},
		}
	}
	m := mod(
		&ast.StructDecl{Name: "Vec2", Fields: []ast.FieldDecl{
			{Name: "x", Type: "float"}, {Name: "y", Type: "float"},
		}},
		&ast.Impl{StructName: "Vec2", Methods: []ast.ImplMethod{
			{OperatorName: "add", Lambda: addOperator},
		}},
		varDecl("acc", vecLit(0, 0)),
		varDecl("addends", &ast.LiteralList{Elements: []ast.Expr{vecLit(1, 1), vecLit(2, 2), vecLit(3, 3)}}),
		&ast.For{
			VarName:  "v",
			Iterable: ref("addends"),
			Body: block(
				exprStmt(bin(ref("acc"), ast.OpAssign, bin(ref("acc"), ast.OpAdd, ref("v")))),
			),
		},
		ret(bin(
			bin(&ast.MemberAccess{Object: ref("acc"), Member: "x"}, ast.OpEq, floatLit(6.0)),
			ast.OpAnd,
			bin(&ast.MemberAccess{Object: ref("acc"), Member: "y"}, ast.OpEq, floatLit(6.0)),
		)),
	)
	testBool(t, compileAndRun(t, m), true)
}
