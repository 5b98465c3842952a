package main

import (
	"github.com/kaubo-lang/kaubo/internal/ast"
)

// registry builds the fixed set of example programs this driver can
// run. Each mirrors one of the canonical end-to-end scenarios: a
// closure call, a closure mutating an outer (global) variable, an operator-overloaded struct, a
// coroutine generator consumed by a for-loop, an indexed list
// mutation, and a fluent filter/map/reduce chain over a list literal.
func registry() map[string]*example {
	return map[string]*example{
		"add":     addExample(),
		"counter": counterExample(),
		"vec2":    vec2Example(),
		"coro":    coroExample(),
		"list":    listExample(),
		"chain":   chainExample(),
	}
}

// add: var add = |a, b| { return a + b; }; return add(3, 4);
func addExample() *example {
	return &example{
		name:        "add",
		description: "lambda call",
		want:        "7",
		build: func() *ast.Module {
			addLambda := &ast.Lambda{
				Params: []ast.Param{{Name: "a"}, {Name: "b"}},
				Body: &ast.Block{Statements: []ast.Stmt{
					&ast.Return{Value: &ast.Binary{
						Left: &ast.VarRef{Name: "a"}, Op: ast.OpAdd, Right: &ast.VarRef{Name: "b"},
					}},
				}},
			}
			return &ast.Module{Statements: []ast.Stmt{
				&ast.VarDecl{Name: "add", Initializer: addLambda},
				&ast.Return{Value: &ast.FunctionCall{
					Callee: &ast.VarRef{Name: "add"},
					Args:   []ast.Expr{&ast.LiteralInt{Value: 3}, &ast.LiteralInt{Value: 4}},
				}},
			}}
		},
	}
}

// counter: var y = 10; var g = || { y = y + 1; return y; };
// var r1 = g(); var r2 = g(); return r1 + r2;
func counterExample() *example {
	return &example{
		name:        "counter",
		description: "closure mutating an outer variable",
		want:        "23",
		build: func() *ast.Module {
			incrementAndReturn := &ast.Lambda{
				Body: &ast.Block{Statements: []ast.Stmt{
					&ast.ExprStmt{X: &ast.Binary{
						Left: &ast.VarRef{Name: "y"}, Op: ast.OpAssign,
						Right: &ast.Binary{Left: &ast.VarRef{Name: "y"}, Op: ast.OpAdd, Right: &ast.LiteralInt{Value: 1}},
					}},
					&ast.Return{Value: &ast.VarRef{Name: "y"}},
				}},
			}
			call := func() ast.Expr { return &ast.FunctionCall{Callee: &ast.VarRef{Name: "g"}} }
			return &ast.Module{Statements: []ast.Stmt{
				&ast.VarDecl{Name: "y", Initializer: &ast.LiteralInt{Value: 10}},
				&ast.VarDecl{Name: "g", Initializer: incrementAndReturn},
				&ast.VarDecl{Name: "r1", Initializer: call()},
				&ast.VarDecl{Name: "r2", Initializer: call()},
				&ast.Return{Value: &ast.Binary{
					Left: &ast.VarRef{Name: "r1"}, Op: ast.OpAdd, Right: &ast.VarRef{Name: "r2"},
				}},
			}}
		},
	}
}

// vec2: struct Vec2 { x: float, y: float }; impl Vec2 { operator add: ... }
// var a = Vec2{1,2}; var b = Vec2{3,4}; var c = a + b;
// return c.x == 4.0 and c.y == 6.0;
func vec2Example() *example {
	return &example{
		name:        "vec2",
		description: "operator-overloaded struct addition",
		want:        "true",
		build: func() *ast.Module {
			fieldSum := func(field string) ast.Expr {
				return &ast.Binary{
					Left:  &ast.MemberAccess{Object: &ast.VarRef{Name: "self"}, Member: field},
					Op:    ast.OpAdd,
					Right: &ast.MemberAccess{Object: &ast.VarRef{Name: "other"}, Member: field},
				}
			}
			addOperator := &ast.Lambda{
				Params: []ast.Param{{Name: "self"}, {Name: "other", Type: "Vec2"}},
				Body: &ast.Block{Statements: []ast.Stmt{
					&ast.Return{Value: &ast.StructLiteral{
						Name: "Vec2",
						Fields: []ast.StructFieldInit{
							{Name: "x", Value: fieldSum("x")},
							{Name: "y", Value: fieldSum("y")},
						},
					}},
				}},
			}
			vec := func(name string, x, y float64) ast.Stmt {
				return &ast.VarDecl{Name: name, Initializer: &ast.StructLiteral{
					Name: "Vec2",
					Fields: []ast.StructFieldInit{
						{Name: "x", Value: &ast.LiteralFloat{Value: x}},
						{Name: "y", Value: &ast.LiteralFloat{Value: y}},
					},
				}}
			}
			return &ast.Module{Statements: []ast.Stmt{
				&ast.StructDecl{Name: "Vec2", Fields: []ast.FieldDecl{
					{Name: "x", Type: "float"}, {Name: "y", Type: "float"},
				}},
				&ast.Impl{StructName: "Vec2", Methods: []ast.ImplMethod{
					{OperatorName: "add", Lambda: addOperator},
				}},
				vec("a", 1.0, 2.0),
				vec("b", 3.0, 4.0),
				&ast.VarDecl{Name: "c", Initializer: &ast.Binary{
					Left: &ast.VarRef{Name: "a"}, Op: ast.OpAdd, Right: &ast.VarRef{Name: "b"},
				}},
				&ast.Return{Value: &ast.Binary{
					Left: &ast.Binary{
						Left: &ast.MemberAccess{Object: &ast.VarRef{Name: "c"}, Member: "x"},
						Op:   ast.OpEq, Right: &ast.LiteralFloat{Value: 4.0},
					},
					Op: ast.OpAnd,
					Right: &ast.Binary{
						Left: &ast.MemberAccess{Object: &ast.VarRef{Name: "c"}, Member: "y"},
						Op:   ast.OpEq, Right: &ast.LiteralFloat{Value: 6.0},
					},
				}},
			}}
		},
	}
}

// coro: var gen = || { yield 1; yield 2; yield 3; };
// var co = std.create_coroutine(gen); var sum = 0;
// for var x in co { sum = sum + x; } return sum;
func coroExample() *example {
	return &example{
		name:        "coro",
		description: "coroutine generator consumed by a for-loop",
		want:        "6",
		build: func() *ast.Module {
			yieldStmt := func(v int64) ast.Stmt {
				return &ast.ExprStmt{X: &ast.Yield{Value: &ast.LiteralInt{Value: v}}}
			}
			gen := &ast.Lambda{Body: &ast.Block{Statements: []ast.Stmt{
				yieldStmt(1), yieldStmt(2), yieldStmt(3),
			}}}
			return &ast.Module{Statements: []ast.Stmt{
				&ast.VarDecl{Name: "gen", Initializer: gen},
				&ast.VarDecl{Name: "co", Initializer: &ast.FunctionCall{
					Callee: &ast.MemberAccess{Object: &ast.VarRef{Name: "std"}, Member: "create_coroutine"},
					Args:   []ast.Expr{&ast.VarRef{Name: "gen"}},
				}},
				&ast.VarDecl{Name: "sum", Initializer: &ast.LiteralInt{Value: 0}},
				&ast.For{
					VarName:  "x",
					Iterable: &ast.VarRef{Name: "co"},
					Body: &ast.Block{Statements: []ast.Stmt{
						&ast.ExprStmt{X: &ast.Binary{
							Left: &ast.VarRef{Name: "sum"}, Op: ast.OpAssign,
							Right: &ast.Binary{Left: &ast.VarRef{Name: "sum"}, Op: ast.OpAdd, Right: &ast.VarRef{Name: "x"}},
						}},
					}},
				},
				&ast.Return{Value: &ast.VarRef{Name: "sum"}},
			}}
		},
	}
}

// list: var list = [1, 2, 3]; list[1] = 99;
// return list[0] + list[1] + list[2];
func listExample() *example {
	return &example{
		name:        "list",
		description: "indexed list mutation",
		want:        "103",
		build: func() *ast.Module {
			at := func(i int64) ast.Expr {
				return &ast.IndexAccess{Object: &ast.VarRef{Name: "list"}, Index: &ast.LiteralInt{Value: i}}
			}
			return &ast.Module{Statements: []ast.Stmt{
				&ast.VarDecl{Name: "list", Initializer: &ast.LiteralList{Elements: []ast.Expr{
					&ast.LiteralInt{Value: 1}, &ast.LiteralInt{Value: 2}, &ast.LiteralInt{Value: 3},
				}}},
				&ast.ExprStmt{X: &ast.Binary{Left: at(1), Op: ast.OpAssign, Right: &ast.LiteralInt{Value: 99}}},
				&ast.Return{Value: &ast.Binary{
					Left:  &ast.Binary{Left: at(0), Op: ast.OpAdd, Right: at(1)},
					Op:    ast.OpAdd,
					Right: at(2),
				}},
			}}
		},
	}
}

// chain: return [1,2,3,4,5].filter(|x| x > 2).map(|x| x * 10).reduce(|a,b| a + b, 0);
func chainExample() *example {
	return &example{
		name:        "chain",
		description: "filter/map/reduce chain over a list literal",
		want:        "120",
		build: func() *ast.Module {
			oneParamReturning := func(param string, body ast.Expr) *ast.Lambda {
				return &ast.Lambda{
					Params: []ast.Param{{Name: param}},
					Body:   &ast.Block{Statements: []ast.Stmt{&ast.Return{Value: body}}},
				}
			}
			list := &ast.LiteralList{Elements: []ast.Expr{
				&ast.LiteralInt{Value: 1}, &ast.LiteralInt{Value: 2}, &ast.LiteralInt{Value: 3},
				&ast.LiteralInt{Value: 4}, &ast.LiteralInt{Value: 5},
			}}
			filterCall := &ast.FunctionCall{
				Callee: &ast.MemberAccess{Object: list, Member: "filter"},
				Args: []ast.Expr{oneParamReturning("x", &ast.Binary{
					Left: &ast.VarRef{Name: "x"}, Op: ast.OpGt, Right: &ast.LiteralInt{Value: 2},
				})},
			}
			mapCall := &ast.FunctionCall{
				Callee: &ast.MemberAccess{Object: filterCall, Member: "map"},
				Args: []ast.Expr{oneParamReturning("x", &ast.Binary{
					Left: &ast.VarRef{Name: "x"}, Op: ast.OpMul, Right: &ast.LiteralInt{Value: 10},
				})},
			}
			reduceCall := &ast.FunctionCall{
				Callee: &ast.MemberAccess{Object: mapCall, Member: "reduce"},
				Args: []ast.Expr{
					&ast.Lambda{
						Params: []ast.Param{{Name: "a"}, {Name: "b"}},
						Body: &ast.Block{Statements: []ast.Stmt{
							&ast.Return{Value: &ast.Binary{Left: &ast.VarRef{Name: "a"}, Op: ast.OpAdd, Right: &ast.VarRef{Name: "b"}}},
						}},
					},
					&ast.LiteralInt{Value: 0},
				},
			}
			return &ast.Module{Statements: []ast.Stmt{
				&ast.Return{Value: reduceCall},
			}}
		},
	}
}
