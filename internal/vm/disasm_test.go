package vm

import (
	"strings"
	"testing"

	"github.com/kaubo-lang/kaubo/internal/ast"
)

// Disassemble renders mnemonics a reader can recognize without
// decoding raw bytes, and recurses into nested closures (spec.md §7
// Diagnostics).
func TestDisassembleRendersMnemonicsAndNestedClosures(t *testing.T) {
	m := mod(
		varDecl("add", lambda([]string{"a", "b"}, block(
			ret(bin(ref("a"), ast.OpAdd, ref("b"))),
		))),
		ret(call(ref("add"), intLit(3), intLit(4))),
	)

	machine := New()
	chunk, _, shapes, err := CompileWithStructInfo(m, nil, machine.Heap())
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	for _, s := range shapes {
		machine.RegisterShape(s)
	}

	out := Disassemble(chunk, "test", machine.Heap())

	for _, want := range []string{"== test ==", "CLOSURE", "CALL", "'add'"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "    | ==") {
		t.Errorf("nested closure body not rendered with nested indentation:\n%s", out)
	}
}
