package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tova/internal/lexer"
	"tova/internal/lir"
	"tova/internal/parser"
	"tova/internal/strpool"
)

func compileProgram(t *testing.T, source string) (*lir.Chunk, error) {
	t.Helper()
	pool := strpool.NewPool()
	tokens, err := lexer.NewScanner(source, "test").ScanTokens()
	require.NoError(t, err)
	tree, err := parser.NewParser(tokens, pool, source, "test").Parse()
	require.NoError(t, err)
	return NewCompiler(tree, pool, source, "test").Compile()
}

func TestPreamble(t *testing.T) {
	t.Run("the heap register starts at the top of the cell array", func(t *testing.T) {
		chunk, err := compileProgram(t, "write_int 42")
		require.NoError(t, err)

		first := chunk.Instructions[0]
		assert.Equal(t, lir.OpMov, first.Op)
		assert.Equal(t, 0, first.Operands[0].Reg.Index)
		assert.Equal(t, int64(HeapTop), first.Operands[1].Num)
	})

	t.Run("static allocations lower the heap start", func(t *testing.T) {
		chunk, err := compileProgram(t, "let var y = make_array 3 in write_int y[0]")
		require.NoError(t, err)

		first := chunk.Instructions[0]
		assert.Equal(t, int64(HeapTop-3), first.Operands[1].Num)
	})

	t.Run("string literals allocate their length plus a sentinel", func(t *testing.T) {
		chunk, err := compileProgram(t, `write_str "hi"`)
		require.NoError(t, err)

		first := chunk.Instructions[0]
		assert.Equal(t, int64(HeapTop-3), first.Operands[1].Num)
	})

	t.Run("the preamble jumps over prepended function bodies", func(t *testing.T) {
		chunk, err := compileProgram(t, "let fun f x = x + 1 in write_int (f 3)")
		require.NoError(t, err)

		jmp := chunk.Instructions[1]
		require.Equal(t, lir.OpJmp, jmp.Op)
		mainIdx := chunk.LabelIndexes[jmp.Operands[0].Lab]
		// the function body sits between the preamble and main
		assert.Greater(t, mainIdx, 2)
		assert.Equal(t, lir.OpFunc, chunk.Instructions[2].Op)
	})
}

func TestFunctions(t *testing.T) {
	chunk, err := compileProgram(t, "let fun add a b = a + b in write_int (add 1 2)")
	require.NoError(t, err)

	var pushes, pops int
	var sawCall, sawRet, sawFunc bool
	for _, inst := range chunk.Instructions {
		switch inst.Op {
		case lir.OpPush:
			pushes++
		case lir.OpPop:
			pops++
		case lir.OpCall:
			sawCall = true
		case lir.OpRet:
			sawRet = true
		case lir.OpFunc:
			sawFunc = true
		}
	}

	// three caller-saved registers plus two arguments plus the callee's
	// result push; two parameter pops, the result pop and three restores
	assert.Equal(t, 6, pushes)
	assert.Equal(t, 6, pops)
	assert.True(t, sawCall)
	assert.True(t, sawRet)
	assert.True(t, sawFunc)
}

func TestLoops(t *testing.T) {
	t.Run("break and continue destinations are backpatched to the result register", func(t *testing.T) {
		chunk, err := compileProgram(t, "while true then break 5")
		require.NoError(t, err)

		// the MOV before the break's jump must target a register, not the
		// placeholder
		for i, inst := range chunk.Instructions {
			if inst.Op == lir.OpJmp && i > 0 && chunk.Instructions[i-1].Op == lir.OpMov {
				mov := chunk.Instructions[i-1]
				if mov.Operands[1].Kind == lir.KindImmediate && mov.Operands[1].Num == 5 {
					assert.Equal(t, lir.KindRegister, mov.Operands[0].Kind)
					return
				}
			}
		}
		t.Fatal("no backpatched MOV found")
	})

	t.Run("for loops test with equality against the bound", func(t *testing.T) {
		chunk, err := compileProgram(t, "for var i from 0 to 3 then write_int i")
		require.NoError(t, err)

		var sawEq, sawJmpTrue bool
		for _, inst := range chunk.Instructions {
			switch inst.Op {
			case lir.OpEq:
				sawEq = true
			case lir.OpJmpTrue:
				sawJmpTrue = true
			}
		}
		assert.True(t, sawEq)
		assert.True(t, sawJmpTrue)
	})
}

func TestIndexing(t *testing.T) {
	chunk, err := compileProgram(t, "let var y = make_array 2 in y[1] = 9")
	require.NoError(t, err)

	var sawStore bool
	for _, inst := range chunk.Instructions {
		if inst.Op == lir.OpStore {
			sawStore = true
			assert.Equal(t, int64(9), inst.Operands[0].Num)
		}
	}
	assert.True(t, sawStore)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct{ name, source string }{
		{"break outside a loop", "break 1"},
		{"continue outside a loop", "continue 1"},
		{"undeclared variable", "write_int x"},
		{"call of an unknown function", "f 1"},
		{"call of a non-function", "let var v = 1 in v 2"},
		{"indexing a temporary", `write_int "abc"[0]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileProgram(t, tt.source)
			assert.Error(t, err)
		})
	}
}

func TestHeapOverflow(t *testing.T) {
	_, err := compileProgram(t, "let var y = make_array 3000 in write_int 0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heap overflow")
}

func TestLabelsResolve(t *testing.T) {
	// every label referenced by a jump or call must be present in the map
	sources := []string{
		"write_int (if true then 1 else 2)",
		"when true then write_int 1",
		"for var i from 0 to 3 then write_int i",
		"while false then write_int 1",
		"let fun f x = x in write_int (f 1)",
		"let var i = 0 in while i < 3 then do i = i + 1; when i == 2 then continue 0; write_int i end",
		"exit 0",
	}
	for _, source := range sources {
		chunk, err := compileProgram(t, source)
		require.NoError(t, err, source)
		for _, inst := range chunk.Instructions {
			for i := 0; i < lir.OperandCount(inst.Op); i++ {
				op := inst.Operands[i]
				if op.Kind == lir.KindLabel {
					_, ok := chunk.LabelIndexes[op.Lab]
					assert.True(t, ok, "label L%03d unresolved in %q", op.Lab, source)
				}
			}
		}
	}
}
