package typecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tova/internal/ast"
	"tova/internal/lexer"
	"tova/internal/parser"
	"tova/internal/strpool"
	"tova/internal/types"
)

func checkProgram(t *testing.T, source string) error {
	t.Helper()
	pool := strpool.NewPool()
	tokens, err := lexer.NewScanner(source, "test").ScanTokens()
	require.NoError(t, err)
	tree, err := parser.NewParser(tokens, pool, source, "test").Parse()
	require.NoError(t, err)
	return NewChecker(tree, pool, source, "test").Check()
}

func TestUnify(t *testing.T) {
	i64 := &types.Integer{BitCount: 64, Sign: types.Signed}
	u8 := &types.Integer{BitCount: 8, Sign: types.Unsigned}

	t.Run("unify is reflexive on concrete types", func(t *testing.T) {
		for _, typ := range []types.Type{
			i64, u8, &types.Bool{}, &types.Nil{}, &types.Void{},
			&types.Array{Item: i64},
			&types.Function{Inputs: []types.Type{i64}, Output: &types.Nil{}},
		} {
			assert.True(t, Unify(typ, typ), "unify(%s, %s)", types.Format(typ), types.Format(typ))
		}
	})

	t.Run("integers require exact width and sign", func(t *testing.T) {
		assert.False(t, Unify(i64, u8))
		assert.False(t, Unify(i64, &types.Integer{BitCount: 8, Sign: types.Signed}))
		assert.False(t, Unify(u8, &types.Integer{BitCount: 8, Sign: types.Signed}))
	})

	t.Run("distinct base types do not unify", func(t *testing.T) {
		assert.False(t, Unify(&types.Bool{}, i64))
		assert.False(t, Unify(&types.Nil{}, &types.Void{}))
		assert.False(t, Unify(&types.Array{Item: i64}, i64))
	})

	t.Run("refs are seen through on either side", func(t *testing.T) {
		assert.True(t, Unify(&types.Ref{Inner: i64}, i64))
		assert.True(t, Unify(i64, &types.Ref{Inner: i64}))
		assert.True(t, Unify(&types.Ref{Inner: i64}, &types.Ref{Inner: i64}))
		assert.False(t, Unify(&types.Ref{Inner: i64}, &types.Bool{}))
	})

	t.Run("an unbound variable binds destructively", func(t *testing.T) {
		v := &types.TypeVar{Name: 0}
		require.True(t, Unify(v, i64))
		require.NotNil(t, v.Bound)
		assert.True(t, Unify(v, i64))
		assert.False(t, Unify(v, &types.Bool{}))
	})

	t.Run("bound variables follow their binding transitively", func(t *testing.T) {
		a := &types.TypeVar{Name: 0}
		b := &types.TypeVar{Name: 1}
		require.True(t, Unify(a, b))
		require.True(t, Unify(b, i64))
		assert.True(t, Unify(a, i64))
		assert.Equal(t, "Int<64>", types.Format(types.Resolve(a)))
	})

	t.Run("unification is symmetric", func(t *testing.T) {
		a := &types.TypeVar{Name: 0}
		assert.True(t, Unify(i64, a))
		assert.True(t, Unify(a, i64))
	})

	t.Run("functions unify by arity and pairwise inputs", func(t *testing.T) {
		f1 := &types.Function{Inputs: []types.Type{i64, u8}, Output: &types.Bool{}}
		f2 := &types.Function{Inputs: []types.Type{i64, u8}, Output: &types.Bool{}}
		f3 := &types.Function{Inputs: []types.Type{i64}, Output: &types.Bool{}}
		assert.True(t, Unify(f1, f2))
		assert.False(t, Unify(f1, f3))
	})

	t.Run("arrays unify by element type", func(t *testing.T) {
		assert.True(t, Unify(&types.Array{Item: i64}, &types.Array{Item: i64}))
		assert.False(t, Unify(&types.Array{Item: i64}, &types.Array{Item: u8}))
	})

	t.Run("established bindings survive later unifications", func(t *testing.T) {
		v := &types.TypeVar{Name: 0}
		require.True(t, Unify(&types.Array{Item: v}, &types.Array{Item: i64}))
		w := &types.TypeVar{Name: 1}
		require.True(t, Unify(v, w))
		assert.Equal(t, "Int<64>", types.Format(types.Resolve(w)))
	})
}

func TestCheckPrograms(t *testing.T) {
	accepted := []struct{ name, source string }{
		{"number literal call", "write_int 42"},
		{"let with arithmetic", "let var x = 3 in write_int (x + 4)"},
		{"array declaration and indexing", "let var y = make_array 3 in do y[0] = 10; write_int y[0] end"},
		{"function declaration and call", "let fun f x = x + 1 in write_int (f 3)"},
		{"recursion types through the pre-binding", "let fun f x = if x == 0 then 0 else f (x - 1) in write_int (f 3)"},
		{"read builtin", "let var n = read_int nil in write_int (n * n)"},
		{"for loop", "for var i from 0 to 3 then write_int i"},
		{"while loop", "while false then write_int 1"},
		{"when yields nil", "when true then write_int 1"},
		{"annotated variable", "let var x : int = 1 in write_int x"},
		{"char is an unsigned byte", "write_char 'a'"},
		{"string is a byte array", `write_str "hi"`},
		{"integer cast", "write_int (3 as int)"},
		{"bool widens to integer", "write_int (true as int)"},
		{"logic operators", "when true and not false or false then write_int 1"},
		{"equality over booleans", "when true == true then write_int 1"},
		{"break carries the loop value", "while true then break 1 + 2"},
	}
	for _, tt := range accepted {
		t.Run("accepts "+tt.name, func(t *testing.T) {
			assert.NoError(t, checkProgram(t, tt.source))
		})
	}

	rejected := []struct{ name, source string }{
		{"calling with the wrong argument type", "write_int true"},
		{"condition must be boolean", "if 1 then 2 else 3"},
		{"branches must agree", "write_int (if true then 1 else false)"},
		{"arithmetic needs numbers", "write_int (1 + true)"},
		{"undeclared variable", "write_int x"},
		{"assignment to a literal type mismatch", "let var x = 1 in x = true"},
		{"indexing a non-array", "let var x = 1 in write_int x[0]"},
		{"annotation mismatch", "let var x : bool = 1 in write_int 0"},
		{"equality of different types", "when 1 == true then write_int 1"},
		{"wrong arity", "let fun f x = x in write_int (f 1 2)"},
		{"cast between unrelated types", `write_int ("s" as int)`},
	}
	for _, tt := range rejected {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			assert.Error(t, checkProgram(t, tt.source))
		})
	}
}

func TestTypeAssociations(t *testing.T) {
	source := "let var x = 3 in x + 4"
	pool := strpool.NewPool()
	tokens, err := lexer.NewScanner(source, "test").ScanTokens()
	require.NoError(t, err)
	tree, err := parser.NewParser(tokens, pool, source, "test").Parse()
	require.NoError(t, err)

	checker := NewChecker(tree, pool, source, "test")
	require.NoError(t, checker.Check())

	// the whole let evaluates to the body's Int<64>
	root := checker.TypeOf(tree.RootIndex)
	require.NotNil(t, root)
	assert.Equal(t, "Int<64>", types.Format(types.Resolve(root)))

	// identifier uses are references
	var foundRef bool
	for i := 0; i < tree.Len(); i++ {
		node := tree.At(ast.NodeIndex(i))
		if node.Type == ast.Id && pool.Find(node.StrID) == "x" {
			if typ := checker.TypeOf(ast.NodeIndex(i)); typ != nil {
				if _, ok := typ.(*types.Ref); ok {
					foundRef = true
				}
			}
		}
	}
	assert.True(t, foundRef, "some use of x should be typed Ref<Int<64>>")
}
