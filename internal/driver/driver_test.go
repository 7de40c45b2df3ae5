package driver

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runBackend(t *testing.T, source, stdin string, backend Backend) (string, error) {
	t.Helper()
	var out strings.Builder
	opts := Options{Backend: backend, File: "test"}
	err := Run(source, opts, strings.NewReader(stdin), &out)
	return out.String(), err
}

// Every scenario must produce identical output under both backends.
func TestScenarios(t *testing.T) {
	tests := []struct {
		name   string
		source string
		stdin  string
		stdout string
	}{
		{"write an integer", "write_int 42", "", "42"},
		{"let binding", "let var x = 3 in write_int (x + 4)", "", "7"},
		{"arrays", "let var y = make_array 3 in do y[0]=10; y[1]=20; y[2]=30; write_int y[0]; write_int y[1]; write_int y[2] end", "", "102030"},
		{"functions", "let fun f x = x + 1 in write_int (f 3)", "", "4"},
		{"stdin", "let var n = read_int nil in write_int (n * n)", "5\n", "25"},
		{"for loop", "for var i from 0 to 3 then write_int i", "", "012"},
		{"nested calls", "let fun inc x = x + 1 in write_int (inc (inc (inc 0)))", "", "3"},
		{"recursion", "let fun fact n = if n == 0 then 1 else n * fact (n - 1) in write_int (fact 6)", "", "720"},
		{"two functions", "let fun double x = x * 2 fun square x = x * x in write_int (double (square 3))", "", "18"},
		{"while with break value", "let var i = 0 in while true then do when i == 5 then break nil; write_int i; i = i + 1 end", "", "01234"},
		{"continue", "let var i = 0 in while i < 4 then do i = i + 1; when i == 2 then continue nil; write_int i end", "", "134"},
		{"nested loops", "for var i from 0 to 3 then for var j from 0 to 3 then write_int (i * 3 + j)", "", "012345678"},
		{"string literal", `write_str "hello"`, "", "hello"},
		{"characters", "do write_char 'h'; write_char 'i' end", "", "hi"},
		{"boolean printing", "do write_int ((1 < 2) as int); write_int ((2 < 1) as int) end", "", "10"},
		{"boolean equality", "write_int (if true == true then 1 else 0)", "", "1"},
		{"multiple reads", "let var a = read_int nil var b = read_int nil in write_int (a - b)", "10\n4\n", "6"},
		{"read chars", "do write_char (read_char nil); write_char (read_char nil) end", "ok", "ok"},
		{"arithmetic mix", "write_int ((7 + 3) * 2 - 6 / 3 % 4)", "", "18"},
		{"negative results", "write_int (1 - 10)", "", "-9"},
		{"array via variable size", "let var n = read_int nil in let var a = make_array n in do a[n - 1] = 7; write_int a[n - 1] end", "4\n", "7"},
		{"if as value", "write_int (if 1 < 2 then 10 else 20)", "", "10"},
		{"casts", "write_int ((65 as uint) as int)", "", "65"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			walkOut, err := runBackend(t, tt.source, tt.stdin, BackendWalk)
			require.NoError(t, err, "walk backend")
			lirOut, err := runBackend(t, tt.source, tt.stdin, BackendLIR)
			require.NoError(t, err, "lir backend")

			assert.Equal(t, tt.stdout, walkOut, "walk stdout")
			assert.Equal(t, tt.stdout, lirOut, "lir stdout")
		})
	}
}

func TestDiagnosticsAreFatal(t *testing.T) {
	tests := []struct{ name, source string }{
		{"syntax error", "let var = in"},
		{"type error", "write_int true"},
		{"undeclared name", "write_int x"},
		{"break outside loop", "break 1"},
	}
	for _, tt := range tests {
		for _, backend := range []Backend{BackendWalk, BackendLIR} {
			t.Run(tt.name, func(t *testing.T) {
				_, err := runBackend(t, tt.source, "", backend)
				assert.Error(t, err)
			})
		}
	}
}

func TestCompileOutput(t *testing.T) {
	chunk, err := Compile("write_int 42", Options{Backend: BackendLIR, File: "test"})
	require.NoError(t, err)

	var sb strings.Builder
	chunk.Print(&sb)
	text := sb.String()
	assert.Contains(t, text, "    printv 42")
	assert.Contains(t, text, "    jump L000")
	assert.Contains(t, text, "L000:\n")
}

// exprGen builds random well-typed integer expressions of bounded depth.
type exprGen struct {
	rng *rand.Rand
}

func (g *exprGen) intExpr(depth int) string {
	if depth == 0 {
		return fmt.Sprintf("%d", g.rng.Intn(100))
	}
	switch g.rng.Intn(6) {
	case 0:
		return fmt.Sprintf("(%s + %s)", g.intExpr(depth-1), g.intExpr(depth-1))
	case 1:
		return fmt.Sprintf("(%s - %s)", g.intExpr(depth-1), g.intExpr(depth-1))
	case 2:
		return fmt.Sprintf("(%s * %s)", g.intExpr(depth-1), g.intExpr(depth-1))
	case 3:
		// keep divisors away from zero
		return fmt.Sprintf("(%s / %d)", g.intExpr(depth-1), g.rng.Intn(20)+1)
	case 4:
		return fmt.Sprintf("(if %s then %s else %s)",
			g.boolExpr(depth-1), g.intExpr(depth-1), g.intExpr(depth-1))
	default:
		return fmt.Sprintf("%d", g.rng.Intn(100))
	}
}

func (g *exprGen) boolExpr(depth int) string {
	if depth == 0 {
		if g.rng.Intn(2) == 0 {
			return "true"
		}
		return "false"
	}
	switch g.rng.Intn(4) {
	case 0:
		return fmt.Sprintf("(%s < %s)", g.intExpr(depth-1), g.intExpr(depth-1))
	case 1:
		return fmt.Sprintf("(%s == %s)", g.intExpr(depth-1), g.intExpr(depth-1))
	case 2:
		return fmt.Sprintf("(%s and %s)", g.boolExpr(depth-1), g.boolExpr(depth-1))
	default:
		return fmt.Sprintf("(not %s)", g.boolExpr(depth-1))
	}
}

// Random bounded expressions evaluate identically in both evaluators.
func TestBackendEquivalence(t *testing.T) {
	gen := &exprGen{rng: rand.New(rand.NewSource(42))}

	for i := 0; i < 100; i++ {
		source := fmt.Sprintf("write_int %s", gen.intExpr(3))

		walkOut, walkErr := runBackend(t, source, "", BackendWalk)
		lirOut, lirErr := runBackend(t, source, "", BackendLIR)

		require.NoError(t, walkErr, source)
		require.NoError(t, lirErr, source)
		assert.Equal(t, walkOut, lirOut, source)
	}
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("walk")
	require.NoError(t, err)
	assert.Equal(t, BackendWalk, b)

	b, err = ParseBackend("lir")
	require.NoError(t, err)
	assert.Equal(t, BackendLIR, b)

	_, err = ParseBackend("jit")
	assert.Error(t, err)
}
