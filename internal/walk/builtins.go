// internal/walk/builtins.go
package walk

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Builtin is one primitive the evaluator seeds at the root scope. The type
// checker and the compiler recognise the same names.
type Builtin struct {
	Name       string
	ParamCount int
	Fn         func(args []*Value) (*Value, error)
}

// Builtins returns the standard set reading from input and writing to
// output.
func Builtins(input io.Reader, output io.Writer) []Builtin {
	in := bufio.NewReader(input)

	return []Builtin{
		{
			Name:       "read_int",
			ParamCount: 1,
			Fn: func([]*Value) (*Value, error) {
				line, err := in.ReadString('\n')
				if err != nil && (err != io.EOF || line == "") {
					return nil, pkgerrors.Wrap(err, "couldn't read input")
				}
				num, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
				if err != nil {
					return nil, pkgerrors.Wrap(err, "input is not an integer")
				}
				return newCell(IntValue(num)), nil
			},
		},
		{
			Name:       "read_char",
			ParamCount: 1,
			Fn: func([]*Value) (*Value, error) {
				b, err := in.ReadByte()
				if err == io.EOF {
					return newCell(IntValue(-1)), nil
				}
				if err != nil {
					return nil, pkgerrors.Wrap(err, "couldn't read input")
				}
				return newCell(IntValue(b)), nil
			},
		},
		{
			Name:       "write_int",
			ParamCount: 1,
			Fn: func(args []*Value) (*Value, error) {
				if err := PrintValue(output, args[0]); err != nil {
					return nil, err
				}
				return newCell(NilValue{}), nil
			},
		},
		{
			Name:       "write_char",
			ParamCount: 1,
			Fn: func(args []*Value) (*Value, error) {
				n, ok := asInt(args[0])
				if !ok {
					return nil, fmt.Errorf("write_char argument is not a character")
				}
				fmt.Fprintf(output, "%c", byte(n))
				return newCell(NilValue{}), nil
			},
		},
		{
			Name:       "write_str",
			ParamCount: 1,
			Fn: func(args []*Value) (*Value, error) {
				switch v := (*args[0]).(type) {
				case StrValue:
					fmt.Fprintf(output, "%s", string(v))
				case ArrayValue:
					// character array: cells up to a zero sentinel
					for _, cell := range v.Items {
						n, ok := asInt(cell)
						if !ok || n == 0 {
							break
						}
						fmt.Fprintf(output, "%c", byte(n))
					}
				default:
					return nil, fmt.Errorf("write_str argument is not a string")
				}
				return newCell(NilValue{}), nil
			},
		},
		{
			Name:       "make_array",
			ParamCount: 1,
			Fn: func(args []*Value) (*Value, error) {
				n, ok := asInt(args[0])
				if !ok {
					return nil, fmt.Errorf("make_array expects a single numeric argument")
				}
				if n < 0 {
					return nil, fmt.Errorf("array length must not be negative")
				}
				items := make([]*Value, n)
				for i := range items {
					items[i] = newCell(IntValue(0))
				}
				return newCell(ArrayValue{Items: items}), nil
			},
		},
		{
			Name:       "exit",
			ParamCount: 1,
			Fn: func(args []*Value) (*Value, error) {
				code, ok := asInt(args[0])
				if !ok {
					return nil, fmt.Errorf("exit takes the exit code as its argument")
				}
				os.Exit(int(code))
				return newCell(NilValue{}), nil
			},
		},
	}
}
