// internal/repl/repl.go
package repl

import (
	"bufio"
	"fmt"
	"os"

	"tova/internal/compiler"
	"tova/internal/driver"
	"tova/internal/lexer"
	"tova/internal/parser"
	"tova/internal/strpool"
	"tova/internal/typecheck"
	"tova/internal/vm"
	"tova/internal/walk"
)

// Start reads one program per line from stdin and echoes each result. The
// string pool persists across lines; evaluation state does not.
func Start(opts driver.Options) int {
	scanner := bufio.NewScanner(os.Stdin)
	pool := strpool.NewPool()

	status := 0
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		if err := evalLine(line, pool, opts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			status = 1
		}
	}
	return status
}

func evalLine(source string, pool *strpool.Pool, opts driver.Options) error {
	driver.Phase(opts, "parsing")
	tokens, err := lexer.NewScanner(source, opts.File).ScanTokens()
	if err != nil {
		return err
	}
	tree, err := parser.NewParser(tokens, pool, source, opts.File).Parse()
	if err != nil {
		return err
	}
	if tree.IsEmpty() {
		return nil
	}

	driver.Phase(opts, "type checking")
	if err := typecheck.NewChecker(tree, pool, source, opts.File).Check(); err != nil {
		return err
	}

	if opts.Backend == driver.BackendWalk {
		driver.Phase(opts, "interpreting(walk)")
		interp := walk.NewInterpreter(tree, pool, walk.Builtins(os.Stdin, os.Stdout), source, opts.File)
		res, err := interp.Eval()
		if err != nil {
			return err
		}
		fmt.Print("==> ")
		if err := walk.PrintValue(os.Stdout, res); err != nil {
			fmt.Print("?")
		}
		fmt.Println()
		return nil
	}

	driver.Phase(opts, "compiling(lir)")
	chunk, err := compiler.NewCompiler(tree, pool, source, opts.File).Compile()
	if err != nil {
		return err
	}
	if opts.Verbosity >= 2 {
		chunk.Print(os.Stderr)
	}

	driver.Phase(opts, "interpreting(lir)")
	machine := vm.NewVM(os.Stdin, os.Stdout)
	if err := machine.Run(chunk); err != nil {
		return err
	}
	fmt.Printf("==> %d\n", machine.Value(chunk.Result))
	return nil
}
