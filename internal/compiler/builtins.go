// internal/compiler/builtins.go
package compiler

import (
	"tova/internal/ast"
	"tova/internal/env"
	"tova/internal/lir"
)

// builtinEmitter lowers a call to a builtin directly into the chunk instead
// of a CALL: the I/O builtins map to single instructions, make_array to
// heap arena arithmetic and exit to a jump to the halt label.
type builtinEmitter func(c *Compiler, idx ast.NodeIndex, chunk *lir.Chunk, args []lir.Operand) (lir.Operand, error)

var builtins = map[string]builtinEmitter{
	"read_int":   emitReadInt,
	"read_char":  emitReadChar,
	"write_int":  emitWriteInt,
	"write_char": emitWriteChar,
	"write_str":  emitWriteStr,
	"make_array": emitMakeArray,
	"exit":       emitExit,
}

func (c *Compiler) compileApp(idx ast.NodeIndex, scope env.ScopeID, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)
	funcNode := c.tree.At(node.Children[0])
	argsNode := c.tree.At(node.Children[1])

	args := make([]lir.Operand, 0, len(argsNode.Children))
	for _, argIdx := range argsNode.Children {
		arg, err := c.compile(argIdx, scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		if c.tree.At(argIdx).Type == ast.Path {
			arg = c.toRvalue(chunk, arg)
		}
		args = append(args, arg)
	}

	name := c.pool.Find(funcNode.StrID)
	if emit, ok := builtins[name]; ok {
		return emit(c, idx, chunk, args)
	}

	funcOp := c.env.Find(scope, funcNode.StrID)
	if funcOp == nil {
		return lir.Operand{}, c.errAt(idx, "function %s not found", name)
	}
	if funcOp.Kind != lir.KindLabel {
		return lir.Operand{}, c.errAt(idx, "%s is not a function", name)
	}

	// callers save their registers around the call: the callee reuses the
	// same cell file, so every register allocated so far is pushed before
	// the arguments and restored after the result is popped. The heap
	// register stays live across calls.
	saved := c.regCount
	for r := 1; r < saved; r++ {
		chunk.Emit(lir.OpPush, lir.Reg(r, lir.HoldsNumber))
	}

	// push arguments in the reverse order the parameters were declared
	for i := len(args); i > 0; i-- {
		chunk.Emit(lir.OpPush, args[i-1])
	}
	chunk.Emit(lir.OpCall, *funcOp)
	res := c.makeTemporary(lir.HoldsNumber)
	chunk.Emit(lir.OpPop, res)

	for r := saved - 1; r >= 1; r-- {
		chunk.Emit(lir.OpPop, lir.Reg(r, lir.HoldsNumber))
	}
	return res, nil
}

func emitReadInt(c *Compiler, _ ast.NodeIndex, chunk *lir.Chunk, _ []lir.Operand) (lir.Operand, error) {
	tmp := c.makeTemporary(lir.HoldsNumber)
	chunk.Emit(lir.OpReadv, tmp)
	return tmp, nil
}

func emitReadChar(c *Compiler, _ ast.NodeIndex, chunk *lir.Chunk, _ []lir.Operand) (lir.Operand, error) {
	tmp := c.makeTemporary(lir.HoldsNumber)
	chunk.Emit(lir.OpReadc, tmp)
	return tmp, nil
}

func emitWriteInt(c *Compiler, idx ast.NodeIndex, chunk *lir.Chunk, args []lir.Operand) (lir.Operand, error) {
	if len(args) != 1 {
		return lir.Operand{}, c.errAt(idx, "write_int takes a single integer argument")
	}
	chunk.Emit(lir.OpPrintv, args[0])
	return lir.Nothing(), nil
}

func emitWriteChar(c *Compiler, idx ast.NodeIndex, chunk *lir.Chunk, args []lir.Operand) (lir.Operand, error) {
	if len(args) != 1 {
		return lir.Operand{}, c.errAt(idx, "write_char takes a single character argument")
	}
	chunk.Emit(lir.OpPrintc, args[0])
	return lir.Nothing(), nil
}

func emitWriteStr(c *Compiler, idx ast.NodeIndex, chunk *lir.Chunk, args []lir.Operand) (lir.Operand, error) {
	if len(args) != 1 {
		return lir.Operand{}, c.errAt(idx, "write_str takes a single string argument")
	}
	if !args[0].IsRegister() {
		return lir.Operand{}, c.errAt(idx, "write_str argument must be a string or array of characters")
	}
	chunk.Emit(lir.OpPrintf, args[0])
	return lir.Nothing(), nil
}

func emitMakeArray(c *Compiler, idx ast.NodeIndex, chunk *lir.Chunk, args []lir.Operand) (lir.Operand, error) {
	if len(args) != 1 {
		return lir.Operand{}, c.errAt(idx, "make_array expects a size as its only argument")
	}

	// a constant size is carved out of the arena at compile time
	if args[0].Kind == lir.KindImmediate {
		base, err := c.allocStatic(idx, args[0].Num)
		if err != nil {
			return lir.Operand{}, err
		}
		addr := c.makeRegister(lir.HoldsAddress)
		chunk.Emit(lir.OpMov, addr, lir.Imm(base)).WithComment("static array")
		return addr, nil
	}

	addr := c.makeRegister(lir.HoldsAddress)
	dyn := lir.Reg(0, lir.HoldsNumber)
	chunk.Emit(lir.OpSub, dyn, dyn, args[0])
	chunk.Emit(lir.OpMov, addr, dyn).WithComment("allocating array")
	return addr, nil
}

func emitExit(c *Compiler, _ ast.NodeIndex, chunk *lir.Chunk, _ []lir.Operand) (lir.Operand, error) {
	chunk.Emit(lir.OpJmp, c.haltLab).WithComment("exit program")
	return lir.Nothing(), nil
}
