// internal/compiler/compiler.go
package compiler

import (
	"fmt"

	"tova/internal/ast"
	"tova/internal/env"
	"tova/internal/errors"
	"tova/internal/lir"
	"tova/internal/strpool"
)

// HeapTop is the highest cell index. Cell 0 holds the address of the next
// free heap cell; allocations grow downward from HeapTop while registers
// grow upward from 0 in the same cell array.
const HeapTop = 2047

type Compiler struct {
	tree *ast.AST
	pool *strpool.Pool
	env  *env.Env[lir.Operand]

	labelCount int
	regCount   int

	dynAllocStart int64

	inLoop bool
	cntLab lir.Operand // jump to on continue
	brkLab lir.Operand // jump to on break

	haltLab lir.Operand

	// Indices of MOV instructions whose destination is patched with the
	// loop's result register once the loop has been emitted. Counts are a
	// parallel stack, one entry per loop being compiled.
	backPatch       []int
	backPatchCounts []int

	source string
	file   string
}

func NewCompiler(tree *ast.AST, pool *strpool.Pool, source, file string) *Compiler {
	return &Compiler{
		tree:          tree,
		pool:          pool,
		env:           env.New[lir.Operand](),
		dynAllocStart: HeapTop,
		source:        source,
		file:          file,
	}
}

// Compile lowers the whole tree into one chunk. The preamble loads the heap
// register and jumps over the function bodies prepended by declarations;
// the halt label at the very end is the target of the exit builtin.
func (c *Compiler) Compile() (*lir.Chunk, error) {
	preamble := lir.NewChunk()
	chunk := lir.NewChunk()

	main := c.makeLabel()
	c.haltLab = c.makeLabel()

	dyn := c.makeRegister(lir.HoldsNumber)
	preamble.Emit(lir.OpMov, dyn, lir.Nothing()).
		WithComment("contains address to start of the last allocated region")

	chunk.AddLabel(main)

	result, err := c.compile(c.tree.RootIndex, env.RootScopeID, chunk)
	if err != nil {
		return nil, err
	}

	// registers grow up from cell 0 and must stay below the static heap
	if int64(c.regCount) > c.dynAllocStart {
		return nil, c.errAt(c.tree.RootIndex, "heap overflow: static allocations reach into the register file")
	}

	// backpatch the heap start now that static allocations are known
	preamble.Instructions[0].Operands[1] = lir.Imm(c.dynAllocStart)
	preamble.Emit(lir.OpJmp, main)

	res := preamble.Concat(chunk)
	res.AddLabel(c.haltLab)
	res.Result = result
	return res, nil
}

func (c *Compiler) makeTemporary(role lir.RegisterRole) lir.Operand {
	op := lir.Tmp(c.regCount, role)
	c.regCount++
	return op
}

func (c *Compiler) makeRegister(role lir.RegisterRole) lir.Operand {
	op := lir.Reg(c.regCount, role)
	c.regCount++
	return op
}

func (c *Compiler) makeLabel() lir.Operand {
	op := lir.Lbl(lir.LabelID(c.labelCount))
	c.labelCount++
	return op
}

// toRvalue converts an address-tagged temporary (the result of indexing or
// a string literal) into the value it points at. Variable home registers
// pass through untouched: an array variable's cell already holds the base
// address as a plain number.
func (c *Compiler) toRvalue(chunk *lir.Chunk, op lir.Operand) lir.Operand {
	if op.HasAddr() && op.Temp {
		tmp := c.makeTemporary(lir.HoldsNumber)
		chunk.Emit(lir.OpLoad, tmp, lir.Imm(0), op).WithComment("casting to rvalue")
		return tmp
	}
	return op
}

func (c *Compiler) pushToBackPatch(idx int) {
	c.backPatchCounts[len(c.backPatchCounts)-1]++
	c.backPatch = append(c.backPatch, idx)
}

// backPatchJumps rewrites the destination of the innermost loop's recorded
// MOVs so break/continue values land in the loop's result register.
func (c *Compiler) backPatchJumps(chunk *lir.Chunk, dest lir.Operand) {
	toPatch := c.backPatchCounts[len(c.backPatchCounts)-1]
	c.backPatchCounts = c.backPatchCounts[:len(c.backPatchCounts)-1]
	for i := 0; i < toPatch; i++ {
		idx := c.backPatch[len(c.backPatch)-1]
		c.backPatch = c.backPatch[:len(c.backPatch)-1]
		chunk.Instructions[idx].Operands[0] = dest
	}
}

func (c *Compiler) errAt(idx ast.NodeIndex, format string, args ...interface{}) error {
	loc := c.tree.At(idx).Loc
	return errors.NewCompileError(fmt.Sprintf(format, args...), errors.SourceLocation{
		File:      c.file,
		Line:      loc.Begin.Line,
		Column:    loc.Begin.Column,
		EndLine:   loc.End.Line,
		EndColumn: loc.End.Column,
	}).WithSource(c.source)
}

// allocStatic claims size cells of the heap at compile time and returns the
// new base address. Growing down to cell 0 is trapped here; Compile checks
// the final register count against the heap start once every register is
// known, so overlap is reported instead of corrupting cells at run time.
func (c *Compiler) allocStatic(idx ast.NodeIndex, size int64) (int64, error) {
	c.dynAllocStart -= size
	if c.dynAllocStart < 1 {
		return 0, c.errAt(idx, "heap overflow: static allocations exceed %d cells", HeapTop)
	}
	return c.dynAllocStart, nil
}

func (c *Compiler) compile(idx ast.NodeIndex, scope env.ScopeID, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)
	switch node.Type {

	case ast.App:
		return c.compileApp(idx, scope, chunk)

	case ast.Num:
		return lir.Imm(node.Num), nil

	case ast.Char:
		return lir.Imm(int64(node.Character)), nil

	case ast.Nil:
		return lir.Nothing(), nil

	case ast.True:
		return lir.Imm(1), nil

	case ast.False:
		return lir.Imm(0), nil

	case ast.Blk:
		inner := c.env.CreateChildScope(scope)
		var op lir.Operand
		var err error
		for _, child := range node.Children {
			op, err = c.compile(child, inner, chunk)
			if err != nil {
				return lir.Operand{}, err
			}
		}
		return op, nil

	case ast.If:
		l1 := c.makeLabel()
		l2 := c.makeLabel()
		res := c.makeTemporary(lir.HoldsNumber)

		cond, err := c.compile(node.Children[0], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		cond = c.toRvalue(chunk, cond)
		chunk.Emit(lir.OpJmpFalse, cond, l1).WithComment("if branch")

		yes, err := c.compile(node.Children[1], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		chunk.Emit(lir.OpMov, res, c.toRvalue(chunk, yes))
		chunk.Emit(lir.OpJmp, l2)
		chunk.AddLabel(l1)

		no, err := c.compile(node.Children[2], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		chunk.Emit(lir.OpMov, res, c.toRvalue(chunk, no))
		chunk.AddLabel(l2)

		return res, nil

	case ast.When:
		l1 := c.makeLabel()
		res := c.makeTemporary(lir.HoldsNumber)

		cond, err := c.compile(node.Children[0], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		cond = c.toRvalue(chunk, cond)

		chunk.Emit(lir.OpMov, res, lir.Nothing()).WithComment("when conditional")
		chunk.Emit(lir.OpJmpFalse, cond, l1)

		yes, err := c.compile(node.Children[1], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		chunk.Emit(lir.OpMov, res, c.toRvalue(chunk, yes))
		chunk.AddLabel(l1)

		return res, nil

	case ast.For:
		return c.compileFor(idx, scope, chunk)

	case ast.While:
		return c.compileWhile(idx, scope, chunk)

	case ast.Break:
		if !c.inLoop {
			return lir.Operand{}, c.errAt(idx, "can't break outside of loops")
		}
		res, err := c.compile(node.Children[0], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		res = c.toRvalue(chunk, res)
		chunk.Emit(lir.OpMov, lir.Nothing(), res)
		c.pushToBackPatch(len(chunk.Instructions) - 1)
		chunk.Emit(lir.OpJmp, c.brkLab).WithComment("break out of loop")
		return lir.Operand{}, nil

	case ast.Continue:
		if !c.inLoop {
			return lir.Operand{}, c.errAt(idx, "can't continue outside of loops")
		}
		res, err := c.compile(node.Children[0], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		res = c.toRvalue(chunk, res)
		chunk.Emit(lir.OpMov, lir.Nothing(), res)
		c.pushToBackPatch(len(chunk.Instructions) - 1)
		chunk.Emit(lir.OpJmp, c.cntLab).WithComment("continue to next iteration of loop")
		return lir.Operand{}, nil

	case ast.Ass:
		cell, err := c.compile(node.Children[0], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		if !cell.IsRegister() {
			return lir.Operand{}, c.errAt(idx, "left-hand side of assignment must be an lvalue")
		}

		exp, err := c.compile(node.Children[1], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		exp = c.toRvalue(chunk, exp)

		if cell.HasAddr() && cell.Temp {
			chunk.Emit(lir.OpStore, exp, lir.Imm(0), cell).
				WithComment("assigning through array cell")
		} else {
			chunk.Emit(lir.OpMov, cell, exp).WithComment("assigning to variable")
		}
		return exp, nil

	case ast.Or, ast.And, ast.Gtn, ast.Ltn, ast.Gte, ast.Lte, ast.Eq,
		ast.Add, ast.Sub, ast.Mul, ast.Div, ast.Mod:
		return c.compileBinary(idx, scope, chunk)

	case ast.Not:
		inverse, err := c.compile(node.Children[0], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		inverse = c.toRvalue(chunk, inverse)
		res := c.makeTemporary(lir.HoldsNumber)
		chunk.Emit(lir.OpNot, res, inverse)
		return res, nil

	case ast.At:
		// evaluates to a temporary holding the address of the cell
		base, err := c.compile(node.Children[0], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		if !base.IsRegister() {
			return lir.Operand{}, c.errAt(idx, "indexed base must be an lvalue")
		}
		if base.Temp {
			return lir.Operand{}, c.errAt(idx, "can't index a temporary")
		}

		off, err := c.compile(node.Children[1], scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		off = c.toRvalue(chunk, off)

		tmp := c.makeTemporary(lir.HoldsAddress)
		chunk.Emit(lir.OpAdd, tmp, base, off).WithComment("accessing allocated array")
		return tmp, nil

	case ast.Id:
		op := c.env.Find(scope, node.StrID)
		if op == nil {
			return lir.Operand{}, c.errAt(idx, "variable %s not found", c.pool.Find(node.StrID))
		}
		return *op, nil

	case ast.Str:
		return c.compileString(idx, chunk)

	case ast.VarDecl:
		return c.compileVarDecl(idx, scope, chunk)

	case ast.FunDecl:
		return c.compileFunDecl(idx, scope, chunk)

	case ast.Let:
		declsNode := c.tree.At(node.Children[0])
		inner := c.env.CreateChildScope(scope)
		for _, declIdx := range declsNode.Children {
			if _, err := c.compile(declIdx, inner, chunk); err != nil {
				return lir.Operand{}, err
			}
		}
		return c.compile(node.Children[1], inner, chunk)

	case ast.Path:
		return c.compile(node.Children[0], scope, chunk)

	case ast.As:
		// integer casts are free: every cell is a 64-bit integer already
		return c.compile(node.Children[0], scope, chunk)

	case ast.Empty:
		return lir.Operand{}, c.errAt(idx, "internal: empty node reached the compiler")
	}

	return lir.Operand{}, c.errAt(idx, "internal: unhandled node %s", node.Type)
}

var binaryOpcodes = map[ast.NodeType]lir.Opcode{
	ast.Or:  lir.OpOr,
	ast.And: lir.OpAnd,
	ast.Gtn: lir.OpGreater,
	ast.Ltn: lir.OpLess,
	ast.Gte: lir.OpGreaterEq,
	ast.Lte: lir.OpLessEq,
	ast.Eq:  lir.OpEq,
	ast.Add: lir.OpAdd,
	ast.Sub: lir.OpSub,
	ast.Mul: lir.OpMul,
	ast.Div: lir.OpDiv,
	ast.Mod: lir.OpMod,
}

func (c *Compiler) compileBinary(idx ast.NodeIndex, scope env.ScopeID, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)

	left, err := c.compile(node.Children[0], scope, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	left = c.toRvalue(chunk, left)

	right, err := c.compile(node.Children[1], scope, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	right = c.toRvalue(chunk, right)

	res := c.makeTemporary(lir.HoldsNumber)
	chunk.Emit(binaryOpcodes[node.Type], res, left, right)
	return res, nil
}

func (c *Compiler) compileFor(idx ast.NodeIndex, scope env.ScopeID, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)
	declIdx, toIdx, stepIdx, thenIdx := node.Children[0], node.Children[1], node.Children[2], node.Children[3]

	beg := c.makeLabel()
	inc := c.makeLabel()
	end := c.makeLabel()
	cmp := c.makeTemporary(lir.HoldsNumber)
	res := c.makeTemporary(lir.HoldsNumber)

	step := lir.Imm(1)
	if c.tree.At(stepIdx).Type != ast.Empty {
		op, err := c.compile(stepIdx, scope, chunk)
		if err != nil {
			return lir.Operand{}, err
		}
		step = c.toRvalue(chunk, op)
	}

	inner := c.env.CreateChildScope(scope)

	loopVar, err := c.compile(declIdx, inner, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	if !loopVar.IsRegister() {
		return lir.Operand{}, c.errAt(declIdx, "loop declaration must be a numeric lvalue")
	}

	to, err := c.compile(toIdx, inner, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	to = c.toRvalue(chunk, to)

	prevInLoop, prevBrk, prevCnt := c.inLoop, c.brkLab, c.cntLab
	c.inLoop, c.brkLab, c.cntLab = true, end, inc
	c.backPatchCounts = append(c.backPatchCounts, 0)

	chunk.AddLabel(beg)
	chunk.Emit(lir.OpEq, cmp, loopVar, to)
	chunk.Emit(lir.OpJmpTrue, cmp, end)

	exp, err := c.compile(thenIdx, inner, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	chunk.Emit(lir.OpMov, res, c.toRvalue(chunk, exp))

	chunk.AddLabel(inc)
	chunk.Emit(lir.OpAdd, loopVar, loopVar, step)
	chunk.Emit(lir.OpJmp, beg)
	chunk.AddLabel(end)

	// break/continue values land in the loop's result register
	c.backPatchJumps(chunk, res)
	c.inLoop, c.brkLab, c.cntLab = prevInLoop, prevBrk, prevCnt

	return res, nil
}

func (c *Compiler) compileWhile(idx ast.NodeIndex, scope env.ScopeID, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)

	beg := c.makeLabel()
	end := c.makeLabel()
	res := c.makeTemporary(lir.HoldsNumber)

	prevInLoop, prevBrk, prevCnt := c.inLoop, c.brkLab, c.cntLab
	c.inLoop, c.brkLab, c.cntLab = true, end, beg
	c.backPatchCounts = append(c.backPatchCounts, 0)

	chunk.AddLabel(beg)

	cond, err := c.compile(node.Children[0], scope, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	cond = c.toRvalue(chunk, cond)
	chunk.Emit(lir.OpJmpFalse, cond, end)

	exp, err := c.compile(node.Children[1], scope, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	chunk.Emit(lir.OpMov, res, c.toRvalue(chunk, exp))

	chunk.Emit(lir.OpJmp, beg)
	chunk.AddLabel(end)

	// break/continue values land in the loop's result register
	c.backPatchJumps(chunk, res)
	c.inLoop, c.brkLab, c.cntLab = prevInLoop, prevBrk, prevCnt

	return res, nil
}

// compileString allocates a static buffer ending in a sentinel null cell
// and returns an address-tagged temporary holding the base.
func (c *Compiler) compileString(idx ast.NodeIndex, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)
	str := c.pool.Find(node.StrID)

	base, err := c.allocStatic(idx, int64(len(str))+1)
	if err != nil {
		return lir.Operand{}, err
	}

	buf := c.makeTemporary(lir.HoldsAddress)
	chunk.Emit(lir.OpMov, buf, lir.Imm(base)).WithComment("string literal")

	for i := 0; i <= len(str); i++ {
		var ch int64
		if i < len(str) {
			ch = int64(str[i])
		}
		chunk.Emit(lir.OpMov, lir.Reg(int(base)+i, lir.HoldsNumber), lir.Imm(ch))
	}
	return buf, nil
}

func (c *Compiler) compileVarDecl(idx ast.NodeIndex, scope env.ScopeID, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)
	idNode := c.tree.At(node.Children[0])

	initial, err := c.compile(node.Children[2], scope, chunk)
	if err != nil {
		return lir.Operand{}, err
	}
	// an indexing result is loaded here, so only arrays and strings reach
	// the direct binding below
	if c.tree.At(node.Children[2]).Type == ast.Path {
		initial = c.toRvalue(chunk, initial)
	}

	// arrays and strings bind their base register directly; it becomes the
	// variable's home
	if initial.HasAddr() {
		home := initial
		home.Temp = false
		return *c.env.Insert(scope, idNode.StrID, home), nil
	}

	initial = c.toRvalue(chunk, initial)
	slot := c.env.Insert(scope, idNode.StrID, c.makeRegister(lir.HoldsNumber))
	chunk.Emit(lir.OpMov, *slot, initial).WithComment("creating variable")
	return *slot, nil
}

func (c *Compiler) compileFunDecl(idx ast.NodeIndex, scope env.ScopeID, chunk *lir.Chunk) (lir.Operand, error) {
	node := c.tree.At(idx)
	idNode := c.tree.At(node.Children[0])
	paramsNode := c.tree.At(node.Children[1])
	bodyIdx := node.Children[3]

	funcName := c.makeLabel()
	c.env.Insert(scope, idNode.StrID, funcName)

	inner := c.env.CreateChildScope(scope)

	fn := lir.NewChunk()
	fn.AddLabel(funcName)
	fn.Emit(lir.OpFunc)

	for _, paramIdx := range paramsNode.Children {
		paramNode := c.tree.At(paramIdx)
		arg := c.makeRegister(lir.HoldsNumber)
		fn.Emit(lir.OpPop, arg)
		c.env.Insert(inner, paramNode.StrID, arg)
	}

	// the body is not part of any enclosing loop
	prevInLoop := c.inLoop
	c.inLoop = false
	op, err := c.compile(bodyIdx, inner, fn)
	c.inLoop = prevInLoop
	if err != nil {
		return lir.Operand{}, err
	}

	fn.Emit(lir.OpPush, c.toRvalue(fn, op))
	fn.Emit(lir.OpRet)

	// prepend so callees are defined before use; outstanding backpatch
	// indices into this chunk shift with it
	*chunk = *fn.Concat(chunk)
	for i := range c.backPatch {
		c.backPatch[i] += len(fn.Instructions)
	}

	return funcName, nil
}
