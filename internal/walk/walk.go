// internal/walk/walk.go
package walk

import (
	"fmt"

	"tova/internal/ast"
	"tova/internal/env"
	"tova/internal/errors"
	"tova/internal/strpool"
)

// Interpreter is the reference evaluator: a direct walk over the tree that
// defines the language's observable semantics. Break and continue are
// interpreter-wide flags; each loop saves and restores the in-loop state on
// entry and exit and clears the flags it consumes, so nested loops stay
// separated.
type Interpreter struct {
	tree *ast.AST
	pool *strpool.Pool
	env  *env.Env[Value]

	inLoop         bool
	shouldBreak    bool
	shouldContinue bool

	source string
	file   string
}

func NewInterpreter(tree *ast.AST, pool *strpool.Pool, builtins []Builtin, source, file string) *Interpreter {
	it := &Interpreter{
		tree:   tree,
		pool:   pool,
		env:    env.New[Value](),
		source: source,
		file:   file,
	}
	for _, b := range builtins {
		it.env.Insert(env.RootScopeID, pool.Intern(b.Name), BuiltinValue(b))
	}
	return it
}

// Eval evaluates the whole program and returns its result cell.
func (it *Interpreter) Eval() (*Value, error) {
	if it.tree.IsEmpty() {
		return newCell(NilValue{}), nil
	}
	return it.eval(it.tree.RootIndex, env.RootScopeID)
}

func (it *Interpreter) errAt(idx ast.NodeIndex, format string, args ...interface{}) error {
	loc := it.tree.At(idx).Loc
	return errors.NewRuntimeError(fmt.Sprintf(format, args...), errors.SourceLocation{
		File:      it.file,
		Line:      loc.Begin.Line,
		Column:    loc.Begin.Column,
		EndLine:   loc.End.Line,
		EndColumn: loc.End.Column,
	}).WithSource(it.source)
}

func (it *Interpreter) interrupted() bool {
	return it.shouldBreak || it.shouldContinue
}

func asInt(cell *Value) (int64, bool) {
	v, ok := (*cell).(IntValue)
	return int64(v), ok
}

func asBool(cell *Value) (bool, bool) {
	v, ok := (*cell).(BoolValue)
	return bool(v), ok
}

func (it *Interpreter) eval(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	switch node.Type {

	case ast.Num:
		return newCell(IntValue(node.Num)), nil

	case ast.Char:
		return newCell(IntValue(node.Character)), nil

	case ast.Str:
		return newCell(StrValue(it.pool.Find(node.StrID))), nil

	case ast.Nil:
		return newCell(NilValue{}), nil

	case ast.True:
		return newCell(BoolValue(true)), nil

	case ast.False:
		return newCell(BoolValue(false)), nil

	case ast.App:
		return it.evalApp(idx, scope)

	case ast.Blk:
		inner := it.env.CreateChildScope(scope)
		res := newCell(NilValue{})
		for _, child := range node.Children {
			var err error
			res, err = it.eval(child, inner)
			if err != nil {
				return nil, err
			}
			// break/continue abandons the rest of the block
			if it.interrupted() {
				break
			}
		}
		return res, nil

	case ast.If:
		cond, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		b, ok := asBool(cond)
		if !ok {
			return nil, it.errAt(node.Children[0], "condition is not a boolean")
		}
		if b {
			return it.eval(node.Children[1], scope)
		}
		return it.eval(node.Children[2], scope)

	case ast.When:
		cond, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		b, ok := asBool(cond)
		if !ok {
			return nil, it.errAt(node.Children[0], "condition is not a boolean")
		}
		if b {
			if _, err := it.eval(node.Children[1], scope); err != nil {
				return nil, err
			}
		}
		return newCell(NilValue{}), nil

	case ast.For:
		return it.evalFor(idx, scope)

	case ast.While:
		return it.evalWhile(idx, scope)

	case ast.Break:
		if !it.inLoop {
			return nil, it.errAt(idx, "can't break outside of a loop")
		}
		val, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		it.shouldBreak = true
		return val, nil

	case ast.Continue:
		if !it.inLoop {
			return nil, it.errAt(idx, "can't continue outside of a loop")
		}
		val, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		it.shouldContinue = true
		return val, nil

	case ast.Ass:
		lvalue, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		right, err := it.eval(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		*lvalue = *right
		return right, nil

	case ast.Or:
		left, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		if b, ok := asBool(left); ok && b {
			return left, nil
		}
		return it.eval(node.Children[1], scope)

	case ast.And:
		left, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		if b, ok := asBool(left); ok && !b {
			return left, nil
		}
		return it.eval(node.Children[1], scope)

	case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.Mod:
		return it.evalArith(idx, scope)

	case ast.Gtn, ast.Ltn, ast.Gte, ast.Lte:
		return it.evalComparison(idx, scope)

	case ast.Eq:
		return it.evalEquality(idx, scope)

	case ast.Not:
		val, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		b, ok := asBool(val)
		if !ok {
			return nil, it.errAt(idx, "negated expression is not a boolean")
		}
		return newCell(BoolValue(!b)), nil

	case ast.At:
		base, err := it.eval(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		arr, ok := (*base).(ArrayValue)
		if !ok {
			return nil, it.errAt(idx, "can only index arrays")
		}
		off, err := it.eval(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		n, ok := asInt(off)
		if !ok {
			return nil, it.errAt(node.Children[1], "index must be a number")
		}
		if n < 0 || n >= int64(len(arr.Items)) {
			return nil, it.errAt(idx, "index %d out of bounds for array of length %d", n, len(arr.Items))
		}
		return arr.Items[n], nil

	case ast.Id:
		cell := it.env.Find(scope, node.StrID)
		if cell == nil {
			return nil, it.errAt(idx, "variable %s not previously declared", it.pool.Find(node.StrID))
		}
		return cell, nil

	case ast.VarDecl:
		idNode := it.tree.At(node.Children[0])
		val, err := it.eval(node.Children[2], scope)
		if err != nil {
			return nil, err
		}
		// the variable gets its own cell; arrays still share their element
		// cells through the copied handle
		return it.env.Insert(scope, idNode.StrID, *val), nil

	case ast.FunDecl:
		return it.evalFunDecl(idx, scope)

	case ast.Let:
		declsNode := it.tree.At(node.Children[0])
		inner := it.env.CreateChildScope(scope)
		for _, declIdx := range declsNode.Children {
			if _, err := it.eval(declIdx, inner); err != nil {
				return nil, err
			}
		}
		return it.eval(node.Children[1], inner)

	case ast.Path:
		return it.eval(node.Children[0], scope)

	case ast.As:
		// cells are untyped at run time; a cast only re-labels the value
		return it.eval(node.Children[0], scope)
	}

	return nil, it.errAt(idx, "internal: unhandled node %s", node.Type)
}

func (it *Interpreter) evalArith(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	left, err := it.eval(node.Children[0], scope)
	if err != nil {
		return nil, err
	}
	right, err := it.eval(node.Children[1], scope)
	if err != nil {
		return nil, err
	}
	a, okA := asInt(left)
	b, okB := asInt(right)
	if !okA {
		return nil, it.errAt(node.Children[0], "left-hand side of arithmetic operator is not a number")
	}
	if !okB {
		return nil, it.errAt(node.Children[1], "right-hand side of arithmetic operator is not a number")
	}

	var res int64
	switch node.Type {
	case ast.Add:
		res = a + b
	case ast.Sub:
		res = a - b
	case ast.Mul:
		res = a * b
	case ast.Div:
		if b == 0 {
			return nil, it.errAt(idx, "division by zero")
		}
		res = a / b
	case ast.Mod:
		if b == 0 {
			return nil, it.errAt(idx, "division by zero")
		}
		res = a % b
	}
	return newCell(IntValue(res)), nil
}

func (it *Interpreter) evalComparison(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	left, err := it.eval(node.Children[0], scope)
	if err != nil {
		return nil, err
	}
	right, err := it.eval(node.Children[1], scope)
	if err != nil {
		return nil, err
	}
	a, okA := asInt(left)
	b, okB := asInt(right)
	if !okA || !okB {
		return nil, it.errAt(idx, "arithmetic comparison is allowed only between numbers")
	}

	var res bool
	switch node.Type {
	case ast.Gtn:
		res = a > b
	case ast.Ltn:
		res = a < b
	case ast.Gte:
		res = a >= b
	case ast.Lte:
		res = a <= b
	}
	return newCell(BoolValue(res)), nil
}

func (it *Interpreter) evalEquality(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	left, err := it.eval(node.Children[0], scope)
	if err != nil {
		return nil, err
	}
	right, err := it.eval(node.Children[1], scope)
	if err != nil {
		return nil, err
	}

	switch a := (*left).(type) {
	case NilValue:
		_, ok := (*right).(NilValue)
		if ok {
			return newCell(BoolValue(true)), nil
		}
	case BoolValue:
		if b, ok := (*right).(BoolValue); ok {
			return newCell(BoolValue(a == b)), nil
		}
	case IntValue:
		if b, ok := (*right).(IntValue); ok {
			return newCell(BoolValue(a == b)), nil
		}
	}
	return nil, it.errAt(idx, "can't compare values")
}

// "for" decl "from" exp "to" exp ("step" exp)? "then" exp
func (it *Interpreter) evalFor(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	declIdx, toIdx, stepIdx, thenIdx := node.Children[0], node.Children[1], node.Children[2], node.Children[3]

	inner := it.env.CreateChildScope(scope)

	decl, err := it.eval(declIdx, inner)
	if err != nil {
		return nil, err
	}
	from, ok := asInt(decl)
	if !ok {
		return nil, it.errAt(declIdx, "loop variable is not a number")
	}

	toCell, err := it.eval(toIdx, inner)
	if err != nil {
		return nil, err
	}
	to, ok := asInt(toCell)
	if !ok {
		return nil, it.errAt(toIdx, "type of `to' value is not a number")
	}

	step := int64(1)
	if it.tree.At(stepIdx).Type != ast.Empty {
		stepCell, err := it.eval(stepIdx, inner)
		if err != nil {
			return nil, err
		}
		step, ok = asInt(stepCell)
		if !ok {
			return nil, it.errAt(stepIdx, "type of `step' value is not a number")
		}
	}

	bodyScope := it.env.CreateChildScope(inner)

	prevInLoop := it.inLoop
	it.inLoop = true
	for i := from; i != to; i += step {
		*decl = IntValue(i)
		if _, err := it.eval(thenIdx, bodyScope); err != nil {
			return nil, err
		}
		if it.shouldBreak {
			it.shouldBreak = false
			break
		}
		if it.shouldContinue {
			it.shouldContinue = false
		}
	}
	it.inLoop = prevInLoop

	return newCell(NilValue{}), nil
}

// "while" exp "then" exp
func (it *Interpreter) evalWhile(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	condIdx, thenIdx := node.Children[0], node.Children[1]

	prevInLoop := it.inLoop
	it.inLoop = true

	res := newCell(NilValue{})
	for {
		cond, err := it.eval(condIdx, scope)
		if err != nil {
			return nil, err
		}
		b, ok := asBool(cond)
		if !ok {
			return nil, it.errAt(condIdx, "while condition is not a boolean")
		}
		if !b {
			break
		}

		res, err = it.eval(thenIdx, scope)
		if err != nil {
			return nil, err
		}
		if it.shouldBreak {
			it.shouldBreak = false
			break
		}
		if it.shouldContinue {
			it.shouldContinue = false
		}
	}
	it.inLoop = prevInLoop

	return res, nil
}

func (it *Interpreter) evalApp(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	funcNode := it.tree.At(node.Children[0])
	argsNode := it.tree.At(node.Children[1])

	if funcNode.Type != ast.Id {
		return nil, it.errAt(idx, "unnamed functions are not implemented")
	}

	funcCell := it.env.Find(scope, funcNode.StrID)
	if funcCell == nil {
		return nil, it.errAt(idx, "function %s not found", it.pool.Find(funcNode.StrID))
	}

	// arguments are captured by value at call time
	args := make([]*Value, 0, len(argsNode.Children))
	for _, argIdx := range argsNode.Children {
		cell, err := it.eval(argIdx, scope)
		if err != nil {
			return nil, err
		}
		args = append(args, newCell(*cell))
	}

	switch fn := (*funcCell).(type) {
	case BuiltinValue:
		if fn.ParamCount != len(args) {
			return nil, it.errAt(idx, "%s takes %d arguments, got %d", fn.Name, fn.ParamCount, len(args))
		}
		res, err := fn.Fn(args)
		if err != nil {
			return nil, it.errAt(idx, "%s", err)
		}
		return res, nil

	case FuncValue:
		if len(fn.ParamIdxs) != len(args) {
			return nil, it.errAt(idx, "wrong number of arguments")
		}
		// fresh child scope of the declaration scope
		callScope := it.env.CreateChildScope(fn.Scope)
		for i, paramIdx := range fn.ParamIdxs {
			paramNode := it.tree.At(paramIdx)
			it.env.Insert(callScope, paramNode.StrID, *args[i])
		}

		// the callee body is outside any enclosing loop
		prevInLoop := it.inLoop
		it.inLoop = false
		res, err := it.eval(fn.BodyIdx, callScope)
		it.inLoop = prevInLoop
		return res, err
	}

	return nil, it.errAt(idx, "%s is not a function", it.pool.Find(funcNode.StrID))
}

func (it *Interpreter) evalFunDecl(idx ast.NodeIndex, scope env.ScopeID) (*Value, error) {
	node := it.tree.At(idx)
	idNode := it.tree.At(node.Children[0])
	paramsNode := it.tree.At(node.Children[1])

	paramIdxs := make([]ast.NodeIndex, 0, len(paramsNode.Children))
	for _, paramIdx := range paramsNode.Children {
		if it.tree.At(paramIdx).Type != ast.Id {
			return nil, it.errAt(paramIdx, "function parameter must be a valid identifier")
		}
		paramIdxs = append(paramIdxs, paramIdx)
	}

	cell := it.env.Insert(scope, idNode.StrID, NilValue{})
	*cell = FuncValue{ParamIdxs: paramIdxs, BodyIdx: node.Children[3], Scope: scope}
	return cell, nil
}
