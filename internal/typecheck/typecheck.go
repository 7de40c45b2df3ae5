// internal/typecheck/typecheck.go
package typecheck

// The checker walks the tree once, assigning a type to every node and
// unifying as it goes. Meta-variables in the rule comments:
//
//   E   the environment
//   e   an expression
//   x   a variable or name
//   t   a type

import (
	"tova/internal/ast"
	"tova/internal/env"
	"tova/internal/errors"
	"tova/internal/strpool"
	"tova/internal/types"
)

type Checker struct {
	tree *ast.AST
	pool *strpool.Pool
	env  *env.Env[types.Type]

	nodeTypes  map[ast.NodeIndex]types.Type
	nodeScopes map[ast.NodeIndex]env.ScopeID

	nextVarName int

	source string
	file   string
}

func NewChecker(tree *ast.AST, pool *strpool.Pool, source, file string) *Checker {
	return &Checker{
		tree:       tree,
		pool:       pool,
		env:        env.New[types.Type](),
		nodeTypes:  make(map[ast.NodeIndex]types.Type),
		nodeScopes: make(map[ast.NodeIndex]env.ScopeID),
		source:     source,
		file:       file,
	}
}

// TypeOf returns the type recorded for a node after Check has run.
func (c *Checker) TypeOf(idx ast.NodeIndex) types.Type {
	return c.nodeTypes[idx]
}

func (c *Checker) makeTypeVar() *types.TypeVar {
	v := &types.TypeVar{Name: c.nextVarName}
	c.nextVarName++
	return v
}

func int64Type() *types.Integer { return &types.Integer{BitCount: 64, Sign: types.Signed} }
func uint8Type() *types.Integer { return &types.Integer{BitCount: 8, Sign: types.Unsigned} }

// Check seeds the builtin signatures at the root scope and types the whole
// tree.
func (c *Checker) Check() error {
	scope := env.RootScopeID

	nilT := &types.Nil{}
	i64 := int64Type()
	u8 := uint8Type()
	u8Arr := &types.Array{Item: u8}
	i64Arr := &types.Array{Item: i64}

	bind := func(name string, t types.Type) {
		c.env.Insert(scope, c.pool.Intern(name), t)
	}
	bind("read_int", &types.Function{Inputs: []types.Type{nilT}, Output: i64})
	bind("read_char", &types.Function{Inputs: []types.Type{nilT}, Output: u8})
	bind("write_int", &types.Function{Inputs: []types.Type{i64}, Output: nilT})
	bind("write_char", &types.Function{Inputs: []types.Type{u8}, Output: nilT})
	bind("write_str", &types.Function{Inputs: []types.Type{u8Arr}, Output: nilT})
	bind("make_array", &types.Function{Inputs: []types.Type{i64}, Output: i64Arr})
	bind("exit", &types.Function{Inputs: []types.Type{i64}, Output: nilT})

	if c.tree.IsEmpty() {
		return nil
	}
	_, err := c.check(c.tree.RootIndex, scope)
	return err
}

// Unify makes two types equal, binding type variables destructively. Refs
// are seen through on either side, so an l-value can stand wherever an
// r-value of the same underlying type is required.
func Unify(a, b types.Type) bool {
	if ra, ok := a.(*types.Ref); ok {
		return Unify(ra.Inner, b)
	}
	if rb, ok := b.(*types.Ref); ok {
		return Unify(a, rb.Inner)
	}

	if va, ok := a.(*types.TypeVar); ok && va.Bound != nil {
		return Unify(va.Bound, b)
	}
	if vb, ok := b.(*types.TypeVar); ok && vb.Bound != nil {
		return Unify(a, vb.Bound)
	}

	if va, ok := a.(*types.TypeVar); ok {
		va.BindTo(b)
		return true
	}
	if vb, ok := b.(*types.TypeVar); ok {
		vb.BindTo(a)
		return true
	}

	if fa, okA := a.(*types.Function); okA {
		fb, okB := b.(*types.Function)
		if !okB || len(fa.Inputs) != len(fb.Inputs) {
			return false
		}
		for i := range fa.Inputs {
			if !Unify(fa.Inputs[i], fb.Inputs[i]) {
				return false
			}
		}
		return Unify(fa.Output, fb.Output)
	}

	if aa, okA := a.(*types.Array); okA {
		ab, okB := b.(*types.Array)
		return okB && Unify(aa.Item, ab.Item)
	}

	if ia, okA := a.(*types.Integer); okA {
		ib, okB := b.(*types.Integer)
		return okB && ia.BitCount == ib.BitCount && ia.Sign == ib.Sign
	}

	switch a.(type) {
	case *types.Nil:
		_, ok := b.(*types.Nil)
		return ok
	case *types.Bool:
		_, ok := b.(*types.Bool)
		return ok
	case *types.Void:
		_, ok := b.(*types.Void)
		return ok
	}

	return false
}

func (c *Checker) assoc(idx ast.NodeIndex, t types.Type) types.Type {
	c.nodeTypes[idx] = t
	return t
}

func (c *Checker) errAt(idx ast.NodeIndex, msg string) *errors.Diagnostic {
	loc := c.tree.At(idx).Loc
	return errors.NewTypeError(msg, errors.SourceLocation{
		File:      c.file,
		Line:      loc.Begin.Line,
		Column:    loc.Begin.Column,
		EndLine:   loc.End.Line,
		EndColumn: loc.End.Column,
	}).WithSource(c.source)
}

func (c *Checker) mismatch(idx ast.NodeIndex, msg string, got, expected types.Type) *errors.Diagnostic {
	return c.errAt(idx, msg).WithTypes(types.Format(expected), types.Format(got))
}

func (c *Checker) check(idx ast.NodeIndex, scope env.ScopeID) (types.Type, error) {
	c.nodeScopes[idx] = scope

	node := c.tree.At(idx)
	switch node.Type {

	// |
	// +------
	// | |- Void

	case ast.Empty:
		return c.assoc(idx, &types.Void{}), nil

	// | f : (t1 t2 ... tn) -> t0
	// | a1 : t1 ... an : tn
	// +-----------
	// | |- f a1 a2 ... an : t0

	case ast.App:
		funcIdx := node.Children[0]
		argsNode := c.tree.At(node.Children[1])

		inputs := make([]types.Type, 0, len(argsNode.Children))
		for _, argIdx := range argsNode.Children {
			argTyp, err := c.check(argIdx, scope)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, argTyp)
		}

		expected := &types.Function{Inputs: inputs, Output: c.makeTypeVar()}
		funcTyp, err := c.check(funcIdx, scope)
		if err != nil {
			return nil, err
		}

		if !Unify(funcTyp, expected) {
			return nil, c.mismatch(idx, "function and arguments don't match", funcTyp, expected)
		}

		fn, ok := types.Resolve(types.Deref(funcTyp)).(*types.Function)
		if !ok {
			return nil, c.mismatch(idx, "called name is not a function", funcTyp, expected)
		}
		return c.assoc(idx, fn.Output), nil

	// |
	// +------
	// | |- n : Int<64>

	case ast.Num:
		return c.assoc(idx, int64Type()), nil

	case ast.Blk:
		inner := c.env.CreateChildScope(scope)
		if len(node.Children) == 0 {
			return c.assoc(idx, &types.Void{}), nil
		}
		for _, child := range node.Children[:len(node.Children)-1] {
			if _, err := c.check(child, inner); err != nil {
				return nil, err
			}
		}
		last, err := c.check(node.Children[len(node.Children)-1], inner)
		if err != nil {
			return nil, err
		}
		return c.assoc(idx, last), nil

	// | E |- e1 : Bool
	// | E |- e2 : t
	// | E |- e3 : t
	// +----------
	// | E |- if e1 then e2 else e3 : t

	case ast.If:
		condTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(condTyp, &types.Bool{}) {
			return nil, c.mismatch(idx, "condition of if expression is not of type boolean", condTyp, &types.Bool{})
		}
		thenTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		elseTyp, err := c.check(node.Children[2], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(thenTyp, elseTyp) {
			return nil, c.mismatch(idx, "if expression has \"then\" and \"else\" branches with different types", thenTyp, elseTyp)
		}
		return c.assoc(idx, thenTyp), nil

	// | e1 : Bool
	// | e2 : t2
	// +---------
	// | |- when e1 then e2 : Nil

	case ast.When:
		condTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(condTyp, &types.Bool{}) {
			return nil, c.mismatch(idx, "condition of when expression is not of type boolean", condTyp, &types.Bool{})
		}
		if _, err := c.check(node.Children[1], scope); err != nil {
			return nil, err
		}
		return c.assoc(idx, &types.Nil{}), nil

	// | E |- x : t1   E |- e1 : t1   E |- e2 : t1   E |- e3 : t3
	// +------------
	// | E |- for var x from e0 to e1 step e2 then e3 : t3

	case ast.For:
		inner := c.env.CreateChildScope(scope)

		varTyp, err := c.check(node.Children[0], inner)
		if err != nil {
			return nil, err
		}
		toTyp, err := c.check(node.Children[1], inner)
		if err != nil {
			return nil, err
		}

		var stepTyp types.Type = int64Type()
		if c.tree.At(node.Children[2]).Type != ast.Empty {
			stepTyp, err = c.check(node.Children[2], inner)
			if err != nil {
				return nil, err
			}
		}

		if !Unify(varTyp, toTyp) {
			return nil, c.mismatch(idx, "for loop declaration and bound types don't match", varTyp, toTyp)
		}
		if !Unify(toTyp, stepTyp) {
			return nil, c.mismatch(idx, "for loop bound and step types don't match", toTyp, stepTyp)
		}

		bodyTyp, err := c.check(node.Children[3], inner)
		if err != nil {
			return nil, err
		}
		return c.assoc(idx, bodyTyp), nil

	// | e1 : Bool
	// | e2 : t2
	// +---------------
	// | |- while e1 then e2 : t2

	case ast.While:
		condTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(condTyp, &types.Bool{}) {
			return nil, c.mismatch(idx, "while loop condition must have type boolean", condTyp, &types.Bool{})
		}
		bodyTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		return c.assoc(idx, bodyTyp), nil

	// | e1 : t1
	// +----------
	// | |- break e1 : t1   (same for continue)

	case ast.Break, ast.Continue:
		expTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		return c.assoc(idx, expTyp), nil

	case ast.Ass:
		pathTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		valTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(pathTyp, valTyp) {
			return nil, c.mismatch(idx, "assignment with value of wrong type", valTyp, pathTyp)
		}
		if _, ok := pathTyp.(*types.Ref); !ok {
			return nil, c.errAt(idx, "left side of assignment must be a reference")
		}
		return c.assoc(idx, valTyp), nil

	case ast.Eq:
		leftTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		rightTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(leftTyp, rightTyp) {
			return nil, c.mismatch(idx, "equality comparison of values of different types is always false", leftTyp, rightTyp)
		}
		return c.assoc(idx, &types.Bool{}), nil

	// | e1 : Bool
	// | e2 : Bool
	// +----------
	// | |- e1 or e2 : Bool   (same for and)

	case ast.Or, ast.And:
		leftTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		rightTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		boolTyp := &types.Bool{}
		if !Unify(leftTyp, boolTyp) {
			return nil, c.mismatch(idx, "left side of logical combinator does not have boolean type", leftTyp, boolTyp)
		}
		if !Unify(rightTyp, boolTyp) {
			return nil, c.mismatch(idx, "right side of logical combinator does not have boolean type", rightTyp, boolTyp)
		}
		return c.assoc(idx, boolTyp), nil

	case ast.Gtn, ast.Ltn, ast.Gte, ast.Lte:
		leftTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		rightTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(leftTyp, int64Type()) || !Unify(rightTyp, int64Type()) {
			return nil, c.errAt(idx, "comparison operator arguments must be of numeric type")
		}
		return c.assoc(idx, &types.Bool{}), nil

	case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.Mod:
		leftTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		rightTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(leftTyp, int64Type()) {
			return nil, c.mismatch(node.Children[0], "left-hand side of arithmetic operator is not numeric", leftTyp, int64Type())
		}
		if !Unify(rightTyp, int64Type()) {
			return nil, c.mismatch(node.Children[1], "right-hand side of arithmetic operator is not numeric", rightTyp, int64Type())
		}
		return c.assoc(idx, int64Type()), nil

	// | E |- e1 : Ref<Array<t>>
	// | E |- e2 : Int<64>
	// +------------
	// | E |- e1[e2] : Ref<t>

	case ast.At:
		anyArr := &types.Ref{Inner: &types.Array{Item: c.makeTypeVar()}}
		arrTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(anyArr, arrTyp) {
			return nil, c.mismatch(idx, "not an array", arrTyp, anyArr)
		}
		if _, ok := arrTyp.(*types.Ref); !ok {
			return nil, c.errAt(idx, "array expression is not a reference")
		}

		offTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}
		if !Unify(offTyp, int64Type()) {
			return nil, c.mismatch(idx, "index expression must be of integer type", offTyp, int64Type())
		}

		arr, ok := types.Resolve(types.Deref(arrTyp)).(*types.Array)
		if !ok {
			return nil, c.mismatch(idx, "not an array", arrTyp, anyArr)
		}
		return c.assoc(idx, &types.Ref{Inner: arr.Item}), nil

	// | E |- e : Bool
	// +-------------
	// | E |- not e : Bool

	case ast.Not:
		expTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		boolTyp := &types.Bool{}
		if !Unify(expTyp, boolTyp) {
			return nil, c.mismatch(idx, "expression is not of type boolean", expTyp, boolTyp)
		}
		return c.assoc(idx, boolTyp), nil

	// A previously declared variable of type t is a reference to a t.
	//
	// | x : t in E
	// +-------
	// | E |- x : Ref<t>

	case ast.Id:
		found := c.env.Find(scope, node.StrID)
		if found == nil {
			return nil, c.errAt(idx, "variable "+c.pool.Find(node.StrID)+" not previously declared")
		}
		return c.assoc(idx, &types.Ref{Inner: *found}), nil

	// |
	// +------
	// | |- s : Array<UInt<8>>

	case ast.Str:
		return c.assoc(idx, &types.Array{Item: uint8Type()}), nil

	case ast.VarDecl:
		idNode := c.tree.At(node.Children[0])
		annotIdx := node.Children[1]

		expTyp, err := c.check(node.Children[2], scope)
		if err != nil {
			return nil, err
		}

		if c.tree.At(annotIdx).Type != ast.Empty {
			annotTyp, err := c.check(annotIdx, scope)
			if err != nil {
				return nil, err
			}
			if !Unify(annotTyp, expTyp) {
				return nil, c.mismatch(idx, "expression does not have the annotated type", expTyp, annotTyp)
			}
		}

		// the variable holds a copy of the initialiser's r-value
		c.env.Insert(scope, idNode.StrID, types.Deref(expTyp))
		return c.assoc(idx, expTyp), nil

	case ast.FunDecl:
		idNode := c.tree.At(node.Children[0])
		paramsNode := c.tree.At(node.Children[1])
		annotIdx := node.Children[2]
		bodyIdx := node.Children[3]

		// Pre-bind the name to [t1, ..., tn] -> t so recursive calls can
		// type; the binding is replaced once the body has been inferred.
		inputs := make([]types.Type, 0, len(paramsNode.Children))
		for range paramsNode.Children {
			inputs = append(inputs, c.makeTypeVar())
		}
		var output types.Type
		if c.tree.At(annotIdx).Type == ast.Empty {
			output = c.makeTypeVar()
		} else {
			var err error
			output, err = c.check(annotIdx, scope)
			if err != nil {
				return nil, err
			}
		}
		funcTyp := types.Type(&types.Function{Inputs: inputs, Output: output})
		c.assoc(idx, funcTyp)
		slot := c.env.Insert(scope, idNode.StrID, funcTyp)

		inner := c.env.CreateChildScope(scope)
		paramTypes := make([]types.Type, 0, len(paramsNode.Children))
		for _, paramIdx := range paramsNode.Children {
			paramNode := c.tree.At(paramIdx)
			v := c.makeTypeVar()
			paramTypes = append(paramTypes, v)
			c.env.Insert(inner, paramNode.StrID, v)
		}

		bodyTyp, err := c.check(bodyIdx, inner)
		if err != nil {
			return nil, err
		}
		if c.tree.At(annotIdx).Type != ast.Empty {
			annotTyp, err := c.check(annotIdx, inner)
			if err != nil {
				return nil, err
			}
			if !Unify(bodyTyp, annotTyp) {
				return nil, c.mismatch(idx, "function annotation output type and inferred type don't match", bodyTyp, annotTyp)
			}
			output = annotTyp
		} else {
			output = bodyTyp
		}

		finalTyp := types.Type(&types.Function{Inputs: paramTypes, Output: output})
		*slot = finalTyp
		return c.assoc(idx, finalTyp), nil

	// |
	// +---------
	// | |- nil : Nil

	case ast.Nil:
		return c.assoc(idx, &types.Nil{}), nil

	case ast.True, ast.False:
		return c.assoc(idx, &types.Bool{}), nil

	case ast.Let:
		declsNode := c.tree.At(node.Children[0])
		inner := c.env.CreateChildScope(scope)
		for _, declIdx := range declsNode.Children {
			if _, err := c.check(declIdx, inner); err != nil {
				return nil, err
			}
		}
		bodyTyp, err := c.check(node.Children[1], inner)
		if err != nil {
			return nil, err
		}
		return c.assoc(idx, bodyTyp), nil

	// |
	// +---------
	// | |- c : UInt<8>

	case ast.Char:
		return c.assoc(idx, uint8Type()), nil

	case ast.Path:
		childTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		return c.assoc(idx, childTyp), nil

	// A cast is permitted between any two integer types, from boolean to
	// integer, or between types that already unify; the result is always
	// the target type.

	case ast.As:
		expTyp, err := c.check(node.Children[0], scope)
		if err != nil {
			return nil, err
		}
		targetTyp, err := c.check(node.Children[1], scope)
		if err != nil {
			return nil, err
		}

		exp := types.Resolve(types.Deref(types.Resolve(expTyp)))
		if _, ok := exp.(*types.Integer); ok {
			if _, ok := targetTyp.(*types.Integer); ok {
				return c.assoc(idx, targetTyp), nil
			}
		}
		if _, ok := exp.(*types.Bool); ok {
			if _, ok := targetTyp.(*types.Integer); ok {
				return c.assoc(idx, targetTyp), nil
			}
		}
		if Unify(expTyp, targetTyp) {
			return c.assoc(idx, targetTyp), nil
		}
		return nil, c.mismatch(idx, "can't cast value to type", expTyp, targetTyp)

	case ast.IntType:
		sizeNode := c.tree.At(node.Children[0])
		return c.assoc(idx, &types.Integer{BitCount: int(sizeNode.Num), Sign: types.Signed}), nil

	case ast.UintType:
		sizeNode := c.tree.At(node.Children[0])
		return c.assoc(idx, &types.Integer{BitCount: int(sizeNode.Num), Sign: types.Unsigned}), nil

	case ast.BoolType:
		return c.assoc(idx, &types.Bool{}), nil

	case ast.NilType:
		return c.assoc(idx, &types.Nil{}), nil
	}

	return nil, c.errAt(idx, "internal: unhandled node "+node.Type.String())
}
