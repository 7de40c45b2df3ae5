// internal/parser/parser.go
package parser

import (
	"fmt"
	"strconv"

	"tova/internal/ast"
	"tova/internal/errors"
	"tova/internal/lexer"
	"tova/internal/strpool"
)

// Parser turns a token stream into arena nodes. The whole program is one
// expression; blocks, lets and declarations are expression forms.
type Parser struct {
	tokens  []lexer.Token
	current int
	tree    *ast.AST
	pool    *strpool.Pool
	source  string
	file    string
}

func NewParser(tokens []lexer.Token, pool *strpool.Pool, source, file string) *Parser {
	return &Parser{
		tokens: tokens,
		tree:   ast.New(),
		pool:   pool,
		source: source,
		file:   file,
	}
}

// Parse consumes the whole token stream and returns the populated arena.
func (p *Parser) Parse() (*ast.AST, error) {
	if p.check(lexer.TokenEOF) {
		return p.tree, nil
	}
	root, err := p.expression()
	if err != nil {
		return nil, err
	}
	if !p.check(lexer.TokenEOF) {
		return nil, p.errorAt(p.peek(), "expected end of input, found '%s'", p.peek().Lexeme)
	}
	p.tree.SetRoot(root)
	return p.tree, nil
}

func (p *Parser) expression() (ast.NodeIndex, error) {
	switch p.peek().Type {
	case lexer.TokenLet:
		return p.letExpression()
	case lexer.TokenIf:
		return p.ifExpression()
	case lexer.TokenWhen:
		return p.whenExpression()
	case lexer.TokenFor:
		return p.forExpression()
	case lexer.TokenWhile:
		return p.whileExpression()
	case lexer.TokenBreak:
		p.advance()
		exp, err := p.expression()
		if err != nil {
			return 0, err
		}
		return p.tree.NewBranch(ast.Break, exp), nil
	case lexer.TokenContinue:
		p.advance()
		exp, err := p.expression()
		if err != nil {
			return 0, err
		}
		return p.tree.NewBranch(ast.Continue, exp), nil
	case lexer.TokenVar, lexer.TokenFun:
		return p.declaration()
	}
	return p.assignment()
}

// "let" decl+ "in" exp
func (p *Parser) letExpression() (ast.NodeIndex, error) {
	p.advance()
	decls := p.tree.NewList()
	for p.check(lexer.TokenVar) || p.check(lexer.TokenFun) {
		decl, err := p.declaration()
		if err != nil {
			return 0, err
		}
		p.tree.ListAppend(decls, decl)
	}
	if len(p.tree.At(decls).Children) == 0 {
		return 0, p.errorAt(p.peek(), "let needs at least one declaration")
	}
	if _, err := p.consume(lexer.TokenIn, "expected 'in' after let declarations"); err != nil {
		return 0, err
	}
	body, err := p.expression()
	if err != nil {
		return 0, err
	}
	return p.tree.NewBranch(ast.Let, decls, body), nil
}

// "if" exp "then" exp "else" exp
func (p *Parser) ifExpression() (ast.NodeIndex, error) {
	p.advance()
	cond, err := p.expression()
	if err != nil {
		return 0, err
	}
	if _, err := p.consume(lexer.TokenThen, "expected 'then' after if condition"); err != nil {
		return 0, err
	}
	then, err := p.expression()
	if err != nil {
		return 0, err
	}
	if _, err := p.consume(lexer.TokenElse, "expected 'else' in if expression"); err != nil {
		return 0, err
	}
	alt, err := p.expression()
	if err != nil {
		return 0, err
	}
	return p.tree.NewBranch(ast.If, cond, then, alt), nil
}

// "when" exp "then" exp
func (p *Parser) whenExpression() (ast.NodeIndex, error) {
	p.advance()
	cond, err := p.expression()
	if err != nil {
		return 0, err
	}
	if _, err := p.consume(lexer.TokenThen, "expected 'then' after when condition"); err != nil {
		return 0, err
	}
	then, err := p.expression()
	if err != nil {
		return 0, err
	}
	return p.tree.NewBranch(ast.When, cond, then), nil
}

// "for" "var" id "from" exp "to" exp ("step" exp)? "then" exp
func (p *Parser) forExpression() (ast.NodeIndex, error) {
	p.advance()
	if _, err := p.consume(lexer.TokenVar, "expected 'var' after 'for'"); err != nil {
		return 0, err
	}
	id, err := p.identifier()
	if err != nil {
		return 0, err
	}
	if _, err := p.consume(lexer.TokenFrom, "expected 'from' in for loop"); err != nil {
		return 0, err
	}
	from, err := p.expression()
	if err != nil {
		return 0, err
	}
	decl := p.tree.NewBranch(ast.VarDecl, id, p.tree.NewEmpty(), from)

	if _, err := p.consume(lexer.TokenTo, "expected 'to' in for loop"); err != nil {
		return 0, err
	}
	upto, err := p.expression()
	if err != nil {
		return 0, err
	}

	step := p.tree.NewEmpty()
	if p.match(lexer.TokenStep) {
		step, err = p.expression()
		if err != nil {
			return 0, err
		}
	}

	if _, err := p.consume(lexer.TokenThen, "expected 'then' before for body"); err != nil {
		return 0, err
	}
	body, err := p.expression()
	if err != nil {
		return 0, err
	}
	return p.tree.NewBranch(ast.For, decl, upto, step, body), nil
}

// "while" exp "then" exp
func (p *Parser) whileExpression() (ast.NodeIndex, error) {
	p.advance()
	cond, err := p.expression()
	if err != nil {
		return 0, err
	}
	if _, err := p.consume(lexer.TokenThen, "expected 'then' before while body"); err != nil {
		return 0, err
	}
	body, err := p.expression()
	if err != nil {
		return 0, err
	}
	return p.tree.NewBranch(ast.While, cond, body), nil
}

// "var" id (":" type)? "=" exp
// "fun" id id* (":" type)? "=" exp
func (p *Parser) declaration() (ast.NodeIndex, error) {
	if p.match(lexer.TokenVar) {
		id, err := p.identifier()
		if err != nil {
			return 0, err
		}
		annot, err := p.optionalAnnotation()
		if err != nil {
			return 0, err
		}
		if _, err := p.consume(lexer.TokenEqual, "expected '=' in variable declaration"); err != nil {
			return 0, err
		}
		init, err := p.expression()
		if err != nil {
			return 0, err
		}
		return p.tree.NewBranch(ast.VarDecl, id, annot, init), nil
	}

	p.advance() // fun
	id, err := p.identifier()
	if err != nil {
		return 0, err
	}
	params := p.tree.NewList()
	for p.check(lexer.TokenIdent) {
		param, err := p.identifier()
		if err != nil {
			return 0, err
		}
		p.tree.ListAppend(params, param)
	}
	annot, err := p.optionalAnnotation()
	if err != nil {
		return 0, err
	}
	if _, err := p.consume(lexer.TokenEqual, "expected '=' in function declaration"); err != nil {
		return 0, err
	}
	body, err := p.expression()
	if err != nil {
		return 0, err
	}
	return p.tree.NewBranch(ast.FunDecl, id, params, annot, body), nil
}

func (p *Parser) optionalAnnotation() (ast.NodeIndex, error) {
	if !p.match(lexer.TokenColon) {
		return p.tree.NewEmpty(), nil
	}
	return p.typeExpression()
}

// "int" num? | "uint" num? | "bool" | "nil"
func (p *Parser) typeExpression() (ast.NodeIndex, error) {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenIntT:
		size := p.typeSize(tok, 64)
		return p.tree.NewBranch(ast.IntType, size), nil
	case lexer.TokenUintT:
		size := p.typeSize(tok, 8)
		return p.tree.NewBranch(ast.UintType, size), nil
	case lexer.TokenBoolT:
		return p.tree.NewLeaf(ast.BoolType, tok.Loc), nil
	case lexer.TokenNil:
		return p.tree.NewLeaf(ast.NilType, tok.Loc), nil
	}
	return 0, p.errorAt(tok, "expected a type, found '%s'", tok.Lexeme)
}

func (p *Parser) typeSize(head lexer.Token, dflt int64) ast.NodeIndex {
	if p.check(lexer.TokenNumber) {
		tok := p.advance()
		n, _ := strconv.ParseInt(tok.Lexeme, 10, 64)
		return p.tree.NewNumber(tok.Loc, n)
	}
	return p.tree.NewNumber(head.Loc, dflt)
}

// path "=" exp, or a plain binary expression
func (p *Parser) assignment() (ast.NodeIndex, error) {
	left, err := p.orExpression()
	if err != nil {
		return 0, err
	}
	if !p.match(lexer.TokenEqual) {
		return left, nil
	}

	lhs := left
	if node := p.tree.At(lhs); node.Type == ast.Path {
		lhs = node.Children[0]
	}
	if typ := p.tree.At(lhs).Type; typ != ast.Id && typ != ast.At {
		return 0, p.errorAt(p.previous(), "left side of assignment must be a variable or index path")
	}

	rhs, err := p.expression()
	if err != nil {
		return 0, err
	}
	return p.tree.NewBranch(ast.Ass, lhs, rhs), nil
}

func (p *Parser) orExpression() (ast.NodeIndex, error) {
	left, err := p.andExpression()
	if err != nil {
		return 0, err
	}
	for p.match(lexer.TokenOr) {
		right, err := p.andExpression()
		if err != nil {
			return 0, err
		}
		left = p.tree.NewBranch(ast.Or, left, right)
	}
	return left, nil
}

func (p *Parser) andExpression() (ast.NodeIndex, error) {
	left, err := p.notExpression()
	if err != nil {
		return 0, err
	}
	for p.match(lexer.TokenAnd) {
		right, err := p.notExpression()
		if err != nil {
			return 0, err
		}
		left = p.tree.NewBranch(ast.And, left, right)
	}
	return left, nil
}

func (p *Parser) notExpression() (ast.NodeIndex, error) {
	if p.match(lexer.TokenNot) {
		exp, err := p.notExpression()
		if err != nil {
			return 0, err
		}
		return p.tree.NewBranch(ast.Not, exp), nil
	}
	return p.comparison()
}

var comparisonOps = map[lexer.TokenType]ast.NodeType{
	lexer.TokenDoubleEqual: ast.Eq,
	lexer.TokenGT:          ast.Gtn,
	lexer.TokenLT:          ast.Ltn,
	lexer.TokenGE:          ast.Gte,
	lexer.TokenLE:          ast.Lte,
}

func (p *Parser) comparison() (ast.NodeIndex, error) {
	left, err := p.additive()
	if err != nil {
		return 0, err
	}
	if op, ok := comparisonOps[p.peek().Type]; ok {
		p.advance()
		right, err := p.additive()
		if err != nil {
			return 0, err
		}
		return p.tree.NewBranch(op, left, right), nil
	}
	return left, nil
}

func (p *Parser) additive() (ast.NodeIndex, error) {
	left, err := p.multiplicative()
	if err != nil {
		return 0, err
	}
	for {
		var op ast.NodeType
		switch p.peek().Type {
		case lexer.TokenPlus:
			op = ast.Add
		case lexer.TokenMinus:
			op = ast.Sub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.multiplicative()
		if err != nil {
			return 0, err
		}
		left = p.tree.NewBranch(op, left, right)
	}
}

func (p *Parser) multiplicative() (ast.NodeIndex, error) {
	left, err := p.cast()
	if err != nil {
		return 0, err
	}
	for {
		var op ast.NodeType
		switch p.peek().Type {
		case lexer.TokenStar:
			op = ast.Mul
		case lexer.TokenSlash:
			op = ast.Div
		case lexer.TokenPercent:
			op = ast.Mod
		default:
			return left, nil
		}
		p.advance()
		right, err := p.cast()
		if err != nil {
			return 0, err
		}
		left = p.tree.NewBranch(op, left, right)
	}
}

// exp "as" type
func (p *Parser) cast() (ast.NodeIndex, error) {
	left, err := p.application()
	if err != nil {
		return 0, err
	}
	for p.match(lexer.TokenAs) {
		typ, err := p.typeExpression()
		if err != nil {
			return 0, err
		}
		left = p.tree.NewBranch(ast.As, left, typ)
	}
	return left, nil
}

// An identifier head followed by argument atoms is an application. The
// callee stays a bare ID; arguments collect into a block list.
func (p *Parser) application() (ast.NodeIndex, error) {
	head, err := p.path()
	if err != nil {
		return 0, err
	}

	headNode := p.tree.At(head)
	if headNode.Type != ast.Path || p.tree.At(headNode.Children[0]).Type != ast.Id {
		return head, nil
	}
	if !p.startsAtom() {
		return head, nil
	}

	callee := headNode.Children[0]
	args := p.tree.NewList()
	for p.startsAtom() {
		arg, err := p.path()
		if err != nil {
			return 0, err
		}
		p.tree.ListAppend(args, arg)
	}
	return p.tree.NewBranch(ast.App, callee, args), nil
}

// startsAtom reports whether the current token can begin an argument atom.
func (p *Parser) startsAtom() bool {
	switch p.peek().Type {
	case lexer.TokenNumber, lexer.TokenChar, lexer.TokenString,
		lexer.TokenNil, lexer.TokenTrue, lexer.TokenFalse,
		lexer.TokenIdent, lexer.TokenLParen, lexer.TokenDo:
		return true
	}
	return false
}

// atom ("[" exp "]")*, wrapped in PATH when the result denotes a storage
// path (so value uses can be told apart from assignment targets).
func (p *Parser) path() (ast.NodeIndex, error) {
	base, err := p.atom()
	if err != nil {
		return 0, err
	}
	for p.match(lexer.TokenLBracket) {
		index, err := p.expression()
		if err != nil {
			return 0, err
		}
		if _, err := p.consume(lexer.TokenRBracket, "expected ']' after index"); err != nil {
			return 0, err
		}
		base = p.tree.NewBranch(ast.At, base, index)
	}
	if typ := p.tree.At(base).Type; typ == ast.Id || typ == ast.At {
		return p.tree.NewBranch(ast.Path, base), nil
	}
	return base, nil
}

func (p *Parser) atom() (ast.NodeIndex, error) {
	tok := p.advance()
	switch tok.Type {
	case lexer.TokenNumber:
		n, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return 0, p.errorAt(tok, "integer literal out of range")
		}
		return p.tree.NewNumber(tok.Loc, n), nil
	case lexer.TokenChar:
		return p.tree.NewChar(tok.Loc, tok.Lexeme[0]), nil
	case lexer.TokenString:
		return p.tree.NewString(ast.Str, tok.Loc, p.pool, tok.Lexeme), nil
	case lexer.TokenNil:
		return p.tree.NewNil(tok.Loc), nil
	case lexer.TokenTrue:
		return p.tree.NewTrue(tok.Loc), nil
	case lexer.TokenFalse:
		return p.tree.NewFalse(tok.Loc), nil
	case lexer.TokenIdent:
		return p.tree.NewString(ast.Id, tok.Loc, p.pool, tok.Lexeme), nil
	case lexer.TokenLParen:
		exp, err := p.expression()
		if err != nil {
			return 0, err
		}
		if _, err := p.consume(lexer.TokenRParen, "expected ')'"); err != nil {
			return 0, err
		}
		return exp, nil
	case lexer.TokenDo:
		return p.block()
	}
	return 0, p.errorAt(tok, "unexpected token '%s'", tok.Lexeme)
}

// "do" exp (";" exp)* ";"? "end"
func (p *Parser) block() (ast.NodeIndex, error) {
	list := p.tree.NewList()
	for {
		exp, err := p.expression()
		if err != nil {
			return 0, err
		}
		p.tree.ListAppend(list, exp)
		if !p.match(lexer.TokenSemicolon) {
			break
		}
		if p.check(lexer.TokenEnd) {
			break
		}
	}
	if _, err := p.consume(lexer.TokenEnd, "expected 'end' to close block"); err != nil {
		return 0, err
	}
	return list, nil
}

func (p *Parser) identifier() (ast.NodeIndex, error) {
	tok, err := p.consume(lexer.TokenIdent, "expected an identifier")
	if err != nil {
		return 0, err
	}
	return p.tree.NewString(ast.Id, tok.Loc, p.pool, tok.Lexeme), nil
}

func (p *Parser) consume(typ lexer.TokenType, message string) (lexer.Token, error) {
	if p.check(typ) {
		return p.advance(), nil
	}
	return lexer.Token{}, p.errorAt(p.peek(), "%s, found '%s'", message, p.peek().Lexeme)
}

func (p *Parser) match(typ lexer.TokenType) bool {
	if !p.check(typ) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) check(typ lexer.TokenType) bool {
	return p.peek().Type == typ
}

func (p *Parser) peek() lexer.Token {
	return p.tokens[p.current]
}

func (p *Parser) previous() lexer.Token {
	return p.tokens[p.current-1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.current]
	if tok.Type != lexer.TokenEOF {
		p.current++
	}
	return tok
}

func (p *Parser) errorAt(tok lexer.Token, format string, args ...interface{}) error {
	return errors.NewSyntaxError(fmt.Sprintf(format, args...), errors.SourceLocation{
		File:      p.file,
		Line:      tok.Loc.Begin.Line,
		Column:    tok.Loc.Begin.Column,
		EndLine:   tok.Loc.End.Line,
		EndColumn: tok.Loc.End.Column,
	}).WithSource(p.source)
}
