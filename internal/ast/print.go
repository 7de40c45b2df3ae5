// internal/ast/print.go
package ast

import (
	"fmt"
	"io"
	"strings"

	"tova/internal/strpool"
)

// nodeRepr returns the fixed s-expression head for branch and literal nodes
// whose printout does not depend on program values.
func nodeRepr(typ NodeType) string {
	switch typ {
	case App:
		return "app"
	case Blk:
		return "block"
	case If:
		return "if"
	case When:
		return "when"
	case For:
		return "for"
	case While:
		return "while"
	case Break:
		return "break"
	case Continue:
		return "continue"
	case Ass:
		return "="
	case Or:
		return "or"
	case And:
		return "and"
	case Gtn:
		return ">"
	case Ltn:
		return "<"
	case Gte:
		return ">="
	case Lte:
		return "<="
	case Eq:
		return "=="
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	case Not:
		return "not"
	case VarDecl:
		return "var_decl"
	case FunDecl:
		return "fun_decl"
	case Let:
		return "let"
	case At:
		return "at"
	case As:
		return "as"
	case Nil:
		return "nil"
	case True:
		return "true"
	case False:
		return "false"
	case IntType:
		return "int"
	case UintType:
		return "uint"
	case BoolType:
		return "bool"
	case NilType:
		return "nil"
	}
	panic("ast: no fixed representation for " + typ.String())
}

func escapeString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			sb.WriteString("\\n")
		case '\t':
			sb.WriteString("\\t")
		case '\r':
			sb.WriteString("\\r")
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func (a *AST) printNode(w io.Writer, pool *strpool.Pool, idx NodeIndex, space int) {
	node := a.At(idx)
	switch node.Type {
	case Num:
		fmt.Fprintf(w, "%d", node.Num)
		return
	case Id:
		fmt.Fprintf(w, "%s", pool.Find(node.StrID))
		return
	case Str:
		fmt.Fprintf(w, "\"%s\"", escapeString(pool.Find(node.StrID)))
		return
	case Char:
		fmt.Fprintf(w, "'%c'", node.Character)
		return
	case Path:
		a.printNode(w, pool, node.Children[0], space)
		return
	case Nil, True, False:
		fmt.Fprint(w, nodeRepr(node.Type))
		return
	case Empty:
		return
	}

	fmt.Fprintf(w, "(%s", nodeRepr(node.Type))
	space += 2
	for _, child := range node.Children {
		fmt.Fprintf(w, "\n%s", strings.Repeat(" ", space))
		a.printNode(w, pool, child, space)
	}
	fmt.Fprint(w, ")")
}

// Print writes the tree rooted at the AST root as an indented s-expression.
func (a *AST) Print(w io.Writer, pool *strpool.Pool) {
	if a.IsEmpty() {
		return
	}
	a.printNode(w, pool, a.RootIndex, 0)
}

func (a *AST) printNodeDetailed(w io.Writer, pool *strpool.Pool, idx NodeIndex, space int) {
	node := a.At(idx)
	pad := strings.Repeat(" ", space)

	fmt.Fprintf(w, "%s{\n", pad)
	fmt.Fprintf(w, "%s  type = %s\n", pad, node.Type)
	fmt.Fprintf(w, "%s  index = %d\n", pad, idx)
	fmt.Fprintf(w, "%s  loc = %d:%d..%d:%d\n", pad,
		node.Loc.Begin.Line+1, node.Loc.Begin.Column+1,
		node.Loc.End.Line+1, node.Loc.End.Column+1)

	switch node.Type {
	case Num:
		fmt.Fprintf(w, "%s  num = %d\n", pad, node.Num)
	case Id:
		fmt.Fprintf(w, "%s  id = %s\n", pad, pool.Find(node.StrID))
	case Str:
		fmt.Fprintf(w, "%s  str = \"%s\"\n", pad, escapeString(pool.Find(node.StrID)))
	case Char:
		fmt.Fprintf(w, "%s  char = '%c'\n", pad, node.Character)
	case Empty:
	default:
		fmt.Fprintf(w, "%s  children = %d [\n", pad, len(node.Children))
		for _, child := range node.Children {
			a.printNodeDetailed(w, pool, child, space+4)
		}
		fmt.Fprintf(w, "%s  ]\n", pad)
	}

	fmt.Fprintf(w, "%s}\n", pad)
}

// PrintDetailed dumps every node with its index, location and children.
func (a *AST) PrintDetailed(w io.Writer, pool *strpool.Pool) {
	if a.IsEmpty() {
		return
	}
	a.printNodeDetailed(w, pool, a.RootIndex, 0)
}
