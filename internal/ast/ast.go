// internal/ast/ast.go
package ast

import (
	"fmt"

	"tova/internal/strpool"
)

type NodeType int

const (
	Empty NodeType = iota // node for saying there is no node
	App                   // function application
	Num
	Blk // block
	If
	When
	For
	While
	Break
	Continue
	Ass
	Or
	And
	Gtn // greater than
	Ltn // lesser than
	Gte // greater or eq to
	Lte // lesser or eq to
	Eq
	At
	Add
	Sub
	Mul
	Div
	Mod
	Not
	Id
	Str
	VarDecl
	FunDecl
	Nil
	True
	False
	Let
	Char
	Path
	IntType
	UintType
	BoolType
	NilType
	As
)

func (t NodeType) String() string {
	switch t {
	case Empty:
		return "EMPTY"
	case App:
		return "APP"
	case Num:
		return "NUM"
	case Blk:
		return "BLK"
	case If:
		return "IF"
	case When:
		return "WHEN"
	case For:
		return "FOR"
	case While:
		return "WHILE"
	case Break:
		return "BREAK"
	case Continue:
		return "CONTINUE"
	case Ass:
		return "ASS"
	case Or:
		return "OR"
	case And:
		return "AND"
	case Gtn:
		return "GTN"
	case Ltn:
		return "LTN"
	case Gte:
		return "GTE"
	case Lte:
		return "LTE"
	case Eq:
		return "EQ"
	case At:
		return "AT"
	case Add:
		return "ADD"
	case Sub:
		return "SUB"
	case Mul:
		return "MUL"
	case Div:
		return "DIV"
	case Mod:
		return "MOD"
	case Not:
		return "NOT"
	case Id:
		return "ID"
	case Str:
		return "STR"
	case VarDecl:
		return "VAR_DECL"
	case FunDecl:
		return "FUN_DECL"
	case Nil:
		return "NIL"
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	case Let:
		return "LET"
	case Char:
		return "CHAR"
	case Path:
		return "PATH"
	case IntType:
		return "INT_TYPE"
	case UintType:
		return "UINT_TYPE"
	case BoolType:
		return "BOOL_TYPE"
	case NilType:
		return "NIL_TYPE"
	case As:
		return "AS"
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// Position is a point in the source text.
type Position struct {
	ByteOffset int
	Line       int
	Column     int
}

// Location is a begin/end span in the source text.
type Location struct {
	Begin Position
	End   Position
}

// NodeIndex is a handle into the arena. Handles are allocation-ordered: a
// child's index is always less than its parent's.
type NodeIndex int

const InvalidNodeIndex NodeIndex = -1

// MaxNodes bounds the arena for one parse.
const MaxNodes = 2048

// Node is one arena slot. At most one of Num, Character, StrID or Children
// is meaningful, selected by Type; keyword leaves such as Nil, True and
// False carry none of them.
type Node struct {
	Type      NodeType
	Loc       Location
	Parent    NodeIndex
	Num       int64
	Character byte
	StrID     strpool.StrID
	Children  []NodeIndex
}

// AST owns the node arena. The root index is invalid until the parser sets
// it; nodes live until the whole arena is dropped.
type AST struct {
	RootIndex NodeIndex
	nodes     []Node
}

func New() *AST {
	return &AST{
		RootIndex: InvalidNodeIndex,
		// full capacity up front keeps node pointers stable
		nodes: make([]Node, 0, MaxNodes),
	}
}

// At returns the node for an index. The pointer stays valid for the arena's
// lifetime.
func (a *AST) At(idx NodeIndex) *Node {
	if idx < 0 || int(idx) >= len(a.nodes) {
		panic(fmt.Sprintf("ast: node index %d out of range", idx))
	}
	return &a.nodes[idx]
}

// Len reports how many nodes have been allocated.
func (a *AST) Len() int {
	return len(a.nodes)
}

// IsEmpty reports whether parsing produced no root.
func (a *AST) IsEmpty() bool {
	return a.RootIndex == InvalidNodeIndex
}

func (a *AST) SetRoot(idx NodeIndex) {
	a.RootIndex = idx
}

func (a *AST) allocNode() NodeIndex {
	if len(a.nodes) >= MaxNodes {
		panic(fmt.Sprintf("ast: arena is full (%d nodes)", MaxNodes))
	}
	a.nodes = append(a.nodes, Node{Parent: InvalidNodeIndex})
	return NodeIndex(len(a.nodes) - 1)
}

// NewBranch allocates a branch node. The location spans from the first
// child's begin to the last child's end, and each child's parent
// back-reference is set on attachment.
func (a *AST) NewBranch(typ NodeType, children ...NodeIndex) NodeIndex {
	if len(children) == 0 {
		panic("ast: branch node needs at least one child")
	}
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = typ
	node.Children = append([]NodeIndex(nil), children...)

	for _, child := range children {
		a.At(child).Parent = idx
	}

	first := a.At(children[0])
	last := a.At(children[len(children)-1])
	node.Loc = Location{Begin: first.Loc.Begin, End: last.Loc.End}
	return idx
}

// NewList allocates an empty BLK list node, to be filled with ListAppend or
// ListPrepend.
func (a *AST) NewList() NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = Blk
	node.Children = make([]NodeIndex, 0, 4)
	return idx
}

// ListAppend attaches next at the end of the list and extends the list's
// span to next's end.
func (a *AST) ListAppend(list, next NodeIndex) NodeIndex {
	node := a.At(list)
	nextNode := a.At(next)

	if len(node.Children) == 0 {
		node.Loc = nextNode.Loc
	}
	node.Loc.End = nextNode.Loc.End
	node.Children = append(node.Children, next)
	nextNode.Parent = list
	return list
}

// ListPrepend attaches next at the front of the list and extends the list's
// span back to next's begin.
func (a *AST) ListPrepend(list, next NodeIndex) NodeIndex {
	node := a.At(list)
	nextNode := a.At(next)

	if len(node.Children) == 0 {
		node.Loc = nextNode.Loc
	}
	node.Loc.Begin = nextNode.Loc.Begin
	node.Children = append([]NodeIndex{next}, node.Children...)
	nextNode.Parent = list
	return list
}

func (a *AST) NewNumber(loc Location, num int64) NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = Num
	node.Loc = loc
	node.Num = num
	return idx
}

func (a *AST) NewChar(loc Location, character byte) NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = Char
	node.Loc = loc
	node.Character = character
	return idx
}

// NewString allocates an Id or Str leaf, interning the text.
func (a *AST) NewString(typ NodeType, loc Location, pool *strpool.Pool, text string) NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = typ
	node.Loc = loc
	node.StrID = pool.Intern(text)
	return idx
}

func (a *AST) NewNil(loc Location) NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = Nil
	node.Loc = loc
	return idx
}

func (a *AST) NewTrue(loc Location) NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = True
	node.Loc = loc
	return idx
}

func (a *AST) NewFalse(loc Location) NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = False
	node.Loc = loc
	return idx
}

func (a *AST) NewEmpty() NodeIndex {
	idx := a.allocNode()
	a.At(idx).Type = Empty
	return idx
}

// NewLeaf allocates a childless keyword node (bool/nil type heads and the
// like).
func (a *AST) NewLeaf(typ NodeType, loc Location) NodeIndex {
	idx := a.allocNode()
	node := a.At(idx)
	node.Type = typ
	node.Loc = loc
	return idx
}
