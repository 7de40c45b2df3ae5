// internal/types/types.go
package types

import (
	"fmt"
	"strings"
)

// Type is the closed union of the checker's type forms. Every operation on
// types is a total switch over the concrete variants.
type Type interface {
	isType()
}

type Sign int

const (
	Signed Sign = iota
	Unsigned
)

// Integer is a fixed-width machine integer. The language uses Int<64> and
// UInt<8>.
type Integer struct {
	BitCount int
	Sign     Sign
}

type Nil struct{}

type Bool struct{}

// Void is the type of the EMPTY placeholder node.
type Void struct{}

type Array struct {
	Item Type
}

type Function struct {
	Inputs []Type
	Output Type
}

// Ref is the type of an l-value denoting a cell of Inner. It is a real
// member of the type system: unification sees through it on either side.
type Ref struct {
	Inner Type
}

// TypeVar is a unification metavariable. Binding is destructive and
// transitive: once Bound is set, the variable reads as its binding.
type TypeVar struct {
	Name  int
	Bound Type
}

func (*Integer) isType()  {}
func (*Nil) isType()      {}
func (*Bool) isType()     {}
func (*Void) isType()     {}
func (*Array) isType()    {}
func (*Function) isType() {}
func (*Ref) isType()      {}
func (*TypeVar) isType()  {}

func (v *TypeVar) BindTo(t Type) {
	v.Bound = t
}

// Deref peels one Ref layer, if present.
func Deref(t Type) Type {
	if ref, ok := t.(*Ref); ok {
		return ref.Inner
	}
	return t
}

// Resolve follows typevar bindings until it reaches an unbound variable or a
// concrete type.
func Resolve(t Type) Type {
	for {
		v, ok := t.(*TypeVar)
		if !ok || v.Bound == nil {
			return t
		}
		t = v.Bound
	}
}

// Format renders the diagnostic form: Int<64>, UInt<8>, Array<t>, &t,
// (a, b) -> c, t3 or (t3 := Bool).
func Format(t Type) string {
	switch typ := t.(type) {
	case *Integer:
		if typ.Sign == Signed {
			return fmt.Sprintf("Int<%d>", typ.BitCount)
		}
		return fmt.Sprintf("UInt<%d>", typ.BitCount)
	case *Nil:
		return "Nil"
	case *Bool:
		return "Bool"
	case *Void:
		return "Void"
	case *Function:
		var sb strings.Builder
		sb.WriteString("(")
		for i, in := range typ.Inputs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(Format(in))
		}
		sb.WriteString(") -> ")
		sb.WriteString(Format(typ.Output))
		return sb.String()
	case *Array:
		return "Array<" + Format(typ.Item) + ">"
	case *Ref:
		return "&" + Format(typ.Inner)
	case *TypeVar:
		if typ.Bound != nil {
			return fmt.Sprintf("(t%d := %s)", typ.Name, Format(typ.Bound))
		}
		return fmt.Sprintf("t%d", typ.Name)
	}
	return "?"
}
