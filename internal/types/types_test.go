package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	i64 := &Integer{BitCount: 64, Sign: Signed}
	u8 := &Integer{BitCount: 8, Sign: Unsigned}

	tests := []struct {
		typ      Type
		expected string
	}{
		{i64, "Int<64>"},
		{u8, "UInt<8>"},
		{&Bool{}, "Bool"},
		{&Nil{}, "Nil"},
		{&Void{}, "Void"},
		{&Array{Item: u8}, "Array<UInt<8>>"},
		{&Ref{Inner: i64}, "&Int<64>"},
		{&Function{Inputs: []Type{i64, u8}, Output: &Nil{}}, "(Int<64>, UInt<8>) -> Nil"},
		{&TypeVar{Name: 3}, "t3"},
		{&TypeVar{Name: 3, Bound: &Bool{}}, "(t3 := Bool)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Format(tt.typ))
	}
}

func TestResolveAndDeref(t *testing.T) {
	i64 := &Integer{BitCount: 64, Sign: Signed}

	t.Run("resolve follows chains of bindings", func(t *testing.T) {
		a := &TypeVar{Name: 0}
		b := &TypeVar{Name: 1}
		a.BindTo(b)
		b.BindTo(i64)
		assert.Equal(t, Type(i64), Resolve(a))
	})

	t.Run("resolve stops at unbound variables", func(t *testing.T) {
		a := &TypeVar{Name: 0}
		assert.Equal(t, Type(a), Resolve(a))
	})

	t.Run("deref peels a single ref", func(t *testing.T) {
		assert.Equal(t, Type(i64), Deref(&Ref{Inner: i64}))
		assert.Equal(t, Type(i64), Deref(i64))
	})
}
