package lir

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcat(t *testing.T) {
	t.Run("instructions are the literal concatenation", func(t *testing.T) {
		a := NewChunk()
		a.Emit(OpMov, Reg(0, HoldsNumber), Imm(1))
		a.Emit(OpMov, Reg(1, HoldsNumber), Imm(2))

		b := NewChunk()
		b.Emit(OpAdd, Reg(2, HoldsNumber), Reg(0, HoldsNumber), Reg(1, HoldsNumber))

		res := a.Concat(b)
		require.Equal(t, 3, len(res.Instructions))
		assert.Equal(t, OpMov, res.Instructions[0].Op)
		assert.Equal(t, OpAdd, res.Instructions[2].Op)
	})

	t.Run("labels in the left side keep their indices", func(t *testing.T) {
		a := NewChunk()
		a.AddLabel(Lbl(0))
		a.Emit(OpMov, Reg(0, HoldsNumber), Imm(1))

		b := NewChunk()
		b.Emit(OpRet)

		res := a.Concat(b)
		assert.Equal(t, 0, res.LabelIndexes[0])
	})

	t.Run("labels in the right side shift by the left's length", func(t *testing.T) {
		a := NewChunk()
		a.Emit(OpMov, Reg(0, HoldsNumber), Imm(1))
		a.Emit(OpMov, Reg(1, HoldsNumber), Imm(2))

		b := NewChunk()
		b.AddLabel(Lbl(7))
		b.Emit(OpRet)

		res := a.Concat(b)
		assert.Equal(t, 2, res.LabelIndexes[7])
	})

	t.Run("end-of-chunk labels stay resolvable", func(t *testing.T) {
		a := NewChunk()
		a.Emit(OpMov, Reg(0, HoldsNumber), Imm(1))

		b := NewChunk()
		b.Emit(OpRet)
		b.AddLabel(Lbl(3))

		res := a.Concat(b)
		assert.Equal(t, 2, res.LabelIndexes[3])
	})

	t.Run("random chunks composed with concat preserve label resolution", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		nextLabel := LabelID(0)

		randomChunk := func() *Chunk {
			c := NewChunk()
			for i := 0; i < rng.Intn(8); i++ {
				if rng.Intn(3) == 0 {
					c.AddLabel(Lbl(nextLabel))
					nextLabel++
				}
				c.Emit(OpMov, Reg(rng.Intn(16), HoldsNumber), Imm(int64(rng.Intn(100))))
			}
			return c
		}

		for trial := 0; trial < 50; trial++ {
			a, b := randomChunk(), randomChunk()
			res := a.Concat(b)

			for id, idx := range a.LabelIndexes {
				assert.Equal(t, idx, res.LabelIndexes[id])
			}
			for id, idx := range b.LabelIndexes {
				assert.Equal(t, idx+len(a.Instructions), res.LabelIndexes[id])
			}
			require.Equal(t, len(a.Instructions)+len(b.Instructions), len(res.Instructions))
		}
	})

	t.Run("concatenation is associative on labels", func(t *testing.T) {
		a := NewChunk()
		a.AddLabel(Lbl(0))
		a.Emit(OpRet)
		b := NewChunk()
		b.AddLabel(Lbl(1))
		b.Emit(OpRet)
		c := NewChunk()
		c.AddLabel(Lbl(2))
		c.Emit(OpRet)

		left := a.Concat(b).Concat(c)
		right := a.Concat(b.Concat(c))
		assert.Equal(t, left.LabelIndexes, right.LabelIndexes)
	})
}

func TestPrint(t *testing.T) {
	t.Run("instructions indent four spaces with register and immediate operands", func(t *testing.T) {
		c := NewChunk()
		c.Emit(OpAdd, Reg(2, HoldsNumber), Reg(1, HoldsNumber), Imm(4))

		var sb strings.Builder
		c.Print(&sb)
		assert.Equal(t, "    add %2, %1, 4\n", sb.String())
	})

	t.Run("labels print at column zero", func(t *testing.T) {
		c := NewChunk()
		c.AddLabel(Lbl(3))
		c.Emit(OpJmp, Lbl(3))

		var sb strings.Builder
		c.Print(&sb)
		assert.Equal(t, "L003:\n    jump L003\n", sb.String())
	})

	t.Run("loads and stores use base plus offset syntax", func(t *testing.T) {
		c := NewChunk()
		c.Emit(OpLoad, Reg(4, HoldsNumber), Imm(0), Reg(3, HoldsAddress))
		c.Emit(OpStore, Imm(9), Imm(0), Reg(3, HoldsAddress))

		var sb strings.Builder
		c.Print(&sb)
		lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
		require.Equal(t, 2, len(lines))
		assert.Equal(t, "    load %4, 0(%3)", lines[0])
		assert.Equal(t, "    store 9, 0(%3)", lines[1])
	})

	t.Run("nothing operands print as zero", func(t *testing.T) {
		c := NewChunk()
		c.Emit(OpMov, Reg(0, HoldsNumber), Nothing())

		var sb strings.Builder
		c.Print(&sb)
		assert.Equal(t, "    mov %0, 0\n", sb.String())
	})

	t.Run("comments print inline", func(t *testing.T) {
		c := NewChunk()
		c.Emit(OpMov, Reg(0, HoldsNumber), Imm(2047)).WithComment("heap top")

		var sb strings.Builder
		c.Print(&sb)
		assert.Equal(t, "    mov %0, 2047  ; heap top\n", sb.String())
	})
}
