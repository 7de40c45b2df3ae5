package strpool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntern(t *testing.T) {
	t.Run("equal content interns to equal ids", func(t *testing.T) {
		pool := NewPool()
		a := pool.Intern("hello")
		b := pool.Intern("hello")
		assert.Equal(t, a, b)
		assert.Equal(t, 1, pool.Len())
	})

	t.Run("distinct content interns to distinct ids", func(t *testing.T) {
		pool := NewPool()
		a := pool.Intern("x")
		b := pool.Intern("y")
		assert.NotEqual(t, a, b)
	})

	t.Run("ids are dense and allocation ordered", func(t *testing.T) {
		pool := NewPool()
		for i := 0; i < 10; i++ {
			id := pool.Intern(fmt.Sprintf("name%d", i))
			assert.Equal(t, StrID(i), id)
		}
	})

	t.Run("interning past capacity is fatal", func(t *testing.T) {
		pool := NewPool()
		for i := 0; i < MaxStrings; i++ {
			pool.Intern(fmt.Sprintf("s%d", i))
		}
		assert.Panics(t, func() { pool.Intern("one too many") })
	})
}

func TestFind(t *testing.T) {
	t.Run("returns the interned text", func(t *testing.T) {
		pool := NewPool()
		id := pool.Intern("write_int")
		require.Equal(t, "write_int", pool.Find(id))
	})

	t.Run("unknown id is fatal", func(t *testing.T) {
		pool := NewPool()
		assert.Panics(t, func() { pool.Find(StrID(3)) })
	})
}
