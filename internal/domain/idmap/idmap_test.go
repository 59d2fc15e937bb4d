package idmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AssignsInInputOrder(t *testing.T) {
	m := New([]string{"uuid-a", "uuid-b", "uuid-c"})

	require.Equal(t, 3, m.MaxID())

	for i, id := range []string{"uuid-a", "uuid-b", "uuid-c"} {
		n, ok := m.ToInt(id)
		require.True(t, ok, "ToInt(%q)", id)
		assert.Equal(t, i+1, n)
	}
}

func TestMapper_Bijective(t *testing.T) {
	for _, size := range []int{0, 1, 2, 17, 250} {
		t.Run(fmt.Sprintf("n=%d", size), func(t *testing.T) {
			ids := make([]string, size)
			for i := range ids {
				ids[i] = fmt.Sprintf("doc-%04d", i)
			}
			m := New(ids)

			for n := 1; n <= size; n++ {
				id, ok := m.FromInt(n)
				require.True(t, ok)
				back, ok := m.ToInt(id)
				require.True(t, ok)
				assert.Equal(t, n, back)
			}
			for _, id := range ids {
				n, ok := m.ToInt(id)
				require.True(t, ok)
				back, ok := m.FromInt(n)
				require.True(t, ok)
				assert.Equal(t, id, back)
			}

			_, ok := m.FromInt(0)
			assert.False(t, ok, "0 must be absent")
			_, ok = m.FromInt(size + 1)
			assert.False(t, ok, "maxID+1 must be absent")
			_, ok = m.FromInt(-1)
			assert.False(t, ok, "negative must be absent")
			_, ok = m.ToInt("not-in-input")
			assert.False(t, ok)
		})
	}
}

func TestMapper_Deterministic(t *testing.T) {
	ids := []string{"x", "y", "z", "w"}
	a, b := New(ids), New(ids)

	assert.Equal(t, a.IDs(), b.IDs())
	for _, id := range ids {
		na, _ := a.ToInt(id)
		nb, _ := b.ToInt(id)
		assert.Equal(t, na, nb)
	}
}

func TestMapper_OrderDependent(t *testing.T) {
	a := New([]string{"x", "y"})
	b := New([]string{"y", "x"})

	na, _ := a.ToInt("x")
	nb, _ := b.ToInt("x")
	assert.NotEqual(t, na, nb)
}

func TestNew_DuplicatesKeepFirstPosition(t *testing.T) {
	m := New([]string{"a", "b", "a", "c"})

	assert.Equal(t, 3, m.MaxID())
	n, _ := m.ToInt("a")
	assert.Equal(t, 1, n)
	n, _ = m.ToInt("c")
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, m.IDs())
}

func TestMapper_NilIsEmpty(t *testing.T) {
	var m *Mapper[string]

	assert.Equal(t, 0, m.MaxID())
	assert.Nil(t, m.IDs())
	_, ok := m.FromInt(1)
	assert.False(t, ok)
	_, ok = m.ToInt("a")
	assert.False(t, ok)
}

func TestMapper_IDsReturnsCopy(t *testing.T) {
	m := New([]string{"a", "b"})
	ids := m.IDs()
	ids[0] = "mutated"

	id, _ := m.FromInt(1)
	assert.Equal(t, "a", id)
}
