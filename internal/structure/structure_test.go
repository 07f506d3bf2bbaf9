package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderingAndNames(t *testing.T) {
	s := New(
		Element{Name: "a", Value: 1},
		Element{Value: 2},
		Element{Name: "c", Value: 3},
	)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.At(1))
	assert.Equal(t, "a", s.Name(0))
	assert.Equal(t, "", s.Name(1))
	assert.Equal(t, []string{"a", "", "c"}, s.Names())

	v, ok := s.ByName("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = s.ByName("missing")
	assert.False(t, ok)
}

func TestFromValues(t *testing.T) {
	s := FromValues(10, 20)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "", s.Name(0))
	assert.Equal(t, 20, s.At(1))
}

func TestString(t *testing.T) {
	s := New(Element{Name: "a", Value: 1}, Element{Value: 2})
	assert.Equal(t, "<a=1,2>", s.String())
}
