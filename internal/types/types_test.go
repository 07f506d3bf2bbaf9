package types

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weftml/weft/internal/tensor"
)

func TestRendering(t *testing.T) {
	int32T := Tensor(tensor.Int32)

	assert.Equal(t, "int32", int32T.String())
	assert.Equal(t, "int32[3]", Tensor(tensor.Int32, 3).String())
	assert.Equal(t, "<a=int32,b=int32>",
		Struct(Elem("a", int32T), Elem("b", int32T)).String())
	assert.Equal(t, "<int32,<a=int32>>",
		Struct(Elem("", int32T), Elem("", Struct(Elem("a", int32T)))).String())
	assert.Equal(t, "int32*", Sequence(int32T).String())
	assert.Equal(t, "( -> int32)", Function(nil, int32T).String())
	assert.Equal(t, "(<a=int32,b=int32> -> int32)",
		Function(Struct(Elem("a", int32T), Elem("b", int32T)), int32T).String())
	assert.Equal(t, "(int32* -> int32)",
		Function(Sequence(int32T), int32T).String())
}

func TestEquality(t *testing.T) {
	int32T := Tensor(tensor.Int32)
	int64T := Tensor(tensor.Int64)

	assert.True(t, int32T.Equal(Tensor(tensor.Int32)))
	assert.False(t, int32T.Equal(int64T))
	assert.False(t, int32T.Equal(Tensor(tensor.Int32, 2)))

	named := Struct(Elem("a", int32T), Elem("b", int32T))
	assert.True(t, named.Equal(Struct(Elem("a", int32T), Elem("b", int32T))))
	assert.False(t, named.Equal(Struct(Elem("a", int32T), Elem("c", int32T))),
		"names are part of struct identity")
	assert.False(t, named.Equal(Struct(Elem("", int32T), Elem("", int32T))))

	assert.True(t, Sequence(int32T).Equal(Sequence(int32T)))
	assert.False(t, Sequence(int32T).Equal(int32T))

	assert.True(t, Function(nil, int32T).Equal(Function(nil, int32T)))
	assert.False(t, Function(nil, int32T).Equal(Function(int32T, int32T)))
	assert.False(t, Function(int32T, int32T).Equal(Function(int64T, int32T)))
}
