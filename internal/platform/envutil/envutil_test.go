package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("MEDGRAPH_TEST_INT", "abc")
	assert.Equal(t, 7, Int("MEDGRAPH_TEST_INT", 7))
	t.Setenv("MEDGRAPH_TEST_INT", " 12 ")
	assert.Equal(t, 12, Int("MEDGRAPH_TEST_INT", 7))
}

func TestBool(t *testing.T) {
	t.Setenv("MEDGRAPH_TEST_BOOL", "on")
	assert.True(t, Bool("MEDGRAPH_TEST_BOOL", false))
	t.Setenv("MEDGRAPH_TEST_BOOL", "off")
	assert.False(t, Bool("MEDGRAPH_TEST_BOOL", true))
	t.Setenv("MEDGRAPH_TEST_BOOL", "maybe")
	assert.True(t, Bool("MEDGRAPH_TEST_BOOL", true))
}

func TestFloatAndString(t *testing.T) {
	t.Setenv("MEDGRAPH_TEST_FLOAT", "0.25")
	assert.Equal(t, 0.25, Float("MEDGRAPH_TEST_FLOAT", 1))
	assert.Equal(t, "x", String("MEDGRAPH_TEST_UNSET", "x"))
}

func TestPairs(t *testing.T) {
	t.Setenv("MEDGRAPH_TEST_PAIRS", "a=1, b = 2,broken,=3")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, Pairs("MEDGRAPH_TEST_PAIRS"))
	assert.Nil(t, Pairs("MEDGRAPH_TEST_UNSET"))
}
