package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`["order", 42, "desk1", 1.5, true]`))
	require.NoError(t, err)
	require.Equal(t, 5, m.Len())

	verb, err := m.GetString(0)
	require.NoError(t, err)
	assert.Equal(t, "order", verb)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte(`["order", `))
	assert.Error(t, err)
}

func TestParseRejectsNonArray(t *testing.T) {
	_, err := Parse([]byte(`{"a":1}`))
	assert.ErrorIs(t, err, ErrNotArray)
}

func TestGetIntKinds(t *testing.T) {
	m, err := Parse([]byte(`["x", 7, 7.0, 7e2, "7"]`))
	require.NoError(t, err)

	v, err := m.GetInt(1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = m.GetInt(2)
	assert.Error(t, err, "float literal is not an int")
	_, err = m.GetInt(3)
	assert.Error(t, err, "exponent literal is not an int")
	_, err = m.GetInt(4)
	assert.Error(t, err, "string is not an int")
	_, err = m.GetInt(9)
	assert.Error(t, err, "missing index")
}

func TestGetFloatKinds(t *testing.T) {
	m, err := Parse([]byte(`["x", 1.25, 3, 2E1]`))
	require.NoError(t, err)

	v, err := m.GetFloat(1)
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	_, err = m.GetFloat(2)
	assert.Error(t, err, "integer literal is not a float")

	v, err = m.GetFloat(3)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)
}

func TestGetNumAcceptsBothKinds(t *testing.T) {
	m, err := Parse([]byte(`["x", 3, 1.5, false]`))
	require.NoError(t, err)

	v, err := m.GetNum(1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = m.GetNum(2)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	_, err = m.GetNum(3)
	assert.Error(t, err)
}

func TestGetBoolAndString(t *testing.T) {
	m, err := Parse([]byte(`["x", true, "name", 1]`))
	require.NoError(t, err)

	b, err := m.GetBool(1)
	require.NoError(t, err)
	assert.True(t, b)

	s, err := m.GetString(2)
	require.NoError(t, err)
	assert.Equal(t, "name", s)

	_, err = m.GetBool(3)
	assert.Error(t, err)
	_, err = m.GetString(1)
	assert.Error(t, err)
}

func TestKindHelpers(t *testing.T) {
	m, err := Parse([]byte(`[1, 1.0, "s", true]`))
	require.NoError(t, err)

	assert.True(t, IsIntNumber(m[0]))
	assert.False(t, IsIntNumber(m[1]))
	assert.False(t, IsIntNumber(m[2]))
	assert.True(t, IsString(m[2]))
	assert.False(t, IsString(m[0]))
}

func TestRender(t *testing.T) {
	m, err := Parse([]byte(`[1.50, "a", null, [1,2]]`))
	require.NoError(t, err)

	assert.Equal(t, "1.50", Render(m[0]), "number keeps wire literal")
	assert.Equal(t, `"a"`, Render(m[1]))
	assert.Equal(t, "null", Render(m[2]))
	assert.Equal(t, "[1,2]", Render(m[3]))
}

func TestFrame(t *testing.T) {
	b, err := Frame("market", "data", "feed", true)
	require.NoError(t, err)
	assert.JSONEq(t, `["market","data","feed",true]`, string(b))
}

func TestErrorFrame(t *testing.T) {
	b := ErrorFrame("msg", "action", "you must login first")
	assert.JSONEq(t, `["error","msg","action","you must login first"]`, string(b))
}
