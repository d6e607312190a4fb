package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldType(t *testing.T) {
	cases := map[string]FieldType{
		"VARCHAR":          TypeVarchar,
		"varchar":          TypeVarchar,
		"INTEGER":          TypeInteger,
		"DOUBLE":           TypeDouble,
		"double precision": TypeDouble,
		" DATE ":           TypeDate,
		"TIMESTAMP":        TypeTimestamp,
	}
	for in, want := range cases {
		got, err := ParseFieldType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFieldType("BLOB")
	assert.Error(t, err)
}

func TestFieldTypeNumeric(t *testing.T) {
	assert.True(t, TypeInteger.Numeric())
	assert.True(t, TypeDouble.Numeric())
	assert.False(t, TypeVarchar.Numeric())
	assert.False(t, TypeDate.Numeric())
	assert.False(t, TypeTimestamp.Numeric())
}

func TestCoerce(t *testing.T) {
	v, err := TypeInteger.Coerce(float64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = TypeInteger.Coerce(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = TypeInteger.Coerce("abc")
	assert.Error(t, err)

	v, err = TypeDouble.Coerce(int64(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = TypeVarchar.Coerce([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	v, err = TypeTimestamp.Coerce(ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:30:00Z", v)

	v, err = TypeDate.Coerce(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestValueMatches(t *testing.T) {
	assert.True(t, TypeVarchar.ValueMatches("x"))
	assert.False(t, TypeVarchar.ValueMatches(5))

	assert.True(t, TypeInteger.ValueMatches(5))
	assert.True(t, TypeInteger.ValueMatches(float64(5))) // JSON numbers decode as float64
	assert.False(t, TypeInteger.ValueMatches(5.5))
	assert.False(t, TypeInteger.ValueMatches("5"))

	assert.True(t, TypeDouble.ValueMatches(5.5))
	assert.True(t, TypeDouble.ValueMatches(5))
	assert.False(t, TypeDouble.ValueMatches("5.5"))

	assert.True(t, TypeDate.ValueMatches("2024-01-15"))
	assert.True(t, TypeDate.ValueMatches(nil))
}

func TestParseAggFunc(t *testing.T) {
	for _, name := range []string{"COUNT", "SUM", "AVG", "MIN", "MAX", "count"} {
		fn, err := ParseAggFunc(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, fn.String())
	}

	_, err := ParseAggFunc("MEDIAN")
	assert.Error(t, err)
}

func TestParseCardinality(t *testing.T) {
	c, err := ParseCardinality("ONE_TO_ONE")
	require.NoError(t, err)
	assert.Equal(t, OneToOne, c)

	c, err = ParseCardinality("many_to_one")
	require.NoError(t, err)
	assert.Equal(t, ManyToOne, c)

	_, err = ParseCardinality("MANY_TO_MANY")
	assert.Error(t, err)
}
