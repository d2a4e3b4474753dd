package descriptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	t.Run("two ints returning int", func(t *testing.T) {
		m, err := ParseMethod("(II)I")
		require.NoError(t, err)
		assert.Equal(t, []Descriptor{Int, Int}, m.Params)
		assert.Equal(t, Int, m.Return)
		assert.False(t, m.IsVoid())
	})

	t.Run("main signature", func(t *testing.T) {
		m, err := ParseMethod("([Ljava/lang/String;I)V")
		require.NoError(t, err)
		require.Len(t, m.Params, 2)
		assert.Equal(t, &Array{Elem: &Class{Name: "java/lang/String"}}, m.Params[0])
		assert.Equal(t, Int, m.Params[1])
		assert.Equal(t, Void, m.Return)
		assert.True(t, m.IsVoid())
	})

	t.Run("no params", func(t *testing.T) {
		m, err := ParseMethod("()V")
		require.NoError(t, err)
		assert.Empty(t, m.Params)
		assert.Equal(t, 0, m.ArgSlots())
	})

	t.Run("wide params count two slots", func(t *testing.T) {
		m, err := ParseMethod("(JID)J")
		require.NoError(t, err)
		assert.Len(t, m.Params, 3)
		assert.Equal(t, 5, m.ArgSlots())
	})

	t.Run("nested arrays", func(t *testing.T) {
		m, err := ParseMethod("([[I[Ljava/lang/Object;)[[D")
		require.NoError(t, err)
		assert.Equal(t, "[[I", m.Params[0].Encode())
		assert.Equal(t, "[Ljava/lang/Object;", m.Params[1].Encode())
		assert.Equal(t, "double[][]", m.Return.String())
	})
}

func TestParseField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"I", "int"},
		{"Z", "boolean"},
		{"J", "long"},
		{"[B", "byte[]"},
		{"Ljava/lang/String;", "java.lang.String"},
		{"[[Ljava/util/HashMap;", "java.util.HashMap[][]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseField(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
			assert.Equal(t, tt.in, d.Encode())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"unknown leading char", "X"},
		{"unterminated class name", "Ljava/lang/String"},
		{"unterminated params", "(II"},
		{"missing return", "(I)"},
		{"void param", "(V)V"},
		{"void array", "[V"},
		{"trailing input", "II"},
		{"empty class name", "L;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}

	_, err := ParseMethod("I")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ParseField("()V")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = ParseField("V")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSlotWidth(t *testing.T) {
	assert.Equal(t, 2, SlotWidth(Long))
	assert.Equal(t, 2, SlotWidth(Double))
	assert.Equal(t, 1, SlotWidth(Int))
	assert.Equal(t, 1, SlotWidth(&Class{Name: "java/lang/Long"}))
}

func TestMethodString(t *testing.T) {
	m, err := ParseMethod("(I[Ljava/lang/String;)Z")
	require.NoError(t, err)
	assert.Equal(t, "boolean (int, java.lang.String[])", m.String())
	assert.Equal(t, "(I[Ljava/lang/String;)Z", m.Encode())
}
