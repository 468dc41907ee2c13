package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsFloatRejectsNonFinite(t *testing.T) {
	for _, v := range []any{"NaN", "nan", "Inf", "+Inf", "-Infinity", math.NaN(), math.Inf(1), float32(math.Inf(-1))} {
		_, ok := AsFloat(v)
		assert.False(t, ok, "%v", v)
	}
	for in, want := range map[any]float64{"47.5": 47.5, " 3 ": 3, 12: 12, int64(-4): -4, 2.25: 2.25} {
		got, ok := AsFloat(in)
		assert.True(t, ok, "%v", in)
		assert.Equal(t, want, got)
	}

	b := StatBlock{"passing": {"yards": "NaN"}}
	_, ok := b.Lookup("passing.yards")
	assert.False(t, ok)
}
