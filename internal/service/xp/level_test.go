package xp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		total  int64
		sqrt   int
		linear int
	}{
		{-50, 1, 1},
		{0, 1, 1},
		{99, 1, 1},
		{100, 2, 2},
		{399, 2, 4},
		{400, 3, 5},
		{899, 3, 9},
		{900, 4, 10},
		{10000, 11, 101},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.sqrt, Level(tt.total, FormulaSqrt), "sqrt level for %d", tt.total)
		assert.Equal(t, tt.linear, Level(tt.total, FormulaLinear), "linear level for %d", tt.total)
	}
}

func TestLevelThresholdMatchesLevel(t *testing.T) {
	for _, f := range []Formula{FormulaSqrt, FormulaLinear} {
		for level := 1; level < 30; level++ {
			threshold := LevelThreshold(level, f)
			assert.Equal(t, level, Level(threshold, f), "%s level %d", f, level)
			if threshold > 0 {
				assert.Equal(t, level-1, Level(threshold-1, f), "%s below level %d", f, level)
			}
		}
	}
}

func TestProgressFor(t *testing.T) {
	p := ProgressFor(250, FormulaSqrt)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(100), p.CurrentLevel)
	assert.Equal(t, int64(400), p.NextLevel)
	assert.Equal(t, 50.0, p.Percent)

	p = ProgressFor(-10, FormulaLinear)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0.0, p.Percent)
}

func TestParseFormula(t *testing.T) {
	f, err := ParseFormula("")
	require.NoError(t, err)
	assert.Equal(t, FormulaSqrt, f)

	f, err = ParseFormula("linear")
	require.NoError(t, err)
	assert.Equal(t, FormulaLinear, f)

	_, err = ParseFormula("log")
	assert.Error(t, err)
}
