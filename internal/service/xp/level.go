package xp

import (
	"fmt"
	"math"
)

// Formula selects how total XP maps to a level.
type Formula string

// Level formulas.
const (
	// FormulaSqrt is floor(sqrt(total/100)) + 1.
	FormulaSqrt Formula = "sqrt"
	// FormulaLinear is floor(total/100) + 1.
	FormulaLinear Formula = "linear"
)

const xpPerLevelUnit = 100

// ParseFormula validates a configured formula name.
func ParseFormula(s string) (Formula, error) {
	switch Formula(s) {
	case FormulaSqrt, FormulaLinear:
		return Formula(s), nil
	case "":
		return FormulaSqrt, nil
	}
	return "", fmt.Errorf("unknown level formula %q", s)
}

// Level returns the level for a total. Totals below zero are level 1.
func Level(total int64, f Formula) int {
	if total <= 0 {
		return 1
	}

	if f == FormulaLinear {
		return int(total/xpPerLevelUnit) + 1
	}

	level := int(math.Sqrt(float64(total)/xpPerLevelUnit)) + 1
	// Guard against float rounding at exact squares.
	for LevelThreshold(level+1, f) <= total {
		level++
	}
	for level > 1 && LevelThreshold(level, f) > total {
		level--
	}
	return level
}

// LevelThreshold returns the minimum total XP needed to reach level.
func LevelThreshold(level int, f Formula) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	if f == FormulaLinear {
		return n * xpPerLevelUnit
	}
	return n * n * xpPerLevelUnit
}

// Progress describes where a total sits inside its level.
type Progress struct {
	Level        int     `json:"level"`
	CurrentLevel int64   `json:"current_level_xp"`
	NextLevel    int64   `json:"next_level_xp"`
	Percent      float64 `json:"percent"`
}

// ProgressFor computes level progress for a total.
func ProgressFor(total int64, f Formula) Progress {
	level := Level(total, f)
	current := LevelThreshold(level, f)
	next := LevelThreshold(level+1, f)

	into := total - current
	if into < 0 {
		into = 0
	}

	return Progress{
		Level:        level,
		CurrentLevel: current,
		NextLevel:    next,
		Percent:      math.Round(float64(into)/float64(next-current)*10000) / 100,
	}
}
