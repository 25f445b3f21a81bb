package points

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Variant pseudo-keys for the two grades that carry a sub-variant row
const (
	gradeChallengeBase = "G2"
	gradeChallengeKey  = "G2*"
	gradeFinalBase     = "G10"
	gradeFinalKey      = "G10**"
)

// definedPlacements are the placement positions with an explicit table cell,
// sorted ascending. Lookups for any other placement resolve to the nearest
// lower defined placement; past the last entry the value is zero.
var definedPlacements = []int{1, 2, 3, 4, 5, 9, 17, 33, 65}

// placementMultipliers map each defined placement to its share of the grade's
// winner value. A grade-N winner earns N*10 points; each cell is the base
// multiplied by the placement factor, rounded to 2 decimal places.
var placementMultipliers = []string{
	"1",
	"0.6",
	"0.36",
	"0.252",
	"0.216",
	"0.1512",
	"0.10584",
	"0.074088",
	"0.0518616",
}

// gradeBases assigns each grade row its winner value. The challenge variant of
// G2 shares the base G2 value; the Grand Prix final variant of G10 sits between
// G10 and G12.
var gradeBases = map[string]string{
	"G1":  "10",
	"G2":  "20",
	"G3":  "30",
	"G4":  "40",
	"G5":  "50",
	"G6":  "60",
	"G7":  "70",
	"G8":  "80",
	"G9":  "90",
	"G10": "100",
	"G11": "110",
	"G12": "120",
	"G13": "130",
	"G14": "140",

	gradeChallengeKey: "20",
	gradeFinalKey:     "110",
}

// WarnFunc receives the normalized grade key of a failed lookup. Injected so
// the table stays testable as pure logic with an observable side effect.
type WarnFunc func(gradeLevel string)

// Table is the static placement-to-points lookup per grade level.
type Table struct {
	rows map[string][]decimal.Decimal
	warn WarnFunc
}

// NewTable builds the points table, reporting unknown-grade lookups through
// the given logger.
func NewTable(logger *logrus.Logger) *Table {
	return NewTableWithWarnHook(func(gradeLevel string) {
		logger.WithField("grade_level", gradeLevel).Warn("Unknown grade level in points lookup, returning 0")
	})
}

// NewTableWithWarnHook builds the points table with a custom diagnostic hook.
func NewTableWithWarnHook(warn WarnFunc) *Table {
	rows := make(map[string][]decimal.Decimal, len(gradeBases))
	for key, base := range gradeBases {
		b := decimal.RequireFromString(base)
		row := make([]decimal.Decimal, len(placementMultipliers))
		for i, m := range placementMultipliers {
			row[i] = b.Mul(decimal.RequireFromString(m)).Round(2)
		}
		rows[key] = row
	}
	return &Table{rows: rows, warn: warn}
}

// NormalizeGradeLevel uppercases and strips separator characters, so "G-14",
// "g14" and "G14" all resolve to the same row.
func NormalizeGradeLevel(gradeLevel string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(gradeLevel) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PointsFor returns the points awarded for finishing at the given placement in
// a competition of the given grade. Unknown grades soft-fail to zero after
// reporting through the warn hook; upstream data may carry legacy grade
// strings and a zero-point row degrades visibly without crashing the caller.
func (t *Table) PointsFor(gradeLevel string, placement int, challengeVariant, finalVariant bool) decimal.Decimal {
	key := NormalizeGradeLevel(gradeLevel)
	if key == gradeChallengeBase && challengeVariant {
		key = gradeChallengeKey
	}
	if key == gradeFinalBase && finalVariant {
		key = gradeFinalKey
	}

	row, ok := t.rows[key]
	if !ok {
		if t.warn != nil {
			t.warn(key)
		}
		return decimal.Zero
	}

	idx := floorPlacementIndex(placement)
	if idx < 0 {
		return decimal.Zero
	}
	return row[idx]
}

// MaxPointsFor returns the winner's points for a grade level.
func (t *Table) MaxPointsFor(gradeLevel string) decimal.Decimal {
	return t.PointsFor(gradeLevel, 1, false, false)
}

// AvailableGradeLevels returns every table key, variant pseudo-keys included,
// sorted for stable diagnostic output.
func (t *Table) AvailableGradeLevels() []string {
	keys := make([]string, 0, len(t.rows))
	for key := range t.rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// floorPlacementIndex finds the index of the largest defined placement less
// than or equal to the given placement. Returns -1 when the placement is below
// 1 or beyond the worst defined placement.
func floorPlacementIndex(placement int) int {
	if placement < definedPlacements[0] {
		return -1
	}
	if placement > definedPlacements[len(definedPlacements)-1] {
		return -1
	}
	idx := sort.SearchInts(definedPlacements, placement)
	if idx < len(definedPlacements) && definedPlacements[idx] == placement {
		return idx
	}
	return idx - 1
}
