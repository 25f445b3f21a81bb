package points

import "github.com/shopspring/decimal"

// CompetitionStrength is a rough measure of how competitive a field is
// expected to be.
type CompetitionStrength string

const (
	StrengthWeak     CompetitionStrength = "weak"
	StrengthModerate CompetitionStrength = "moderate"
	StrengthStrong   CompetitionStrength = "strong"
)

// Projection holds three point outcomes for a hypothetical entry. Optimistic
// maps to the best placement bucket of the three, so the values satisfy
// optimistic >= realistic >= conservative.
type Projection struct {
	Optimistic   decimal.Decimal `json:"optimistic"`
	Realistic    decimal.Decimal `json:"realistic"`
	Conservative decimal.Decimal `json:"conservative"`
}

// ProjectPoints estimates optimistic/realistic/conservative point outcomes for
// an athlete at the given rank entering a competition of the given grade. The
// placement buckets are a heuristic model of likely finishes by rank tier, not
// a guarantee.
func (t *Table) ProjectPoints(gradeLevel string, currentRank int, strength CompetitionStrength, challengeVariant, finalVariant bool) Projection {
	optimistic, realistic, conservative := placementBuckets(currentRank, strength)
	return Projection{
		Optimistic:   t.PointsFor(gradeLevel, optimistic, challengeVariant, finalVariant),
		Realistic:    t.PointsFor(gradeLevel, realistic, challengeVariant, finalVariant),
		Conservative: t.PointsFor(gradeLevel, conservative, challengeVariant, finalVariant),
	}
}

func placementBuckets(currentRank int, strength CompetitionStrength) (optimistic, realistic, conservative int) {
	switch {
	case currentRank <= 3:
		optimistic = 1
		if strength == StrengthStrong {
			realistic, conservative = 3, 5
		} else {
			realistic, conservative = 2, 3
		}
	case currentRank <= 10:
		if strength == StrengthWeak {
			optimistic = 1
		} else {
			optimistic = 3
		}
		if strength == StrengthStrong {
			realistic, conservative = 9, 17
		} else {
			realistic, conservative = 5, 9
		}
	case currentRank <= 20:
		if strength == StrengthWeak {
			optimistic = 3
		} else {
			optimistic = 5
		}
		realistic, conservative = 9, 17
	default:
		if strength == StrengthWeak {
			optimistic = 9
		} else {
			optimistic = 17
		}
		realistic, conservative = 33, 65
	}
	return optimistic, realistic, conservative
}
