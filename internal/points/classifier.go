package points

import "strings"

// Classification marks the sub-variant an event name implies. Both flags can
// be set at once; the detectors are independent substring matches and no
// precedence is enforced between them.
type Classification struct {
	ChallengeVariant bool `json:"challenge_variant"`
	FinalVariant     bool `json:"final_variant"`
}

var (
	challengeMarkers = []string{"grand prix challenge", "gp challenge"}
	finalMarkers     = []string{"grand prix final", "gp final"}
)

// Classify inspects a competition's display name for the Grand Prix challenge
// and final variants, which shift the applicable points table row.
func Classify(competitionName string) Classification {
	name := strings.ToLower(competitionName)

	var c Classification
	for _, marker := range challengeMarkers {
		if strings.Contains(name, marker) {
			c.ChallengeVariant = true
			break
		}
	}
	for _, marker := range finalMarkers {
		if strings.Contains(name, marker) {
			c.FinalVariant = true
			break
		}
	}
	return c
}
