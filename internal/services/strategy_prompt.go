package services

import (
	"fmt"
	"strings"
)

// buildStrategyPrompt renders the candidate set and point deficit into a
// prompt requesting a strict-JSON strategy plan.
func buildStrategyPrompt(req *StrategyRequest) (string, string) {
	var b strings.Builder

	if req.MaintenanceMode {
		b.WriteString(fmt.Sprintf(
			"An athlete currently holds rank 1 in the %s %s ranking and wants to defend that position.\n",
			req.Category, req.RankingType))
		b.WriteString(fmt.Sprintf("They should accumulate at least %.2f additional ranking points to stay ahead of challengers.\n\n", req.PointsNeeded))
	} else {
		b.WriteString(fmt.Sprintf(
			"An athlete currently ranked %d in the %s %s ranking wants to reach rank %d.\n",
			req.CurrentRank, req.Category, req.RankingType, req.TargetRank))
		b.WriteString(fmt.Sprintf("They need %.2f additional ranking points.\n\n", req.PointsNeeded))
	}

	if req.TargetDate != nil {
		b.WriteString(fmt.Sprintf("The athlete wants to achieve this by %s. Only recommend competitions before that date.\n\n",
			req.TargetDate.Format("2006-01-02")))
	}

	b.WriteString("UPCOMING COMPETITIONS:\n")
	for _, cand := range req.Candidates {
		comp := cand.Competition
		b.WriteString(fmt.Sprintf("- %s (%s, %s): grade %s, winner earns %.2f points, %s to %s\n",
			comp.Name, comp.City, comp.Country, comp.GradeLevel, comp.PointsAvailable,
			comp.StartDate.Format("2006-01-02"), comp.EndDate.Format("2006-01-02")))
		b.WriteString(fmt.Sprintf("  projected points for this athlete: optimistic %s, realistic %s, conservative %s\n",
			cand.Projection.Optimistic.StringFixed(2),
			cand.Projection.Realistic.StringFixed(2),
			cand.Projection.Conservative.StringFixed(2)))
	}

	b.WriteString(`
Respond with ONLY a JSON object, no prose outside it, in this exact shape:
{
  "strategy": "<one-paragraph overall strategy>",
  "priorityCompetitions": [
    {
      "name": "<exact competition name from the list above>",
      "points": <points the athlete should target there>,
      "reasoning": "<why this competition>",
      "requiredPlacement": "<placement needed, e.g. 'Top 3 finish'>",
      "dateRange": "<start - end>"
    }
  ],
  "totalPointsFromRecommendations": <sum of the points above>,
  "timeline": "<expected timeframe>",
  "riskAssessment": "<main risks>",
  "alternativeStrategies": ["<alternative 1>", "<alternative 2>"]
}
Use competition names exactly as listed; entries with unrecognized names are discarded.`)

	systemPrompt := "You are a taekwondo ranking strategist. You know the World Taekwondo G-ranking points system and build realistic competition schedules that maximize ranking points for an athlete's skill level. Answer with strict JSON only."

	return b.String(), systemPrompt
}
