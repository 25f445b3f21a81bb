package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStrategyPlan_FullResponse(t *testing.T) {
	text := `Here is the plan you asked for:
{
  "strategy": "Peak for the Grand Prix series while banking points at open events.",
  "priorityCompetitions": [
    {
      "name": "Grand Prix Rome G8",
      "points": 48,
      "reasoning": "High points with a reachable field",
      "requiredPlacement": "Semifinal or better",
      "dateRange": "2026-10-03 - 2026-10-05"
    },
    {
      "name": "Egypt Open G2",
      "points": 12,
      "reasoning": "Low-risk accumulation",
      "requiredPlacement": "Final",
      "dateRange": "2026-09-12 - 2026-09-14"
    }
  ],
  "totalPointsFromRecommendations": 60,
  "timeline": "5 months",
  "riskAssessment": "Dependent on two podium finishes.",
  "alternativeStrategies": ["Add a third open event", "Skip Rome and double up on opens"]
}
Good luck with the season.`

	plan, err := decodeStrategyPlan(text)
	require.NoError(t, err)
	assert.Equal(t, "Peak for the Grand Prix series while banking points at open events.", plan.Strategy)
	require.Len(t, plan.PriorityCompetitions, 2)
	assert.Equal(t, "Grand Prix Rome G8", plan.PriorityCompetitions[0].Name)
	assert.Equal(t, 48.0, plan.PriorityCompetitions[0].Points)
	assert.Equal(t, "Semifinal or better", plan.PriorityCompetitions[0].RequiredPlacement)
	assert.Equal(t, 60.0, plan.TotalPointsFromRecommendations)
	assert.Equal(t, "5 months", plan.Timeline)
	assert.Len(t, plan.AlternativeStrategies, 2)
}

func TestDecodeStrategyPlan_MissingFieldsGetDefaults(t *testing.T) {
	plan, err := decodeStrategyPlan(`{"strategy": "Keep competing."}`)
	require.NoError(t, err)
	assert.Equal(t, "Keep competing.", plan.Strategy)
	assert.NotNil(t, plan.PriorityCompetitions)
	assert.Empty(t, plan.PriorityCompetitions)
	assert.NotNil(t, plan.AlternativeStrategies)
	assert.Empty(t, plan.AlternativeStrategies)
	assert.Equal(t, 0.0, plan.TotalPointsFromRecommendations)
	assert.NotEmpty(t, plan.Timeline)
	assert.NotEmpty(t, plan.RiskAssessment)
}

func TestDecodeStrategyPlan_EmptyObject(t *testing.T) {
	plan, err := decodeStrategyPlan(`{}`)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Strategy)
}

func TestDecodeStrategyPlan_MistypedEntriesSkipped(t *testing.T) {
	text := `{
  "priorityCompetitions": [
    "just a string",
    42,
    {"name": "Dutch Open G1", "points": "10.5"}
  ],
  "alternativeStrategies": ["valid", 7, ""]
}`
	plan, err := decodeStrategyPlan(text)
	require.NoError(t, err)
	require.Len(t, plan.PriorityCompetitions, 1)
	assert.Equal(t, "Dutch Open G1", plan.PriorityCompetitions[0].Name)
	// Numeric strings are coerced
	assert.Equal(t, 10.5, plan.PriorityCompetitions[0].Points)
	// Entry-level defaults fill the gaps
	assert.Equal(t, "Recommended by strategy analysis", plan.PriorityCompetitions[0].Reasoning)
	assert.Equal(t, []string{"valid"}, plan.AlternativeStrategies)
}

func TestDecodeStrategyPlan_NoJSONObject(t *testing.T) {
	_, err := decodeStrategyPlan("I cannot produce a plan right now.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object")
}

func TestDecodeStrategyPlan_MalformedJSON(t *testing.T) {
	_, err := decodeStrategyPlan(`{"strategy": "unterminated`)
	require.Error(t, err)
}

func TestDecodeStrategyPlan_ProseWithBraces(t *testing.T) {
	// First { to last } must still bound a valid object
	text := "Summary {not json} then the real payload: " + `{"strategy": "x"}`
	_, err := decodeStrategyPlan(text)
	require.Error(t, err)
}
