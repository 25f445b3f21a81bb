package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alhassanaraouf/the360insights-sub001/internal/models"
)

// decodeStrategyPlan extracts the JSON object from the AI response text and
// coerces it field by field into a StrategyPlan. The external shape is never
// trusted beyond this mapper: missing or mistyped fields fall back to safe
// defaults, and only a response with no parseable JSON object at all is an
// error.
func decodeStrategyPlan(aiText string) (*models.StrategyPlan, error) {
	start := strings.Index(aiText, "{")
	end := strings.LastIndex(aiText, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(aiText[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("malformed JSON in response: %w", err)
	}

	plan := &models.StrategyPlan{
		Strategy:                       asString(raw["strategy"], "Focus on the highest-value upcoming competitions."),
		PriorityCompetitions:           coercePriorities(raw["priorityCompetitions"]),
		TotalPointsFromRecommendations: asFloat(raw["totalPointsFromRecommendations"], 0),
		Timeline:                       asString(raw["timeline"], "6-12 months depending on competition schedule"),
		RiskAssessment:                 asString(raw["riskAssessment"], "Results depend on consistent placements against variable fields."),
		AlternativeStrategies:          asStringSlice(raw["alternativeStrategies"]),
	}

	if plan.AlternativeStrategies == nil {
		plan.AlternativeStrategies = []string{}
	}
	if plan.PriorityCompetitions == nil {
		plan.PriorityCompetitions = []models.PriorityCompetition{}
	}
	return plan, nil
}

func coercePriorities(v interface{}) []models.PriorityCompetition {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	priorities := make([]models.PriorityCompetition, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		priorities = append(priorities, models.PriorityCompetition{
			CompetitionID:     asString(entry["competitionId"], ""),
			Name:              asString(entry["name"], ""),
			Points:            asFloat(entry["points"], 0),
			Reasoning:         asString(entry["reasoning"], "Recommended by strategy analysis"),
			RequiredPlacement: asString(entry["requiredPlacement"], "Top 3 finish recommended"),
			DateRange:         asString(entry["dateRange"], ""),
		})
	}
	return priorities
}

func asString(v interface{}, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func asFloat(v interface{}, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
			return f
		}
	}
	return def
}

func asStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
