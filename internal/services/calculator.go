package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/alhassanaraouf/the360insights-sub001/internal/config"
	"github.com/alhassanaraouf/the360insights-sub001/internal/models"
	"github.com/alhassanaraouf/the360insights-sub001/internal/points"
)

// safetyMarginPoints is added on top of the raw point deficit so the athlete
// overtakes the target-rank holder instead of merely tying them; everyone
// else's points keep growing too.
const safetyMarginPoints = 10.0

// CalculatorStore is the data-store surface the calculator needs.
type CalculatorStore interface {
	GetAthlete(ctx context.Context, id uuid.UUID) (*models.Athlete, error)
	LatestRanking(ctx context.Context, athleteID uuid.UUID, rankingType, category string) (*models.AthleteRanking, error)
	ClosestRankedSnapshot(ctx context.Context, rankingType, category string, targetRank int) (*models.AthleteRanking, error)
	UpcomingCompetitionsByCategory(ctx context.Context, category string) ([]models.Competition, error)
	UpcomingCompetitions(ctx context.Context) ([]models.Competition, error)
	GetCalculation(ctx context.Context, athleteID uuid.UUID, targetRank int, rankingType, category string) (*models.RankUpCalculation, error)
	UpsertCalculation(ctx context.Context, calc *models.RankUpCalculation) error
}

// StrategyGenerator produces a strategy plan for a candidate set. Implemented
// by StrategyClient; any error switches the calculator to its deterministic
// fallback.
type StrategyGenerator interface {
	GenerateStrategy(ctx context.Context, req *StrategyRequest) (*models.StrategyPlan, error)
}

// CandidateProjection pairs a candidate competition with its classification
// and the athlete's projected point outcomes there.
type CandidateProjection struct {
	Competition    models.Competition    `json:"competition"`
	Classification points.Classification `json:"classification"`
	Projection     points.Projection     `json:"projection"`
}

// StrategyRequest carries everything the strategy generator needs.
type StrategyRequest struct {
	Candidates      []CandidateProjection `json:"candidates"`
	PointsNeeded    float64               `json:"points_needed"`
	CurrentRank     int                   `json:"current_rank"`
	TargetRank      int                   `json:"target_rank"`
	Category        string                `json:"category"`
	RankingType     string                `json:"ranking_type"`
	TargetDate      *time.Time            `json:"target_date,omitempty"`
	MaintenanceMode bool                  `json:"maintenance_mode"`
	ForceRefresh    bool                  `json:"force_refresh"`
}

// CalculateRequest is the caller's input to the rank-up calculation.
type CalculateRequest struct {
	AthleteID    uuid.UUID
	TargetRank   int
	RankingType  string
	Category     string
	TargetDate   *time.Time
	ForceRefresh bool
}

// RankUpCalculator computes the points an athlete needs to reach a target
// rank, a ranked shortlist of competitions to get them there, and a strategy
// plan — AI-generated when the service cooperates, deterministic otherwise.
type RankUpCalculator struct {
	store                 CalculatorStore
	strategy              StrategyGenerator
	table                 *points.Table
	logger                *logrus.Logger
	fallbackPointsPerRank float64
	ttlMonths             int
}

func NewRankUpCalculator(
	store CalculatorStore,
	strategy StrategyGenerator,
	table *points.Table,
	cfg *config.Config,
	logger *logrus.Logger,
) *RankUpCalculator {
	return &RankUpCalculator{
		store:                 store,
		strategy:              strategy,
		table:                 table,
		logger:                logger,
		fallbackPointsPerRank: cfg.FallbackPointsPerRank,
		ttlMonths:             cfg.CalculationTTLMonths,
	}
}

// Calculate runs the full rank-up calculation for the request, serving from
// the calculation cache when a live row exists.
func (rc *RankUpCalculator) Calculate(ctx context.Context, req *CalculateRequest) (*models.RankUpResult, error) {
	log := rc.logger.WithFields(logrus.Fields{
		"athlete_id":   req.AthleteID,
		"target_rank":  req.TargetRank,
		"ranking_type": req.RankingType,
		"category":     req.Category,
	})

	if !req.ForceRefresh {
		if result := rc.cachedResult(ctx, req, log); result != nil {
			return result, nil
		}
	}

	athlete, err := rc.store.GetAthlete(ctx, req.AthleteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "athlete", Key: req.AthleteID.String()}
		}
		return nil, fmt.Errorf("failed to load athlete: %w", err)
	}

	snapshot, err := rc.store.LatestRanking(ctx, req.AthleteID, req.RankingType, req.Category)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{
				Resource: "ranking snapshot",
				Key:      fmt.Sprintf("%s/%s/%s", req.AthleteID, req.RankingType, req.Category),
			}
		}
		return nil, fmt.Errorf("failed to load ranking snapshot: %w", err)
	}

	currentPoints, err := rc.currentPoints(athlete, snapshot, req.RankingType)
	if err != nil {
		return nil, err
	}

	currentRank := snapshot.Rank
	targetRank := req.TargetRank
	maintenanceMode := false
	if currentRank == 1 {
		// Rank 1 is the ceiling; the question becomes how to defend it
		targetRank = 1
		maintenanceMode = true
	}

	targetPoints, err := rc.targetPoints(ctx, req, currentPoints, currentRank, targetRank)
	if err != nil {
		return nil, err
	}

	pointsNeeded := targetPoints - currentPoints + safetyMarginPoints
	if pointsNeeded < 0 {
		pointsNeeded = 0
	}

	candidates, err := rc.candidateCompetitions(ctx, req.Category, currentRank, log)
	if err != nil {
		return nil, err
	}

	strategyReq := &StrategyRequest{
		Candidates:      candidates,
		PointsNeeded:    pointsNeeded,
		CurrentRank:     currentRank,
		TargetRank:      targetRank,
		Category:        req.Category,
		RankingType:     req.RankingType,
		TargetDate:      req.TargetDate,
		MaintenanceMode: maintenanceMode,
		ForceRefresh:    req.ForceRefresh,
	}

	plan, suggestions := rc.buildPlan(ctx, strategyReq, log)

	result := &models.RankUpResult{
		AthleteID:             athlete.ID,
		AthleteName:           athlete.Name,
		RankingType:           req.RankingType,
		Category:              req.Category,
		CurrentRank:           currentRank,
		TargetRank:            targetRank,
		CurrentPoints:         currentPoints,
		TargetPoints:          targetPoints,
		PointsNeeded:          pointsNeeded,
		MaintenanceMode:       maintenanceMode,
		SuggestedCompetitions: suggestions,
		StrategyPlan:          *plan,
		CalculatedAt:          time.Now().UTC(),
	}

	rc.persistResult(ctx, req, result, log)

	return result, nil
}

// cachedResult returns a live cached result for the key, or nil on miss,
// expiry, or any cache trouble.
func (rc *RankUpCalculator) cachedResult(ctx context.Context, req *CalculateRequest, log *logrus.Entry) *models.RankUpResult {
	row, err := rc.store.GetCalculation(ctx, req.AthleteID, req.TargetRank, req.RankingType, req.Category)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithError(err).Warn("Calculation cache read failed, recomputing")
		}
		return nil
	}
	if row.IsExpired(time.Now()) {
		return nil
	}

	var result models.RankUpResult
	if err := json.Unmarshal(row.Result, &result); err != nil {
		log.WithError(err).Warn("Cached calculation is unreadable, recomputing")
		return nil
	}
	result.CacheHit = true
	log.Debug("Serving rank-up calculation from cache")
	return &result
}

func (rc *RankUpCalculator) currentPoints(athlete *models.Athlete, snapshot *models.AthleteRanking, rankingType string) (float64, error) {
	// Prefer the category-specific points on the snapshot
	if snapshot.Points != nil {
		return *snapshot.Points, nil
	}
	if agg := athlete.AggregatePoints(rankingType); agg != nil {
		return *agg, nil
	}
	return 0, &InsufficientDataError{
		Reason: fmt.Sprintf("no points recorded for athlete %s in %s/%s", athlete.ID, rankingType, snapshot.Category),
	}
}

func (rc *RankUpCalculator) targetPoints(ctx context.Context, req *CalculateRequest, currentPoints float64, currentRank, targetRank int) (float64, error) {
	closest, err := rc.store.ClosestRankedSnapshot(ctx, req.RankingType, req.Category, targetRank)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Last-resort extrapolation from the athlete's own points
			return currentPoints + float64(currentRank-targetRank)*rc.fallbackPointsPerRank, nil
		}
		return 0, fmt.Errorf("failed to search ranking snapshots: %w", err)
	}
	return *closest.Points, nil
}

// candidateCompetitions loads upcoming candidates for the category, with
// projections and variant classification attached. An empty category match
// falls back to all upcoming competitions so the caller never gets a silent
// dead end.
func (rc *RankUpCalculator) candidateCompetitions(ctx context.Context, category string, currentRank int, log *logrus.Entry) ([]CandidateProjection, error) {
	competitions, err := rc.store.UpcomingCompetitionsByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load competitions: %w", err)
	}
	if len(competitions) == 0 {
		log.Info("No upcoming competitions in category, falling back to all upcoming competitions")
		competitions, err = rc.store.UpcomingCompetitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load competitions: %w", err)
		}
	}

	candidates := make([]CandidateProjection, 0, len(competitions))
	for _, comp := range competitions {
		classification := points.Classify(comp.Name)
		projection := rc.table.ProjectPoints(
			comp.GradeLevel,
			currentRank,
			gradeStrength(comp.GradeLevel),
			classification.ChallengeVariant,
			classification.FinalVariant,
		)
		candidates = append(candidates, CandidateProjection{
			Competition:    comp,
			Classification: classification,
			Projection:     projection,
		})
	}
	return candidates, nil
}

// buildPlan asks the strategy service for a plan, mapping its priorities back
// to real candidates by exact name. Any failure drops to the deterministic
// greedy fallback — strategy trouble is never the caller's problem.
func (rc *RankUpCalculator) buildPlan(ctx context.Context, req *StrategyRequest, log *logrus.Entry) (*models.StrategyPlan, []models.SuggestedCompetition) {
	plan, err := rc.strategy.GenerateStrategy(ctx, req)
	if err != nil {
		log.WithError(err).Warn("Strategy generation failed, using deterministic fallback")
		return rc.fallbackPlan(req)
	}

	byName := make(map[string]models.Competition, len(req.Candidates))
	for _, cand := range req.Candidates {
		byName[cand.Competition.Name] = cand.Competition
	}

	matched := make([]models.PriorityCompetition, 0, len(plan.PriorityCompetitions))
	suggestions := make([]models.SuggestedCompetition, 0, len(plan.PriorityCompetitions))
	cumulative := 0.0
	for _, priority := range plan.PriorityCompetitions {
		comp, ok := byName[priority.Name]
		if !ok {
			// The service may hallucinate or rename; keep only verifiable entries
			log.WithField("competition", priority.Name).Warn("Dropping unrecognized competition from strategy plan")
			continue
		}
		if startsAfter(comp.StartDate, req.TargetDate) {
			log.WithField("competition", priority.Name).Warn("Dropping competition starting after the target date from strategy plan")
			continue
		}
		priority.CompetitionID = comp.ID.String()
		matched = append(matched, priority)

		cumulative += comp.PointsAvailable
		suggestions = append(suggestions, suggestedFrom(comp, cumulative))
	}
	plan.PriorityCompetitions = matched

	return plan, suggestions
}

// fallbackPlan greedily accumulates the highest-value candidates until the
// deficit is covered and synthesizes a structurally complete plan around them.
func (rc *RankUpCalculator) fallbackPlan(req *StrategyRequest) (*models.StrategyPlan, []models.SuggestedCompetition) {
	sorted := make([]CandidateProjection, len(req.Candidates))
	copy(sorted, req.Candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Competition.PointsAvailable > sorted[j].Competition.PointsAvailable
	})

	suggestions := make([]models.SuggestedCompetition, 0, len(sorted))
	cumulative := 0.0
	for _, cand := range sorted {
		if cumulative >= req.PointsNeeded {
			break
		}
		if startsAfter(cand.Competition.StartDate, req.TargetDate) {
			continue
		}
		cumulative += cand.Competition.PointsAvailable
		suggestions = append(suggestions, suggestedFrom(cand.Competition, cumulative))
	}

	priorities := make([]models.PriorityCompetition, 0, 3)
	totalPoints := 0.0
	for i, sug := range suggestions {
		if i >= 3 {
			break
		}
		priorities = append(priorities, models.PriorityCompetition{
			CompetitionID:     sug.ID.String(),
			Name:              sug.Name,
			Points:            sug.PointsAvailable,
			Reasoning:         fmt.Sprintf("high-value competition offering %.2f points", sug.PointsAvailable),
			RequiredPlacement: "Top 3 finish recommended",
			DateRange:         fmt.Sprintf("%s - %s", sug.StartDate.Format("2006-01-02"), sug.EndDate.Format("2006-01-02")),
		})
		totalPoints += sug.PointsAvailable
	}

	strategy := fmt.Sprintf(
		"Target the highest-value upcoming competitions in sequence to close the %.2f point gap to rank %d.",
		req.PointsNeeded, req.TargetRank)
	if req.MaintenanceMode {
		strategy = fmt.Sprintf(
			"Defend rank 1 by continuing to collect points at the highest-value competitions; accumulate at least %.2f points to stay ahead.",
			req.PointsNeeded)
	}

	plan := &models.StrategyPlan{
		Strategy:                       strategy,
		PriorityCompetitions:           priorities,
		TotalPointsFromRecommendations: totalPoints,
		Timeline:                       "6-12 months depending on competition schedule and placement consistency",
		RiskAssessment:                 "Point projections assume strong placements; deeper fields or early losses extend the timeline.",
		AlternativeStrategies: []string{
			"Enter more lower-grade competitions to accumulate points with less risk per event",
			"Focus preparation on one or two high-grade competitions and peak for them",
		},
	}

	return plan, suggestions
}

// persistResult upserts the result into the calculation cache. A cache-write
// failure is logged and swallowed; it must never fail the calculation.
func (rc *RankUpCalculator) persistResult(ctx context.Context, req *CalculateRequest, result *models.RankUpResult, log *logrus.Entry) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Error("Failed to serialize calculation for caching")
		return
	}

	now := time.Now().UTC()
	calc := &models.RankUpCalculation{
		AthleteID:   req.AthleteID,
		TargetRank:  req.TargetRank,
		RankingType: req.RankingType,
		Category:    req.Category,
		Result:      payload,
		CreatedAt:   now,
		ExpiresAt:   now.AddDate(0, rc.ttlMonths, 0),
	}
	if err := rc.store.UpsertCalculation(ctx, calc); err != nil {
		log.WithError(err).Error("Failed to cache rank-up calculation")
	}
}

func suggestedFrom(comp models.Competition, cumulative float64) models.SuggestedCompetition {
	return models.SuggestedCompetition{
		ID:               comp.ID,
		Name:             comp.Name,
		Country:          comp.Country,
		City:             comp.City,
		StartDate:        comp.StartDate,
		EndDate:          comp.EndDate,
		Category:         comp.Category,
		GradeLevel:       comp.GradeLevel,
		PointsAvailable:  comp.PointsAvailable,
		CumulativePoints: cumulative,
	}
}

// startsAfter reports whether a competition starts past the athlete's target
// date. Suggestions and plan priorities must never include one: the cumulative
// points column counts only competitions that can still contribute in time.
func startsAfter(start time.Time, targetDate *time.Time) bool {
	return targetDate != nil && start.After(*targetDate)
}

// gradeStrength infers expected field strength from the competition grade:
// the Grand Prix tier and above draws the deepest fields.
func gradeStrength(gradeLevel string) points.CompetitionStrength {
	normalized := points.NormalizeGradeLevel(gradeLevel)
	if len(normalized) < 2 || normalized[0] != 'G' {
		return points.StrengthWeak
	}
	grade, err := strconv.Atoi(normalized[1:])
	if err != nil {
		return points.StrengthWeak
	}
	switch {
	case grade >= 10:
		return points.StrengthStrong
	case grade >= 4:
		return points.StrengthModerate
	default:
		return points.StrengthWeak
	}
}
