package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alhassanaraouf/the360insights-sub001/internal/config"
	"github.com/alhassanaraouf/the360insights-sub001/internal/models"
	"github.com/alhassanaraouf/the360insights-sub001/internal/points"
	"github.com/alhassanaraouf/the360insights-sub001/internal/services"
)

// MockStore implements services.CalculatorStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetAthlete(ctx context.Context, id uuid.UUID) (*models.Athlete, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Athlete), args.Error(1)
}

func (m *MockStore) LatestRanking(ctx context.Context, athleteID uuid.UUID, rankingType, category string) (*models.AthleteRanking, error) {
	args := m.Called(ctx, athleteID, rankingType, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AthleteRanking), args.Error(1)
}

func (m *MockStore) ClosestRankedSnapshot(ctx context.Context, rankingType, category string, targetRank int) (*models.AthleteRanking, error) {
	args := m.Called(ctx, rankingType, category, targetRank)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AthleteRanking), args.Error(1)
}

func (m *MockStore) UpcomingCompetitionsByCategory(ctx context.Context, category string) ([]models.Competition, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Competition), args.Error(1)
}

func (m *MockStore) UpcomingCompetitions(ctx context.Context) ([]models.Competition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Competition), args.Error(1)
}

func (m *MockStore) GetCalculation(ctx context.Context, athleteID uuid.UUID, targetRank int, rankingType, category string) (*models.RankUpCalculation, error) {
	args := m.Called(ctx, athleteID, targetRank, rankingType, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RankUpCalculation), args.Error(1)
}

func (m *MockStore) UpsertCalculation(ctx context.Context, calc *models.RankUpCalculation) error {
	args := m.Called(ctx, calc)
	return args.Error(0)
}

// MockStrategy implements services.StrategyGenerator
type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) GenerateStrategy(ctx context.Context, req *services.StrategyRequest) (*models.StrategyPlan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StrategyPlan), args.Error(1)
}

func newCalculator(store *MockStore, strategy *MockStrategy) *services.RankUpCalculator {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	cfg := &config.Config{
		FallbackPointsPerRank: 5.0,
		CalculationTTLMonths:  1,
	}
	table := points.NewTableWithWarnHook(func(string) {})
	return services.NewRankUpCalculator(store, strategy, table, cfg, logger)
}

func floatPtr(f float64) *float64 { return &f }

func makeAthlete(id uuid.UUID) *models.Athlete {
	return &models.Athlete{ID: id, Name: "Test Athlete", Category: "M-58kg"}
}

func makeSnapshot(athleteID uuid.UUID, rank int, pts *float64) *models.AthleteRanking {
	return &models.AthleteRanking{
		ID:          uuid.New(),
		AthleteID:   athleteID,
		RankingType: models.RankingTypeWorld,
		Category:    "M-58kg",
		Rank:        rank,
		Points:      pts,
		RankingDate: time.Now().AddDate(0, 0, -7),
	}
}

func makeCompetition(name, grade string, pointsAvailable float64, startInDays int) models.Competition {
	start := time.Now().AddDate(0, 0, startInDays)
	return models.Competition{
		ID:              uuid.New(),
		ExternalID:      uuid.NewString(),
		Name:            name,
		Category:        "M-58kg",
		GradeLevel:      grade,
		PointsAvailable: pointsAvailable,
		Status:          models.StatusUpcoming,
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, 2),
	}
}

func baseRequest(athleteID uuid.UUID) *services.CalculateRequest {
	return &services.CalculateRequest{
		AthleteID:   athleteID,
		TargetRank:  1,
		RankingType: models.RankingTypeWorld,
		Category:    "M-58kg",
	}
}

func TestCalculate_AthleteNotFound(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, athleteID, 1, models.RankingTypeWorld, "M-58kg").
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(nil, gorm.ErrRecordNotFound)

	_, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.Error(t, err)
	assert.True(t, services.IsNotFound(err))
	assert.Contains(t, err.Error(), athleteID.String())
}

func TestCalculate_RankingSnapshotNotFound(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(nil, gorm.ErrRecordNotFound)

	_, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.Error(t, err)
	assert.True(t, services.IsNotFound(err))
}

func TestCalculate_NoPointsBasis(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, nil), nil)

	_, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.Error(t, err)
	assert.True(t, services.IsInsufficientData(err))
}

func TestCalculate_AthleteAggregateFallback(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	athlete := makeAthlete(athleteID)
	athlete.WorldRankPoints = floatPtr(42)

	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(athlete, nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, nil), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(100)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Egypt Open G2", "G2", 20, 30)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("service unavailable"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	assert.Equal(t, 42.0, result.CurrentPoints)
}

func TestCalculate_PointsNeededFormula(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	// Rank 5 with 60 points, rank-1 holder has 200: deficit 140 + 10 margin
	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{
			makeCompetition("World Championships G14", "G14", 140, 60),
			makeCompetition("Grand Prix Rome G8", "G8", 80, 30),
			makeCompetition("Egypt Open G2", "G2", 20, 15),
		}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	assert.Equal(t, 60.0, result.CurrentPoints)
	assert.Equal(t, 200.0, result.TargetPoints)
	assert.Equal(t, 150.0, result.PointsNeeded)
	assert.False(t, result.MaintenanceMode)
}

func TestCalculate_PointsNeededNeverNegative(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	// Already ahead of the target holder: max(0, -30+10) = 0
	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 3, floatPtr(50)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(20)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Egypt Open G2", "G2", 20, 15)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.PointsNeeded)
	assert.Empty(t, result.SuggestedCompetitions)
}

func TestCalculate_TargetPointsExtrapolationFallback(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	// No ranked snapshot anywhere: 60 + (5-1)*5 = 80
	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Grand Prix Rome G8", "G8", 80, 30)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	assert.Equal(t, 80.0, result.TargetPoints)
	assert.Equal(t, 30.0, result.PointsNeeded)
}

func TestCalculate_MaintenanceModeAtRankOne(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	req := baseRequest(athleteID)
	req.TargetRank = 3 // caller input is normalized away at rank 1

	store.On("GetCalculation", mock.Anything, athleteID, 3, models.RankingTypeWorld, "M-58kg").
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 1, floatPtr(200)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(athleteID, 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Grand Prix Rome G8", "G8", 80, 30)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.MatchedBy(func(r *services.StrategyRequest) bool {
		return r.MaintenanceMode && r.TargetRank == 1
	})).Return(nil, errors.New("down"))

	result, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.MaintenanceMode)
	assert.Equal(t, 1, result.TargetRank)
	// Tying own points plus the safety margin
	assert.Equal(t, 10.0, result.PointsNeeded)
}

func TestCalculate_CacheHitSkipsRecomputation(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	cached := models.RankUpResult{
		AthleteID:    athleteID,
		CurrentRank:  5,
		TargetRank:   1,
		PointsNeeded: 150,
	}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)

	store.On("GetCalculation", mock.Anything, athleteID, 1, models.RankingTypeWorld, "M-58kg").
		Return(&models.RankUpCalculation{
			AthleteID:   athleteID,
			TargetRank:  1,
			RankingType: models.RankingTypeWorld,
			Category:    "M-58kg",
			Result:      payload,
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		}, nil)

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	assert.True(t, result.CacheHit)
	assert.Equal(t, 150.0, result.PointsNeeded)
	strategy.AssertNotCalled(t, "GenerateStrategy", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "GetAthlete", mock.Anything, mock.Anything)
}

func TestCalculate_ExpiredCacheTriggersRecomputation(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, athleteID, 1, models.RankingTypeWorld, "M-58kg").
		Return(&models.RankUpCalculation{
			Result:    json.RawMessage(`{}`),
			ExpiresAt: time.Now().Add(-time.Hour),
		}, nil)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Grand Prix Rome G8", "G8", 80, 30)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	strategy.AssertCalled(t, "GenerateStrategy", mock.Anything, mock.Anything)
}

func TestCalculate_ForceRefreshBypassesCache(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	req := baseRequest(athleteID)
	req.ForceRefresh = true

	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Grand Prix Rome G8", "G8", 80, 30)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	// A forced refresh also propagates to the strategy layer so its own
	// response cache is invalidated rather than replayed
	strategy.On("GenerateStrategy", mock.Anything, mock.MatchedBy(func(r *services.StrategyRequest) bool {
		return r.ForceRefresh
	})).Return(nil, errors.New("down"))

	_, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)
	store.AssertNotCalled(t, "GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	strategy.AssertExpectations(t)
}

func TestCalculate_FallbackPlanIsGreedy(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	competitions := []models.Competition{
		makeCompetition("Egypt Open G2", "G2", 20, 15),
		makeCompetition("World Championships G14", "G14", 140, 90),
		makeCompetition("Grand Prix Rome G8", "G8", 80, 30),
		makeCompetition("Dutch Open G1", "G1", 10, 10),
	}

	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").Return(competitions, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)

	// pointsNeeded = 150; greedy picks 140, then 80 crosses the threshold
	require.Len(t, result.SuggestedCompetitions, 2)
	assert.Equal(t, "World Championships G14", result.SuggestedCompetitions[0].Name)
	assert.Equal(t, 140.0, result.SuggestedCompetitions[0].CumulativePoints)
	assert.Equal(t, "Grand Prix Rome G8", result.SuggestedCompetitions[1].Name)
	assert.Equal(t, 220.0, result.SuggestedCompetitions[1].CumulativePoints)

	plan := result.StrategyPlan
	assert.LessOrEqual(t, len(plan.PriorityCompetitions), 3)
	total := 0.0
	for _, p := range plan.PriorityCompetitions {
		total += p.Points
		assert.NotEmpty(t, p.Reasoning)
		assert.Equal(t, "Top 3 finish recommended", p.RequiredPlacement)
	}
	assert.Equal(t, total, plan.TotalPointsFromRecommendations)
	assert.NotEmpty(t, plan.Strategy)
	assert.NotEmpty(t, plan.Timeline)
	assert.NotEmpty(t, plan.RiskAssessment)
	assert.Len(t, plan.AlternativeStrategies, 2)
}

func TestCalculate_CategoryFallbackToAllUpcoming(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	systemWide := []models.Competition{makeCompetition("Grand Prix Rome G8", "G8", 80, 30)}

	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{}, nil)
	store.On("UpcomingCompetitions", mock.Anything).Return(systemWide, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	require.NotEmpty(t, result.SuggestedCompetitions)
	assert.Equal(t, "Grand Prix Rome G8", result.SuggestedCompetitions[0].Name)
	store.AssertCalled(t, "UpcomingCompetitions", mock.Anything)
}

func TestCalculate_StrategyPlanNameMapping(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	rome := makeCompetition("Grand Prix Rome G8", "G8", 80, 30)

	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{rome}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).Return(&models.StrategyPlan{
		Strategy: "Peak for the Grand Prix.",
		PriorityCompetitions: []models.PriorityCompetition{
			{Name: "Grand Prix Rome G8", Points: 48},
			{Name: "Invented Championship", Points: 999},
		},
		TotalPointsFromRecommendations: 48,
		Timeline:                       "4 months",
		RiskAssessment:                 "Single-event dependency",
		AlternativeStrategies:          []string{"More open events"},
	}, nil)

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)

	// Hallucinated entries are dropped; real ones get their store id attached
	require.Len(t, result.StrategyPlan.PriorityCompetitions, 1)
	assert.Equal(t, rome.ID.String(), result.StrategyPlan.PriorityCompetitions[0].CompetitionID)
	require.Len(t, result.SuggestedCompetitions, 1)
	assert.Equal(t, rome.Name, result.SuggestedCompetitions[0].Name)
	assert.Equal(t, 80.0, result.SuggestedCompetitions[0].CumulativePoints)
}

func TestCalculate_TargetDateExcludesLateCompetitions(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	req := baseRequest(athleteID)
	targetDate := time.Now().AddDate(0, 0, 45)
	req.TargetDate = &targetDate

	early := makeCompetition("Grand Prix Rome G8", "G8", 80, 30)
	late := makeCompetition("World Championships G14", "G14", 140, 90)

	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{late, early}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	// Candidates reach the strategy service unfiltered; date filtering is per-plan
	strategy.On("GenerateStrategy", mock.Anything, mock.MatchedBy(func(r *services.StrategyRequest) bool {
		return len(r.Candidates) == 2
	})).Return(nil, errors.New("down"))

	result, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)

	// The greedy fallback skips the G14 despite its higher value: it starts
	// after the target date, so the cumulative column counts only the G8
	require.Len(t, result.SuggestedCompetitions, 1)
	assert.Equal(t, "Grand Prix Rome G8", result.SuggestedCompetitions[0].Name)
	assert.Equal(t, 80.0, result.SuggestedCompetitions[0].CumulativePoints)

	require.Len(t, result.StrategyPlan.PriorityCompetitions, 1)
	assert.Equal(t, "Grand Prix Rome G8", result.StrategyPlan.PriorityCompetitions[0].Name)
	assert.Equal(t, 80.0, result.StrategyPlan.TotalPointsFromRecommendations)
}

func TestCalculate_TargetDateFiltersAIPlan(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	req := baseRequest(athleteID)
	targetDate := time.Now().AddDate(0, 0, 45)
	req.TargetDate = &targetDate

	early := makeCompetition("Grand Prix Rome G8", "G8", 80, 30)
	late := makeCompetition("World Championships G14", "G14", 140, 90)

	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{late, early}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).Return(nil)
	// The AI recommends both; the late one must not survive into the result
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).Return(&models.StrategyPlan{
		Strategy: "Take both majors.",
		PriorityCompetitions: []models.PriorityCompetition{
			{Name: "World Championships G14", Points: 84},
			{Name: "Grand Prix Rome G8", Points: 48},
		},
		TotalPointsFromRecommendations: 132,
		Timeline:                       "3 months",
		RiskAssessment:                 "Tight schedule",
		AlternativeStrategies:          []string{},
	}, nil)

	result, err := calc.Calculate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.StrategyPlan.PriorityCompetitions, 1)
	assert.Equal(t, "Grand Prix Rome G8", result.StrategyPlan.PriorityCompetitions[0].Name)
	require.Len(t, result.SuggestedCompetitions, 1)
	assert.Equal(t, "Grand Prix Rome G8", result.SuggestedCompetitions[0].Name)
	assert.Equal(t, 80.0, result.SuggestedCompetitions[0].CumulativePoints)
}

func TestCalculate_CacheWriteFailureIsSwallowed(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Grand Prix Rome G8", "G8", 80, 30)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).
		Return(errors.New("connection reset"))
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	result, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestCalculate_UpsertCarriesMonthTTL(t *testing.T) {
	store := &MockStore{}
	strategy := &MockStrategy{}
	calc := newCalculator(store, strategy)

	athleteID := uuid.New()
	var captured *models.RankUpCalculation

	store.On("GetCalculation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound)
	store.On("GetAthlete", mock.Anything, athleteID).Return(makeAthlete(athleteID), nil)
	store.On("LatestRanking", mock.Anything, athleteID, models.RankingTypeWorld, "M-58kg").
		Return(makeSnapshot(athleteID, 5, floatPtr(60)), nil)
	store.On("ClosestRankedSnapshot", mock.Anything, models.RankingTypeWorld, "M-58kg", 1).
		Return(makeSnapshot(uuid.New(), 1, floatPtr(200)), nil)
	store.On("UpcomingCompetitionsByCategory", mock.Anything, "M-58kg").
		Return([]models.Competition{makeCompetition("Grand Prix Rome G8", "G8", 80, 30)}, nil)
	store.On("UpsertCalculation", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*models.RankUpCalculation)
		}).Return(nil)
	strategy.On("GenerateStrategy", mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	_, err := calc.Calculate(context.Background(), baseRequest(athleteID))
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, athleteID, captured.AthleteID)
	assert.Equal(t, 1, captured.TargetRank)
	assert.Equal(t, captured.CreatedAt.AddDate(0, 1, 0), captured.ExpiresAt)
	assert.False(t, captured.IsExpired(time.Now()))
	assert.NotEmpty(t, captured.Result)
}
