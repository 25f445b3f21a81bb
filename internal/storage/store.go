package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alhassanaraouf/the360insights-sub001/internal/models"
)

// Store wraps the GORM handle with the queries the rank-up calculator and the
// competition sync need.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// AutoMigrate creates or updates the tables this service owns.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.Athlete{},
		&models.Competition{},
		&models.AthleteRanking{},
		&models.RankUpCalculation{},
	)
}

// GetAthlete fetches an athlete by id. Returns gorm.ErrRecordNotFound when absent.
func (s *Store) GetAthlete(ctx context.Context, id uuid.UUID) (*models.Athlete, error) {
	var athlete models.Athlete
	if err := s.db.WithContext(ctx).First(&athlete, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &athlete, nil
}

// UpsertAthlete inserts or refreshes an athlete. Rows are matched by license
// id when the feed supplies one, otherwise by name and category.
func (s *Store) UpsertAthlete(ctx context.Context, athlete *models.Athlete) error {
	query := s.db.WithContext(ctx)
	if athlete.LicenseID != "" {
		query = query.Where("license_id = ?", athlete.LicenseID)
	} else {
		query = query.Where("name = ? AND category = ?", athlete.Name, athlete.Category)
	}

	var existing models.Athlete
	err := query.First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.WithContext(ctx).Create(athlete).Error
	}
	if err != nil {
		return err
	}

	athlete.ID = existing.ID
	updates := map[string]interface{}{
		"name":       athlete.Name,
		"country":    athlete.Country,
		"category":   athlete.Category,
		"license_id": athlete.LicenseID,
		"club":       athlete.Club,
	}
	return s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
}

// GetCompetition fetches a competition by id. Returns gorm.ErrRecordNotFound
// when absent.
func (s *Store) GetCompetition(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	var comp models.Competition
	if err := s.db.WithContext(ctx).First(&comp, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &comp, nil
}

// LatestRanking returns the most recent ranking snapshot for the athlete in
// the given ranking type and category.
func (s *Store) LatestRanking(ctx context.Context, athleteID uuid.UUID, rankingType, category string) (*models.AthleteRanking, error) {
	var ranking models.AthleteRanking
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND ranking_type = ? AND category = ?", athleteID, rankingType, category).
		Order("ranking_date DESC").
		First(&ranking).Error
	if err != nil {
		return nil, err
	}
	return &ranking, nil
}

// ClosestRankedSnapshot returns the snapshot with a non-null points value
// whose rank is numerically closest to targetRank, across all athletes in the
// given scope. Ties break on lowest id.
func (s *Store) ClosestRankedSnapshot(ctx context.Context, rankingType, category string, targetRank int) (*models.AthleteRanking, error) {
	var ranking models.AthleteRanking
	err := s.db.WithContext(ctx).
		Where("ranking_type = ? AND category = ? AND points IS NOT NULL", rankingType, category).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "ABS(rank - ?) ASC, id ASC",
			Vars:               []interface{}{targetRank},
			WithoutParentheses: true,
		}}).
		First(&ranking).Error
	if err != nil {
		return nil, err
	}
	return &ranking, nil
}

// UpcomingCompetitionsByCategory lists upcoming competitions in a category,
// soonest first.
func (s *Store) UpcomingCompetitionsByCategory(ctx context.Context, category string) ([]models.Competition, error) {
	var competitions []models.Competition
	err := s.db.WithContext(ctx).
		Where("category = ? AND status = ?", category, models.StatusUpcoming).
		Order("start_date ASC").
		Find(&competitions).Error
	if err != nil {
		return nil, err
	}
	return competitions, nil
}

// UpcomingCompetitions lists upcoming competitions regardless of category.
func (s *Store) UpcomingCompetitions(ctx context.Context) ([]models.Competition, error) {
	var competitions []models.Competition
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusUpcoming).
		Order("start_date ASC").
		Find(&competitions).Error
	if err != nil {
		return nil, err
	}
	return competitions, nil
}

// ListCompetitions returns every stored competition ordered by start date.
func (s *Store) ListCompetitions(ctx context.Context) ([]models.Competition, error) {
	var competitions []models.Competition
	err := s.db.WithContext(ctx).Order("start_date ASC").Find(&competitions).Error
	if err != nil {
		return nil, err
	}
	return competitions, nil
}

// UpsertCompetition inserts or refreshes a competition matched by external id.
func (s *Store) UpsertCompetition(ctx context.Context, comp *models.Competition) error {
	if comp.ExternalID == "" {
		return fmt.Errorf("competition %q has no external id", comp.Name)
	}

	var existing models.Competition
	err := s.db.WithContext(ctx).Where("external_id = ?", comp.ExternalID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.WithContext(ctx).Create(comp).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"name":             comp.Name,
		"country":          comp.Country,
		"city":             comp.City,
		"start_date":       comp.StartDate,
		"end_date":         comp.EndDate,
		"grade_level":      comp.GradeLevel,
		"points_available": comp.PointsAvailable,
		"status":           comp.Status,
	}
	return s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
}

// GetCalculation fetches the cached calculation for the composite key.
func (s *Store) GetCalculation(ctx context.Context, athleteID uuid.UUID, targetRank int, rankingType, category string) (*models.RankUpCalculation, error) {
	var calc models.RankUpCalculation
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND target_rank = ? AND ranking_type = ? AND category = ?",
			athleteID, targetRank, rankingType, category).
		First(&calc).Error
	if err != nil {
		return nil, err
	}
	return &calc, nil
}

// UpsertCalculation atomically inserts or replaces the cached calculation for
// its composite key. The conflict target is the 4-column unique index, so a
// concurrent recalculation simply lets the later write win.
func (s *Store) UpsertCalculation(ctx context.Context, calc *models.RankUpCalculation) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "athlete_id"},
			{Name: "target_rank"},
			{Name: "ranking_type"},
			{Name: "category"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"result", "created_at", "expires_at"}),
	}).Create(calc).Error
}

// PurgeExpiredCalculations drops cached rows past their TTL. Called from the
// background sync schedule; expiry is still checked lazily on read, so this is
// housekeeping rather than correctness.
func (s *Store) PurgeExpiredCalculations(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RankUpCalculation{})
	return res.RowsAffected, res.Error
}
