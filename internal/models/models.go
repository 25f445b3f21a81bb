package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Ranking types tracked independently per athlete/category
const (
	RankingTypeWorld   = "world"
	RankingTypeOlympic = "olympic"
)

// Competition lifecycle states
type CompetitionStatus string

const (
	StatusUpcoming  CompetitionStatus = "upcoming"
	StatusOngoing   CompetitionStatus = "ongoing"
	StatusCompleted CompetitionStatus = "completed"
	StatusCancelled CompetitionStatus = "cancelled"
)

// Athlete represents a ranked competitor
type Athlete struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name              string    `gorm:"not null" json:"name"`
	Country           string    `json:"country"`
	Category          string    `gorm:"index" json:"category"`
	LicenseID         string    `gorm:"index" json:"license_id,omitempty"`
	Club              string    `json:"club,omitempty"`
	WorldRankPoints   *float64  `json:"world_rank_points,omitempty"`
	OlympicRankPoints *float64  `json:"olympic_rank_points,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Athlete) TableName() string {
	return "athletes"
}

// AggregatePoints returns the athlete-level points total for a ranking type, if any
func (a *Athlete) AggregatePoints(rankingType string) *float64 {
	if rankingType == RankingTypeOlympic {
		return a.OlympicRankPoints
	}
	return a.WorldRankPoints
}

// Competition represents a sanctioned event carrying G-ranking points
type Competition struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ExternalID           string            `gorm:"index" json:"external_id"`
	Name                 string            `gorm:"not null" json:"name"`
	Country              string            `json:"country"`
	City                 string            `json:"city"`
	StartDate            time.Time         `gorm:"not null" json:"start_date"`
	EndDate              time.Time         `json:"end_date"`
	Category             string            `gorm:"index" json:"category"`
	GradeLevel           string            `gorm:"size:10" json:"grade_level"`
	PointsAvailable      float64           `json:"points_available"`
	CompetitionType      string            `json:"competition_type"`
	Status               CompetitionStatus `gorm:"size:20;index;default:'upcoming'" json:"status"`
	RegistrationDeadline *time.Time        `json:"registration_deadline,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func (Competition) TableName() string {
	return "competitions"
}

// AthleteRanking is a point-in-time ranking snapshot for (athlete, ranking type, category)
type AthleteRanking struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AthleteID    uuid.UUID `gorm:"type:uuid;not null;index" json:"athlete_id"`
	Athlete      *Athlete  `gorm:"foreignKey:AthleteID" json:"athlete,omitempty"`
	RankingType  string    `gorm:"size:20;not null;index:idx_ranking_scope" json:"ranking_type"`
	Category     string    `gorm:"size:50;not null;index:idx_ranking_scope" json:"category"`
	Rank         int       `gorm:"not null" json:"rank"`
	Points       *float64  `json:"points,omitempty"`
	PreviousRank *int      `json:"previous_rank,omitempty"`
	RankChange   *int      `json:"rank_change,omitempty"`
	RankingDate  time.Time `gorm:"not null;index" json:"ranking_date"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AthleteRanking) TableName() string {
	return "athlete_rankings"
}

// RankUpCalculation is a cached calculator output keyed by the 4-tuple
// (athlete, target rank, ranking type, category). The composite unique index
// backs the conflict target of the upsert, so at most one row exists per key.
type RankUpCalculation struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AthleteID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_rankup_key" json:"athlete_id"`
	TargetRank  int             `gorm:"not null;uniqueIndex:idx_rankup_key" json:"target_rank"`
	RankingType string          `gorm:"size:20;not null;uniqueIndex:idx_rankup_key" json:"ranking_type"`
	Category    string          `gorm:"size:50;not null;uniqueIndex:idx_rankup_key" json:"category"`
	Result      json.RawMessage `gorm:"type:jsonb" json:"result"`
	CreatedAt   time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt   time.Time       `gorm:"not null" json:"expires_at"`
}

func (RankUpCalculation) TableName() string {
	return "rank_up_calculations"
}

// IsExpired reports whether the cached row is past its TTL. Expiry is checked
// lazily on read; stale rows persist until overwritten.
func (c *RankUpCalculation) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// SuggestedCompetition is a candidate annotated with the running points total
// if every suggestion up to and including it is won
type SuggestedCompetition struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Country          string    `json:"country"`
	City             string    `json:"city"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	Category         string    `json:"category"`
	GradeLevel       string    `json:"grade_level"`
	PointsAvailable  float64   `json:"points_available"`
	CumulativePoints float64   `json:"cumulative_points"`
}

// PriorityCompetition is a strategy-plan entry naming a competition to target
type PriorityCompetition struct {
	CompetitionID     string  `json:"competition_id"`
	Name              string  `json:"name"`
	Points            float64 `json:"points"`
	Reasoning         string  `json:"reasoning"`
	RequiredPlacement string  `json:"required_placement"`
	DateRange         string  `json:"date_range"`
}

// StrategyPlan is the narrative + structured recommendation object. Every
// field is populated even on the deterministic fallback path.
type StrategyPlan struct {
	Strategy                       string                `json:"strategy"`
	PriorityCompetitions           []PriorityCompetition `json:"priority_competitions"`
	TotalPointsFromRecommendations float64               `json:"total_points_from_recommendations"`
	Timeline                       string                `json:"timeline"`
	RiskAssessment                 string                `json:"risk_assessment"`
	AlternativeStrategies          []string              `json:"alternative_strategies"`
}

// RankUpResult is the computed calculator output. Ephemeral, persisted only
// through RankUpCalculation.
type RankUpResult struct {
	AthleteID             uuid.UUID              `json:"athlete_id"`
	AthleteName           string                 `json:"athlete_name"`
	RankingType           string                 `json:"ranking_type"`
	Category              string                 `json:"category"`
	CurrentRank           int                    `json:"current_rank"`
	TargetRank            int                    `json:"target_rank"`
	CurrentPoints         float64                `json:"current_points"`
	TargetPoints          float64                `json:"target_points"`
	PointsNeeded          float64                `json:"points_needed"`
	MaintenanceMode       bool                   `json:"maintenance_mode"`
	SuggestedCompetitions []SuggestedCompetition `json:"suggested_competitions"`
	StrategyPlan          StrategyPlan           `json:"strategy_plan"`
	CalculatedAt          time.Time              `json:"calculated_at"`
	CacheHit              bool                   `json:"cache_hit"`
}
