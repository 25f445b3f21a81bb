package services

import (
	"context"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alhassanaraouf/the360insights-sub001/internal/models"
	"github.com/alhassanaraouf/the360insights-sub001/internal/points"
	"github.com/alhassanaraouf/the360insights-sub001/internal/providers"
	"github.com/alhassanaraouf/the360insights-sub001/internal/storage"
)

// CompetitionSyncService pulls the federation event feed and upserts
// competitions, deriving grade, variant, and available points from the event
// name.
type CompetitionSyncService struct {
	store    *storage.Store
	provider *providers.SimplyCompeteProvider
	table    *points.Table
	logger   *logrus.Logger
}

func NewCompetitionSyncService(
	store *storage.Store,
	provider *providers.SimplyCompeteProvider,
	table *points.Table,
	logger *logrus.Logger,
) *CompetitionSyncService {
	return &CompetitionSyncService{
		store:    store,
		provider: provider,
		table:    table,
		logger:   logger,
	}
}

// SyncCompetitions fetches the event list and stores each event, returning
// the number synced. Per-event failures are logged and skipped so one bad row
// can't abort the batch.
func (s *CompetitionSyncService) SyncCompetitions(ctx context.Context) (int, error) {
	s.logger.Info("Starting competition sync")

	events, err := s.provider.GetEventList(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	now := time.Now()
	for _, event := range events {
		comp := s.competitionFromEvent(event, now)
		if err := s.store.UpsertCompetition(ctx, comp); err != nil {
			s.logger.WithError(err).WithField("event", event.Name).Error("Failed to upsert competition")
			continue
		}
		synced++
	}

	s.logger.WithFields(logrus.Fields{
		"fetched": len(events),
		"synced":  synced,
	}).Info("Competition sync completed")
	return synced, nil
}

// SyncParticipants fetches a competition's registration list and upserts each
// athlete, returning the number stored. Divisions map onto athlete categories.
func (s *CompetitionSyncService) SyncParticipants(ctx context.Context, comp *models.Competition) (int, error) {
	participants, err := s.provider.GetEventParticipants(ctx, comp.ExternalID)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, part := range participants {
		athlete := athleteFromParticipant(part)
		if athlete == nil {
			continue
		}
		if err := s.store.UpsertAthlete(ctx, athlete); err != nil {
			s.logger.WithError(err).WithField("athlete", part.Name).Error("Failed to upsert athlete")
			continue
		}
		synced++
	}

	s.logger.WithFields(logrus.Fields{
		"competition": comp.Name,
		"fetched":     len(participants),
		"synced":      synced,
	}).Info("Participant sync completed")
	return synced, nil
}

func athleteFromParticipant(part providers.ParticipantData) *models.Athlete {
	if part.Name == "" {
		return nil
	}
	return &models.Athlete{
		Name:      part.Name,
		Country:   part.Country,
		Category:  part.Division,
		LicenseID: part.LicenseID,
		Club:      part.Club,
	}
}

var gradePattern = regexp.MustCompile(`(?i)\bG[\s-]?(\d{1,2})\b`)

func (s *CompetitionSyncService) competitionFromEvent(event providers.EventData, now time.Time) *models.Competition {
	grade := parseGradeLevel(event.Name)
	classification := points.Classify(event.Name)
	maxPoints := s.table.PointsFor(grade, 1, classification.ChallengeVariant, classification.FinalVariant)

	endDate := event.EndDate
	if endDate.IsZero() {
		endDate = event.StartDate
	}

	return &models.Competition{
		ExternalID:      event.ID,
		Name:            event.Name,
		City:            event.Location,
		StartDate:       event.StartDate,
		EndDate:         endDate,
		GradeLevel:      grade,
		PointsAvailable: maxPoints.InexactFloat64(),
		CompetitionType: competitionType(classification),
		Status:          statusFor(event.StartDate, endDate, now),
	}
}

// parseGradeLevel pulls a "G-4" / "G14" style token out of the event name.
// Events without a grade token default to G1, the lowest sanctioned tier.
func parseGradeLevel(name string) string {
	match := gradePattern.FindStringSubmatch(name)
	if match == nil {
		return "G1"
	}
	return "G" + match[1]
}

func competitionType(c points.Classification) string {
	switch {
	case c.FinalVariant:
		return "grand_prix_final"
	case c.ChallengeVariant:
		return "grand_prix_challenge"
	default:
		return "open"
	}
}

func statusFor(start, end, now time.Time) models.CompetitionStatus {
	switch {
	case start.IsZero():
		return models.StatusUpcoming
	case now.Before(start):
		return models.StatusUpcoming
	case !end.IsZero() && now.After(end.AddDate(0, 0, 1)):
		return models.StatusCompleted
	default:
		return models.StatusOngoing
	}
}
