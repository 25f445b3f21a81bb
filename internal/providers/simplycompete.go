package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SimplyCompeteProvider fetches the sanctioned event list from a
// SimplyCompete-backed federation site.
type SimplyCompeteProvider struct {
	httpClient *http.Client
	baseURL    string
	cookie     string
	logger     *logrus.Logger
}

// EventData is one event from the feed, reduced to the fields the sync needs.
type EventData struct {
	ID        string
	Name      string
	Location  string
	StartDate time.Time
	EndDate   time.Time
}

// ParticipantData is one registered athlete from an event's participant list.
type ParticipantData struct {
	Name      string
	Country   string
	Division  string
	Club      string
	LicenseID string
}

func NewSimplyCompeteProvider(baseURL, cookie string, logger *logrus.Logger) *SimplyCompeteProvider {
	return &SimplyCompeteProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		cookie:     cookie,
		logger:     logger,
	}
}

// GetEventList fetches the current event list. The feed's envelope has shifted
// between deployments, so the payload is unwrapped defensively.
func (p *SimplyCompeteProvider) GetEventList(ctx context.Context) ([]EventData, error) {
	endpoint, err := url.Parse(p.baseURL + "/events/eventList")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	query := endpoint.Query()
	query.Set("da", "true")
	query.Set("eventType", "All")
	query.Set("invitationStatus", "all")
	query.Set("isArchived", "false")
	query.Set("itemsPerPage", "50")
	query.Set("pageNumber", "1")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", p.baseURL+"/events")
	if p.cookie != "" {
		req.Header.Set("Cookie", p.cookie)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event list request returned status %d", resp.StatusCode)
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode event list: %w", err)
	}

	events := extractEvents(payload)
	if events == nil {
		return nil, fmt.Errorf("unexpected event list structure")
	}

	parsed := make([]EventData, 0, len(events))
	for _, raw := range events {
		event, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		data := EventData{
			ID:        stringField(event, "id"),
			Name:      stringField(event, "name"),
			Location:  stringField(event, "location"),
			StartDate: dateField(event, "startDate", "date"),
			EndDate:   dateField(event, "endDate"),
		}
		// Skip entries missing the required fields
		if data.ID == "" || data.Name == "" {
			continue
		}
		parsed = append(parsed, data)
	}

	p.logger.WithField("count", len(parsed)).Info("Fetched events from SimplyCompete")
	return parsed, nil
}

// maxParticipantPages caps pagination in case the feed never returns an
// empty page.
const maxParticipantPages = 100

// GetEventParticipants fetches every page of an event's registration list.
// Pagination stops at the first empty page.
func (p *SimplyCompeteProvider) GetEventParticipants(ctx context.Context, eventID string) ([]ParticipantData, error) {
	participants := make([]ParticipantData, 0)
	for page := 0; page < maxParticipantPages; page++ {
		batch, err := p.fetchParticipantPage(ctx, eventID, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		participants = append(participants, batch...)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"count":    len(participants),
	}).Info("Fetched participants from SimplyCompete")
	return participants, nil
}

func (p *SimplyCompeteProvider) fetchParticipantPage(ctx context.Context, eventID string, page int) ([]ParticipantData, error) {
	endpoint, err := url.Parse(p.baseURL + "/events/getEventParticipant")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	query := endpoint.Query()
	query.Set("eventId", eventID)
	query.Set("isHideUnpaidEntries", "false")
	query.Set("pageNo", strconv.Itoa(page))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", p.baseURL+"/eventDetails/"+eventID+"/5")
	if p.cookie != "" {
		req.Header.Set("Cookie", p.cookie)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("participant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("participant request returned status %d", resp.StatusCode)
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode participant list: %w", err)
	}

	parsed := make([]ParticipantData, 0)
	for _, raw := range extractParticipants(payload) {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		first := stringField(entry, "preferredFirstName", "firstName")
		last := stringField(entry, "preferredLastName", "lastName")
		data := ParticipantData{
			Name:      strings.TrimSpace(first + " " + last),
			Country:   stringField(entry, "country"),
			Division:  stringField(entry, "divisionName"),
			Club:      stringField(entry, "clubName", "customClubName"),
			LicenseID: stringField(entry, "wtfLicenseId"),
		}
		if data.Name == "" {
			continue
		}
		parsed = append(parsed, data)
	}
	return parsed, nil
}

// extractParticipants walks the feed's nested envelope (participantList sits
// under data.data on current deployments) until it finds the list. A missing
// list reads as an empty page, mirroring how the feed signals the end of
// pagination.
func extractParticipants(payload interface{}) []interface{} {
	node, ok := payload.(map[string]interface{})
	for ok {
		if list, isList := node["participantList"].([]interface{}); isList {
			return list
		}
		node, ok = node["data"].(map[string]interface{})
	}
	return nil
}

// extractEvents unwraps the event array from whichever envelope key the feed
// used: events, data, content, or a bare top-level array.
func extractEvents(payload interface{}) []interface{} {
	if list, ok := payload.([]interface{}); ok {
		return list
	}
	envelope, ok := payload.(map[string]interface{})
	if !ok {
		return nil
	}
	for _, key := range []string{"events", "data", "content"} {
		if list, ok := envelope[key].([]interface{}); ok {
			return list
		}
	}
	return nil
}

func stringField(event map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := event[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
}

func dateField(event map[string]interface{}, keys ...string) time.Time {
	raw := stringField(event, keys...)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
