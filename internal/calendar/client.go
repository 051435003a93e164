// Package calendar is the read-only Google Calendar collaborator. The
// resolver only ever sees a bounded window of events, fetched fresh each
// cycle; nothing is cached across cycles.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"statuslight/internal/status"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client lists meeting events for one calendar over a bounded time window.
type Client interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int64) ([]status.MeetingEvent, error)
}

// GoogleClient implements Client against the Google Calendar API.
type GoogleClient struct {
	svc    *gcal.Service
	logger *zap.Logger
}

// NewGoogleClient builds a client from an OAuth2 token source. The consent
// flow that produced the token is someone else's problem.
func NewGoogleClient(ctx context.Context, ts oauth2.TokenSource, logger *zap.Logger) (*GoogleClient, error) {
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleClient{
		svc:    svc,
		logger: logger.Named("calendar"),
	}, nil
}

// ListEvents returns the timed events in [timeMin, timeMax], expanded to
// single instances and ordered by start time. All-day events carry no
// meaningful start instant and are skipped.
func (c *GoogleClient) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int64) ([]status.MeetingEvent, error) {
	call := c.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)

	result, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", calendarID, err)
	}

	events := make([]status.MeetingEvent, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Start == nil || item.End == nil || item.Start.DateTime == "" {
			continue
		}

		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			c.logger.Warn("Skipping event with unparseable start",
				zap.String("event_id", item.Id),
				zap.String("summary", item.Summary),
				zap.Error(err))
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			c.logger.Warn("Skipping event with unparseable end",
				zap.String("event_id", item.Id),
				zap.String("summary", item.Summary),
				zap.Error(err))
			continue
		}

		events = append(events, status.MeetingEvent{
			ID:      item.Id,
			Summary: item.Summary,
			Start:   start,
			End:     end,
		})
	}

	c.logger.Debug("Fetched calendar window",
		zap.String("calendar_id", calendarID),
		zap.Time("time_min", timeMin),
		zap.Time("time_max", timeMax),
		zap.Int("events", len(events)))

	return events, nil
}

// IsAuthError reports whether err is an authentication/authorization
// failure. On one of these the daemon disables calendar sync persistently
// instead of crash-looping against a dead token.
func IsAuthError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
	}

	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}
