// Package gcal adapts a Google Calendar to schedule.Oracle. Each event's
// summary names who is on call for that event's time span.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/linnemanlabs/beacon/internal/schedule"
)

var _ schedule.Oracle = (*Oracle)(nil)

// Oracle reads rotation events from one calendar.
type Oracle struct {
	svc        *calendar.Service
	calendarID string
}

// New builds an Oracle for calendarID. opts carry credentials and transport,
// e.g. option.WithCredentialsFile and option.WithHTTPClient.
func New(ctx context.Context, calendarID string, opts ...option.ClientOption) (*Oracle, error) {
	if calendarID == "" {
		return nil, errors.New("gcal: calendar id is required")
	}
	opts = append([]option.ClientOption{option.WithScopes(calendar.CalendarReadonlyScope)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar.NewService: %w", err)
	}
	return &Oracle{svc: svc, calendarID: calendarID}, nil
}

// TimeZone implements schedule.Oracle.
func (o *Oracle) TimeZone(ctx context.Context) (string, error) {
	cal, err := o.svc.Calendars.Get(o.calendarID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get calendar %s: %w", o.calendarID, err)
	}
	return cal.TimeZone, nil
}

// Events implements schedule.Oracle. Recurring events are expanded into
// single instances and returned in start order.
func (o *Oracle) Events(ctx context.Context, from, to time.Time) ([]schedule.Event, error) {
	call := o.svc.Events.List(o.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Fields("nextPageToken", "items(summary,start,end,status)")

	var out []schedule.Event
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" || item.Start == nil || item.End == nil {
				continue
			}
			start, err := boundary(item.Start)
			if err != nil {
				return fmt.Errorf("event %q start: %w", item.Summary, err)
			}
			end, err := boundary(item.End)
			if err != nil {
				return fmt.Errorf("event %q end: %w", item.Summary, err)
			}
			out = append(out, schedule.Event{Summary: item.Summary, Start: start, End: end})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", o.calendarID, err)
	}
	return out, nil
}

func boundary(dt *calendar.EventDateTime) (schedule.Boundary, error) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return schedule.Boundary{}, err
		}
		return schedule.Boundary{DateTime: t}, nil
	}
	return schedule.Boundary{Date: dt.Date}, nil
}
