package availability

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AnyStaff is the "any available" sentinel accepted by the booking flows. It must be
// resolved to a concrete staff id before asking for availability.
const AnyStaff = "any"

var ErrStaffUnresolved = errors.New("staff must be resolved before computing availability")

// Source loads the exclusions for a day.
type Source interface {
	BookedTimes(ctx context.Context, locationID, staffID string, date time.Time) ([]Clock, error)
	BlockedTimes(ctx context.Context, staffID string, date time.Time) ([]Clock, error)
}

type Resolver struct {
	source   Source
	template Template
	loc      *time.Location
	now      func() time.Time
}

func NewResolver(source Source, template Template, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{source: source, template: template, loc: loc, now: time.Now}
}

func (r *Resolver) Template() Template {
	return r.template
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Available returns the free times for staff at location on date. Past dates have no
// availability; on the current day, times that already started are dropped.
func (r *Resolver) Available(ctx context.Context, locationID, staffID string, date time.Time) ([]Clock, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" || strings.EqualFold(staffID, AnyStaff) {
		return nil, ErrStaffUnresolved
	}

	now := r.now().In(r.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
	if day.Before(today) {
		return []Clock{}, nil
	}

	booked, err := r.source.BookedTimes(ctx, locationID, staffID, day)
	if err != nil {
		return nil, err
	}
	blocked, err := r.source.BlockedTimes(ctx, staffID, day)
	if err != nil {
		return nil, err
	}

	free := FreeTimes(r.template, booked, blocked)
	if !day.Equal(today) {
		return free, nil
	}
	upcoming := free[:0]
	for _, c := range free {
		if c.On(day, r.loc).After(now) {
			upcoming = append(upcoming, c)
		}
	}
	return upcoming, nil
}

// Bookable reports whether c on date is a template time that has not started yet.
// It does not look at bookings or blocks.
func (r *Resolver) Bookable(date time.Time, c Clock) bool {
	if !r.template.Contains(c) {
		return false
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
	return c.On(day, r.loc).After(r.now().In(r.loc))
}

// Today returns the current civil date in the resolver location.
func (r *Resolver) Today() time.Time {
	now := r.now().In(r.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
}

// ParseDate parses a civil date "YYYY-MM-DD" in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
}
