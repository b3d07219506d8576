package model

import (
	"strings"
	"time"
)

// NotAvailable is rendered for any event field the API did not provide.
const NotAvailable = "N/A"

// DefaultMaxEvents is used when a caller asks for a non-positive count.
const DefaultMaxEvents = 10

// Credentials identify one Spond account. They are supplied by the caller
// and never persisted by the API client itself.
type Credentials struct {
	Email    string
	Password string
}

// Empty reports whether either half of the credentials is missing.
func (c Credentials) Empty() bool {
	return c.Email == "" || c.Password == ""
}

// SortOrder controls the direction of the agenda.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// ParseSortOrder accepts "asc"/"desc" in any case. Anything else is
// ascending.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortDescending:
		return SortDescending
	default:
		return SortAscending
	}
}

// DisplayOptions describe how many events to show and in which order.
type DisplayOptions struct {
	SortOrder SortOrder
	MaxEvents int
}

// Normalize returns a copy with invalid values replaced by defaults:
// unknown sort orders become ascending and non-positive counts become
// DefaultMaxEvents.
func (o DisplayOptions) Normalize() DisplayOptions {
	o.SortOrder = ParseSortOrder(string(o.SortOrder))
	if o.MaxEvents <= 0 {
		o.MaxEvents = DefaultMaxEvents
	}
	return o
}

// EventView is a single agenda row, derived from one API event and ready
// for display. It is recomputed on every render.
type EventView struct {
	// ID is the API identifier of the event, or empty if absent.
	ID string

	Heading     string
	Description string

	// StartDate is the calendar date of the start, e.g. "Sat 01-06-2024".
	StartDate string

	// StartTimeLocal / EndTimeLocal are "HH:MM" in the display zone.
	StartTimeLocal string
	EndTimeLocal   string

	// Start / End are the parsed instants in the display zone. Start is the
	// zero time when the API value could not be parsed.
	Start time.Time
	End   time.Time
}
