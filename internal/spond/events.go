package spond

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"spondcal/internal/model"
)

// RawEvent is one record of the events endpoint. Optional string fields
// keep a flag so "absent" and "empty" stay distinguishable.
type RawEvent struct {
	ID             string
	Heading        string
	HasHeading     bool
	Description    string
	HasDescription bool
	StartTimestamp string
	HasStart       bool
	EndTimestamp   string
	HasEnd         bool
}

// DecodeEvents decodes an events response. The body must be a JSON array;
// anything else is an error. Individual records are decoded field by field:
// a record that is not an object, or a field of the wrong type, is treated
// as absent rather than failing the whole response.
func DecodeEvents(body []byte) ([]RawEvent, error) {
	items, err := decodeArray(body)
	if err != nil {
		return nil, err
	}

	events := make([]RawEvent, 0, len(items))
	for _, item := range items {
		fields := decodeObject(item)

		var ev RawEvent
		ev.ID, _ = idField(fields, "id")
		ev.Heading, ev.HasHeading = stringField(fields, "heading")
		ev.Description, ev.HasDescription = stringField(fields, "description")
		ev.StartTimestamp, ev.HasStart = stringField(fields, "startTimestamp")
		ev.EndTimestamp, ev.HasEnd = stringField(fields, "endTimestamp")
		events = append(events, ev)
	}
	return events, nil
}

func decodeArray(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] != '[' {
		return nil, errors.New("body is not a JSON array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeObject returns nil for anything that is not a JSON object.
func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

// present reports whether key exists with a non-null value.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return nil, false
	}
	return raw, true
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := present(fields, key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// idField accepts both string and numeric identifiers.
func idField(fields map[string]json.RawMessage, key string) (string, bool) {
	if s, ok := stringField(fields, key); ok {
		return s, true
	}
	raw, ok := present(fields, key)
	if !ok {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

// timestampLayouts are tried in order. Layouts without a zone are read
// as UTC. Fractional seconds are accepted after any seconds field.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an API timestamp. The returned time keeps the zone
// the value was written in (UTC when none was given).
func ParseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// startInstant is the sort key. Unparsable values map to the zero time,
// which is earlier than any real timestamp.
func startInstant(ev RawEvent) time.Time {
	if !ev.HasStart {
		return time.Time{}
	}
	t, ok := ParseTimestamp(ev.StartTimestamp)
	if !ok {
		return time.Time{}
	}
	return t
}

// IsUpcoming reports whether the event ends strictly after now. Events
// without a parseable end are never upcoming.
func IsUpcoming(ev RawEvent, now time.Time) bool {
	if !ev.HasEnd {
		return false
	}
	end, ok := ParseTimestamp(ev.EndTimestamp)
	if !ok {
		return false
	}
	return end.After(now)
}

// FilterUpcoming returns the upcoming events in their original order.
func FilterUpcoming(events []RawEvent, now time.Time) []RawEvent {
	out := make([]RawEvent, 0, len(events))
	for _, ev := range events {
		if IsUpcoming(ev, now) {
			out = append(out, ev)
		}
	}
	return out
}

// SortEvents sorts in place by start instant: earliest first for
// ascending, latest first for descending. The sort is stable.
func SortEvents(events []RawEvent, order model.SortOrder) {
	slices.SortStableFunc(events, func(a, b RawEvent) int {
		if order == model.SortDescending {
			return startInstant(b).Compare(startInstant(a))
		}
		return startInstant(a).Compare(startInstant(b))
	})
}

// Truncate keeps at most n events. Ascending keeps the head of the slice,
// descending keeps the tail.
func Truncate(events []RawEvent, order model.SortOrder, n int) []RawEvent {
	if n < 0 {
		n = 0
	}
	if len(events) <= n {
		return events
	}
	if order == model.SortDescending {
		return events[len(events)-n:]
	}
	return events[:n]
}

const (
	dateLayout = "Mon 02-01-2006"
	timeLayout = "15:04"
)

// toView formats ev for display in loc.
func toView(ev RawEvent, loc *time.Location) model.EventView {
	v := model.EventView{
		ID:             ev.ID,
		Heading:        orNA(ev.Heading, ev.HasHeading),
		Description:    orNA(ev.Description, ev.HasDescription),
		StartDate:      model.NotAvailable,
		StartTimeLocal: model.NotAvailable,
		EndTimeLocal:   model.NotAvailable,
	}

	if start, ok := ParseTimestamp(ev.StartTimestamp); ev.HasStart && ok {
		v.StartDate = start.Format(dateLayout)
		v.Start = start.In(loc)
		v.StartTimeLocal = v.Start.Format(timeLayout)
	}
	if end, ok := ParseTimestamp(ev.EndTimestamp); ev.HasEnd && ok {
		v.End = end.In(loc)
		v.EndTimeLocal = v.End.Format(timeLayout)
	}
	return v
}

func orNA(s string, present bool) string {
	if !present {
		return model.NotAvailable
	}
	return s
}
