package render

import (
	"encoding/json"
	"io"
	"time"

	"spondcal/internal/model"
)

// EventJSON is the JSON shape of one agenda row.
type EventJSON struct {
	ID             string     `json:"id,omitempty"`
	Heading        string     `json:"heading"`
	StartDate      string     `json:"start_date"`
	StartTimeLocal string     `json:"start_time"`
	EndTimeLocal   string     `json:"end_time"`
	Description    string     `json:"description"`
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
}

// Feed is the JSON document returned for an agenda.
type Feed struct {
	Events          []EventJSON `json:"events"`
	DisplayTimeZone string      `json:"display_timezone"`
}

// NewFeed converts rows into a Feed. Events is never nil.
func NewFeed(views []model.EventView, zone string) Feed {
	events := make([]EventJSON, 0, len(views))
	for _, v := range views {
		e := EventJSON{
			ID:             v.ID,
			Heading:        v.Heading,
			StartDate:      v.StartDate,
			StartTimeLocal: v.StartTimeLocal,
			EndTimeLocal:   v.EndTimeLocal,
			Description:    v.Description,
		}
		if !v.Start.IsZero() {
			start := v.Start
			e.Start = &start
		}
		if !v.End.IsZero() {
			end := v.End
			e.End = &end
		}
		events = append(events, e)
	}
	return Feed{Events: events, DisplayTimeZone: zone}
}

// JSON writes the agenda as an indented Feed document.
func JSON(w io.Writer, views []model.EventView, zone string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewFeed(views, zone))
}
