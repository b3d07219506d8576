package render

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"spondcal/internal/model"
)

// ICS writes the agenda as an iCalendar feed so it can be subscribed to
// from a calendar app. Rows without a parseable start or end are skipped.
func ICS(w io.Writer, views []model.EventView, calName string, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//spondcal//agenda//EN")
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	for _, v := range views {
		if v.Start.IsZero() || v.End.IsZero() {
			continue
		}
		ev := cal.AddEvent(eventUID(v))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(v.Start.UTC())
		ev.SetEndAt(v.End.UTC())
		ev.SetSummary(v.Heading)
		if v.Description != "" && v.Description != model.NotAvailable {
			ev.SetDescription(v.Description)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

// eventUID prefers the API id and otherwise derives a stable id from the
// heading and start instant.
func eventUID(v model.EventView) string {
	if v.ID != "" {
		return v.ID + "@spondcal"
	}
	sum := sha256.Sum256([]byte(v.Heading + "|" + v.Start.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:8]) + "@spondcal"
}
