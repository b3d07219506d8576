package spond

import (
	"context"
	"net/url"
	"time"

	appLog "spondcal/internal/log"
	"spondcal/internal/model"
)

// DefaultDisplayZone is the zone agenda times are rendered in when none is
// configured.
const DefaultDisplayZone = "Europe/Amsterdam"

// Pipeline turns a group's events into display-ready agenda rows.
type Pipeline struct {
	client *Client
	loc    *time.Location
	now    func() time.Time
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithDisplayLocation sets the zone start/end times are rendered in.
func WithDisplayLocation(loc *time.Location) PipelineOption {
	return func(p *Pipeline) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock overrides the source of "now" used by the expiry filter.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline creates a Pipeline on top of client. Without
// WithDisplayLocation it renders in DefaultDisplayZone, or UTC if that
// zone is unknown to the host.
func NewPipeline(client *Client, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.loc == nil {
		p.loc = LoadDisplayLocation(DefaultDisplayZone)
	}
	return p
}

// LoadDisplayLocation resolves name, falling back to UTC.
func LoadDisplayLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load display timezone; falling back to UTC", err, "name", name)
		return time.UTC
	}
	return loc
}

// Client returns the session client the pipeline fetches through.
func (p *Pipeline) Client() *Client {
	return p.client
}

// Location returns the display zone.
func (p *Pipeline) Location() *time.Location {
	return p.loc
}

// FetchEvents returns the agenda for groupID.
//
// Behavior:
//   - logs in if no token is held
//   - drops events whose end is not strictly after now (unparsable or
//     missing ends count as expired)
//   - sorts stably by start; unparsable starts sort as the earliest instant
//   - ascending keeps the first MaxEvents, descending keeps the last
//     MaxEvents of the latest-first order
//   - formats the remaining events, skipping any that expired meanwhile
//
// Login, transport and decode failures are returned as *AuthError,
// *TransportError and *DecodeError.
func (p *Pipeline) FetchEvents(ctx context.Context, groupID string, opts model.DisplayOptions) ([]model.EventView, error) {
	opts = opts.Normalize()

	body, err := p.client.get(ctx, "fetch events", "sponds/?groupId="+url.QueryEscape(groupID))
	if err != nil {
		appLog.Error("spond fetch events failed", err, "group", groupID)
		return nil, err
	}

	events, err := DecodeEvents(body)
	if err != nil {
		derr := &DecodeError{Operation: "fetch events", Err: err}
		appLog.Error("spond fetch events decode failed", derr, "group", groupID)
		return nil, derr
	}

	upcoming := FilterUpcoming(events, p.now())
	SortEvents(upcoming, opts.SortOrder)
	kept := Truncate(upcoming, opts.SortOrder, opts.MaxEvents)

	now := p.now()
	views := make([]model.EventView, 0, len(kept))
	for _, ev := range kept {
		if !IsUpcoming(ev, now) {
			continue
		}
		views = append(views, toView(ev, p.loc))
	}

	appLog.Info("spond fetch events",
		"group", groupID,
		"received", len(events),
		"upcoming", len(upcoming),
		"returned", len(views),
		"sorting", string(opts.SortOrder),
		"max_events", opts.MaxEvents,
	)
	return views, nil
}
