// Package agenda wires the settings store to the Spond client: it reads
// the saved account and selection, logs in and produces the agenda.
package agenda

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "spondcal/internal/log"
	"spondcal/internal/model"
	"spondcal/internal/settings"
	"spondcal/internal/spond"
)

// ErrNoCredentials is returned when no account has been saved. Callers
// render render.MissingCredentialsMessage for it.
var ErrNoCredentials = errors.New("agenda: no credentials configured")

// ErrNoGroup is returned when no group was requested and none is saved.
var ErrNoGroup = errors.New("agenda: no group selected")

// Options configures a Service.
type Options struct {
	APIURL   string
	Location *time.Location
	Defaults model.DisplayOptions

	// Transport overrides the HTTP transport (tests, custom hosts).
	Transport spond.Transport
	// Clock overrides time.Now for the expiry filter.
	Clock func() time.Time
}

// Request selects the agenda to build. Empty fields fall back to the saved
// selection, then to the configured defaults.
type Request struct {
	GroupID   string
	SortOrder string
	MaxEvents int
}

// Service builds agendas for the account stored in the settings store.
//
// One spond.Client is kept per credentials so the access token is reused
// across requests; it is replaced when the saved account changes.
type Service struct {
	store settings.Store
	opts  Options

	mu       sync.Mutex
	creds    model.Credentials
	pipeline *spond.Pipeline
}

func NewService(store settings.Store, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = spond.LoadDisplayLocation(spond.DefaultDisplayZone)
	}
	opts.Defaults = opts.Defaults.Normalize()
	return &Service{
		store: store,
		opts:  opts,
	}
}

// Location returns the display zone.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// pipelineFor returns the pipeline for the saved account, creating a new
// client when the credentials changed.
func (s *Service) pipelineFor(ctx context.Context) (*spond.Pipeline, error) {
	creds, err := settings.LoadCredentials(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if creds.Empty() {
		return nil, ErrNoCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil && s.creds == creds {
		return s.pipeline, nil
	}

	var clientOpts []spond.Option
	if s.opts.Transport != nil {
		clientOpts = append(clientOpts, spond.WithTransport(s.opts.Transport))
	}
	client := spond.NewClient(s.opts.APIURL, creds, clientOpts...)
	s.pipeline = spond.NewPipeline(client,
		spond.WithDisplayLocation(s.opts.Location),
		spond.WithClock(s.opts.Clock),
	)
	s.creds = creds
	appLog.Info("agenda: new spond session", "email", creds.Email)
	return s.pipeline, nil
}

// Resolve merges req with the saved selection and defaults.
func (s *Service) Resolve(ctx context.Context, req Request) (string, model.DisplayOptions, error) {
	sel, err := settings.LoadSelection(ctx, s.store, s.opts.Defaults)
	if err != nil {
		return "", model.DisplayOptions{}, err
	}

	groupID := req.GroupID
	if groupID == "" {
		groupID = sel.GroupID
	}
	display := sel.Display
	if req.SortOrder != "" {
		display.SortOrder = model.SortOrder(req.SortOrder)
	}
	if req.MaxEvents != 0 {
		display.MaxEvents = req.MaxEvents
	}
	return groupID, display.Normalize(), nil
}

// Events returns the agenda for req.
func (s *Service) Events(ctx context.Context, req Request) ([]model.EventView, error) {
	p, err := s.pipelineFor(ctx)
	if err != nil {
		return nil, err
	}
	groupID, display, err := s.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if groupID == "" {
		return nil, ErrNoGroup
	}
	return withRelogin(ctx, p, func() ([]model.EventView, error) {
		return p.FetchEvents(ctx, groupID, display)
	})
}

// GroupIDs lists the account's groups for a selection UI. Missing
// credentials yield an empty list like any other failure.
func (s *Service) GroupIDs(ctx context.Context) []string {
	p, err := s.pipelineFor(ctx)
	if err != nil {
		appLog.Warn("agenda: cannot list groups", "err", err)
		return []string{}
	}
	ids, err := withRelogin(ctx, p, func() ([]string, error) {
		return p.GroupIDs(ctx)
	})
	if err != nil {
		appLog.Error("agenda: cannot list groups", err)
		return []string{}
	}
	return ids
}

// Groups returns the full group records.
func (s *Service) Groups(ctx context.Context) ([]spond.Group, error) {
	p, err := s.pipelineFor(ctx)
	if err != nil {
		return nil, err
	}
	return withRelogin(ctx, p, func() ([]spond.Group, error) {
		return p.Groups(ctx)
	})
}

// withRelogin runs fn and, if the API rejected the held token, forces one
// fresh login and runs fn again. Any other error is returned as is.
func withRelogin[T any](ctx context.Context, p *spond.Pipeline, fn func() (T, error)) (T, error) {
	out, err := fn()
	if !spond.IsUnauthorized(err) {
		return out, err
	}

	appLog.Warn("agenda: token rejected, logging in again")
	if _, lerr := p.Client().Login(ctx); lerr != nil {
		var zero T
		return zero, lerr
	}
	return fn()
}
