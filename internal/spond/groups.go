package spond

import (
	"context"
	"errors"
	"fmt"

	appLog "spondcal/internal/log"
)

// Group is the subset of a Spond group record the agenda needs.
type Group struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Activity string `json:"activity"`
}

// ListGroupIDs returns the ids of every group the account belongs to, in
// API order. It never fails: login, transport and decode problems, or a
// first record without an id, all yield an empty list so a selection UI can
// show "no groups".
func (p *Pipeline) ListGroupIDs(ctx context.Context) []string {
	ids, err := p.GroupIDs(ctx)
	if err != nil {
		appLog.Error("spond list groups failed", err)
		return []string{}
	}
	return ids
}

// GroupIDs is the strict form of ListGroupIDs. A first record without an id
// is a DecodeError; later records without one are skipped.
func (p *Pipeline) GroupIDs(ctx context.Context) ([]string, error) {
	body, err := p.client.get(ctx, "list groups", "groups/")
	if err != nil {
		return nil, err
	}

	items, err := decodeArray(body)
	if err != nil {
		return nil, &DecodeError{Operation: "list groups", Err: err}
	}
	ids := []string{}
	if len(items) == 0 {
		return ids, nil
	}
	if _, ok := idField(decodeObject(items[0]), "id"); !ok {
		return nil, &DecodeError{Operation: "list groups", Err: errors.New("first record has no id")}
	}

	for _, item := range items {
		if id, ok := idField(decodeObject(item), "id"); ok {
			ids = append(ids, id)
		}
	}
	appLog.Debug("spond list groups", "count", len(ids))
	return ids, nil
}

// Groups returns the full group records. Unlike ListGroupIDs it reports
// failures to the caller.
func (p *Pipeline) Groups(ctx context.Context) ([]Group, error) {
	body, err := p.client.get(ctx, "list groups", "groups/")
	if err != nil {
		return nil, err
	}

	items, err := decodeArray(body)
	if err != nil {
		return nil, &DecodeError{Operation: "list groups", Err: err}
	}

	groups := make([]Group, 0, len(items))
	for _, item := range items {
		fields := decodeObject(item)
		id, ok := idField(fields, "id")
		if !ok {
			continue
		}
		g := Group{ID: id}
		g.Name, _ = stringField(fields, "name")
		g.Activity, _ = stringField(fields, "activity")
		groups = append(groups, g)
	}
	return groups, nil
}

// Group looks up a single group by id.
func (p *Pipeline) Group(ctx context.Context, id string) (Group, error) {
	groups, err := p.Groups(ctx)
	if err != nil {
		return Group{}, err
	}
	for _, g := range groups {
		if g.ID == id {
			return g, nil
		}
	}
	return Group{}, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
}
