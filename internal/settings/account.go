package settings

import (
	"context"
	"strconv"

	"spondcal/internal/model"
)

// Setting keys.
const (
	KeyUsername        = "spond_login_username"
	KeyPassword        = "spond_login_password"
	KeySelectedGroupID = "spond_selected_group_id"
	KeySelectedSorting = "spond_selected_sorting"
	KeyMaxEvents       = "spond_max_events"
)

// LoadCredentials returns the saved account. Missing keys yield empty
// fields; callers check Credentials.Empty.
func LoadCredentials(ctx context.Context, s Store) (model.Credentials, error) {
	email, err := s.Get(ctx, KeyUsername, "")
	if err != nil {
		return model.Credentials{}, err
	}
	password, err := s.Get(ctx, KeyPassword, "")
	if err != nil {
		return model.Credentials{}, err
	}
	return model.Credentials{Email: email, Password: password}, nil
}

func SaveCredentials(ctx context.Context, s Store, creds model.Credentials) error {
	if err := s.Set(ctx, KeyUsername, creds.Email); err != nil {
		return err
	}
	return s.Set(ctx, KeyPassword, creds.Password)
}

// Logout forgets the saved account. The group selection is kept.
func Logout(ctx context.Context, s Store) error {
	if err := s.Delete(ctx, KeyPassword); err != nil {
		return err
	}
	return s.Delete(ctx, KeyUsername)
}

// Selection is what the user picked in the settings UI.
type Selection struct {
	GroupID string
	Display model.DisplayOptions
}

// LoadSelection returns the saved group and display options, falling back
// to defaults for anything unset or invalid.
func LoadSelection(ctx context.Context, s Store, defaults model.DisplayOptions) (Selection, error) {
	var sel Selection

	groupID, err := s.Get(ctx, KeySelectedGroupID, "")
	if err != nil {
		return sel, err
	}
	sorting, err := s.Get(ctx, KeySelectedSorting, string(defaults.SortOrder))
	if err != nil {
		return sel, err
	}
	maxRaw, err := s.Get(ctx, KeyMaxEvents, "")
	if err != nil {
		return sel, err
	}

	maxEvents := defaults.MaxEvents
	if n, convErr := strconv.Atoi(maxRaw); convErr == nil && n > 0 {
		maxEvents = n
	}

	sel.GroupID = groupID
	sel.Display = model.DisplayOptions{
		SortOrder: model.SortOrder(sorting),
		MaxEvents: maxEvents,
	}.Normalize()
	return sel, nil
}

// SaveSelection stores the group and normalized display options.
func SaveSelection(ctx context.Context, s Store, sel Selection) error {
	display := sel.Display.Normalize()
	if err := s.Set(ctx, KeySelectedGroupID, sel.GroupID); err != nil {
		return err
	}
	if err := s.Set(ctx, KeySelectedSorting, string(display.SortOrder)); err != nil {
		return err
	}
	return s.Set(ctx, KeyMaxEvents, strconv.Itoa(display.MaxEvents))
}
