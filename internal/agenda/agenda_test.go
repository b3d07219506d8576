package agenda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spondcal/internal/model"
	"spondcal/internal/settings"
	"spondcal/internal/spond"
)

// stubTransport answers Spond API calls from memory.
type stubTransport struct {
	mu     sync.Mutex
	logins []string
	urls   []string
	events string
	groups string
}

func (s *stubTransport) Post(_ context.Context, url string, _ http.Header, body []byte) ([]byte, error) {
	var req map[string]string
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.logins = append(s.logins, req["email"])
	s.mu.Unlock()
	return []byte(`{"loginToken":"tok-` + req["email"] + `"}`), nil
}

func (s *stubTransport) Get(_ context.Context, url string, _ http.Header) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	if strings.Contains(url, "/groups/") {
		return []byte(s.groups), nil
	}
	return []byte(s.events), nil
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *settings.SQLiteStore, *stubTransport) {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tr := &stubTransport{
		events: `[
			{"heading":"A","startTimestamp":"2024-06-02T10:00:00Z","endTimestamp":"2024-06-02T11:00:00Z"},
			{"heading":"B","startTimestamp":"2024-06-03T10:00:00Z","endTimestamp":"2024-06-03T11:00:00Z"},
			{"heading":"C","startTimestamp":"2024-06-04T10:00:00Z","endTimestamp":"2024-06-04T11:00:00Z"}
		]`,
		groups: `[{"id":"G1","name":"First"},{"id":"G2","name":"Second"}]`,
	}
	svc := NewService(store, Options{
		APIURL:    "https://api.example.test/core/v1/",
		Location:  time.UTC,
		Defaults:  model.DisplayOptions{SortOrder: model.SortAscending, MaxEvents: 2},
		Transport: tr,
		Clock:     func() time.Time { return now },
	})
	return svc, store, tr
}

func TestEvents_NoCredentials(t *testing.T) {
	svc, _, tr := newTestService(t)

	_, err := svc.Events(context.Background(), Request{GroupID: "G1"})
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Empty(t, tr.logins)

	assert.Equal(t, []string{}, svc.GroupIDs(context.Background()))
}

func TestEvents_UsesSavedSelection(t *testing.T) {
	ctx := context.Background()
	svc, store, tr := newTestService(t)
	require.NoError(t, settings.SaveCredentials(ctx, store, model.Credentials{Email: "a@x", Password: "pw"}))
	require.NoError(t, settings.SaveSelection(ctx, store, settings.Selection{
		GroupID: "G2",
		Display: model.DisplayOptions{SortOrder: model.SortDescending, MaxEvents: 2},
	}))

	views, err := svc.Events(ctx, Request{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	// Descending keeps the tail of the latest-first order.
	assert.Equal(t, "B", views[0].Heading)
	assert.Equal(t, "A", views[1].Heading)
	assert.Contains(t, tr.urls[0], "sponds/?groupId=G2")

	views, err = svc.Events(ctx, Request{GroupID: "G1", SortOrder: "asc", MaxEvents: 1})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "A", views[0].Heading)
	assert.Contains(t, tr.urls[1], "groupId=G1")

	assert.Equal(t, []string{"a@x"}, tr.logins, "token reused across requests")
}

func TestEvents_NoGroup(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	require.NoError(t, settings.SaveCredentials(ctx, store, model.Credentials{Email: "a@x", Password: "pw"}))

	_, err := svc.Events(ctx, Request{})
	assert.ErrorIs(t, err, ErrNoGroup)
}

func TestService_NewSessionWhenCredentialsChange(t *testing.T) {
	ctx := context.Background()
	svc, store, tr := newTestService(t)
	require.NoError(t, settings.SaveCredentials(ctx, store, model.Credentials{Email: "a@x", Password: "pw"}))

	assert.Equal(t, []string{"G1", "G2"}, svc.GroupIDs(ctx))

	require.NoError(t, settings.SaveCredentials(ctx, store, model.Credentials{Email: "b@x", Password: "pw"}))
	groups, err := svc.Groups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	assert.Equal(t, []string{"a@x", "b@x"}, tr.logins)
}

func TestResolve_Defaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	group, display, err := svc.Resolve(context.Background(), Request{SortOrder: "weird", MaxEvents: -1})
	require.NoError(t, err)
	assert.Empty(t, group)
	assert.Equal(t, model.DisplayOptions{SortOrder: model.SortAscending, MaxEvents: model.DefaultMaxEvents}, display)
}

var _ spond.Transport = (*stubTransport)(nil)

// rotatingTransport issues tok-1, tok-2, ... and only accepts the newest
// token that has not been revoked.
type rotatingTransport struct {
	mu      sync.Mutex
	logins  int
	revoked bool
	always  bool // reject every token
	events  string
}

func (r *rotatingTransport) Post(context.Context, string, http.Header, []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins++
	r.revoked = false
	return []byte(fmt.Sprintf(`{"loginToken":"tok-%d"}`, r.logins)), nil
}

func (r *rotatingTransport) Get(_ context.Context, url string, h http.Header) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.always || r.revoked || h.Get("Authorization") != fmt.Sprintf("Bearer tok-%d", r.logins) {
		return nil, &spond.StatusError{Code: http.StatusUnauthorized, Status: "401 Unauthorized"}
	}
	if strings.Contains(url, "/groups/") {
		return []byte(`[{"id":"G1"}]`), nil
	}
	return []byte(r.events), nil
}

func (r *rotatingTransport) revoke() {
	r.mu.Lock()
	r.revoked = true
	r.mu.Unlock()
}

func (r *rotatingTransport) loginCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logins
}

func newRotatingService(t *testing.T, tr *rotatingTransport) *Service {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, settings.SaveCredentials(context.Background(), store, model.Credentials{Email: "a@x", Password: "pw"}))

	return NewService(store, Options{
		Location:  time.UTC,
		Transport: tr,
		Clock:     func() time.Time { return now },
	})
}

func TestEvents_LogsInAgainWhenTokenRejected(t *testing.T) {
	ctx := context.Background()
	tr := &rotatingTransport{events: `[{"heading":"A","startTimestamp":"2024-06-02T10:00:00Z","endTimestamp":"2024-06-02T11:00:00Z"}]`}
	svc := newRotatingService(t, tr)

	views, err := svc.Events(ctx, Request{GroupID: "G1"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 1, tr.loginCount())

	tr.revoke()
	for i := 0; i < 3; i++ {
		views, err = svc.Events(ctx, Request{GroupID: "G1"})
		require.NoError(t, err)
		assert.Len(t, views, 1)
	}
	assert.Equal(t, 2, tr.loginCount(), "one fresh login after the token was revoked")

	tr.revoke()
	assert.Equal(t, []string{"G1"}, svc.GroupIDs(ctx))
	assert.Equal(t, 3, tr.loginCount())
}

func TestEvents_RejectedAfterReloginIsReturned(t *testing.T) {
	ctx := context.Background()
	tr := &rotatingTransport{always: true}
	svc := newRotatingService(t, tr)

	_, err := svc.Events(ctx, Request{GroupID: "G1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, spond.ErrTransport)
	assert.True(t, spond.IsUnauthorized(err))
	assert.Equal(t, 2, tr.loginCount(), "no more than one forced login per call")

	assert.Equal(t, []string{}, svc.GroupIDs(ctx))
}
