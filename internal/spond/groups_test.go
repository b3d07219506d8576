package spond

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListGroupIDs(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   []string
	}{
		{"in order", 0, `[{"id":"A","name":"Alpha"},{"id":"B"}]`, []string{"A", "B"}},
		{"numeric ids", 0, `[{"id":17},{"id":"B"}]`, []string{"17", "B"}},
		{"later record without id skipped", 0, `[{"id":"A"},{"name":"x"},{"id":"C"}]`, []string{"A", "C"}},
		{"first record without id", 0, `[{"name":"x"},{"id":"B"}]`, []string{}},
		{"object body", 0, `{}`, []string{}},
		{"not json", 0, `nope`, []string{}},
		{"empty array", 0, `[]`, []string{}},
		{"http error", http.StatusBadGateway, `[{"id":"A"}]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			api.groupsStatus = tt.status
			api.groupsBody = tt.body
			p := newTestPipeline(t, api)

			got := p.ListGroupIDs(context.Background())
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListGroupIDs_LoginFailureIsEmpty(t *testing.T) {
	api := newFakeAPI(t)
	api.loginStatus = http.StatusUnauthorized
	api.groupsBody = `[{"id":"A"}]`
	p := newTestPipeline(t, api)

	assert.Equal(t, []string{}, p.ListGroupIDs(context.Background()))
}

func TestGroups(t *testing.T) {
	api := newFakeAPI(t)
	api.groupsBody = `[{"id":"A","name":"Alpha","activity":"football"},{"id":"B","name":"Beta"}]`
	p := newTestPipeline(t, api)

	groups, err := p.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Group{
		{ID: "A", Name: "Alpha", Activity: "football"},
		{ID: "B", Name: "Beta"},
	}, groups)

	g, err := p.Group(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "Beta", g.Name)

	_, err = p.Group(context.Background(), "Z")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestGroups_Errors(t *testing.T) {
	api := newFakeAPI(t)
	api.groupsBody = `{"error":"nope"}`
	p := newTestPipeline(t, api)

	_, err := p.Groups(context.Background())
	assert.ErrorIs(t, err, ErrDecode)

	api2 := newFakeAPI(t)
	api2.groupsStatus = http.StatusInternalServerError
	p2 := newTestPipeline(t, api2)

	_, err = p2.Groups(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestGroupIDs_Strict(t *testing.T) {
	api := newFakeAPI(t)
	api.groupsBody = `[{"name":"x"},{"id":"B"}]`
	p := newTestPipeline(t, api)

	_, err := p.GroupIDs(context.Background())
	assert.ErrorIs(t, err, ErrDecode)

	api.mu.Lock()
	api.groupsStatus = http.StatusUnauthorized
	api.mu.Unlock()
	_, err = p.GroupIDs(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsUnauthorized(err))

	api.mu.Lock()
	api.groupsStatus = http.StatusBadGateway
	api.mu.Unlock()
	_, err = p.GroupIDs(context.Background())
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
}
