package spond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	_ "time/tzdata"

	"spondcal/internal/model"
)

// fakeAPI is a scripted stand-in for the Spond core API.
type fakeAPI struct {
	t *testing.T

	mu          sync.Mutex
	loginCalls  int
	eventsCalls int
	lastLogin   map[string]string
	lastAuth    string
	lastGroupID string

	// loginBody returns the response for the n-th login (1-based).
	loginBody   func(n int) string
	loginStatus int

	groupsBody   string
	groupsStatus int

	eventsBody   string
	eventsStatus int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t: t,
		loginBody: func(n int) string {
			return fmt.Sprintf(`{"loginToken":"token-%d"}`, n)
		},
		groupsBody: `[]`,
		eventsBody: `[]`,
	}
}

func (f *fakeAPI) start() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/core/v1/login", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loginCalls++
		n := f.loginCalls
		status := f.loginStatus
		body := f.loginBody(n)
		f.mu.Unlock()

		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			http.Error(w, "content type "+ct, http.StatusBadRequest)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastLogin = req
		f.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/core/v1/groups/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		status, body := f.groupsStatus, f.groupsBody
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/core/v1/sponds/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.eventsCalls++
		f.lastAuth = r.Header.Get("Authorization")
		f.lastGroupID = r.URL.Query().Get("groupId")
		status, body := f.eventsStatus, f.eventsBody
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
		_, _ = w.Write([]byte(body))
	})

	ts := httptest.NewServer(mux)
	f.t.Cleanup(ts.Close)
	return ts
}

func (f *fakeAPI) logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *fakeAPI) events() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventsCalls
}

// last returns the most recent login body, Authorization header and
// groupId query value seen by the server.
func (f *fakeAPI) last() (map[string]string, string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLogin, f.lastAuth, f.lastGroupID
}

func (f *fakeAPI) newClient(ts *httptest.Server) *Client {
	return NewClient(ts.URL+"/core/v1", testCreds())
}

func testCreds() model.Credentials {
	return model.Credentials{Email: "coach@example.com", Password: "s3cret"}
}
