package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type memoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *memoryTokenStore) SaveToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memoryTokenStore) LoadToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memoryTokenStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

func TestFetchStateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/state" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"activeProfileId": "p1",
			"maxCamsPerSlide": 6,
			"profiles": [{"id": "p1", "name": "Default", "slides": [], "allowLive": false}],
			"cameras": [{"id": "c1", "name": "Gate", "source": "gate"}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	snap := client.FetchState(context.Background())
	if snap == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if snap.ActiveProfileID != "p1" || snap.MaxCamsPerSlide != 6 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if cam := snap.CameraByID("c1"); cam == nil || cam.Source != "gate" {
		t.Fatalf("camera lookup failed: %+v", cam)
	}
}

func TestFetchStateFailuresReturnNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	if snap := client.FetchState(context.Background()); snap != nil {
		t.Fatalf("500 should yield nil, got %+v", snap)
	}

	// Unreachable server.
	dead := NewClient("http://127.0.0.1:1", nil, nil)
	if snap := dead.FetchState(context.Background()); snap != nil {
		t.Fatal("network failure should yield nil")
	}
}

func TestFetchStateMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	if snap := client.FetchState(context.Background()); snap != nil {
		t.Fatal("malformed body should yield nil")
	}
}

func TestLoginStoresToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token": "tok-123", "role": "admin"}`))
	}))
	defer server.Close()

	store := &memoryTokenStore{}
	client := NewClient(server.URL, store, nil)

	result, err := client.Login(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Role != "admin" {
		t.Fatalf("unexpected role %q", result.Role)
	}
	if store.token != "tok-123" {
		t.Fatalf("token not persisted, store has %q", store.token)
	}
	if !client.HasCredentials() {
		t.Fatal("client should report credentials after login")
	}
}

func TestUnauthorizedClearsCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := &memoryTokenStore{token: "stale"}
	client := NewClient(server.URL, store, nil)
	if !client.HasCredentials() {
		t.Fatal("stored token should seed credentials")
	}

	err := client.DeleteCamera(context.Background(), "c1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if client.HasCredentials() {
		t.Fatal("credentials should be cleared after 401")
	}
	if store.token != "" {
		t.Fatalf("stored token should be cleared, got %q", store.token)
	}
}

func TestWriteFailureSurfacesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "cannot delete active profile"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	err := client.DeleteProfile(context.Background(), "p1")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusConflict || reqErr.Message != "cannot delete active profile" {
		t.Fatalf("unexpected error contents: %+v", reqErr)
	}
}

func TestSaveSlidesSendsCompleteList(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profiles/p1/slides" || r.Method != http.MethodPut {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	slides := []Slide{{ID: "s1", Name: "Entrance", CameraIDs: []string{"c1", "c2"}}}
	if err := client.SaveSlides(context.Background(), "p1", slides); err != nil {
		t.Fatalf("save slides: %v", err)
	}
	want := `{"slides":[{"id":"s1","name":"Entrance","cameraIds":["c1","c2"]}]}`
	if gotBody != want {
		t.Fatalf("payload mismatch:\n got %s\nwant %s", gotBody, want)
	}
}

func TestProbeAuthBasic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "viewer" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	client.SetBasicAuth("viewer", "pw")
	if err := client.ProbeAuth(context.Background()); err != nil {
		t.Fatalf("probe with valid creds: %v", err)
	}

	bad := NewClient(server.URL, nil, nil)
	bad.SetBasicAuth("viewer", "wrong")
	if err := bad.ProbeAuth(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if bad.HasCredentials() {
		t.Fatal("rejected basic credentials should be cleared")
	}
}
