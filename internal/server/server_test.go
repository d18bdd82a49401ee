package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/camdash/camdash/internal/admin"
	"github.com/camdash/camdash/internal/auth"
	"github.com/camdash/camdash/internal/config"
	"github.com/camdash/camdash/internal/eventbus"
	"github.com/camdash/camdash/internal/kiosk"
	"github.com/camdash/camdash/internal/remote"
	"github.com/camdash/camdash/internal/tiles"
)

type stubFetcher struct {
	mu   sync.Mutex
	snap *remote.StateSnapshot
}

func (f *stubFetcher) FetchState(ctx context.Context) *remote.StateSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type silentTransport struct {
	events chan tiles.Event
	once   sync.Once
}

func (s *silentTransport) Open(ctx context.Context) (<-chan tiles.Event, error) { return s.events, nil }
func (s *silentTransport) Recover() error                                       { return nil }
func (s *silentTransport) Close() {
	s.once.Do(func() { close(s.events) })
}

func silentFactory(source string, inline bool) tiles.Transport {
	return &silentTransport{events: make(chan tiles.Event)}
}

type stubAPI struct {
	saved []remote.Slide
}

func (a *stubAPI) SaveSlides(ctx context.Context, profileID string, slides []remote.Slide) error {
	a.saved = slides
	return nil
}
func (a *stubAPI) CreateCamera(ctx context.Context, cam remote.Camera) error  { return nil }
func (a *stubAPI) UpdateCamera(ctx context.Context, cam remote.Camera) error  { return nil }
func (a *stubAPI) DeleteCamera(ctx context.Context, id string) error          { return nil }
func (a *stubAPI) CreateProfile(ctx context.Context, name string) error       { return nil }
func (a *stubAPI) RenameProfile(ctx context.Context, id, name string) error   { return nil }
func (a *stubAPI) DeleteProfile(ctx context.Context, id string) error         { return nil }
func (a *stubAPI) SetActiveProfile(ctx context.Context, profileID string) error {
	return nil
}

func testSnapshot() *remote.StateSnapshot {
	return &remote.StateSnapshot{
		ActiveProfileID: "p1",
		MaxCamsPerSlide: 4,
		Profiles: []remote.Profile{
			{
				ID:        "p1",
				Name:      "Default",
				AllowLive: true,
				Slides: []remote.Slide{
					{ID: "s1", Name: "Entrance", CameraIDs: []string{"c1"}},
					{ID: "s2", Name: "Yard", CameraIDs: []string{"c2"}},
				},
			},
		},
		Cameras: []remote.Camera{
			{ID: "c1", Name: "Gate", Source: "gate"},
			{ID: "c2", Name: "Yard", Source: "yard"},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *stubAPI) {
	t.Helper()

	hash, err := auth.HashPassword("admin-pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	viewerHash, err := auth.HashPassword("viewer-pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	cfg := config.Normalize(map[string]any{
		"autoCycle":  false,
		"dataSource": map[string]any{"mode": "remote"},
	})
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Auth.RolePasswords = config.RolePasswords{
		Admin:      hash,
		Privileged: viewerHash,
	}

	fetcher := &stubFetcher{snap: testSnapshot()}
	kioskCtrl := kiosk.NewController(cfg, fetcher, tiles.NewManager(silentFactory), nil, nil, nil)
	if err := kioskCtrl.Run(context.Background()); err != nil {
		t.Fatalf("run kiosk: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		kioskCtrl.Shutdown(ctx)
	})

	api := &stubAPI{}
	adminCtrl := admin.NewController(api, nil, 4, func(ctx context.Context) { kioskCtrl.ForceRefresh(ctx) })

	return New(cfg, kioskCtrl, adminCtrl, nil, nil, nil), api
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(encoded)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, s *Server, password string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/auth/login", "", map[string]string{"password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", w.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/auth/login", "", map[string]string{"password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestViewReadableWithoutToken(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/view", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("view returned %d", w.Code)
	}
	var state kiosk.RenderState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.PageCount != 2 || state.PageName != "Entrance" {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestSocketCommandEventCarriesArgument(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	sub := eventbus.SubscribeTo(bus, eventbus.Viewer.Command)
	defer sub.Close()

	s, _ := newTestServer(t)
	s.bus = bus

	s.dispatchCommand(&wsClient{id: "c1", role: auth.RolePrivileged}, commandMessage{Command: "page", Index: 1})

	select {
	case ev := <-sub.C():
		if ev.Payload.Command != "page" || ev.Payload.Arg != "1" {
			t.Fatalf("unexpected command event %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no command event published")
	}
}

func TestHubRejectsClientsAfterShutdown(t *testing.T) {
	h := newHub()
	h.close()

	client := &wsClient{id: "late", send: make(chan pushMessage, 1)}
	if h.add(client) {
		t.Fatal("closed hub must refuse new clients")
	}
	// Unregistered id; must be a silent no-op, never a send on a closed
	// channel.
	h.send("late", pushMessage{Type: "state"})
}

func TestViewConfigCarriesUIAndStreamTuning(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/view/config", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("view config returned %d", w.Code)
	}
	var resp struct {
		UI struct {
			ShowClock bool   `json:"showClock"`
			Layout    string `json:"layout"`
		} `json:"ui"`
		Stream struct {
			MaxBufferLength int  `json:"maxBufferLength"`
			PreferPeer      bool `json:"preferPeer"`
		} `json:"stream"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if !resp.UI.ShowClock || resp.UI.Layout == "" {
		t.Fatalf("unexpected ui config %+v", resp.UI)
	}
	if resp.Stream.MaxBufferLength <= 0 {
		t.Fatalf("stream defaults missing: %+v", resp.Stream)
	}
}

func TestNegotiateWithoutGateway(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/view/webrtc", "", map[string]string{"source": "gate", "offer": "v=0"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestNavigationRequiresRole(t *testing.T) {
	s, _ := newTestServer(t)

	// Anonymous (kiosk role) navigation is forbidden.
	if w := doJSON(t, s, http.MethodPost, "/view/next", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("anonymous next returned %d, want 403", w.Code)
	}

	token := login(t, s, "viewer-pw")
	w := doJSON(t, s, http.MethodPost, "/view/next", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("privileged next returned %d: %s", w.Code, w.Body.String())
	}
	var state kiosk.RenderState
	json.Unmarshal(w.Body.Bytes(), &state)
	if state.PageIndex != 1 {
		t.Fatalf("page index = %d, want 1", state.PageIndex)
	}
}

func TestAdminRequiresAdminRole(t *testing.T) {
	s, _ := newTestServer(t)

	viewerToken := login(t, s, "viewer-pw")
	if w := doJSON(t, s, http.MethodPost, "/admin/open", viewerToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("privileged admin open returned %d, want 403", w.Code)
	}

	adminToken := login(t, s, "admin-pw")
	if w := doJSON(t, s, http.MethodPost, "/admin/open", adminToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("admin open returned %d", w.Code)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	s, _ := newTestServer(t)
	if w := doJSON(t, s, http.MethodGet, "/view", "garbage-token", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token returned %d, want 401", w.Code)
	}
}

func TestTimerValidation(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s, "viewer-pw")

	w := doJSON(t, s, http.MethodPut, "/view/timer", token, map[string]int{"seconds": 45})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("disallowed interval returned %d", w.Code)
	}
	w = doJSON(t, s, http.MethodPut, "/view/timer", token, map[string]int{"seconds": 30})
	if w.Code != http.StatusOK {
		t.Fatalf("allowed interval returned %d", w.Code)
	}
}

func TestAdminDraftFlow(t *testing.T) {
	s, api := newTestServer(t)
	token := login(t, s, "admin-pw")

	w := doJSON(t, s, http.MethodPost, "/admin/select", token, map[string]string{"profileId": "p1"})
	if w.Code != http.StatusOK {
		t.Fatalf("select returned %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodPost, "/admin/commands", token, map[string]any{
		"type": "add_slide",
		"name": "New slide",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("command returned %d: %s", w.Code, w.Body.String())
	}

	var draft admin.Draft
	if err := json.Unmarshal(w.Body.Bytes(), &draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if len(draft.Slides) != 3 {
		t.Fatalf("draft should have 3 slides, got %d", len(draft.Slides))
	}

	if w = doJSON(t, s, http.MethodPost, "/admin/save", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("save returned %d: %s", w.Code, w.Body.String())
	}
	if len(api.saved) != 3 {
		t.Fatalf("remote received %d slides, want 3", len(api.saved))
	}

	// Draft is gone after a successful save.
	if w = doJSON(t, s, http.MethodGet, "/admin/draft", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("draft after save returned %d, want 404", w.Code)
	}
}

func TestSelectUnknownProfile(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s, "admin-pw")

	w := doJSON(t, s, http.MethodPost, "/admin/select", token, map[string]string{"profileId": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown profile returned %d", w.Code)
	}
}
