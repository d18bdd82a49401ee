package admin

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/camdash/camdash/internal/remote"
)

type fakeAPI struct {
	saveErr    error
	savedWith  []remote.Slide
	renamed    map[string]string
	deleted    []string
	activated  string
	created    []remote.Camera
	callCounts map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		renamed:    make(map[string]string),
		callCounts: make(map[string]int),
	}
}

func (f *fakeAPI) SaveSlides(ctx context.Context, profileID string, slides []remote.Slide) error {
	f.callCounts["saveSlides"]++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.savedWith = slides
	return nil
}

func (f *fakeAPI) CreateCamera(ctx context.Context, cam remote.Camera) error {
	f.created = append(f.created, cam)
	return nil
}

func (f *fakeAPI) UpdateCamera(ctx context.Context, cam remote.Camera) error { return nil }

func (f *fakeAPI) DeleteCamera(ctx context.Context, id string) error { return nil }

func (f *fakeAPI) CreateProfile(ctx context.Context, name string) error { return nil }

func (f *fakeAPI) RenameProfile(ctx context.Context, id, name string) error {
	f.renamed[id] = name
	return nil
}

func (f *fakeAPI) DeleteProfile(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) SetActiveProfile(ctx context.Context, profileID string) error {
	f.activated = profileID
	return nil
}

func testProfile() *remote.Profile {
	return &remote.Profile{
		ID:   "p1",
		Name: "Default",
		Slides: []remote.Slide{
			{ID: "s1", Name: "Entrance", CameraIDs: []string{"c1", "c2"}},
		},
	}
}

func TestSelectDeepCopies(t *testing.T) {
	c := NewController(newFakeAPI(), nil, 6, nil)
	profile := testProfile()
	c.Select(profile)

	if err := c.Apply(AssignCamera{Index: 0, Slot: 0, CameraID: "c9"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if profile.Slides[0].CameraIDs[0] != "c1" {
		t.Fatal("editing the draft mutated the snapshot profile")
	}
}

func TestApplyCommands(t *testing.T) {
	c := NewController(newFakeAPI(), nil, 4, nil)
	c.Select(testProfile())

	if err := c.Apply(AddSlide{}); err != nil {
		t.Fatalf("add slide: %v", err)
	}
	if err := c.Apply(RenameSlide{Index: 1, Name: "Back lot"}); err != nil {
		t.Fatalf("rename slide: %v", err)
	}
	if err := c.Apply(AssignCamera{Index: 1, Slot: 2, CameraID: "c3"}); err != nil {
		t.Fatalf("assign camera: %v", err)
	}
	if err := c.Apply(SetProfileName{Name: "Renamed"}); err != nil {
		t.Fatalf("set profile name: %v", err)
	}

	draft := c.Draft()
	if len(draft.Slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(draft.Slides))
	}
	if draft.Slides[1].Name != "Back lot" {
		t.Fatalf("slide not renamed: %q", draft.Slides[1].Name)
	}
	if got := draft.Slides[1].CameraIDs; len(got) != 3 || got[2] != "c3" {
		t.Fatalf("camera not assigned: %v", got)
	}
	if draft.Name != "Renamed" {
		t.Fatalf("profile name not staged: %q", draft.Name)
	}

	if err := c.Apply(RemoveSlide{Index: 0}); err != nil {
		t.Fatalf("remove slide: %v", err)
	}
	if draft = c.Draft(); len(draft.Slides) != 1 || draft.Slides[0].Name != "Back lot" {
		t.Fatalf("wrong slide removed: %+v", draft.Slides)
	}
}

func TestApplyRejectsOutOfRange(t *testing.T) {
	c := NewController(newFakeAPI(), nil, 4, nil)
	c.Select(testProfile())

	if err := c.Apply(RemoveSlide{Index: 5}); err == nil {
		t.Fatal("out-of-range remove must fail")
	}
	if err := c.Apply(AssignCamera{Index: 0, Slot: 4, CameraID: "c1"}); err == nil {
		t.Fatal("slot beyond the cap must fail")
	}
}

func TestApplyWithoutSelection(t *testing.T) {
	c := NewController(newFakeAPI(), nil, 4, nil)
	if err := c.Apply(AddSlide{}); err == nil {
		t.Fatal("apply without a selected profile must fail")
	}
}

func TestSaveFailureRetainsDraftUnchanged(t *testing.T) {
	api := newFakeAPI()
	api.saveErr = errors.New("boom")
	c := NewController(api, nil, 6, nil)
	c.Select(testProfile())
	c.Apply(AssignCamera{Index: 0, Slot: 0, CameraID: "c9"})

	before := c.Draft()
	if err := c.SaveSlides(context.Background()); err == nil {
		t.Fatal("expected save failure")
	}
	after := c.Draft()

	if after == nil {
		t.Fatal("failed save must retain the draft")
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("draft changed across failed save:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSaveSanitizesAndDiscardsDraft(t *testing.T) {
	api := newFakeAPI()
	refreshed := false
	c := NewController(api, nil, 2, func(ctx context.Context) { refreshed = true })

	c.Select(&remote.Profile{
		ID:   "p1",
		Name: "Default",
		Slides: []remote.Slide{
			{ID: "s1", CameraIDs: []string{"c1", "", "c2", "c3"}},
		},
	})

	if err := c.SaveSlides(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(api.savedWith) != 1 {
		t.Fatalf("expected 1 slide, got %d", len(api.savedWith))
	}
	slide := api.savedWith[0]
	if slide.Name != "Slide 1" {
		t.Fatalf("unnamed slide should be numbered, got %q", slide.Name)
	}
	// Truncated to the 2-slot cap first, then empties dropped.
	if !reflect.DeepEqual(slide.CameraIDs, []string{"c1"}) {
		t.Fatalf("sanitized ids = %v", slide.CameraIDs)
	}
	if c.HasDraft() {
		t.Fatal("successful save must discard the draft")
	}
	if !refreshed {
		t.Fatal("successful save must force a refresh")
	}
	if _, ok := api.renamed["p1"]; ok {
		t.Fatalf("unchanged name must not trigger a rename: %v", api.renamed)
	}
}

func TestSaveCommitsStagedRename(t *testing.T) {
	api := newFakeAPI()
	c := NewController(api, nil, 4, nil)

	c.Select(&remote.Profile{ID: "p1", Name: "Default"})
	if err := c.Apply(SetProfileName{Name: "Night shift"}); err != nil {
		t.Fatalf("set profile name: %v", err)
	}
	if err := c.SaveSlides(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if api.renamed["p1"] != "Night shift" {
		t.Fatalf("staged rename not committed: %v", api.renamed)
	}
}

func TestDeleteProfileDiscardsItsDraft(t *testing.T) {
	api := newFakeAPI()
	c := NewController(api, nil, 6, nil)
	c.Select(testProfile())

	if err := c.DeleteProfile(context.Background(), "p1"); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	if c.HasDraft() {
		t.Fatal("draft for a deleted profile must be discarded")
	}
}

func TestDirectWritesForceRefresh(t *testing.T) {
	api := newFakeAPI()
	refreshes := 0
	c := NewController(api, nil, 6, func(ctx context.Context) { refreshes++ })

	if err := c.CreateCamera(context.Background(), remote.Camera{ID: "c7", Name: "New", Source: "new"}); err != nil {
		t.Fatalf("create camera: %v", err)
	}
	if err := c.SetActiveProfile(context.Background(), "p2"); err != nil {
		t.Fatalf("set active: %v", err)
	}

	if refreshes != 2 {
		t.Fatalf("expected 2 forced refreshes, got %d", refreshes)
	}
	if api.activated != "p2" {
		t.Fatalf("active profile not set: %q", api.activated)
	}
}
