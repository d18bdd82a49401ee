package admin

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/camdash/camdash/internal/eventbus"
	"github.com/camdash/camdash/internal/remote"
)

// API is the slice of the remote client the controller writes through.
type API interface {
	SaveSlides(ctx context.Context, profileID string, slides []remote.Slide) error
	CreateCamera(ctx context.Context, cam remote.Camera) error
	UpdateCamera(ctx context.Context, cam remote.Camera) error
	DeleteCamera(ctx context.Context, id string) error
	CreateProfile(ctx context.Context, name string) error
	RenameProfile(ctx context.Context, id, name string) error
	DeleteProfile(ctx context.Context, id string) error
	SetActiveProfile(ctx context.Context, profileID string) error
}

// Controller exclusively owns the draft; no other component mutates it.
// Every successful write triggers the onSaved callback so the owner can
// force a snapshot refresh.
type Controller struct {
	api     API
	bus     *eventbus.Bus
	maxCams int
	onSaved func(ctx context.Context)

	mu    sync.Mutex
	draft *Draft
}

// NewController builds a controller. onSaved may be nil.
func NewController(api API, bus *eventbus.Bus, maxCams int, onSaved func(ctx context.Context)) *Controller {
	if maxCams <= 0 {
		maxCams = 6
	}
	return &Controller{
		api:     api,
		bus:     bus,
		maxCams: maxCams,
		onSaved: onSaved,
	}
}

// SetMaxCams updates the per-slide slot cap from a fresh snapshot.
func (c *Controller) SetMaxCams(maxCams int) {
	if maxCams <= 0 {
		return
	}
	c.mu.Lock()
	c.maxCams = maxCams
	c.mu.Unlock()
}

// Select starts editing a profile. Any existing draft is discarded, never
// merged, even when re-selecting the same profile.
func (c *Controller) Select(profile *remote.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if profile == nil {
		c.draft = nil
		return
	}
	c.draft = newDraft(profile)
}

// Cancel discards the draft.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.draft = nil
	c.mu.Unlock()
}

// HasDraft reports whether edits are in progress. Background polling must
// skip while this is true and the panel is open.
func (c *Controller) HasDraft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft != nil
}

// Draft returns an independent copy for rendering, or nil.
func (c *Controller) Draft() *Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return nil
	}
	return c.draft.clone()
}

// Apply runs one edit command against the draft.
func (c *Controller) Apply(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return fmt.Errorf("admin: no profile selected")
	}
	return cmd.apply(c.draft, c.maxCams)
}

// SaveSlides commits the draft as one atomic replace. On success the draft
// is discarded and a refresh is forced; on failure the draft is retained
// unchanged so the admin can retry.
func (c *Controller) SaveSlides(ctx context.Context) error {
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return fmt.Errorf("admin: no draft to save")
	}
	profileID := c.draft.ProfileID
	pendingName := ""
	if c.draft.Name != c.draft.savedName {
		pendingName = c.draft.Name
	}
	payload := sanitizeSlides(cloneSlides(c.draft.Slides), c.maxCams)
	c.mu.Unlock()

	if err := c.api.SaveSlides(ctx, profileID, payload); err != nil {
		return fmt.Errorf("admin: save slides: %w", err)
	}
	if pendingName != "" {
		if err := c.api.RenameProfile(ctx, profileID, pendingName); err != nil {
			log.Printf("[Admin] slides saved but rename failed: %v", err)
		}
	}

	c.mu.Lock()
	c.draft = nil
	c.mu.Unlock()

	eventbus.Publish(ctx, c.bus, eventbus.Admin.Saved, eventbus.SourceAdmin, eventbus.AdminSavedEvent{
		ProfileID:  profileID,
		SlideCount: len(payload),
		Operation:  "save_slides",
	})
	c.saved(ctx)
	return nil
}

// sanitizeSlides truncates each slide to the slot cap, drops empty camera
// ids, and names unnamed slides by position.
func sanitizeSlides(slides []remote.Slide, maxCams int) []remote.Slide {
	for i := range slides {
		if slides[i].Name == "" {
			slides[i].Name = fmt.Sprintf("Slide %d", i+1)
		}
		ids := slides[i].CameraIDs
		if len(ids) > maxCams {
			ids = ids[:maxCams]
		}
		kept := ids[:0]
		for _, id := range ids {
			if id != "" {
				kept = append(kept, id)
			}
		}
		slides[i].CameraIDs = kept
	}
	return slides
}

func (c *Controller) saved(ctx context.Context) {
	if c.onSaved != nil {
		c.onSaved(ctx)
	}
}

func (c *Controller) direct(ctx context.Context, op string, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	eventbus.Publish(ctx, c.bus, eventbus.Admin.Saved, eventbus.SourceAdmin, eventbus.AdminSavedEvent{Operation: op})
	c.saved(ctx)
	return nil
}

// Camera CRUD and profile lifecycle bypass the draft; each success forces a
// refresh.

func (c *Controller) CreateCamera(ctx context.Context, cam remote.Camera) error {
	return c.direct(ctx, "create_camera", func() error { return c.api.CreateCamera(ctx, cam) })
}

func (c *Controller) UpdateCamera(ctx context.Context, cam remote.Camera) error {
	return c.direct(ctx, "update_camera", func() error { return c.api.UpdateCamera(ctx, cam) })
}

func (c *Controller) DeleteCamera(ctx context.Context, id string) error {
	return c.direct(ctx, "delete_camera", func() error { return c.api.DeleteCamera(ctx, id) })
}

func (c *Controller) CreateProfile(ctx context.Context, name string) error {
	return c.direct(ctx, "create_profile", func() error { return c.api.CreateProfile(ctx, name) })
}

func (c *Controller) RenameProfile(ctx context.Context, id, name string) error {
	return c.direct(ctx, "rename_profile", func() error { return c.api.RenameProfile(ctx, id, name) })
}

// DeleteProfile removes a profile; the server enforces that the active or
// last remaining profile stays. A selected draft for the deleted profile
// is discarded.
func (c *Controller) DeleteProfile(ctx context.Context, id string) error {
	err := c.direct(ctx, "delete_profile", func() error { return c.api.DeleteProfile(ctx, id) })
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.draft != nil && c.draft.ProfileID == id {
		c.draft = nil
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) SetActiveProfile(ctx context.Context, profileID string) error {
	return c.direct(ctx, "set_active_profile", func() error { return c.api.SetActiveProfile(ctx, profileID) })
}
