// Package kiosk orchestrates the viewer: configuration, remote state
// reconciliation, slide cycling, and tile session lifecycles.
package kiosk

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/camdash/camdash/internal/config"
	"github.com/camdash/camdash/internal/cycle"
	"github.com/camdash/camdash/internal/eventbus"
	"github.com/camdash/camdash/internal/pagemodel"
	"github.com/camdash/camdash/internal/remote"
	"github.com/camdash/camdash/internal/store"
	"github.com/camdash/camdash/internal/tiles"
)

// StateFetcher yields snapshots; nil means the remote is unreachable.
type StateFetcher interface {
	FetchState(ctx context.Context) *remote.StateSnapshot
}

// DraftGuard reports whether admin edits are in progress.
type DraftGuard interface {
	HasDraft() bool
}

// Persistence stores the recoverable slice of viewer state.
type Persistence interface {
	LoadViewState(ctx context.Context, defaultSeconds int) store.ViewState
	SaveTimer(ctx context.Context, seconds int) error
	SavePageIndex(ctx context.Context, index int) error
	SaveProfileOverride(ctx context.Context, profileID string) error
}

// TileView is one rendered slot.
type TileView struct {
	Slot   int                 `json:"slot"`
	Source string              `json:"source"`
	Label  string              `json:"label"`
	Status eventbus.TileStatus `json:"status"`
}

// RenderState is the immutable view pushed to display clients.
type RenderState struct {
	PageIndex    int        `json:"pageIndex"`
	PageCount    int        `json:"pageCount"`
	PageName     string     `json:"pageName"`
	PageNames    []string   `json:"pageNames"`
	TimerSeconds int        `json:"timerSeconds"`
	AutoCycle    bool       `json:"autoCycle"`
	AllowLive    bool       `json:"allowLive"`
	Offline      bool       `json:"offline"`
	ProfileID    string     `json:"profileId"`
	ProfileName  string     `json:"profileName"`
	AdminOpen    bool       `json:"adminOpen"`
	Tiles        []TileView `json:"tiles"`
}

// Controller owns the full viewer state. All mutation funnels through its
// mutex; the snapshot itself is replaced wholesale and never edited.
type Controller struct {
	cfg     config.Config
	fetcher StateFetcher
	tiles   *tiles.Manager
	persist Persistence
	drafts  DraftGuard
	bus     *eventbus.Bus

	scheduler *cycle.Scheduler
	lifecycle eventbus.ServiceLifecycle

	mu              sync.Mutex
	snapshot        *remote.StateSnapshot
	pages           []pagemodel.Page
	pageIndex       int
	timerSeconds    int
	visible         bool
	adminOpen       bool
	offline         bool
	profileOverride string
}

// NewController wires the engine together. persist and drafts may be nil.
func NewController(cfg config.Config, fetcher StateFetcher, tileManager *tiles.Manager, persist Persistence, drafts DraftGuard, bus *eventbus.Bus) *Controller {
	c := &Controller{
		cfg:          cfg,
		fetcher:      fetcher,
		tiles:        tileManager,
		persist:      persist,
		drafts:       drafts,
		bus:          bus,
		timerSeconds: cfg.DefaultSeconds,
		visible:      true,
	}
	c.scheduler = cycle.NewScheduler(c.onTick)
	return c
}

func (c *Controller) lock()   { c.mu.Lock() }
func (c *Controller) unlock() { c.mu.Unlock() }

// Run loads persisted state, performs the initial refresh and render, and
// starts the polling loop. It returns once the engine is running; use
// Shutdown to stop it.
func (c *Controller) Run(ctx context.Context) error {
	c.lifecycle.Start(ctx)
	ctx = c.lifecycle.Context()

	if c.persist != nil {
		state := c.persist.LoadViewState(ctx, c.cfg.DefaultSeconds)
		c.lock()
		c.timerSeconds = state.TimerSeconds
		c.pageIndex = state.PageIndex
		c.profileOverride = state.ProfileID
		c.unlock()
	}

	c.refresh(ctx, eventbus.RefreshInitial)

	if c.cfg.DataSource.Mode == config.ModeRemote {
		c.lifecycle.Go(c.pollLoop)
	}

	log.Printf("[Kiosk] running: %d page(s), %ds timer", c.PageCount(), c.TimerSeconds())
	return nil
}

// Shutdown stops polling and tears down every live session.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.scheduler.Stop()
	err := c.lifecycle.Shutdown(ctx)
	c.tiles.CloseAll()
	return err
}

func (c *Controller) pollLoop(ctx context.Context) {
	interval := time.Duration(c.cfg.DataSource.RefreshSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.skipPoll() {
			continue
		}
		c.refresh(ctx, eventbus.RefreshScheduled)
	}
}

// skipPoll suppresses background refreshes while the display is hidden or
// an admin draft is in progress, so edits are never discarded underneath
// the editor.
func (c *Controller) skipPoll() bool {
	c.lock()
	defer c.unlock()
	if !c.visible {
		return true
	}
	return c.adminOpen && c.drafts != nil && c.drafts.HasDraft()
}

// ForceRefresh fetches and applies a snapshot immediately, fully replacing
// page state before the scheduler can tick again.
func (c *Controller) ForceRefresh(ctx context.Context) {
	c.refresh(ctx, eventbus.RefreshForced)
}

func (c *Controller) refresh(ctx context.Context, trigger eventbus.RefreshTrigger) {
	var snap *remote.StateSnapshot
	if c.cfg.DataSource.Mode == config.ModeRemote && c.fetcher != nil {
		snap = c.fetcher.FetchState(ctx)
	}

	c.lock()
	c.applySnapshotLocked(snap)
	c.rearmSchedulerLocked()
	event := eventbus.StateRefreshedEvent{
		PageCount: len(c.pages),
		Trigger:   trigger,
	}
	if c.snapshot != nil {
		event.ActiveProfileID = c.snapshot.ActiveProfileID
		event.ProfileCount = len(c.snapshot.Profiles)
		event.CameraCount = len(c.snapshot.Cameras)
	}
	c.unlock()

	c.openSessions()
	eventbus.Publish(ctx, c.bus, eventbus.State.Refreshed, eventbus.SourceKiosk, event)
}

// applySnapshotLocked replaces view state wholesale: new snapshot, freshly
// derived pages, page index clamped into the new range.
func (c *Controller) applySnapshotLocked(snap *remote.StateSnapshot) {
	if snap != nil {
		c.snapshot = snap
		c.offline = false
	} else if c.cfg.DataSource.Mode == config.ModeRemote {
		c.offline = true
	}

	pages := pagemodel.Build(c.snapshot, pagemodel.Options{
		OverrideProfileID: c.profileOverride,
		IncludeLocation:   c.cfg.UI.IncludeLocationInLabel,
		Layout:            c.cfg.UI.Layout,
	})
	if len(pages) == 0 {
		pages = pagemodel.NormalizeLocal(c.cfg.Pages, c.cfg.UI.Layout)
	}
	c.pages = pages

	if c.pageIndex >= len(c.pages) {
		c.pageIndex = 0
	}
}

func (c *Controller) rearmSchedulerLocked() {
	c.scheduler.Configure(time.Duration(c.timerSeconds)*time.Second, len(c.pages), c.cfg.AutoCycle)
}

// openSessions tears down the previous generation and opens a session per
// occupied slot of the current page. No two generations coexist. Sessions
// are anchored to the controller lifecycle, never to the request that
// triggered the view change.
func (c *Controller) openSessions() {
	c.lock()
	var page pagemodel.Page
	if c.pageIndex < len(c.pages) {
		page = c.pages[c.pageIndex]
	}
	// Live-enabled profiles render still frames and defer continuous
	// playback to an explicit expand; only live-disabled profiles stream
	// every tile inline.
	inline := !c.allowLiveLocked()
	c.unlock()

	ctx := c.sessionContext()
	c.tiles.CloseAll()
	for slot, cam := range page.Cams {
		if cam == nil {
			continue
		}
		if _, err := c.tiles.OpenTile(ctx, tiles.SlotID(slot), cam.ID, inline); err != nil {
			log.Printf("[Kiosk] open tile %d: %v", slot, err)
		}
	}
}

// sessionContext returns the context media sessions run under: the engine
// lifecycle when running, so sessions live until their tile is replaced or
// the view unmounts.
func (c *Controller) sessionContext() context.Context {
	if ctx := c.lifecycle.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// allowLiveLocked resolves the active profile's transport flag. Pages
// without a profile (local fallback) stream inline.
func (c *Controller) allowLiveLocked() bool {
	profile := pagemodel.EffectiveProfile(c.snapshot, c.profileOverride)
	if profile == nil {
		return false
	}
	return profile.AllowLive
}

func (c *Controller) onTick() {
	c.advance(context.Background(), 1, eventbus.CycleTimer, false)
}

// Advance moves to the next page on user request and restarts the cycle
// interval from now.
func (c *Controller) Advance(ctx context.Context) {
	c.advance(ctx, 1, eventbus.CycleManual, true)
}

// Prev moves to the previous page.
func (c *Controller) Prev(ctx context.Context) {
	c.advance(ctx, -1, eventbus.CycleManual, true)
}

// SetPage jumps to a specific page index.
func (c *Controller) SetPage(ctx context.Context, index int) {
	c.lock()
	if index < 0 || index >= len(c.pages) {
		c.unlock()
		return
	}
	c.pageIndex = index
	c.unlock()

	c.afterNavigation(ctx, eventbus.CycleManual, true)
}

func (c *Controller) advance(ctx context.Context, delta int, trigger eventbus.CycleTrigger, restart bool) {
	c.lock()
	count := len(c.pages)
	if count == 0 {
		c.unlock()
		return
	}
	c.pageIndex = ((c.pageIndex+delta)%count + count) % count
	c.unlock()

	c.afterNavigation(ctx, trigger, restart)
}

func (c *Controller) afterNavigation(ctx context.Context, trigger eventbus.CycleTrigger, restart bool) {
	c.openSessions()

	c.lock()
	index := c.pageIndex
	count := len(c.pages)
	name := ""
	if index < count {
		name = c.pages[index].Name
	}
	c.unlock()

	if restart {
		c.scheduler.Start(true)
	}
	if c.persist != nil {
		if err := c.persist.SavePageIndex(ctx, index); err != nil {
			log.Printf("[Kiosk] persist page index: %v", err)
		}
	}
	eventbus.Publish(ctx, c.bus, eventbus.Cycle.Advanced, eventbus.SourceKiosk, eventbus.CycleAdvancedEvent{
		PageIndex: index,
		PageCount: count,
		PageName:  name,
		Trigger:   trigger,
	})
}

// SetTimer switches the cycle interval; values outside the allowed set are
// ignored.
func (c *Controller) SetTimer(ctx context.Context, seconds int) bool {
	validated, ok := config.AllowedTimer(seconds)
	if !ok {
		return false
	}

	c.lock()
	c.timerSeconds = validated
	c.rearmSchedulerLocked()
	c.unlock()

	if c.persist != nil {
		if err := c.persist.SaveTimer(ctx, validated); err != nil {
			log.Printf("[Kiosk] persist timer: %v", err)
		}
	}
	return true
}

// SetVisible propagates display visibility: a hidden display pauses both
// cycling and background polling.
func (c *Controller) SetVisible(visible bool) {
	c.lock()
	c.visible = visible
	c.unlock()
	c.scheduler.SetVisible(visible)
}

// SetProfileOverride pins the viewer to a profile and refreshes.
func (c *Controller) SetProfileOverride(ctx context.Context, profileID string) {
	c.lock()
	c.profileOverride = profileID
	c.unlock()

	if c.persist != nil {
		if err := c.persist.SaveProfileOverride(ctx, profileID); err != nil {
			log.Printf("[Kiosk] persist profile override: %v", err)
		}
	}
	c.refresh(ctx, eventbus.RefreshForced)
}

// OpenAdmin marks the admin panel open, which suspends polling while a
// draft exists.
func (c *Controller) OpenAdmin() {
	c.lock()
	c.adminOpen = true
	c.unlock()
}

// CloseAdmin reopens polling and forces a refresh so the view reflects any
// saved edits immediately.
func (c *Controller) CloseAdmin(ctx context.Context) {
	c.lock()
	c.adminOpen = false
	c.unlock()
	c.refresh(ctx, eventbus.RefreshForced)
}

// ExpandTile opens the single expanded session for an occupied slot.
func (c *Controller) ExpandTile(ctx context.Context, slot int) error {
	c.lock()
	var source string
	if c.pageIndex < len(c.pages) {
		cams := c.pages[c.pageIndex].Cams
		if slot >= 0 && slot < len(cams) && cams[slot] != nil {
			source = cams[slot].ID
		}
	}
	c.unlock()

	if source == "" {
		return nil
	}
	_, err := c.tiles.Expand(c.sessionContext(), source)
	return err
}

// CollapseExpanded closes the expanded session, if any.
func (c *Controller) CollapseExpanded() {
	c.tiles.CollapseExpanded()
}

// Snapshot returns the current remote snapshot, or nil in local mode.
func (c *Controller) Snapshot() *remote.StateSnapshot {
	c.lock()
	defer c.unlock()
	return c.snapshot
}

// PageCount returns the derived page count.
func (c *Controller) PageCount() int {
	c.lock()
	defer c.unlock()
	return len(c.pages)
}

// TimerSeconds returns the active cycle interval.
func (c *Controller) TimerSeconds() int {
	c.lock()
	defer c.unlock()
	return c.timerSeconds
}

// RenderState assembles the immutable view for display clients.
func (c *Controller) RenderState() RenderState {
	statuses := c.tiles.Statuses()

	c.lock()
	defer c.unlock()

	state := RenderState{
		PageIndex:    c.pageIndex,
		PageCount:    len(c.pages),
		TimerSeconds: c.timerSeconds,
		AutoCycle:    c.cfg.AutoCycle,
		AllowLive:    c.allowLiveLocked(),
		Offline:      c.offline,
		AdminOpen:    c.adminOpen,
	}
	for _, p := range c.pages {
		state.PageNames = append(state.PageNames, p.Name)
	}
	if profile := pagemodel.EffectiveProfile(c.snapshot, c.profileOverride); profile != nil {
		state.ProfileID = profile.ID
		state.ProfileName = profile.Name
	}
	if c.pageIndex < len(c.pages) {
		page := c.pages[c.pageIndex]
		state.PageName = page.Name
		for slot, cam := range page.Cams {
			view := TileView{Slot: slot}
			if cam != nil {
				view.Source = cam.ID
				view.Label = cam.Label
				if status, ok := statuses[tiles.SlotID(slot)]; ok {
					view.Status = status
				} else {
					view.Status = eventbus.TileLoading
				}
			}
			state.Tiles = append(state.Tiles, view)
		}
	}
	return state
}
