// Package pagemodel derives the ordered list of renderable pages from
// either a remote snapshot or static local configuration.
package pagemodel

import (
	"fmt"

	"github.com/camdash/camdash/internal/config"
	"github.com/camdash/camdash/internal/remote"
)

// DefaultSlots is the tile count used when neither the snapshot nor the
// caller supplies one.
const DefaultSlots = 6

// LocalSlots is the fixed-layout slot count for statically configured pages.
const LocalSlots = 4

// CameraRef is one resolved tile slot. ID carries the gateway source
// identifier, not the remote camera id.
type CameraRef struct {
	ID    string
	Label string
}

// Page is one renderable slide: a name plus a fixed-capacity slot list.
// A nil slot renders empty; slots are never omitted, so slot positions are
// stable across refreshes.
type Page struct {
	Name string
	Cams []*CameraRef
}

// Options controls profile resolution and slot layout.
type Options struct {
	// OverrideProfileID takes precedence over the snapshot's active
	// profile when it resolves to a present profile.
	OverrideProfileID string
	// IncludeLocation appends the camera location to the tile label.
	IncludeLocation bool
	Layout          config.Layout
	// Slots caps tiles per page; 0 uses the snapshot's maxCamsPerSlide.
	Slots int
}

// Build derives pages from a snapshot. A nil snapshot or a snapshot with no
// profiles yields nil; the caller falls back to local configuration.
// The effective profile is the override if present, else the snapshot's
// active profile, else the first profile in snapshot order.
func Build(snap *remote.StateSnapshot, opts Options) []Page {
	if snap == nil || len(snap.Profiles) == 0 {
		return nil
	}

	profile := EffectiveProfile(snap, opts.OverrideProfileID)
	slots := opts.Slots
	if slots <= 0 {
		slots = snap.MaxCamsPerSlide
	}
	if slots <= 0 {
		slots = DefaultSlots
	}

	pages := make([]Page, 0, len(profile.Slides))
	for i, slide := range profile.Slides {
		name := slide.Name
		if name == "" {
			name = fmt.Sprintf("Slide %d", i+1)
		}

		cams := make([]*CameraRef, 0, slots)
		for _, camID := range slide.CameraIDs {
			if len(cams) == slots {
				break
			}
			cams = append(cams, resolveCamera(snap, camID, opts.IncludeLocation))
		}
		if opts.Layout != config.LayoutAuto {
			cams = PadTo(cams, slots)
		}
		pages = append(pages, Page{Name: name, Cams: cams})
	}
	return pages
}

// EffectiveProfile resolves the profile the viewer should see, or nil when
// the snapshot carries none.
func EffectiveProfile(snap *remote.StateSnapshot, overrideID string) *remote.Profile {
	if snap == nil || len(snap.Profiles) == 0 {
		return nil
	}
	if overrideID != "" {
		if p := snap.ProfileByID(overrideID); p != nil {
			return p
		}
	}
	if p := snap.ProfileByID(snap.ActiveProfileID); p != nil {
		return p
	}
	return &snap.Profiles[0]
}

func resolveCamera(snap *remote.StateSnapshot, camID string, includeLocation bool) *CameraRef {
	cam := snap.CameraByID(camID)
	if cam == nil || cam.Source == "" {
		return nil
	}
	label := cam.Name
	if includeLocation && cam.Location != "" {
		label = cam.Name + " - " + cam.Location
	}
	return &CameraRef{ID: cam.Source, Label: label}
}

// PadTo extends cams with nil slots up to size and truncates beyond it.
// Padding an already-padded list is a no-op.
func PadTo(cams []*CameraRef, size int) []*CameraRef {
	if size <= 0 {
		return cams
	}
	if len(cams) > size {
		return cams[:size]
	}
	for len(cams) < size {
		cams = append(cams, nil)
	}
	return cams
}

// NormalizeLocal converts statically configured pages into the same Page
// shape. Fixed layout pads every page to LocalSlots.
func NormalizeLocal(pages []config.LocalPage, layout config.Layout) []Page {
	out := make([]Page, 0, len(pages))
	for i, p := range pages {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("Page %d", i+1)
		}

		cams := make([]*CameraRef, 0, len(p.Cams))
		for _, cam := range p.Cams {
			if cam == nil || cam.ID == "" {
				cams = append(cams, nil)
				continue
			}
			label := cam.Label
			if label == "" {
				label = cam.ID
			}
			cams = append(cams, &CameraRef{ID: cam.ID, Label: label})
		}
		if layout != config.LayoutAuto {
			cams = PadTo(cams, LocalSlots)
		}
		out = append(out, Page{Name: name, Cams: cams})
	}
	return out
}
