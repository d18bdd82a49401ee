// Package admin holds in-progress profile edits apart from the
// authoritative snapshot until an explicit save commits them.
package admin

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/camdash/camdash/internal/remote"
)

// Draft is one profile's slides and pending name under edit. It never
// shares structure with the snapshot it was copied from.
type Draft struct {
	ProfileID string
	Name      string
	Slides    []remote.Slide

	savedName string // name at selection time; a rename commits only when Name differs
}

// newDraft deep-copies a profile into a fresh draft.
func newDraft(profile *remote.Profile) *Draft {
	return &Draft{
		ProfileID: profile.ID,
		Name:      profile.Name,
		Slides:    cloneSlides(profile.Slides),
		savedName: profile.Name,
	}
}

func cloneSlides(slides []remote.Slide) []remote.Slide {
	out := make([]remote.Slide, len(slides))
	for i, s := range slides {
		out[i] = remote.Slide{
			ID:        s.ID,
			Name:      s.Name,
			CameraIDs: append([]string(nil), s.CameraIDs...),
		}
	}
	return out
}

// clone returns an independent copy for rendering.
func (d *Draft) clone() *Draft {
	return &Draft{
		ProfileID: d.ProfileID,
		Name:      d.Name,
		Slides:    cloneSlides(d.Slides),
		savedName: d.savedName,
	}
}

// Command is one edit applied to the draft through Apply.
type Command interface {
	apply(d *Draft, maxCams int) error
}

// AddSlide appends an empty slide.
type AddSlide struct {
	Name string
}

// RemoveSlide deletes the slide at Index.
type RemoveSlide struct {
	Index int
}

// RenameSlide sets the name of the slide at Index.
type RenameSlide struct {
	Index int
	Name  string
}

// AssignCamera places a camera id into a slot of a slide; an empty
// CameraID clears the slot.
type AssignCamera struct {
	Index    int
	Slot     int
	CameraID string
}

// SetProfileName stages a profile rename committed together with the
// slides.
type SetProfileName struct {
	Name string
}

func (c AddSlide) apply(d *Draft, _ int) error {
	name := c.Name
	if name == "" {
		name = fmt.Sprintf("Slide %d", len(d.Slides)+1)
	}
	d.Slides = append(d.Slides, remote.Slide{
		ID:   uuid.NewString(),
		Name: name,
	})
	return nil
}

func (c RemoveSlide) apply(d *Draft, _ int) error {
	if c.Index < 0 || c.Index >= len(d.Slides) {
		return fmt.Errorf("admin: remove slide: index %d out of range", c.Index)
	}
	d.Slides = append(d.Slides[:c.Index], d.Slides[c.Index+1:]...)
	return nil
}

func (c RenameSlide) apply(d *Draft, _ int) error {
	if c.Index < 0 || c.Index >= len(d.Slides) {
		return fmt.Errorf("admin: rename slide: index %d out of range", c.Index)
	}
	d.Slides[c.Index].Name = c.Name
	return nil
}

func (c AssignCamera) apply(d *Draft, maxCams int) error {
	if c.Index < 0 || c.Index >= len(d.Slides) {
		return fmt.Errorf("admin: assign camera: slide %d out of range", c.Index)
	}
	if c.Slot < 0 || c.Slot >= maxCams {
		return fmt.Errorf("admin: assign camera: slot %d out of range", c.Slot)
	}

	slide := &d.Slides[c.Index]
	for len(slide.CameraIDs) <= c.Slot {
		slide.CameraIDs = append(slide.CameraIDs, "")
	}
	slide.CameraIDs[c.Slot] = c.CameraID
	return nil
}

func (c SetProfileName) apply(d *Draft, _ int) error {
	if c.Name == "" {
		return fmt.Errorf("admin: profile name must not be empty")
	}
	d.Name = c.Name
	return nil
}
