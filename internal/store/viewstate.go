package store

import (
	"context"
	"strconv"

	"github.com/camdash/camdash/internal/config"
)

// ViewState is the persisted, non-authoritative slice of viewer state.
type ViewState struct {
	TimerSeconds int
	PageIndex    int
	ProfileID    string
}

// LoadViewState reads and re-validates persisted viewer state. An invalid
// timer falls back to the configured default and a stale page index is
// clamped by the caller against the current page count.
func (s *Store) LoadViewState(ctx context.Context, defaultSeconds int) ViewState {
	state := ViewState{TimerSeconds: defaultSeconds}

	if raw, err := s.GetSetting(ctx, KeyTimer); err == nil {
		if seconds, ok := config.AllowedTimer(raw); ok {
			state.TimerSeconds = seconds
		}
	}
	if raw, err := s.GetSetting(ctx, KeyPage); err == nil {
		if index, err := strconv.Atoi(raw); err == nil && index >= 0 {
			state.PageIndex = index
		}
	}
	if raw, err := s.GetSetting(ctx, KeyProfile); err == nil {
		state.ProfileID = raw
	}
	return state
}

// SaveTimer persists the selected timer interval.
func (s *Store) SaveTimer(ctx context.Context, seconds int) error {
	return s.SetSetting(ctx, KeyTimer, strconv.Itoa(seconds))
}

// SavePageIndex persists the current slide index.
func (s *Store) SavePageIndex(ctx context.Context, index int) error {
	return s.SetSetting(ctx, KeyPage, strconv.Itoa(index))
}

// SaveProfileOverride persists the kiosk profile override; an empty id
// clears it.
func (s *Store) SaveProfileOverride(ctx context.Context, profileID string) error {
	if profileID == "" {
		return s.DeleteSetting(ctx, KeyProfile)
	}
	return s.SetSetting(ctx, KeyProfile, profileID)
}
