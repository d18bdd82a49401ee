// Package config turns a loosely-typed configuration object into a
// fully-defaulted, validated record. Malformed or missing fields never
// fail normalization; they fall back to documented defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Mode selects where page/camera data comes from.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Layout selects how tiles fill a page.
type Layout string

const (
	LayoutFixed Layout = "fixed"
	LayoutAuto  Layout = "auto"
)

// AllowedTimers is the set of selectable cycle intervals in seconds.
var AllowedTimers = []int{30, 60, 90}

const (
	DefaultSeconds        = 60
	DefaultAPIBase        = "/camdash-api"
	DefaultRefreshSeconds = 20
	DefaultHotspotPx      = 6
	DefaultTitlePrefix    = "CamDash"

	MinRefreshSeconds = 5
	MaxRefreshSeconds = 600
	MinHotspotPx      = 2
	MaxHotspotPx      = 24

	DefaultListenAddr = "127.0.0.1:8089"
)

// DefaultLabels are the UI strings shown by display clients; user-supplied
// labels are merged over them.
var DefaultLabels = map[string]string{
	"prev":          "Prev",
	"next":          "Next",
	"timer":         "Timer",
	"page":          "Page",
	"clock":         "Clock",
	"live":          "LIVE",
	"empty":         "Empty",
	"noCameras":     "No cameras",
	"loading":       "loading...",
	"ok":            "live",
	"buffer":        "buffer",
	"fatal":         "fatal",
	"unsupported":   "stream unsupported",
	"configMissing": "config missing/empty",
	"adminTitle":    "CamDash Admin",
}

// DataSource configures where state snapshots come from.
type DataSource struct {
	Mode           Mode
	APIBase        string
	RefreshSeconds int
}

// UI holds display toggles and strings passed through to viewers.
type UI struct {
	TopbarAutoHide         bool
	TopbarHotspotPx        int
	ShowClock              bool
	ShowTimer              bool
	ShowPage               bool
	ShowBrand              bool
	ShowNav                bool
	ShowBadges             bool
	ShowLiveBadge          bool
	ShowEmptyLabels        bool
	ShowBackgroundGrid     bool
	Compact                bool
	Layout                 Layout
	IncludeLocationInLabel bool
	AdminEnabled           bool
	ShowAdminButton        bool
	TitlePrefix            string
	Labels                 map[string]string
	Theme                  map[string]string
}

// Stream holds live-playback tuning forwarded to tile transports.
type Stream struct {
	LiveSyncDurationCount   int
	MaxLiveSyncPlaybackRate float64
	MaxBufferLength         int
	MaxMaxBufferLength      int
	EnableWorker            bool
	PreferPeer              bool // negotiate a peer connection instead of segmented playback
}

// LocalCam is one statically configured camera reference.
type LocalCam struct {
	ID    string
	Label string
}

// LocalPage is one statically configured fallback page.
// Nil entries in Cams are empty slots rendered as placeholders.
type LocalPage struct {
	Name string
	Cams []*LocalCam
}

// RolePasswords carries bcrypt hashes for the per-role password login
// variant. Empty hashes disable the corresponding role login.
type RolePasswords struct {
	Kiosk      string
	Privileged string
	Admin      string
}

// Auth configures how viewers authenticate against the engine.
type Auth struct {
	RolePasswords RolePasswords
	TokenSecret   string // HMAC secret for viewer session tokens; generated when empty
}

// Config is the fully-defaulted engine configuration.
type Config struct {
	GatewayBase    string
	DefaultSeconds int
	AutoCycle      bool
	DataSource     DataSource
	UI             UI
	Stream         Stream
	Pages          []LocalPage
	Auth           Auth
	ListenAddr     string
	StatePath      string // local sqlite state; defaults next to the config file
}

// Normalize builds a Config from an arbitrary decoded object. It is a pure
// function of its input: unknown or wrong-typed fields fall back to defaults,
// numeric fields are clamped into range, and it never fails.
func Normalize(raw map[string]any) Config {
	ui := asMap(raw["ui"])
	labels := asMap(ui["labels"])
	theme := asMap(ui["theme"])
	stream := asMap(raw["stream"])
	dataSource := asMap(raw["dataSource"])
	auth := asMap(raw["auth"])
	rolePasswords := asMap(auth["rolePasswords"])

	mode := ModeLocal
	if asString(dataSource["mode"], "") == string(ModeRemote) {
		mode = ModeRemote
	}

	cfg := Config{
		GatewayBase:    cleanBase(asString(raw["gatewayBase"], "")),
		DefaultSeconds: allowedTimerOr(raw["defaultSeconds"], DefaultSeconds),
		AutoCycle:      asBool(raw["autoCycle"], true),
		DataSource: DataSource{
			Mode:           mode,
			APIBase:        cleanBaseOr(asString(dataSource["apiBase"], ""), DefaultAPIBase),
			RefreshSeconds: clamp(toInt(dataSource["refreshSeconds"], DefaultRefreshSeconds), MinRefreshSeconds, MaxRefreshSeconds),
		},
		UI: UI{
			TopbarAutoHide:         asBool(ui["topbarAutoHide"], true),
			TopbarHotspotPx:        clamp(toInt(ui["topbarHotspotPx"], DefaultHotspotPx), MinHotspotPx, MaxHotspotPx),
			ShowClock:              asBool(ui["showClock"], true),
			ShowTimer:              asBool(ui["showTimer"], true),
			ShowPage:               asBool(ui["showPage"], true),
			ShowBrand:              asBool(ui["showBrand"], true),
			ShowNav:                asBool(ui["showNav"], true),
			ShowBadges:             asBool(ui["showBadges"], true),
			ShowLiveBadge:          asBool(ui["showLiveBadge"], true),
			ShowEmptyLabels:        asBool(ui["showEmptyLabels"], true),
			ShowBackgroundGrid:     asBool(ui["showBackgroundGrid"], true),
			Compact:                asBool(ui["compact"], false),
			Layout:                 parseLayout(asString(ui["layout"], "")),
			IncludeLocationInLabel: asBool(ui["includeLocationInLabel"], true),
			AdminEnabled:           asBool(ui["adminEnabled"], true),
			ShowAdminButton:        asBool(ui["showAdminButton"], false),
			TitlePrefix:            nonEmpty(asString(ui["titlePrefix"], ""), DefaultTitlePrefix),
			Labels:                 mergeLabels(labels),
			Theme:                  stringMap(theme),
		},
		Stream: Stream{
			LiveSyncDurationCount:   toInt(stream["liveSyncDurationCount"], 3),
			MaxLiveSyncPlaybackRate: toFloat(stream["maxLiveSyncPlaybackRate"], 1.0),
			MaxBufferLength:         toInt(stream["maxBufferLength"], 8),
			MaxMaxBufferLength:      toInt(stream["maxMaxBufferLength"], 16),
			EnableWorker:            asBool(stream["enableWorker"], true),
			PreferPeer:              asBool(stream["preferPeer"], false),
		},
		Pages: normalizePages(raw["pages"]),
		Auth: Auth{
			RolePasswords: RolePasswords{
				Kiosk:      asString(rolePasswords["kiosk"], ""),
				Privileged: asString(rolePasswords["privileged"], ""),
				Admin:      asString(rolePasswords["admin"], ""),
			},
			TokenSecret: asString(auth["tokenSecret"], ""),
		},
		ListenAddr: nonEmpty(asString(raw["listenAddr"], ""), DefaultListenAddr),
		StatePath:  asString(raw["statePath"], ""),
	}

	return cfg
}

// Load reads a JSON configuration file and normalizes it. A missing file is
// not an error: it yields the zero-input normalization so the engine starts
// with pure defaults (and an empty local page set).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Normalize(nil), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return Normalize(raw), nil
}

// AllowedTimer reports whether v parses to one of the selectable cycle
// intervals, returning the parsed value when it does.
func AllowedTimer(v any) (int, bool) {
	parsed := toInt(v, -1)
	for _, t := range AllowedTimers {
		if parsed == t {
			return parsed, true
		}
	}
	return 0, false
}

func allowedTimerOr(v any, fallback int) int {
	if t, ok := AllowedTimer(v); ok {
		return t
	}
	return fallback
}

func parseLayout(s string) Layout {
	if s == string(LayoutAuto) {
		return LayoutAuto
	}
	return LayoutFixed
}

func normalizePages(v any) []LocalPage {
	rawPages, ok := v.([]any)
	if !ok {
		return nil
	}

	pages := make([]LocalPage, 0, len(rawPages))
	for i, entry := range rawPages {
		page := asMap(entry)
		name := nonEmpty(asString(page["name"], ""), fmt.Sprintf("Page %d", i+1))

		var cams []*LocalCam
		if rawCams, ok := page["cams"].([]any); ok {
			cams = make([]*LocalCam, 0, len(rawCams))
			for _, rawCam := range rawCams {
				cam := asMap(rawCam)
				id := strings.TrimSpace(asString(cam["id"], ""))
				if id == "" {
					cams = append(cams, nil)
					continue
				}
				cams = append(cams, &LocalCam{
					ID:    id,
					Label: asString(cam["label"], ""),
				})
			}
		}

		pages = append(pages, LocalPage{Name: name, Cams: cams})
	}
	return pages
}

func mergeLabels(overrides map[string]any) map[string]string {
	merged := make(map[string]string, len(DefaultLabels))
	for k, v := range DefaultLabels {
		merged[k] = v
	}
	for k, v := range overrides {
		if s, ok := v.(string); ok && s != "" {
			merged[k] = s
		}
	}
	return merged
}

func stringMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out[k] = strings.TrimSpace(s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

func asString(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

func asBool(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if parsed, err := n.Int64(); err == nil {
			return int(parsed)
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return fallback
}

func toFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}

func cleanBase(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

func cleanBaseOr(s, fallback string) string {
	cleaned := cleanBase(s)
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
