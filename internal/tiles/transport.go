package tiles

import (
	"context"
	"strings"
	"time"

	"github.com/camdash/camdash/internal/gateway"
)

// EventKind classifies transport-level events feeding the health state
// machine.
type EventKind string

const (
	ManifestReady  EventKind = "manifest_ready"
	FragmentLoaded EventKind = "fragment_loaded"
	BufferStalled  EventKind = "buffer_stalled"
	MediaError     EventKind = "media_error"
	NetworkError   EventKind = "network_error"
)

// Event is one transport notification. Fatal marks errors the transport
// cannot continue past without intervention.
type Event struct {
	Kind   EventKind
	Fatal  bool
	Detail string
}

// Transport drives the media pipeline for a single tile. Open starts
// delivery and returns the event channel; the channel closes when the
// transport stops. Recover probes whether the source is usable again after
// a fatal media error; on success the owning session reopens delivery.
type Transport interface {
	Open(ctx context.Context) (<-chan Event, error)
	Recover() error
	Close()
}

// TransportFactory builds a transport for a gateway source. inline selects
// continuous playback; otherwise the tile shows periodic still frames.
type TransportFactory func(source string, inline bool) Transport

// NewGatewayFactory wires transports to a streaming gateway.
func NewGatewayFactory(gw *gateway.Client) TransportFactory {
	return func(source string, inline bool) Transport {
		if inline {
			return newStreamTransport(gw, source)
		}
		return newFrameTransport(gw, source)
	}
}

const (
	streamPollInterval = 2 * time.Second
	framePollInterval  = 10 * time.Second
	stallThreshold     = 3
)

// streamTransport follows the segmented playlist for a source. Each poll
// that yields a changed manifest counts as a loaded fragment; repeated
// unchanged polls signal a stalled buffer, and transport-level failures
// surface as media or network errors.
type streamTransport struct {
	gw     *gateway.Client
	source string
	cancel context.CancelFunc
	events chan Event
}

func newStreamTransport(gw *gateway.Client, source string) *streamTransport {
	return &streamTransport{gw: gw, source: source}
}

func (t *streamTransport) Open(ctx context.Context) (<-chan Event, error) {
	manifest, err := t.gw.FetchManifest(ctx, t.source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.events = make(chan Event, 16)

	go t.poll(ctx, manifest)
	return t.events, nil
}

func (t *streamTransport) poll(ctx context.Context, lastManifest string) {
	defer close(t.events)

	t.emit(ctx, Event{Kind: ManifestReady})
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	stale := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		manifest, err := t.gw.FetchManifest(ctx, t.source)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			kind := NetworkError
			if strings.Contains(err.Error(), "unexpected status") {
				kind = MediaError
			}
			t.emit(ctx, Event{Kind: kind, Fatal: true, Detail: err.Error()})
			return
		}

		if manifest == lastManifest {
			stale++
			if stale >= stallThreshold {
				t.emit(ctx, Event{Kind: BufferStalled, Detail: "playlist unchanged"})
			}
			continue
		}
		stale = 0
		lastManifest = manifest
		t.emit(ctx, Event{Kind: FragmentLoaded})
	}
}

func (t *streamTransport) emit(ctx context.Context, ev Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

func (t *streamTransport) Recover() error {
	// Re-validate the source; the session reopens playback on success.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := t.gw.FetchManifest(ctx, t.source)
	return err
}

func (t *streamTransport) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}

// frameTransport refreshes a still frame on an interval. It never stalls;
// a failed fetch is a fatal network error and the tile falls back to its
// last frame until reopened.
type frameTransport struct {
	gw     *gateway.Client
	source string
	cancel context.CancelFunc
	events chan Event
}

func newFrameTransport(gw *gateway.Client, source string) *frameTransport {
	return &frameTransport{gw: gw, source: source}
}

func (t *frameTransport) Open(ctx context.Context) (<-chan Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.events = make(chan Event, 16)

	go t.poll(ctx)
	return t.events, nil
}

func (t *frameTransport) poll(ctx context.Context) {
	defer close(t.events)

	ticker := time.NewTicker(framePollInterval)
	defer ticker.Stop()

	for {
		if _, err := t.gw.FetchFrame(ctx, t.source, 0, 0); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.emit(ctx, Event{Kind: NetworkError, Fatal: true, Detail: err.Error()})
			return
		}
		t.emit(ctx, Event{Kind: FragmentLoaded})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *frameTransport) emit(ctx context.Context, ev Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

func (t *frameTransport) Recover() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := t.gw.FetchFrame(ctx, t.source, 0, 0)
	return err
}

func (t *frameTransport) Close() {
	if t.cancel != nil {
		t.cancel()
	}
}
