// Package tiles manages the live-media session behind every rendered tile:
// open, health classification, one-shot recovery, and teardown.
package tiles

import (
	"context"
	"log"
	"sync"

	"github.com/camdash/camdash/internal/eventbus"
)

// Session is one tile's media session. Health transitions follow a strict
// machine: loading→ok, loading→fatal, ok→warn→ok, and ok|warn→fatal; a
// fatal media error gets exactly one recovery attempt before teardown.
type Session struct {
	TileID string
	Source string
	Inline bool

	transport  Transport
	bus        *eventbus.Bus
	generation uint64

	mu        sync.RWMutex
	status    eventbus.TileStatus
	detail    string
	recovered bool

	cancel   context.CancelFunc
	done     chan struct{}
	teardown sync.Once
}

func newSession(tileID, source string, inline bool, transport Transport, bus *eventbus.Bus, generation uint64) *Session {
	return &Session{
		TileID:     tileID,
		Source:     source,
		Inline:     inline,
		transport:  transport,
		bus:        bus,
		generation: generation,
		status:     eventbus.TileLoading,
		done:       make(chan struct{}),
	}
}

// start opens the transport and begins consuming its events. A failed open
// marks the session fatal and tears it down immediately.
func (s *Session) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	events, err := s.transport.Open(ctx)
	if err != nil {
		s.setStatus(eventbus.TileFatal, err.Error())
		s.Close()
		close(s.done)
		return
	}

	go s.run(ctx, events)
}

// run consumes transport events until teardown. Delivery stops with a fatal
// error, so a recovered session reopens the transport to keep events (and
// the health machine's liveness) behind its status.
func (s *Session) run(ctx context.Context, events <-chan Event) {
	defer close(s.done)

	for s.consume(events) {
		var err error
		events, err = s.transport.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setStatus(eventbus.TileFatal, err.Error())
			s.Close()
			return
		}
	}
}

// consume drains one delivery stream. It returns true when the session
// recovered from a fatal media error and delivery must be reopened.
func (s *Session) consume(events <-chan Event) bool {
	for ev := range events {
		switch ev.Kind {
		case ManifestReady, FragmentLoaded:
			s.markOk()
		case BufferStalled:
			s.markWarn(ev.Detail)
		case MediaError:
			if !ev.Fatal {
				continue
			}
			if s.tryRecover(ev.Detail) {
				return true
			}
			s.setStatus(eventbus.TileFatal, ev.Detail)
			s.Close()
			return false
		case NetworkError:
			if !ev.Fatal {
				continue
			}
			s.setStatus(eventbus.TileFatal, ev.Detail)
			s.Close()
			return false
		}
	}
	return false
}

// tryRecover performs the single permitted recovery attempt for a fatal
// media error.
func (s *Session) tryRecover(detail string) bool {
	s.mu.Lock()
	if s.recovered {
		s.mu.Unlock()
		return false
	}
	s.recovered = true
	s.mu.Unlock()

	log.Printf("[Tiles] %s: media error, attempting recovery: %s", s.TileID, detail)
	if err := s.transport.Recover(); err != nil {
		log.Printf("[Tiles] %s: recovery failed: %v", s.TileID, err)
		return false
	}
	return true
}

func (s *Session) markOk() {
	s.mu.Lock()
	prev := s.status
	if prev == eventbus.TileFatal {
		s.mu.Unlock()
		return
	}
	s.status = eventbus.TileOK
	s.detail = ""
	s.mu.Unlock()

	// Clearing a buffer warning is not announced; only the initial
	// transition out of loading is.
	if prev == eventbus.TileLoading {
		s.publish(eventbus.TileOK, "")
	}
}

func (s *Session) markWarn(detail string) {
	s.mu.Lock()
	if s.status != eventbus.TileOK {
		s.mu.Unlock()
		return
	}
	s.status = eventbus.TileWarn
	s.detail = detail
	s.mu.Unlock()

	s.publish(eventbus.TileWarn, detail)
}

func (s *Session) setStatus(status eventbus.TileStatus, detail string) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.detail = detail
	s.mu.Unlock()

	s.publish(status, detail)
}

func (s *Session) publish(status eventbus.TileStatus, detail string) {
	eventbus.Publish(context.Background(), s.bus, eventbus.Tiles.Health, eventbus.SourceTileManager, eventbus.TileHealthEvent{
		TileID:     s.TileID,
		Source:     s.Source,
		Status:     status,
		Detail:     detail,
		Generation: s.generation,
	})
}

// Status returns the current health classification.
func (s *Session) Status() (eventbus.TileStatus, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.detail
}

// Close tears the session down exactly once, regardless of how many times
// it is called or whether the session ever became healthy.
func (s *Session) Close() {
	s.teardown.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.transport.Close()
	})
}

// Done is closed when the event loop has fully drained.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
