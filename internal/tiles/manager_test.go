package tiles

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/camdash/camdash/internal/eventbus"
)

// fakeTransport feeds scripted events into a session and counts lifecycle
// calls.
type fakeTransport struct {
	events     chan Event
	openErr    error
	recoverErr error
	opens      atomic.Int32
	recovers   atomic.Int32
	closes     atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan Event, 16)}
}

func (f *fakeTransport) Open(ctx context.Context) (<-chan Event, error) {
	f.opens.Add(1)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.events, nil
}

func (f *fakeTransport) Recover() error {
	f.recovers.Add(1)
	return f.recoverErr
}

func (f *fakeTransport) Close() {
	if f.closes.Add(1) == 1 {
		close(f.events)
	}
}

func factoryFor(ft *fakeTransport) TransportFactory {
	return func(source string, inline bool) Transport { return ft }
}

func waitStatus(t *testing.T, s *Session, want eventbus.TileStatus) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if status, _ := s.Status(); status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	status, detail := s.Status()
	t.Fatalf("status = %s (%s), want %s", status, detail, want)
}

func TestSessionLoadingToOk(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(factoryFor(ft))

	session, err := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	if err != nil {
		t.Fatalf("open tile: %v", err)
	}
	if status, _ := session.Status(); status != eventbus.TileLoading {
		t.Fatalf("new session should be loading, got %s", status)
	}

	ft.events <- Event{Kind: ManifestReady}
	waitStatus(t, session, eventbus.TileOK)
}

func TestTeardownExactlyOnceEvenIfNeverHealthy(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(factoryFor(ft))

	session, err := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	if err != nil {
		t.Fatalf("open tile: %v", err)
	}

	// Still loading; close repeatedly from multiple paths.
	session.Close()
	session.Close()
	m.CloseTile(SlotID(0))

	<-session.Done()
	if got := ft.closes.Load(); got != 1 {
		t.Fatalf("transport closed %d times, want exactly 1", got)
	}
}

func TestWarnClearsWithoutRecreation(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(factoryFor(ft))

	session, _ := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	ft.events <- Event{Kind: FragmentLoaded}
	waitStatus(t, session, eventbus.TileOK)

	ft.events <- Event{Kind: BufferStalled, Detail: "stall"}
	waitStatus(t, session, eventbus.TileWarn)

	ft.events <- Event{Kind: FragmentLoaded}
	waitStatus(t, session, eventbus.TileOK)

	if got := ft.opens.Load(); got != 1 {
		t.Fatalf("transport reopened %d times; warn recovery must not recreate the session", got)
	}
}

func TestStallWhileLoadingIsIgnored(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(factoryFor(ft))

	session, _ := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	ft.events <- Event{Kind: BufferStalled}

	time.Sleep(20 * time.Millisecond)
	if status, _ := session.Status(); status != eventbus.TileLoading {
		t.Fatalf("stall before first frame should keep loading, got %s", status)
	}
}

func TestFatalMediaErrorGetsOneRecovery(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(factoryFor(ft))

	session, _ := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	ft.events <- Event{Kind: FragmentLoaded}
	waitStatus(t, session, eventbus.TileOK)

	// First fatal media error recovers in place.
	ft.events <- Event{Kind: MediaError, Fatal: true, Detail: "decode"}
	ft.events <- Event{Kind: FragmentLoaded}
	deadline := time.Now().Add(time.Second)
	for ft.recovers.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	waitStatus(t, session, eventbus.TileOK)
	if got := ft.recovers.Load(); got != 1 {
		t.Fatalf("recover called %d times, want 1", got)
	}

	// Second fatal media error tears the session down.
	ft.events <- Event{Kind: MediaError, Fatal: true, Detail: "decode again"}
	waitStatus(t, session, eventbus.TileFatal)
	<-session.Done()
	if got := ft.recovers.Load(); got != 1 {
		t.Fatalf("second fatal must not recover again, got %d attempts", got)
	}
	if ft.closes.Load() != 1 {
		t.Fatal("fatal teardown should close the transport")
	}
}

// restartTransport hands out a fresh event channel per Open, mimicking a
// transport whose delivery dies with its fatal error.
type restartTransport struct {
	mu       sync.Mutex
	chans    []chan Event
	recovers atomic.Int32
}

func (r *restartTransport) Open(ctx context.Context) (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Event, 16)
	r.chans = append(r.chans, ch)
	return ch, nil
}

func (r *restartTransport) Recover() error {
	r.recovers.Add(1)
	return nil
}

func (r *restartTransport) Close() {}

func (r *restartTransport) channel(i int) chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < len(r.chans) {
		return r.chans[i]
	}
	return nil
}

func TestRecoveryReopensDelivery(t *testing.T) {
	rt := &restartTransport{}
	m := NewManager(func(source string, inline bool) Transport { return rt })

	session, err := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	if err != nil {
		t.Fatalf("open tile: %v", err)
	}
	first := rt.channel(0)
	first <- Event{Kind: FragmentLoaded}
	waitStatus(t, session, eventbus.TileOK)

	// Delivery stops with the fatal error; a recovered session must have a
	// live transport behind it, not a drained channel.
	first <- Event{Kind: MediaError, Fatal: true, Detail: "decode"}
	close(first)

	var second chan Event
	deadline := time.Now().Add(time.Second)
	for second == nil && time.Now().Before(deadline) {
		second = rt.channel(1)
		time.Sleep(2 * time.Millisecond)
	}
	if second == nil {
		t.Fatal("recovery did not reopen the transport")
	}
	if got := rt.recovers.Load(); got != 1 {
		t.Fatalf("recover called %d times, want 1", got)
	}

	second <- Event{Kind: BufferStalled, Detail: "stall"}
	waitStatus(t, session, eventbus.TileWarn)

	select {
	case <-session.Done():
		t.Fatal("session must stay alive after an in-place recovery")
	default:
	}
}

func TestRecoveryFailureIsFatal(t *testing.T) {
	ft := newFakeTransport()
	ft.recoverErr = errors.New("still broken")
	m := NewManager(factoryFor(ft))

	session, _ := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	ft.events <- Event{Kind: FragmentLoaded}
	waitStatus(t, session, eventbus.TileOK)

	ft.events <- Event{Kind: MediaError, Fatal: true, Detail: "decode"}
	waitStatus(t, session, eventbus.TileFatal)
	<-session.Done()
}

func TestFatalNetworkErrorSkipsRecovery(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(factoryFor(ft))

	session, _ := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	ft.events <- Event{Kind: NetworkError, Fatal: true, Detail: "gateway down"}
	waitStatus(t, session, eventbus.TileFatal)
	<-session.Done()
	if ft.recovers.Load() != 0 {
		t.Fatal("network errors must not trigger media recovery")
	}
}

func TestOpenFailureMarksFatal(t *testing.T) {
	ft := newFakeTransport()
	ft.openErr = errors.New("no manifest")
	m := NewManager(factoryFor(ft))

	session, err := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	if err != nil {
		t.Fatalf("open tile returned transport error directly: %v", err)
	}
	waitStatus(t, session, eventbus.TileFatal)
}

func TestSlotReplacementClosesPrevious(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	transports := []*fakeTransport{first, second}
	i := 0
	m := NewManager(func(source string, inline bool) Transport {
		t := transports[i]
		i++
		return t
	})

	old, _ := m.OpenTile(context.Background(), SlotID(0), "gate", true)
	replacement, _ := m.OpenTile(context.Background(), SlotID(0), "fence", true)

	<-old.Done()
	if first.closes.Load() != 1 {
		t.Fatal("replacing a slot must close the previous session")
	}
	if m.Session(SlotID(0)) != replacement {
		t.Fatal("slot should hold the replacement session")
	}
}

func TestSingleExpandedSession(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	transports := []*fakeTransport{first, second}
	i := 0
	m := NewManager(func(source string, inline bool) Transport {
		t := transports[i]
		i++
		return t
	})

	old, _ := m.Expand(context.Background(), "gate")
	replacement, _ := m.Expand(context.Background(), "fence")

	<-old.Done()
	if first.closes.Load() != 1 {
		t.Fatal("expanding again must collapse the previous expanded session")
	}
	if m.Expanded() != replacement {
		t.Fatal("manager should track the new expanded session")
	}

	m.CollapseExpanded()
	<-replacement.Done()
	if m.Expanded() != nil {
		t.Fatal("collapse should clear the expanded session")
	}
}

func TestCloseAllBumpsGeneration(t *testing.T) {
	transports := []*fakeTransport{newFakeTransport(), newFakeTransport(), newFakeTransport()}
	i := 0
	m := NewManager(func(source string, inline bool) Transport {
		t := transports[i]
		i++
		return t
	})

	a, _ := m.OpenTile(context.Background(), SlotID(0), "gate", false)
	b, _ := m.OpenTile(context.Background(), SlotID(1), "fence", false)
	m.Expand(context.Background(), "yard")

	gen := m.Generation()
	m.CloseAll()
	<-a.Done()
	<-b.Done()

	if m.Generation() != gen+1 {
		t.Fatalf("generation not bumped: %d -> %d", gen, m.Generation())
	}
	if len(m.Statuses()) != 0 {
		t.Fatal("no sessions should survive CloseAll")
	}
	if m.Expanded() != nil {
		t.Fatal("expanded session should not survive CloseAll")
	}
}

func TestHealthEventsReachTheBus(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	sub := eventbus.SubscribeTo(bus, eventbus.Tiles.Health)
	defer sub.Close()

	ft := newFakeTransport()
	m := NewManager(factoryFor(ft))
	m.UseEventBus(bus)

	m.OpenTile(context.Background(), SlotID(2), "gate", true)
	ft.events <- Event{Kind: ManifestReady}

	select {
	case ev := <-sub.C():
		if ev.Payload.TileID != SlotID(2) || ev.Payload.Status != eventbus.TileOK {
			t.Fatalf("unexpected health event %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no health event published")
	}
}
