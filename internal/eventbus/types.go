package eventbus

import "time"

// Topic identifies a logical channel on the bus.
type Topic string

const (
	TopicTileHealth     Topic = "tiles.health"
	TopicStateRefreshed Topic = "state.refreshed"
	TopicCycleAdvanced  Topic = "cycle.advanced"
	TopicAdminSaved     Topic = "admin.saved"
	TopicViewerCommand  Topic = "viewer.command"
)

// Source describes which component produced an event.
type Source string

const (
	SourceKiosk       Source = "kiosk"
	SourceTileManager Source = "tile_manager"
	SourceScheduler   Source = "scheduler"
	SourceAdmin       Source = "admin"
	SourceServer      Source = "server"
	SourceUnknown     Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic     Topic
	Timestamp time.Time
	Source    Source
	Payload   any
}

// TileStatus mirrors the per-session health classification.
type TileStatus string

const (
	TileLoading TileStatus = "loading"
	TileOK      TileStatus = "ok"
	TileWarn    TileStatus = "warn"
	TileFatal   TileStatus = "fatal"
)

// TileHealthEvent notifies consumers about a tile session transition.
type TileHealthEvent struct {
	TileID     string
	Source     string
	Status     TileStatus
	Detail     string
	Generation uint64
}

// RefreshTrigger classifies what caused a snapshot refresh.
type RefreshTrigger string

const (
	RefreshInitial   RefreshTrigger = "initial"
	RefreshScheduled RefreshTrigger = "scheduled"
	RefreshForced    RefreshTrigger = "forced"
)

// StateRefreshedEvent is published after a snapshot fully replaced view state.
type StateRefreshedEvent struct {
	ActiveProfileID string
	ProfileCount    int
	CameraCount     int
	PageCount       int
	Trigger         RefreshTrigger
}

// CycleTrigger classifies what advanced the slide index.
type CycleTrigger string

const (
	CycleTimer   CycleTrigger = "timer"
	CycleManual  CycleTrigger = "manual"
	CycleRefresh CycleTrigger = "refresh"
)

// CycleAdvancedEvent is published whenever the visible page changes.
type CycleAdvancedEvent struct {
	PageIndex int
	PageCount int
	PageName  string
	Trigger   CycleTrigger
}

// AdminSavedEvent is published after a draft save or direct mutation succeeds.
type AdminSavedEvent struct {
	ProfileID  string
	SlideCount int
	Operation  string
}

// ViewerCommandEvent carries a navigation/admin command received from a
// display client over the command socket.
type ViewerCommandEvent struct {
	ConnID  string
	Command string
	Arg     string
}

// Typed topic descriptors. Each TopicDef binds a Topic constant to its
// payload type, enabling compile-time enforcement via Publish / SubscribeTo.

// Tiles groups tile-session topic descriptors.
var Tiles = struct {
	Health TopicDef[TileHealthEvent]
}{
	Health: NewTopicDef[TileHealthEvent](TopicTileHealth),
}

// State groups snapshot topic descriptors.
var State = struct {
	Refreshed TopicDef[StateRefreshedEvent]
}{
	Refreshed: NewTopicDef[StateRefreshedEvent](TopicStateRefreshed),
}

// Cycle groups scheduler topic descriptors.
var Cycle = struct {
	Advanced TopicDef[CycleAdvancedEvent]
}{
	Advanced: NewTopicDef[CycleAdvancedEvent](TopicCycleAdvanced),
}

// Admin groups admin topic descriptors.
var Admin = struct {
	Saved TopicDef[AdminSavedEvent]
}{
	Saved: NewTopicDef[AdminSavedEvent](TopicAdminSaved),
}

// Viewer groups display-client topic descriptors.
var Viewer = struct {
	Command TopicDef[ViewerCommandEvent]
}{
	Command: NewTopicDef[ViewerCommandEvent](TopicViewerCommand),
}
