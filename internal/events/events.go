// Package events defines the engine's tagged event stream.
//
// The installer never writes directly to a terminal. It pushes Event
// values to a single dispatcher channel, one per phase transition, so
// that ordering stays deterministic regardless of how many goroutines are
// doing work underneath (see spec.md §9's "single dispatcher" note). A nil
// Sink is always safe to use: every Emit is a best-effort non-blocking
// send.
package events

// Kind tags an Event. Consumers should switch on Kind, not parse Message.
type Kind string

const (
	KindFeatureSelection    Kind = "feature_selection"
	KindHierarchyLoad       Kind = "hierarchy_load"
	KindNeedVersion         Kind = "need_version"
	KindClientLoadStart     Kind = "client_load_start"
	KindClientLoadEnd       Kind = "client_load_end"
	KindLibrariesLoadStart  Kind = "libraries_load_start"
	KindLibrariesLoadEnd    Kind = "libraries_load_end"
	KindAssetsLoadStart     Kind = "assets_load_start"
	KindAssetsLoadEnd       Kind = "assets_load_end"
	KindLoggerLoadStart     Kind = "logger_load_start"
	KindLoggerLoadEnd       Kind = "logger_load_end"
	KindJVMLoadStart        Kind = "jvm_load_start"
	KindJVMLoadEnd          Kind = "jvm_load_end"
	KindLoadedJVM           Kind = "loaded_jvm"
	KindDownloadProgress    Kind = "download_progress"
	KindFixApplied          Kind = "fix_applied"
	KindFabricFetchVersion  Kind = "fetch_version"
	KindForgeFetchInstaller Kind = "fetch_installer"
	KindForgeRunProcessor   Kind = "run_installer_processor"
	KindForgeInstalled      Kind = "installed"
	KindDownloadCancelled   Kind = "download_resources_cancelled"
	KindWarning             Kind = "warning"
)

// Event is one record of the machine-readable install event stream.
type Event struct {
	Kind    Kind
	Data    any
	Message string
}

// HierarchyLoadData is Data for KindHierarchyLoad.
type HierarchyLoadData struct {
	RootID   string
	LoadedID []string
}

// NeedVersionData is Data for KindNeedVersion.
type NeedVersionData struct {
	ID    string
	File  string
	Retry bool
}

// DownloadProgressData is Data for KindDownloadProgress.
type DownloadProgressData struct {
	DoneCount  int
	TotalCount int
	DoneBytes  int64
	TotalBytes int64
}

// LoadedJVMData is Data for KindLoadedJVM.
type LoadedJVMData struct {
	Path       string
	Compatible bool
}

// FixAppliedData is Data for KindFixApplied.
type FixAppliedData struct {
	Name string
}

// RunProcessorData is Data for KindForgeRunProcessor.
type RunProcessorData struct {
	Name string
	Task string
}

// Sink is anything an Event can be pushed to. *Dispatcher implements it.
type Sink interface {
	Emit(e Event)
}

// Dispatcher is the single point through which every Event flows, keeping
// delivery order deterministic even though producers (the fetch engine's
// workers, Forge's processor subprocesses) run concurrently.
type Dispatcher struct {
	ch chan<- Event
}

// NewDispatcher wraps a channel as a Sink. A nil channel yields a
// Dispatcher whose Emit is a no-op.
func NewDispatcher(ch chan<- Event) *Dispatcher {
	return &Dispatcher{ch: ch}
}

// Emit sends e without blocking; if the channel isn't ready (or is nil)
// the event is dropped rather than stalling the installer.
func (d *Dispatcher) Emit(e Event) {
	if d == nil || d.ch == nil {
		return
	}
	select {
	case d.ch <- e:
	default:
	}
}

// Emitf is a convenience for Kind+Message-only events.
func (d *Dispatcher) Emitf(kind Kind, msg string) {
	d.Emit(Event{Kind: kind, Message: msg})
}
